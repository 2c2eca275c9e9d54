package config

import (
	"fmt"
	"os"

	"ngram-go/internal/model/ngram"

	"gopkg.in/yaml.v2"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Training TrainingConfig `yaml:"training"`
	Dataset  DatasetConfig  `yaml:"dataset"`
}

type AppConfig struct {
	Port       int      `yaml:"port"`
	WorkDir    string   `yaml:"work_dir"`
	ModelDir   string   `yaml:"model_dir"`
	ModelName  string   `yaml:"model_name"`
	NumWorkers int      `yaml:"num_workers"`
	LogLevel   string   `yaml:"log_level"`
	LogOutputs []string `yaml:"log_outputs"`
}

// TrainingConfig controls vocabulary closure, model orders and generation
type TrainingConfig struct {
	Language     string `yaml:"language"`
	MinFrequency int    `yaml:"min_frequency"`
	MinOrder     int    `yaml:"min_order"`
	MaxOrder     int    `yaml:"max_order"`
	MaxLength    int    `yaml:"max_length"`
	SeedTokens   int    `yaml:"seed_tokens"`
	Seed         int64  `yaml:"seed"`
}

// DatasetConfig describes where raw code records come from and how they are filtered and split
type DatasetConfig struct {
	Path            string `yaml:"path"`
	Format          string `yaml:"format"`   // "jsonl", "csv" or "dir"
	GitHead         bool   `yaml:"git_head"` // dir format: read files as committed at HEAD
	CodeField       string `yaml:"code_field"`
	TokenCountField string `yaml:"token_count_field"`
	MaxTokens       int    `yaml:"max_tokens"` // 0 disables the filter

	// Pre-split partitions; when set, Path is ignored
	TrainPath      string `yaml:"train_path"`
	ValidationPath string `yaml:"validation_path"`
	TestPath       string `yaml:"test_path"`

	TestFraction       float64 `yaml:"test_fraction"`
	ValidationFraction float64 `yaml:"validation_fraction"`
	SplitSeed          int64   `yaml:"split_seed"`

	Dedup                  bool    `yaml:"dedup"`
	DedupFalsePositiveRate float64 `yaml:"dedup_false_positive_rate"`
	ExtractClass           bool    `yaml:"extract_class"`
	PublicOnly             bool    `yaml:"public_only"`
	ExcludeURLs            bool    `yaml:"exclude_urls"`
}

// DefaultConfig trains on Java classes with min frequency 7,
// orders 1..5, 10% test and 20% of the remainder for validation
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Port:       8080,
			WorkDir:    ".",
			ModelDir:   "./ngram_models",
			ModelName:  "default",
			NumWorkers: 4,
			LogLevel:   "info",
			LogOutputs: []string{"stdout"},
		},
		Training: TrainingConfig{
			Language:     "java",
			MinFrequency: 7,
			MinOrder:     1,
			MaxOrder:     5,
			MaxLength:    100,
			SeedTokens:   3,
			Seed:         42,
		},
		Dataset: DatasetConfig{
			Format:                 "jsonl",
			CodeField:              "code",
			TestFraction:           0.1,
			ValidationFraction:     0.2,
			SplitSeed:              42,
			DedupFalsePositiveRate: 0.001,
			ExcludeURLs:            true,
		},
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	t := c.Training
	if err := ngram.ValidateMinFrequency(t.MinFrequency); err != nil {
		return err
	}
	if err := ngram.ValidateOrder(t.MinOrder); err != nil {
		return err
	}
	if t.MaxOrder < t.MinOrder {
		return &ngram.InvalidConfigurationError{Field: "max_order", Value: t.MaxOrder, Min: t.MinOrder}
	}
	if err := ngram.ValidateMaxLength(t.MaxLength); err != nil {
		return err
	}
	if t.SeedTokens < 0 {
		return &ngram.InvalidConfigurationError{Field: "seed_tokens", Value: t.SeedTokens, Min: 0}
	}

	d := c.Dataset
	switch d.Format {
	case "jsonl", "csv", "dir":
	default:
		return fmt.Errorf("invalid configuration: unsupported dataset format %q", d.Format)
	}
	if d.TestFraction < 0 || d.ValidationFraction < 0 || d.TestFraction >= 1 || d.ValidationFraction >= 1 {
		return fmt.Errorf("invalid configuration: split fractions must be in [0, 1), got test=%v validation=%v",
			d.TestFraction, d.ValidationFraction)
	}
	if d.Dedup && (d.DedupFalsePositiveRate <= 0 || d.DedupFalsePositiveRate >= 1) {
		return fmt.Errorf("invalid configuration: dedup_false_positive_rate must be in (0, 1), got %v", d.DedupFalsePositiveRate)
	}
	return nil
}

// Orders lists every model order to train
func (c *Config) Orders() []int {
	orders := make([]int, 0, c.Training.MaxOrder-c.Training.MinOrder+1)
	for n := c.Training.MinOrder; n <= c.Training.MaxOrder; n++ {
		orders = append(orders, n)
	}
	return orders
}

// PreSplit reports whether the dataset comes as separate partitions
func (d DatasetConfig) PreSplit() bool {
	return d.TrainPath != ""
}
