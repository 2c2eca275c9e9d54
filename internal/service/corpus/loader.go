package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"ngram-go/internal/config"
	ngmodel "ngram-go/internal/model/ngram"
	"ngram-go/internal/service/tokenizer"

	"go.uber.org/zap"
)

// classExtractor is implemented by tokenizers that can isolate class declarations
type classExtractor interface {
	FirstClass(ctx context.Context, source []byte, publicOnly bool) (tokenizer.ClassSource, bool, error)
}

// PrepareStats counts why records were kept or dropped
type PrepareStats struct {
	Records        int `json:"records"`
	Kept           int `json:"kept"`
	TooLong        int `json:"too_long"`
	ContainsURL    int `json:"contains_url"`
	NoClass        int `json:"no_class"`
	Duplicates     int `json:"duplicates"`
	TokenizeErrors int `json:"tokenize_errors"`
}

// Loader turns configured record sources into tokenized splits
type Loader struct {
	cfg        config.DatasetConfig
	tokenizer  tokenizer.Tokenizer
	registry   *tokenizer.TokenizerRegistry
	numWorkers int
	logger     *zap.Logger
}

// NewLoader creates a loader for language using a tokenizer from registry
func NewLoader(cfg config.DatasetConfig, language string, registry *tokenizer.TokenizerRegistry, numWorkers int, logger *zap.Logger) (*Loader, error) {
	tok, err := registry.Lookup(language)
	if err != nil {
		return nil, err
	}

	return &Loader{
		cfg:        cfg,
		tokenizer:  tok,
		registry:   registry,
		numWorkers: numWorkers,
		logger:     logger,
	}, nil
}

// LoadSplits reads pre-split partitions when configured, otherwise reads the
// whole dataset and splits it
func (l *Loader) LoadSplits(ctx context.Context) (*Splits, error) {
	if l.cfg.PreSplit() {
		train, err := l.loadPartition(ctx, "train", l.cfg.TrainPath)
		if err != nil {
			return nil, err
		}
		validation, err := l.loadPartition(ctx, "validation", l.cfg.ValidationPath)
		if err != nil {
			return nil, err
		}
		test, err := l.loadPartition(ctx, "test", l.cfg.TestPath)
		if err != nil {
			return nil, err
		}
		return &Splits{Train: train, Validation: validation, Test: test}, nil
	}

	all, err := l.loadPartition(ctx, "dataset", l.cfg.Path)
	if err != nil {
		return nil, err
	}

	splits := Split(all, l.cfg.TestFraction, l.cfg.ValidationFraction, l.cfg.SplitSeed)
	l.logger.Info("Split corpus",
		zap.Int("train", len(splits.Train)),
		zap.Int("validation", len(splits.Validation)),
		zap.Int("test", len(splits.Test)),
		zap.Int64("seed", l.cfg.SplitSeed))

	return &splits, nil
}

func (l *Loader) loadPartition(ctx context.Context, name, path string) ([]ngmodel.Sequence, error) {
	if path == "" {
		l.logger.Warn("No path configured for partition", zap.String("partition", name))
		return nil, nil
	}

	records, err := l.ReadRecords(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s records: %w", name, err)
	}

	seqs, stats, err := l.Prepare(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s records: %w", name, err)
	}

	l.logger.Info("Prepared partition",
		zap.String("partition", name),
		zap.String("path", path),
		zap.Int("records", stats.Records),
		zap.Int("kept", stats.Kept),
		zap.Int("too_long", stats.TooLong),
		zap.Int("contains_url", stats.ContainsURL),
		zap.Int("no_class", stats.NoClass),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("tokenize_errors", stats.TokenizeErrors))

	return seqs, nil
}

// ReadRecords reads raw records from path in the configured format
func (l *Loader) ReadRecords(ctx context.Context, path string) ([]Record, error) {
	if l.cfg.Format == "dir" {
		language := l.tokenizer.Language()
		return ReadDir(ctx, path, func(ext string) bool {
			lang, ok := l.registry.LanguageForExtension(ext)
			return ok && lang == language
		}, l.cfg.GitHead, l.numWorkers, l.logger)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch l.cfg.Format {
	case "csv":
		return ReadCSV(file, l.cfg.CodeField, l.cfg.TokenCountField)
	case "jsonl":
		return ReadJSONL(file, l.cfg.CodeField, l.cfg.TokenCountField)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", l.cfg.Format)
	}
}

// Prepare filters records and tokenizes the survivors. Records that fail to
// tokenize are dropped and counted; only context errors abort.
func (l *Loader) Prepare(ctx context.Context, records []Record) ([]ngmodel.Sequence, PrepareStats, error) {
	stats := PrepareStats{Records: len(records)}

	var dedup *DuplicateFilter
	if l.cfg.Dedup {
		dedup = NewDuplicateFilter(uint(len(records)), l.cfg.DedupFalsePositiveRate)
	}
	extractor, canExtract := l.tokenizer.(classExtractor)

	seqs := make([]ngmodel.Sequence, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		if l.cfg.MaxTokens > 0 && record.TokenCount > l.cfg.MaxTokens {
			stats.TooLong++
			continue
		}
		if l.cfg.ExcludeURLs && containsURL(record.Code) {
			stats.ContainsURL++
			continue
		}

		code := record.Code
		if l.cfg.ExtractClass && canExtract {
			class, ok, err := extractor.FirstClass(ctx, []byte(code), l.cfg.PublicOnly)
			if err != nil {
				return nil, stats, err
			}
			if !ok {
				stats.NoClass++
				continue
			}
			code = class.Code
		}

		if dedup != nil && dedup.Seen(code) {
			stats.Duplicates++
			continue
		}

		seq, err := tokenizer.Sequence(ctx, l.tokenizer, []byte(code))
		if err != nil {
			var tokErr *tokenizer.TokenizeError
			if errors.As(err, &tokErr) {
				stats.TokenizeErrors++
				l.logger.Debug("Excluding record that failed to tokenize",
					zap.String("record", record.ID),
					zap.Error(err))
				continue
			}
			return nil, stats, err
		}

		// Without a stored count the limit applies to the tokenized length
		if l.cfg.MaxTokens > 0 && record.TokenCount < 0 && len(seq) > l.cfg.MaxTokens {
			stats.TooLong++
			continue
		}

		seqs = append(seqs, seq)
	}

	stats.Kept = len(seqs)
	return seqs, stats, nil
}

func containsURL(code string) bool {
	return strings.Contains(code, "http:") || strings.Contains(code, "https:")
}
