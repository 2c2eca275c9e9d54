package ngram

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	ngmodel "ngram-go/internal/model/ngram"

	"go.uber.org/zap"
)

const persistenceVersion = "2.0"

// ModelSet is everything needed to score and generate: one vocabulary and a
// model per trained order
type ModelSet struct {
	RunID      string
	CreatedAt  time.Time
	Language   string
	Vocabulary *Vocabulary
	Models     map[int]*Model
}

// Orders returns the trained orders in ascending order
func (s *ModelSet) Orders() []int {
	orders := make([]int, 0, len(s.Models))
	for n := range s.Models {
		orders = append(orders, n)
	}
	sort.Ints(orders)
	return orders
}

// SerializableModelSet is the gob representation of a ModelSet
type SerializableModelSet struct {
	Version      string
	RunID        string
	CreatedAt    time.Time
	Language     string
	MinFrequency int
	Vocabulary   []string
	Models       []SerializableModel
}

// SerializableModel stores the probabilities of one order
type SerializableModel struct {
	N             int
	Distributions []SerializableDistribution
}

// SerializableDistribution keeps tokens in first-seen order so tie-breaks survive a reload
type SerializableDistribution struct {
	Context []string
	Tokens  []string
	Probs   []float64
}

// NGramPersistence handles saving and loading model sets
type NGramPersistence struct {
	outputDir string
	logger    *zap.Logger
}

// NewNGramPersistence creates a new persistence manager
func NewNGramPersistence(outputDir string, logger *zap.Logger) (*NGramPersistence, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &NGramPersistence{
		outputDir: outputDir,
		logger:    logger,
	}, nil
}

// GetModelPath returns the file path for a named model set
func (p *NGramPersistence) GetModelPath(name string) string {
	return filepath.Join(p.outputDir, fmt.Sprintf("%s_ngram.gob", name))
}

// Save writes a model set to disk
func (p *NGramPersistence) Save(set *ModelSet, name string) error {
	if set == nil || set.Vocabulary == nil {
		return fmt.Errorf("no model set to save")
	}

	modelPath := p.GetModelPath(name)
	if err := p.saveToFile(serializeModelSet(set), modelPath); err != nil {
		return fmt.Errorf("failed to save to file: %w", err)
	}

	p.logger.Info("Saved n-gram models",
		zap.String("name", name),
		zap.String("path", modelPath),
		zap.String("run_id", set.RunID),
		zap.Ints("orders", set.Orders()),
		zap.Int("vocabulary_size", set.Vocabulary.Size()))

	return nil
}

// Load reads a model set from disk
func (p *NGramPersistence) Load(name string) (*ModelSet, error) {
	modelPath := p.GetModelPath(name)

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no saved model found: %s", name)
	}

	stored, err := p.loadFromFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load from file: %w", err)
	}
	if stored.Version != persistenceVersion {
		return nil, fmt.Errorf("unsupported model format version %q", stored.Version)
	}

	set, err := deserializeModelSet(stored)
	if err != nil {
		return nil, fmt.Errorf("corrupt model file %s: %w", modelPath, err)
	}

	p.logger.Info("Loaded n-gram models",
		zap.String("name", name),
		zap.String("path", modelPath),
		zap.String("run_id", set.RunID),
		zap.Ints("orders", set.Orders()))

	return set, nil
}

// ModelExists checks if a saved model set exists
func (p *NGramPersistence) ModelExists(name string) bool {
	_, err := os.Stat(p.GetModelPath(name))
	return err == nil
}

// DeleteModel deletes a saved model set
func (p *NGramPersistence) DeleteModel(name string) error {
	if err := os.Remove(p.GetModelPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	p.logger.Info("Deleted n-gram model", zap.String("name", name))
	return nil
}

func serializeModelSet(set *ModelSet) *SerializableModelSet {
	stored := &SerializableModelSet{
		Version:      persistenceVersion,
		RunID:        set.RunID,
		CreatedAt:    set.CreatedAt,
		Language:     set.Language,
		MinFrequency: set.Vocabulary.MinFrequency(),
		Vocabulary:   set.Vocabulary.Tokens(),
	}

	for _, n := range set.Orders() {
		model := set.Models[n]
		sm := SerializableModel{N: n}
		for _, context := range model.Contexts() {
			d, _ := model.Distribution(context)
			probs := make([]float64, len(d.probs))
			copy(probs, d.probs)
			sm.Distributions = append(sm.Distributions, SerializableDistribution{
				Context: context,
				Tokens:  d.Tokens(),
				Probs:   probs,
			})
		}
		stored.Models = append(stored.Models, sm)
	}
	return stored
}

func deserializeModelSet(stored *SerializableModelSet) (*ModelSet, error) {
	vocab := NewVocabulary(stored.Vocabulary)
	vocab.minFrequency = stored.MinFrequency

	set := &ModelSet{
		RunID:      stored.RunID,
		CreatedAt:  stored.CreatedAt,
		Language:   stored.Language,
		Vocabulary: vocab,
		Models:     make(map[int]*Model, len(stored.Models)),
	}

	for _, sm := range stored.Models {
		if sm.N < 1 {
			return nil, fmt.Errorf("invalid model order %d", sm.N)
		}
		if _, dup := set.Models[sm.N]; dup {
			return nil, fmt.Errorf("duplicate model for order %d", sm.N)
		}

		contexts := make(map[string]*Distribution, len(sm.Distributions))
		for _, sd := range sm.Distributions {
			if len(sd.Context) != sm.N-1 {
				return nil, fmt.Errorf("order %d: context %v has %d tokens", sm.N, sd.Context, len(sd.Context))
			}
			if len(sd.Tokens) == 0 || len(sd.Tokens) != len(sd.Probs) {
				return nil, fmt.Errorf("order %d: context %v has %d tokens and %d probabilities",
					sm.N, sd.Context, len(sd.Tokens), len(sd.Probs))
			}
			contexts[ngmodel.NGram(sd.Context).Key()] = newDistribution(sd.Tokens, sd.Probs)
		}
		set.Models[sm.N] = &Model{n: sm.N, contexts: contexts}
	}
	return set, nil
}

// saveToFile saves a model set to a file using gob encoding
func (p *NGramPersistence) saveToFile(model *SerializableModelSet, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(model); err != nil {
		return err
	}

	return file.Sync()
}

// loadFromFile loads a model set from a file using gob decoding
func (p *NGramPersistence) loadFromFile(path string) (*SerializableModelSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var model SerializableModelSet
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&model); err != nil {
		return nil, err
	}

	return &model, nil
}
