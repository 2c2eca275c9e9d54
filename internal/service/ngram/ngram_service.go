package ngram

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"ngram-go/internal/config"
	ngmodel "ngram-go/internal/model/ngram"
	"ngram-go/internal/service/corpus"
	"ngram-go/internal/service/tokenizer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNoModel is returned by queries issued before a model set is trained or loaded
	ErrNoModel = errors.New("no n-gram model loaded")

	// ErrOrderNotTrained is returned when a query names an order the model set lacks
	ErrOrderNotTrained = errors.New("order not trained")

	// ErrLanguageMismatch is returned when a query's language differs from the model set's
	ErrLanguageMismatch = errors.New("language does not match model")
)

// NGramService trains model sets and answers completion and scoring queries
// against the current one
type NGramService struct {
	cfg         *config.Config
	registry    *tokenizer.TokenizerRegistry
	persistence *NGramPersistence
	logger      *zap.Logger

	mu     sync.RWMutex
	models *ModelSet
}

// NewNGramService creates a service persisting models under cfg.App.ModelDir
func NewNGramService(cfg *config.Config, registry *tokenizer.TokenizerRegistry, logger *zap.Logger) (*NGramService, error) {
	if _, err := registry.Lookup(cfg.Training.Language); err != nil {
		return nil, err
	}

	persistence, err := NewNGramPersistence(cfg.App.ModelDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence: %w", err)
	}

	return &NGramService{
		cfg:         cfg,
		registry:    registry,
		persistence: persistence,
		logger:      logger,
	}, nil
}

// OrderReport holds the results for one model order
type OrderReport struct {
	N            int         `json:"n"`
	Contexts     int         `json:"contexts"`
	Validation   *Evaluation `json:"validation,omitempty"`
	Test         *Evaluation `json:"test,omitempty"`
	Completion   []string    `json:"completion,omitempty"`
	TrainSeconds float64     `json:"train_seconds"`
}

// Report summarizes one training run
type Report struct {
	RunID               string        `json:"run_id"`
	Language            string        `json:"language"`
	CreatedAt           time.Time     `json:"created_at"`
	MinFrequency        int           `json:"min_frequency"`
	VocabularySize      int           `json:"vocabulary_size"`
	TrainSequences      int           `json:"train_sequences"`
	ValidationSequences int           `json:"validation_sequences"`
	TestSequences       int           `json:"test_sequences"`
	Seed                []string      `json:"seed,omitempty"`
	Orders              []OrderReport `json:"orders"`
}

// Train builds the vocabulary from the training split, fits one model per
// configured order and evaluates each on the held-out splits. The resulting
// model set replaces the current one.
func (ns *NGramService) Train(ctx context.Context, splits *corpus.Splits) (*Report, error) {
	if len(splits.Train) == 0 {
		return nil, ngmodel.ErrEmptyCorpus
	}

	training := ns.cfg.Training
	vocab, err := BuildVocabulary(splits.Train, training.MinFrequency)
	if err != nil {
		return nil, err
	}

	train := vocab.NormalizeCorpus(splits.Train)
	validation := vocab.NormalizeCorpus(splits.Validation)
	test := vocab.NormalizeCorpus(splits.Test)

	rng := rand.New(rand.NewSource(training.Seed))
	report := &Report{
		RunID:               uuid.New().String(),
		Language:            training.Language,
		CreatedAt:           time.Now().UTC(),
		MinFrequency:        training.MinFrequency,
		VocabularySize:      vocab.Size(),
		TrainSequences:      len(train),
		ValidationSequences: len(validation),
		TestSequences:       len(test),
		Seed:                chooseSeed(test, training.SeedTokens, rng),
	}

	ns.logger.Info("Starting training run",
		zap.String("run_id", report.RunID),
		zap.String("language", report.Language),
		zap.Int("vocabulary_size", vocab.Size()),
		zap.Int("min_frequency", training.MinFrequency),
		zap.Int("train_sequences", len(train)),
		zap.Ints("orders", ns.cfg.Orders()))

	models := make(map[int]*Model)
	for _, n := range ns.cfg.Orders() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		model, err := FitParallel(ctx, train, n, ns.cfg.App.NumWorkers)
		if err != nil {
			return nil, fmt.Errorf("failed to fit order %d: %w", n, err)
		}
		models[n] = model

		order := OrderReport{
			N:            n,
			Contexts:     model.Len(),
			TrainSeconds: time.Since(start).Seconds(),
		}
		order.Validation = ns.evaluate("validation", n, validation, model)
		order.Test = ns.evaluate("test", n, test, model)

		if report.Seed != nil {
			completion, err := Generate(report.Seed, n, model, vocab, training.MaxLength, rng)
			if err != nil {
				return nil, err
			}
			order.Completion = completion
		}

		fields := []zap.Field{
			zap.Int("n", n),
			zap.Int("contexts", model.Len()),
			zap.Float64("train_seconds", order.TrainSeconds),
		}
		if order.Validation != nil {
			fields = append(fields, zap.Float64("validation_perplexity", order.Validation.Perplexity))
		}
		if order.Test != nil {
			fields = append(fields, zap.Float64("test_perplexity", order.Test.Perplexity))
		}
		ns.logger.Info("Trained n-gram model", fields...)

		report.Orders = append(report.Orders, order)
	}

	ns.mu.Lock()
	ns.models = &ModelSet{
		RunID:      report.RunID,
		CreatedAt:  report.CreatedAt,
		Language:   report.Language,
		Vocabulary: vocab,
		Models:     models,
	}
	ns.mu.Unlock()

	return report, nil
}

// evaluate returns nil when the split has nothing to score
func (ns *NGramService) evaluate(split string, n int, seqs []ngmodel.Sequence, model *Model) *Evaluation {
	eval, err := Evaluate(n, seqs, model)
	if err != nil {
		ns.logger.Warn("Skipping evaluation",
			zap.String("split", split),
			zap.Int("n", n),
			zap.Error(err))
		return nil
	}
	return eval
}

// chooseSeed picks a random test sequence and returns its first k tokens
func chooseSeed(test []ngmodel.Sequence, k int, rng RandSource) ngmodel.Sequence {
	if len(test) == 0 {
		return nil
	}
	seq := test[rng.Intn(len(test))]
	if k > len(seq) {
		k = len(seq)
	}
	seed := make(ngmodel.Sequence, k)
	copy(seed, seq[:k])
	return seed
}

// Save persists the current model set under name
func (ns *NGramService) Save(name string) error {
	set, err := ns.current()
	if err != nil {
		return err
	}
	return ns.persistence.Save(set, name)
}

// Load replaces the current model set with the one stored under name
func (ns *NGramService) Load(name string) error {
	set, err := ns.persistence.Load(name)
	if err != nil {
		return err
	}
	if set.Language != ns.cfg.Training.Language {
		return fmt.Errorf("%w: stored model is %s, configured language is %s",
			ErrLanguageMismatch, set.Language, ns.cfg.Training.Language)
	}

	ns.mu.Lock()
	ns.models = set
	ns.mu.Unlock()

	ns.logger.Info("Loaded n-gram models",
		zap.String("name", name),
		zap.String("run_id", set.RunID),
		zap.Ints("orders", set.Orders()))
	return nil
}

// DeleteModel removes the model set stored under name. The in-memory set is kept.
func (ns *NGramService) DeleteModel(name string) error {
	return ns.persistence.DeleteModel(name)
}

// ModelExists reports whether a model set is stored under name
func (ns *NGramService) ModelExists(name string) bool {
	return ns.persistence.ModelExists(name)
}

// ModelInfo describes one trained order
type ModelInfo struct {
	N        int `json:"n"`
	Contexts int `json:"contexts"`
}

// ModelSetInfo describes the current model set
type ModelSetInfo struct {
	RunID          string      `json:"run_id"`
	Language       string      `json:"language"`
	CreatedAt      time.Time   `json:"created_at"`
	VocabularySize int         `json:"vocabulary_size"`
	Models         []ModelInfo `json:"models"`
}

// Info describes the current model set
func (ns *NGramService) Info() (*ModelSetInfo, error) {
	set, err := ns.current()
	if err != nil {
		return nil, err
	}

	info := &ModelSetInfo{
		RunID:          set.RunID,
		Language:       set.Language,
		CreatedAt:      set.CreatedAt,
		VocabularySize: set.Vocabulary.Size(),
	}
	for _, n := range set.Orders() {
		info.Models = append(info.Models, ModelInfo{N: n, Contexts: set.Models[n].Len()})
	}
	return info, nil
}

// CompletionRequest asks for a greedy continuation of Code, or of Tokens when
// the caller has already tokenized
type CompletionRequest struct {
	Language  string
	Code      string
	Tokens    []string
	N         int
	MaxLength int
	Seed      *int64
}

// Completion is the generated continuation
type Completion struct {
	N         int      `json:"n"`
	Context   []string `json:"context"`
	Generated []string `json:"generated"`
	Sequence  []string `json:"sequence"`
}

// Complete extends the request's context with the order-n model. MaxLength
// defaults to the configured max_length and Seed to the configured seed.
func (ns *NGramService) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	set, model, err := ns.modelFor(req.Language, req.N)
	if err != nil {
		return nil, err
	}

	maxLength := req.MaxLength
	if maxLength == 0 {
		maxLength = ns.cfg.Training.MaxLength
	}
	seed := ns.cfg.Training.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	var input ngmodel.Sequence
	if req.Tokens != nil {
		input = ngmodel.Sequence(req.Tokens)
	} else {
		input, err = ns.tokenize(ctx, set.Language, req.Code)
		if err != nil {
			return nil, err
		}
	}
	input = set.Vocabulary.Normalize(input)

	sequence, err := Generate(input, req.N, model, set.Vocabulary, maxLength, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}

	prefix := len(input)
	if prefix > len(sequence) {
		prefix = len(sequence)
	}
	return &Completion{
		N:         req.N,
		Context:   input[:prefix],
		Generated: sequence[prefix:],
		Sequence:  sequence,
	}, nil
}

// ScoreRequest asks for the perplexity of Code under the order-n model
type ScoreRequest struct {
	Language string
	Code     string
	N        int
}

// Score tokenizes code, normalizes it against the vocabulary and evaluates it
func (ns *NGramService) Score(ctx context.Context, req ScoreRequest) (*Evaluation, error) {
	set, model, err := ns.modelFor(req.Language, req.N)
	if err != nil {
		return nil, err
	}

	seq, err := ns.tokenize(ctx, set.Language, req.Code)
	if err != nil {
		return nil, err
	}
	return Evaluate(req.N, []ngmodel.Sequence{set.Vocabulary.Normalize(seq)}, model)
}

func (ns *NGramService) tokenize(ctx context.Context, language, code string) (ngmodel.Sequence, error) {
	tok, err := ns.registry.Lookup(language)
	if err != nil {
		return nil, err
	}
	return tokenizer.Sequence(ctx, tok, []byte(code))
}

func (ns *NGramService) current() (*ModelSet, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	if ns.models == nil {
		return nil, ErrNoModel
	}
	return ns.models, nil
}

// modelFor resolves the model of order n; an empty language means the model's own
func (ns *NGramService) modelFor(language string, n int) (*ModelSet, *Model, error) {
	set, err := ns.current()
	if err != nil {
		return nil, nil, err
	}
	if language != "" && language != set.Language {
		return nil, nil, fmt.Errorf("%w: requested %s, model is %s", ErrLanguageMismatch, language, set.Language)
	}
	if err := ngmodel.ValidateOrder(n); err != nil {
		return nil, nil, err
	}

	model, ok := set.Models[n]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d (available %v)", ErrOrderNotTrained, n, set.Orders())
	}
	return set, model, nil
}
