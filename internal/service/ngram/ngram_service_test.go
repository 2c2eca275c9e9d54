package ngram

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"ngram-go/internal/config"
	ngmodel "ngram-go/internal/model/ngram"
	"ngram-go/internal/service/corpus"
	"ngram-go/internal/service/tokenizer"
	"ngram-go/internal/util"

	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*NGramService, *tokenizer.TokenizerRegistry) {
	t.Helper()

	registry, err := tokenizer.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	t.Cleanup(registry.Close)

	cfg := config.DefaultConfig()
	cfg.App.ModelDir = t.TempDir()
	cfg.App.NumWorkers = 2
	cfg.Training.MinFrequency = 1
	cfg.Training.MinOrder = 1
	cfg.Training.MaxOrder = 3
	cfg.Training.MaxLength = 10
	cfg.Training.SeedTokens = 2

	svc, err := NewNGramService(cfg, registry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNGramService failed: %v", err)
	}
	return svc, registry
}

func javaSequences(t *testing.T, registry *tokenizer.TokenizerRegistry, sources ...string) []ngmodel.Sequence {
	t.Helper()
	tok, _ := registry.GetTokenizer("java")

	seqs := make([]ngmodel.Sequence, 0, len(sources))
	for _, src := range sources {
		seq, err := tokenizer.Sequence(context.Background(), tok, []byte(src))
		if err != nil {
			t.Fatalf("Tokenize(%q) failed: %v", src, err)
		}
		seqs = append(seqs, seq)
	}
	return seqs
}

func trainTestService(t *testing.T) (*NGramService, *Report) {
	t.Helper()
	svc, registry := newTestService(t)

	splits := &corpus.Splits{
		Train: javaSequences(t, registry, "class A { int x; }", "class B { int y; }"),
		Test:  javaSequences(t, registry, "class A { int z; }"),
	}
	report, err := svc.Train(context.Background(), splits)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	return svc, report
}

func TestNGramService_Train(t *testing.T) {
	_, report := trainTestService(t)

	if report.RunID == "" {
		t.Error("Report has no run ID")
	}
	if report.VocabularySize != 8 {
		// <UNK> class A B Separator int x y
		t.Errorf("VocabularySize = %d, want 8", report.VocabularySize)
	}
	if !reflect.DeepEqual(report.Seed, []string{"class", "A"}) {
		t.Errorf("Seed = %v, want [class A]", report.Seed)
	}
	if len(report.Orders) != 3 {
		t.Fatalf("Expected 3 order reports, got %d", len(report.Orders))
	}

	for _, order := range report.Orders {
		if order.Validation != nil {
			t.Errorf("n=%d: empty validation split should not be evaluated", order.N)
		}
		if order.Test == nil {
			t.Fatalf("n=%d: missing test evaluation", order.N)
		}
		ppl := order.Test.Perplexity
		if ppl <= 1 || math.IsInf(ppl, 0) || math.IsNaN(ppl) {
			t.Errorf("n=%d: test perplexity %v", order.N, ppl)
		}
		if len(order.Completion) > 10 {
			t.Errorf("n=%d: completion longer than max_length: %v", order.N, order.Completion)
		}
		if len(order.Completion) < 2 || order.Completion[0] != "class" || order.Completion[1] != "A" {
			t.Errorf("n=%d: completion does not start with the seed: %v", order.N, order.Completion)
		}
	}

	// Separator is followed by int, Separator and </s> equally often; int was counted first
	bigram := report.Orders[1]
	want := []string{"class", "A", "Separator", "int", "x", "Separator", "int", "x", "Separator", "int"}
	if bigram.N != 2 || !reflect.DeepEqual(bigram.Completion, want) {
		t.Errorf("Bigram completion = %v, want %v", bigram.Completion, want)
	}
}

func TestNGramService_TrainEmptyCorpus(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Train(context.Background(), &corpus.Splits{}); !errors.Is(err, ngmodel.ErrEmptyCorpus) {
		t.Fatalf("Expected ErrEmptyCorpus, got %v", err)
	}
}

func TestNGramService_QueriesWithoutModel(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, CompletionRequest{Tokens: []string{"class"}, N: 2}); !errors.Is(err, ErrNoModel) {
		t.Errorf("Complete: expected ErrNoModel, got %v", err)
	}
	if _, err := svc.Score(ctx, ScoreRequest{Code: "class A {}", N: 2}); !errors.Is(err, ErrNoModel) {
		t.Errorf("Score: expected ErrNoModel, got %v", err)
	}
	if _, err := svc.Info(); !errors.Is(err, ErrNoModel) {
		t.Errorf("Info: expected ErrNoModel, got %v", err)
	}
	if err := svc.Save("default"); !errors.Is(err, ErrNoModel) {
		t.Errorf("Save: expected ErrNoModel, got %v", err)
	}
}

func TestNGramService_Complete(t *testing.T) {
	svc, _ := trainTestService(t)
	ctx := context.Background()

	completion, err := svc.Complete(ctx, CompletionRequest{Language: "java", Tokens: []string{"class", "B"}, N: 2})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	want := []string{"Separator", "int", "x", "Separator", "int", "x", "Separator", "int"}
	if !reflect.DeepEqual(completion.Generated, want) {
		t.Errorf("Generated = %v, want %v", completion.Generated, want)
	}
	if len(completion.Sequence) != 10 {
		t.Errorf("Sequence length = %d, want 10", len(completion.Sequence))
	}

	completion, err = svc.Complete(ctx, CompletionRequest{Code: "class Q { int x; }", N: 2, MaxLength: 9})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completion.Context[1] != ngmodel.UnknownToken {
		t.Errorf("Unknown identifier not normalized: %v", completion.Context)
	}
	if len(completion.Sequence) != 9 || !reflect.DeepEqual(completion.Generated, []string{"int", "x"}) {
		t.Errorf("Unexpected completion %+v", completion)
	}
}

func TestNGramService_CompleteIncompleteCode(t *testing.T) {
	svc, _ := trainTestService(t)

	completion, err := svc.Complete(context.Background(), CompletionRequest{Code: "class A {", N: 2})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !reflect.DeepEqual(completion.Context, []string{"class", "A", "Separator"}) {
		t.Errorf("Context = %v", completion.Context)
	}
	want := []string{"int", "x", "Separator", "int", "x", "Separator", "int"}
	if !reflect.DeepEqual(completion.Generated, want) {
		t.Errorf("Generated = %v, want %v", completion.Generated, want)
	}
}

func TestNGramService_CompleteSeeded(t *testing.T) {
	svc, _ := trainTestService(t)
	req := CompletionRequest{Tokens: []string{"never", "seen"}, N: 3, Seed: util.Ptr(int64(5))}

	first, err := svc.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	second, err := svc.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !reflect.DeepEqual(first.Context, []string{ngmodel.UnknownToken, ngmodel.UnknownToken}) {
		t.Errorf("Context = %v", first.Context)
	}
	if !reflect.DeepEqual(first.Sequence, second.Sequence) {
		t.Errorf("Seeded completions differ: %v vs %v", first.Sequence, second.Sequence)
	}
}

func TestNGramService_CompleteErrors(t *testing.T) {
	svc, _ := trainTestService(t)
	ctx := context.Background()

	if _, err := svc.Complete(ctx, CompletionRequest{Tokens: []string{"class"}, N: 5}); !errors.Is(err, ErrOrderNotTrained) {
		t.Errorf("Expected ErrOrderNotTrained, got %v", err)
	}
	if _, err := svc.Complete(ctx, CompletionRequest{Language: "python", Tokens: []string{"x"}, N: 2}); !errors.Is(err, ErrLanguageMismatch) {
		t.Errorf("Expected ErrLanguageMismatch, got %v", err)
	}

	var cfgErr *ngmodel.InvalidConfigurationError
	if _, err := svc.Complete(ctx, CompletionRequest{Tokens: []string{"class"}, N: 0}); !errors.As(err, &cfgErr) {
		t.Errorf("Expected InvalidConfigurationError, got %v", err)
	}

	var tokErr *tokenizer.TokenizeError
	if _, err := svc.Complete(ctx, CompletionRequest{Code: "class A { String s = \"open; }", N: 2}); !errors.As(err, &tokErr) {
		t.Errorf("Expected TokenizeError, got %v", err)
	}
}

func TestNGramService_Score(t *testing.T) {
	svc, _ := trainTestService(t)

	eval, err := svc.Score(context.Background(), ScoreRequest{Language: "java", Code: "class A { int x; }", N: 2})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if eval.NGrams != 8 || eval.Sequences != 1 {
		t.Errorf("Unexpected evaluation %+v", eval)
	}
	if eval.UnseenContexts != 0 || eval.UnseenTokens != 0 {
		t.Errorf("Training code should be fully known: %+v", eval)
	}
	if eval.Perplexity <= 1 {
		t.Errorf("Perplexity = %v, want > 1", eval.Perplexity)
	}
}

func TestNGramService_SaveLoad(t *testing.T) {
	svc, report := trainTestService(t)
	if err := svc.Save("java"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !svc.ModelExists("java") {
		t.Fatal("Saved model not found")
	}

	reloaded, err := NewNGramService(svc.cfg, svc.registry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNGramService failed: %v", err)
	}
	if err := reloaded.Load("java"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	info, err := reloaded.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.RunID != report.RunID || info.VocabularySize != report.VocabularySize || len(info.Models) != 3 {
		t.Errorf("Unexpected info %+v", info)
	}
	for i, m := range info.Models {
		if m.N != report.Orders[i].N || m.Contexts != report.Orders[i].Contexts {
			t.Errorf("Model %d: got %+v, want n=%d contexts=%d", i, m, report.Orders[i].N, report.Orders[i].Contexts)
		}
	}

	req := CompletionRequest{Tokens: []string{"class", "B"}, N: 3}
	want, err := svc.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, err := reloaded.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete after reload failed: %v", err)
	}
	if !reflect.DeepEqual(want.Sequence, got.Sequence) {
		t.Errorf("Completion changed after reload: %v vs %v", want.Sequence, got.Sequence)
	}
	if err := reloaded.DeleteModel("java"); err != nil {
		t.Fatalf("DeleteModel failed: %v", err)
	}
	if svc.ModelExists("java") {
		t.Error("Model still stored after DeleteModel")
	}
	if _, err := reloaded.Info(); err != nil {
		t.Errorf("In-memory models dropped by DeleteModel: %v", err)
	}
}

func TestNGramService_UnsupportedLanguage(t *testing.T) {
	registry, err := tokenizer.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	defer registry.Close()

	cfg := config.DefaultConfig()
	cfg.App.ModelDir = t.TempDir()
	cfg.Training.Language = "cobol"
	if _, err := NewNGramService(cfg, registry, zap.NewNop()); err == nil {
		t.Fatal("Expected error for a language without a tokenizer")
	}
}
