package ngram

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	ngmodel "ngram-go/internal/model/ngram"
)

// fixedRand always draws the same index
type fixedRand struct {
	index int
	calls int
}

func (r *fixedRand) Intn(n int) int {
	r.calls++
	return r.index % n
}

func fitClassModel(t *testing.T, n int) (*Model, *Vocabulary) {
	t.Helper()
	vocab, err := BuildVocabulary(classCorpus(), 1)
	if err != nil {
		t.Fatalf("BuildVocabulary failed: %v", err)
	}
	model, err := Fit(vocab.NormalizeCorpus(classCorpus()), n)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return model, vocab
}

func TestPredictNext_TieGoesToFirstSeen(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	rng := &fixedRand{}

	if got := PredictNext([]string{"class"}, model, vocab, rng); got != "A" {
		t.Errorf("PredictNext(class) = %q, want A", got)
	}

	// Reversing the corpus flips which continuation was counted first
	reversed := []ngmodel.Sequence{classCorpus()[1], classCorpus()[0]}
	model, err := Fit(reversed, 2)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if got := PredictNext([]string{"class"}, model, vocab, rng); got != "B" {
		t.Errorf("PredictNext(class) on reversed corpus = %q, want B", got)
	}
	if rng.calls != 0 {
		t.Errorf("Known contexts should not consume randomness, got %d draws", rng.calls)
	}
}

func TestPredictNext_UsesLastTokens(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	got := PredictNext([]string{"class", "A", "{", "int"}, model, vocab, &fixedRand{})
	if got != "x" {
		t.Errorf("PredictNext = %q, want x", got)
	}
}

func TestPredictNext_UnseenContext(t *testing.T) {
	model, vocab := fitClassModel(t, 2)

	rng := &fixedRand{index: 4}
	got := PredictNext([]string{"never"}, model, vocab, rng)
	if got != vocab.At(4) {
		t.Errorf("PredictNext = %q, want %q", got, vocab.At(4))
	}
	if rng.calls != 1 {
		t.Errorf("Expected one random draw, got %d", rng.calls)
	}

	// A context shorter than n-1 is looked up as-is and misses
	model3, _ := fitClassModel(t, 3)
	rng = &fixedRand{index: 1}
	if got := PredictNext([]string{"class"}, model3, vocab, rng); got != vocab.At(1) {
		t.Errorf("PredictNext with short context = %q, want %q", got, vocab.At(1))
	}
}

func TestPredictNext_Unigram(t *testing.T) {
	model, vocab := fitClassModel(t, 1)
	rng := &fixedRand{}

	// class, {, int, ;, } and </s> all occur twice; class is counted first
	if got := PredictNext([]string{"anything", "at", "all"}, model, vocab, rng); got != "class" {
		t.Errorf("PredictNext = %q, want class", got)
	}
	if rng.calls != 0 {
		t.Error("Unigram prediction should not consume randomness")
	}
}

func TestGenerate(t *testing.T) {
	model, vocab := fitClassModel(t, 2)

	got, err := Generate(ngmodel.Sequence{"class"}, 2, model, vocab, 100, &fixedRand{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	want := ngmodel.Sequence{"class", "A", "{", "int", "x", ";", "}"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Generate = %v, want %v", got, want)
	}
}

func TestGenerate_RespectsMaxLength(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	rng := rand.New(rand.NewSource(1))

	for maxLength := 1; maxLength <= 10; maxLength++ {
		for _, seed := range []ngmodel.Sequence{nil, {"class"}, {"unseen", "tokens"}, {"class", "A", "{", "int", "x", ";", "}", "class", "B", "{", "int"}} {
			got, err := Generate(seed, 2, model, vocab, maxLength, rng)
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			if len(got) > maxLength {
				t.Fatalf("Generated %d tokens with max_length %d", len(got), maxLength)
			}
			for _, token := range got {
				if token == ngmodel.EndToken {
					t.Fatalf("Generated sequence contains the end sentinel: %v", got)
				}
			}
		}
	}
}

func TestGenerate_TruncatesLongSeed(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	seed := ngmodel.Sequence{"class", "A", "{", "int"}

	got, err := Generate(seed, 2, model, vocab, 2, &fixedRand{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(got, ngmodel.Sequence{"class", "A"}) {
		t.Fatalf("Generate = %v, want [class A]", got)
	}
	if len(seed) != 4 || seed[2] != "{" {
		t.Error("Generate modified its seed")
	}
}

func TestGenerate_Reproducible(t *testing.T) {
	model, vocab := fitClassModel(t, 3)
	seed := ngmodel.Sequence{"unseen"}

	first, err := Generate(seed, 3, model, vocab, 20, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := Generate(seed, 3, model, vocab, 20, rand.New(rand.NewSource(99)))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Same seed produced %v and %v", first, second)
	}
}

func TestGenerate_InvalidArguments(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	var cfgErr *ngmodel.InvalidConfigurationError

	if _, err := Generate(nil, 2, model, vocab, 0, &fixedRand{}); !errors.As(err, &cfgErr) || cfgErr.Field != "max_length" {
		t.Errorf("Expected max_length error, got %v", err)
	}
	if _, err := Generate(nil, 0, model, vocab, 10, &fixedRand{}); !errors.As(err, &cfgErr) || cfgErr.Field != "n" {
		t.Errorf("Expected order error, got %v", err)
	}
	if _, err := Generate(nil, 3, model, vocab, 10, &fixedRand{}); err == nil {
		t.Error("Expected error for order mismatch")
	}
}

func TestPerplexity_ClassCorpus(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	corpus := vocab.NormalizeCorpus(classCorpus())

	ppl, err := Perplexity(2, corpus, model)
	if err != nil {
		t.Fatalf("Perplexity failed: %v", err)
	}
	// 16 bigrams, four of them at probability 0.5
	want := math.Pow(2, 0.25)
	if math.Abs(ppl-want) > 1e-9 {
		t.Fatalf("Perplexity = %v, want %v", ppl, want)
	}
	if ppl <= 1 || math.IsInf(ppl, 0) || math.IsNaN(ppl) {
		t.Fatalf("Perplexity %v is not a finite value above 1", ppl)
	}
}

func TestPerplexity_UnseenCorpusIsWorse(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	train := vocab.NormalizeCorpus(classCorpus())
	unseen := []ngmodel.Sequence{{"q", "r", "s", "t", "u", "v", "w"}}

	seen, err := Perplexity(2, train, model)
	if err != nil {
		t.Fatalf("Perplexity failed: %v", err)
	}
	eval, err := Evaluate(2, unseen, model)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if seen > eval.Perplexity {
		t.Errorf("Training perplexity %v exceeds unseen perplexity %v", seen, eval.Perplexity)
	}
	if eval.NGrams != 8 {
		t.Errorf("Expected 8 n-grams, got %d", eval.NGrams)
	}
	// <s> is a known context but q is not a known continuation of it
	if eval.UnseenTokens != 1 || eval.UnseenContexts != 7 {
		t.Errorf("UnseenTokens = %d, UnseenContexts = %d", eval.UnseenTokens, eval.UnseenContexts)
	}
}

func TestPerplexity_EmptyCorpus(t *testing.T) {
	model, _ := fitClassModel(t, 2)
	if _, err := Perplexity(2, nil, model); !errors.Is(err, ngmodel.ErrEmptyCorpus) {
		t.Fatalf("Expected ErrEmptyCorpus, got %v", err)
	}
}

func TestEvaluate_SequenceStats(t *testing.T) {
	model, vocab := fitClassModel(t, 2)
	corpus := vocab.NormalizeCorpus(classCorpus())

	eval, err := Evaluate(2, corpus, model)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	stats := eval.SequenceStats
	if stats.Count != 2 || stats.StdDev != 0 || math.Abs(stats.Mean-eval.Perplexity) > 1e-9 {
		t.Errorf("Unexpected sequence stats %+v", stats)
	}
}
