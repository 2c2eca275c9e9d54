package ngram

import (
	"fmt"

	ngmodel "ngram-go/internal/model/ngram"
)

// RandSource supplies the random fallback draws. *rand.Rand satisfies it.
// Callers that need reproducible output pass a seeded source.
type RandSource interface {
	Intn(n int) int
}

// PredictNext returns the most probable continuation of the last n-1 tokens of
// context. An unseen context yields a uniform draw from the vocabulary.
func PredictNext(context []string, model *Model, vocab *Vocabulary, rng RandSource) string {
	k := model.Order() - 1
	if len(context) > k {
		context = context[len(context)-k:]
	}

	if d, ok := model.Distribution(context); ok {
		return d.Argmax()
	}
	return vocab.At(rng.Intn(vocab.Size()))
}

// Generate greedily extends seed until the end sentinel is predicted or the
// output reaches maxLength tokens. The end sentinel is never emitted.
func Generate(seed ngmodel.Sequence, n int, model *Model, vocab *Vocabulary, maxLength int, rng RandSource) (ngmodel.Sequence, error) {
	if err := ngmodel.ValidateOrder(n); err != nil {
		return nil, err
	}
	if err := ngmodel.ValidateMaxLength(maxLength); err != nil {
		return nil, err
	}
	if n != model.Order() {
		return nil, fmt.Errorf("order %d does not match model order %d", n, model.Order())
	}

	if len(seed) > maxLength {
		seed = seed[:maxLength]
	}
	generated := make(ngmodel.Sequence, len(seed), maxLength)
	copy(generated, seed)

	for len(generated) < maxLength {
		next := PredictNext(generated, model, vocab, rng)
		if next == ngmodel.EndToken {
			break
		}
		generated = append(generated, next)
	}
	return generated, nil
}
