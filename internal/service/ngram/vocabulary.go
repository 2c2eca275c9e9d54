package ngram

import (
	"sort"

	ngmodel "ngram-go/internal/model/ngram"
)

// Vocabulary is the closed token set retained after frequency filtering.
// It always contains the unknown-token sentinel and is immutable once built.
type Vocabulary struct {
	tokens       []string // sentinel first, remaining tokens sorted
	members      map[string]struct{}
	minFrequency int
}

// CountTokens returns the total occurrences of every token in the corpus
func CountTokens(corpus []ngmodel.Sequence) map[string]int64 {
	counts := make(map[string]int64)
	for _, seq := range corpus {
		for _, token := range seq {
			counts[token]++
		}
	}
	return counts
}

// BuildVocabulary keeps every token whose corpus frequency is at least minFrequency
func BuildVocabulary(corpus []ngmodel.Sequence, minFrequency int) (*Vocabulary, error) {
	if err := ngmodel.ValidateMinFrequency(minFrequency); err != nil {
		return nil, err
	}

	var kept []string
	for token, count := range CountTokens(corpus) {
		if count >= int64(minFrequency) && token != ngmodel.UnknownToken {
			kept = append(kept, token)
		}
	}

	v := NewVocabulary(kept)
	v.minFrequency = minFrequency
	return v, nil
}

// NewVocabulary builds a vocabulary from an explicit token list.
// The sentinel is added when missing.
func NewVocabulary(tokens []string) *Vocabulary {
	members := make(map[string]struct{}, len(tokens)+1)
	members[ngmodel.UnknownToken] = struct{}{}

	rest := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := members[token]; ok {
			continue
		}
		members[token] = struct{}{}
		rest = append(rest, token)
	}
	sort.Strings(rest)

	return &Vocabulary{
		tokens:       append([]string{ngmodel.UnknownToken}, rest...),
		members:      members,
		minFrequency: 1,
	}
}

// Contains reports vocabulary membership
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.members[token]
	return ok
}

// Size includes the sentinel
func (v *Vocabulary) Size() int {
	return len(v.tokens)
}

// MinFrequency returns the threshold the vocabulary was closed at
func (v *Vocabulary) MinFrequency() int {
	return v.minFrequency
}

// Tokens returns the members in a fixed order: sentinel first, the rest sorted
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// At returns the i-th token of Tokens()
func (v *Vocabulary) At(i int) string {
	return v.tokens[i]
}

// Normalize replaces every out-of-vocabulary token with the sentinel
func (v *Vocabulary) Normalize(seq ngmodel.Sequence) ngmodel.Sequence {
	out := make(ngmodel.Sequence, len(seq))
	for i, token := range seq {
		if v.Contains(token) {
			out[i] = token
		} else {
			out[i] = ngmodel.UnknownToken
		}
	}
	return out
}

// NormalizeCorpus applies Normalize to every sequence
func (v *Vocabulary) NormalizeCorpus(corpus []ngmodel.Sequence) []ngmodel.Sequence {
	out := make([]ngmodel.Sequence, len(corpus))
	for i, seq := range corpus {
		out[i] = v.Normalize(seq)
	}
	return out
}
