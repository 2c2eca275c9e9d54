package ngram

import (
	"fmt"
	"math"

	ngmodel "ngram-go/internal/model/ngram"
)

// FloorProbability stands in for n-grams the model has never seen
const FloorProbability = 1e-10

// Perplexity returns exp(-mean ln p) over every padded n-gram of corpus
func Perplexity(n int, corpus []ngmodel.Sequence, model *Model) (float64, error) {
	eval, err := Evaluate(n, corpus, model)
	if err != nil {
		return 0, err
	}
	return eval.Perplexity, nil
}

// Evaluation summarizes how well a model predicts a held-out corpus
type Evaluation struct {
	Perplexity     float64         `json:"perplexity"`
	NGrams         int             `json:"ngrams"`
	Sequences      int             `json:"sequences"`
	UnseenContexts int             `json:"unseen_contexts"`
	UnseenTokens   int             `json:"unseen_tokens"` // context known, token not
	SequenceStats  PerplexityStats `json:"sequence_stats"`
}

// PerplexityStats describes the spread of per-sequence perplexities
type PerplexityStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Evaluate scores corpus against model. Missing contexts and tokens fall back
// to FloorProbability; a corpus without n-grams yields ErrEmptyCorpus.
func Evaluate(n int, corpus []ngmodel.Sequence, model *Model) (*Evaluation, error) {
	if err := ngmodel.ValidateOrder(n); err != nil {
		return nil, err
	}
	if n != model.Order() {
		return nil, fmt.Errorf("order %d does not match model order %d", n, model.Order())
	}

	eval := &Evaluation{Sequences: len(corpus)}
	logLikelihood := 0.0
	perSequence := make([]float64, 0, len(corpus))

	for _, seq := range corpus {
		seqLogLikelihood := 0.0
		grams := ngmodel.NGrams(seq, n)

		for _, ng := range grams {
			prob := FloorProbability
			if d, ok := model.Distribution(ng.Context()); !ok {
				eval.UnseenContexts++
			} else if p, ok := d.Probability(ng.LastToken()); !ok {
				eval.UnseenTokens++
			} else {
				prob = p
			}
			seqLogLikelihood += math.Log(prob)
		}

		logLikelihood += seqLogLikelihood
		eval.NGrams += len(grams)
		if len(grams) > 0 {
			perSequence = append(perSequence, math.Exp(-seqLogLikelihood/float64(len(grams))))
		}
	}

	if eval.NGrams == 0 {
		return nil, ngmodel.ErrEmptyCorpus
	}

	eval.Perplexity = math.Exp(-logLikelihood / float64(eval.NGrams))
	eval.SequenceStats = calculatePerplexityStatistics(perSequence)
	return eval, nil
}

func calculatePerplexityStatistics(values []float64) PerplexityStats {
	if len(values) == 0 {
		return PerplexityStats{}
	}

	sum := 0.0
	min := values[0]
	max := values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / float64(len(values))

	varianceSum := 0.0
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}

	return PerplexityStats{
		Mean:   mean,
		StdDev: math.Sqrt(varianceSum / float64(len(values))),
		Min:    min,
		Max:    max,
		Count:  len(values),
	}
}
