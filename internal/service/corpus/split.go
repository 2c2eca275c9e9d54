package corpus

import (
	"math"
	"math/rand"

	ngmodel "ngram-go/internal/model/ngram"
)

// Splits holds the three partitions of a tokenized corpus
type Splits struct {
	Train      []ngmodel.Sequence
	Validation []ngmodel.Sequence
	Test       []ngmodel.Sequence
}

// Split shuffles the corpus with seed, takes testFraction of it for test and
// then validationFraction of the remainder for validation. Partition sizes
// round up.
func Split(corpus []ngmodel.Sequence, testFraction, validationFraction float64, seed int64) Splits {
	perm := rand.New(rand.NewSource(seed)).Perm(len(corpus))

	nTest := fractionOf(len(corpus), testFraction)
	nVal := fractionOf(len(corpus)-nTest, validationFraction)

	var splits Splits
	for i, idx := range perm {
		switch {
		case i < nTest:
			splits.Test = append(splits.Test, corpus[idx])
		case i < nTest+nVal:
			splits.Validation = append(splits.Validation, corpus[idx])
		default:
			splits.Train = append(splits.Train, corpus[idx])
		}
	}
	return splits
}

func fractionOf(total int, fraction float64) int {
	if fraction <= 0 || total == 0 {
		return 0
	}
	n := int(math.Ceil(fraction * float64(total)))
	if n > total {
		n = total
	}
	return n
}
