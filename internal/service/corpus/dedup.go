package corpus

import (
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
)

// DuplicateFilter drops records whose whitespace-normalized code was already
// seen. A bloom filter keeps memory flat; a false positive drops a unique
// record with probability close to the configured rate.
type DuplicateFilter struct {
	filter *bloom.BloomFilter
}

// NewDuplicateFilter sizes the filter for expectedItems records
func NewDuplicateFilter(expectedItems uint, falsePositiveRate float64) *DuplicateFilter {
	if expectedItems == 0 {
		expectedItems = 1
	}
	return &DuplicateFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

// Seen records code and reports whether it had (probably) been seen before
func (f *DuplicateFilter) Seen(code string) bool {
	return f.filter.TestAndAddString(strings.Join(strings.Fields(code), " "))
}
