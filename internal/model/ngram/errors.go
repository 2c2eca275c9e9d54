package ngram

import (
	"errors"
	"fmt"
)

// ErrEmptyCorpus is returned when perplexity is requested over zero n-grams
var ErrEmptyCorpus = errors.New("empty evaluation corpus")

// InvalidConfigurationError reports a parameter outside its allowed range
type InvalidConfigurationError struct {
	Field string
	Value int
	Min   int
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s must be >= %d, got %d", e.Field, e.Min, e.Value)
}

func validateAtLeastOne(field string, value int) error {
	if value < 1 {
		return &InvalidConfigurationError{Field: field, Value: value, Min: 1}
	}
	return nil
}

// ValidateOrder checks the n-gram order
func ValidateOrder(n int) error {
	return validateAtLeastOne("n", n)
}

// ValidateMinFrequency checks the vocabulary closure threshold
func ValidateMinFrequency(minFrequency int) error {
	return validateAtLeastOne("min_frequency", minFrequency)
}

// ValidateMaxLength checks the generation cap
func ValidateMaxLength(maxLength int) error {
	return validateAtLeastOne("max_length", maxLength)
}
