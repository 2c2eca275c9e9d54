package ngram

import "strings"

// Reserved tokens. They never come out of a tokenizer.
const (
	UnknownToken = "<UNK>"
	StartToken   = "<s>"
	EndToken     = "</s>"
)

// Category labels that replace the literal text of punctuation tokens
const (
	SeparatorLabel = "Separator"
	OperatorLabel  = "Operator"
)

// TokenKind tags a token with its lexical class
type TokenKind int

const (
	KindIdentifier TokenKind = iota
	KindKeyword
	KindLiteral
	KindSeparator
	KindOperator
)

func (k TokenKind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindKeyword:
		return "keyword"
	case KindLiteral:
		return "literal"
	case KindSeparator:
		return "separator"
	case KindOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// Token represents a single lexical token in source code
type Token struct {
	Kind   TokenKind // Lexical class assigned by the tokenizer
	Type   string    // Grammar node kind (e.g., "identifier", "string_literal", "{")
	Value  string    // Original token value
	Line   int       // Line number in source
	Column int       // Column number in source
}

// TokenSequence is a slice of tokens
type TokenSequence []Token

// Sequence is an ordered list of normalized token strings from one code unit
type Sequence []string

// String joins the sequence with single spaces for display
func (s Sequence) String() string {
	return strings.Join(s, " ")
}

// NGram represents an n-gram (sequence of n tokens)
type NGram []string

// keySeparator cannot appear inside a token produced by any tokenizer
const keySeparator = "\x1f"

// Key returns a map key that is unique for the exact token tuple
func (ng NGram) Key() string {
	return strings.Join(ng, keySeparator)
}

// String returns the n-gram as a space-separated string
func (ng NGram) String() string {
	return strings.Join(ng, " ")
}

// Context returns the context (all tokens except the last one)
func (ng NGram) Context() NGram {
	if len(ng) <= 1 {
		return NGram{}
	}
	return ng[:len(ng)-1]
}

// LastToken returns the last token in the n-gram
func (ng NGram) LastToken() string {
	if len(ng) == 0 {
		return ""
	}
	return ng[len(ng)-1]
}

// SplitKey is the inverse of NGram.Key
func SplitKey(key string) NGram {
	if key == "" {
		return NGram{}
	}
	return NGram(strings.Split(key, keySeparator))
}

// Pad prepends n-1 start sentinels and appends a single end sentinel.
func Pad(seq Sequence, n int) Sequence {
	if n < 1 {
		n = 1
	}
	padded := make(Sequence, 0, len(seq)+n)
	for i := 0; i < n-1; i++ {
		padded = append(padded, StartToken)
	}
	padded = append(padded, seq...)
	return append(padded, EndToken)
}

// NGrams slides a window of width n over the padded sequence.
// The returned n-grams alias the padded slice.
func NGrams(seq Sequence, n int) []NGram {
	padded := Pad(seq, n)
	if n < 1 || len(padded) < n {
		return nil
	}
	result := make([]NGram, 0, len(padded)-n+1)
	for i := 0; i+n <= len(padded); i++ {
		result = append(result, NGram(padded[i:i+n]))
	}
	return result
}
