package tokenizer

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	golang "github.com/tree-sitter/tree-sitter-go/bindings/go"
)

var goGrammar = grammar{
	name:       "go",
	atomic:     set("interpreted_string_literal", "raw_string_literal", "rune_literal"),
	literals:   set("true", "false", "nil", "iota"),
	separators: set("(", ")", "{", "}", "[", "]", ";", ",", ".", ":"),
	openers:    []string{"\"", "'", "`", "/*"},
}

// GoTokenizer implements tokenization for Go source code
type GoTokenizer struct {
	*treeSitterTokenizer
}

// NewGoTokenizer creates a new Go tokenizer
func NewGoTokenizer() (*GoTokenizer, error) {
	base, err := newTreeSitterTokenizer(goGrammar, tree_sitter.NewLanguage(golang.Language()))
	if err != nil {
		return nil, err
	}
	return &GoTokenizer{treeSitterTokenizer: base}, nil
}
