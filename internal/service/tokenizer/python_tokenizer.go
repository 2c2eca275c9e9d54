package tokenizer

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var pythonGrammar = grammar{
	name:       "python",
	atomic:     set("string"),
	literals:   set("integer", "float", "true", "false", "none"),
	separators: set("(", ")", "[", "]", "{", "}", ",", ":", ";", "."),
	openers:    []string{"\"", "'"},
}

// PythonTokenizer implements tokenization for Python source code
type PythonTokenizer struct {
	*treeSitterTokenizer
}

// NewPythonTokenizer creates a new Python tokenizer
func NewPythonTokenizer() (*PythonTokenizer, error) {
	base, err := newTreeSitterTokenizer(pythonGrammar, tree_sitter.NewLanguage(python.Language()))
	if err != nil {
		return nil, err
	}
	return &PythonTokenizer{treeSitterTokenizer: base}, nil
}
