package tokenizer

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// JavaScript and TypeScript share their lexical structure
var ecmaLiterals = set("number", "true", "false", "null", "undefined")

var ecmaSeparators = set("(", ")", "{", "}", "[", "]", ";", ",", ".")

var ecmaOpeners = []string{"\"", "'", "`", "/*"}

var javascriptGrammar = grammar{
	name:       "javascript",
	atomic:     set("string", "template_string", "regex"),
	literals:   ecmaLiterals,
	separators: ecmaSeparators,
	openers:    ecmaOpeners,
}

var typescriptGrammar = grammar{
	name:       "typescript",
	atomic:     set("string", "template_string", "regex"),
	literals:   ecmaLiterals,
	separators: ecmaSeparators,
	openers:    ecmaOpeners,
}

// JavaScriptTokenizer implements tokenization for JavaScript source code
type JavaScriptTokenizer struct {
	*treeSitterTokenizer
}

// NewJavaScriptTokenizer creates a new JavaScript tokenizer
func NewJavaScriptTokenizer() (*JavaScriptTokenizer, error) {
	base, err := newTreeSitterTokenizer(javascriptGrammar, tree_sitter.NewLanguage(javascript.Language()))
	if err != nil {
		return nil, err
	}
	return &JavaScriptTokenizer{treeSitterTokenizer: base}, nil
}

// TypeScriptTokenizer implements tokenization for TypeScript source code
type TypeScriptTokenizer struct {
	*treeSitterTokenizer
}

// NewTypeScriptTokenizer creates a new TypeScript tokenizer
func NewTypeScriptTokenizer() (*TypeScriptTokenizer, error) {
	base, err := newTreeSitterTokenizer(typescriptGrammar, tree_sitter.NewLanguage(typescript.LanguageTypescript()))
	if err != nil {
		return nil, err
	}
	return &TypeScriptTokenizer{treeSitterTokenizer: base}, nil
}
