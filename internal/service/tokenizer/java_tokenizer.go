package tokenizer

import (
	"context"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"
)

var javaGrammar = grammar{
	name:       "java",
	atomic:     set("string_literal", "character_literal", "text_block"),
	literals:   set("true", "false", "null_literal"),
	separators: set("(", ")", "{", "}", "[", "]", ";", ",", "."),
	openers:    []string{"\"", "'", "/*"},
}

// JavaTokenizer implements tokenization for Java source code
type JavaTokenizer struct {
	*treeSitterTokenizer
}

// NewJavaTokenizer creates a new Java tokenizer
func NewJavaTokenizer() (*JavaTokenizer, error) {
	base, err := newTreeSitterTokenizer(javaGrammar, tree_sitter.NewLanguage(java.Language()))
	if err != nil {
		return nil, err
	}
	return &JavaTokenizer{treeSitterTokenizer: base}, nil
}

// ClassSource is the text of one class declaration
type ClassSource struct {
	Name   string
	Public bool
	Code   string
}

// ExtractClasses returns the class declarations of a compilation unit in
// source order, including nested ones. Parse errors are tolerated.
func (t *JavaTokenizer) ExtractClasses(ctx context.Context, source []byte) ([]ClassSource, error) {
	tree, err := t.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var classes []ClassSource
	collectClasses(tree.RootNode(), source, &classes)
	return classes, nil
}

// FirstClass returns the first class declaration, optionally requiring a
// public modifier on it. ok is false when no class qualifies.
func (t *JavaTokenizer) FirstClass(ctx context.Context, source []byte, publicOnly bool) (ClassSource, bool, error) {
	classes, err := t.ExtractClasses(ctx, source)
	if err != nil {
		return ClassSource{}, false, err
	}
	if len(classes) == 0 {
		return ClassSource{}, false, nil
	}
	first := classes[0]
	if publicOnly && !first.Public {
		return ClassSource{}, false, nil
	}
	return first, true, nil
}

func collectClasses(node *tree_sitter.Node, source []byte, classes *[]ClassSource) {
	if node == nil {
		return
	}

	if node.Kind() == "class_declaration" {
		class := ClassSource{Code: strings.TrimSpace(node.Utf8Text(source))}
		if name := node.ChildByFieldName("name"); name != nil {
			class.Name = name.Utf8Text(source)
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			if child != nil && child.Kind() == "modifiers" {
				class.Public = hasWord(child.Utf8Text(source), "public")
			}
		}
		*classes = append(*classes, class)
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		collectClasses(node.Child(i), source, classes)
	}
}

func hasWord(text, word string) bool {
	for _, field := range strings.Fields(text) {
		if field == word {
			return true
		}
	}
	return false
}
