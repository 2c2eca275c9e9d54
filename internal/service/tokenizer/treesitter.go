package tokenizer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"ngram-go/internal/model/ngram"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// grammar describes how leaf nodes of one tree-sitter grammar map onto token kinds
type grammar struct {
	name       string
	atomic     map[string]bool // node kinds emitted whole, children ignored
	literals   map[string]bool // named leaf kinds that are literals
	separators map[string]bool // punctuation collapsed to SeparatorLabel
	openers    []string        // text that opens a literal or comment
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// treeSitterTokenizer walks the leaves of a tree-sitter parse tree
type treeSitterTokenizer struct {
	grammar  grammar
	parser   *tree_sitter.Parser
	language *tree_sitter.Language
	mu       sync.Mutex // Protects parser (tree-sitter parsers are not thread-safe)
}

func newTreeSitterTokenizer(g grammar, language *tree_sitter.Language) (*treeSitterTokenizer, error) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(language); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set %s language: %w", g.name, err)
	}

	return &treeSitterTokenizer{
		grammar:  g,
		parser:   parser,
		language: language,
	}, nil
}

// parse runs the parser under the lock. The caller closes the tree.
func (t *treeSitterTokenizer) parse(ctx context.Context, source []byte) (*tree_sitter.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tree := t.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s source", t.grammar.name)
	}
	return tree, nil
}

func (t *treeSitterTokenizer) Tokenize(ctx context.Context, source []byte) (ngram.TokenSequence, error) {
	tree, err := t.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	// Incomplete code still tokenizes; only unterminated literals and comments fail
	if rootNode.HasError() {
		if err := t.lexicalError(rootNode, source); err != nil {
			return nil, err
		}
	}

	var tokens ngram.TokenSequence
	t.traverseNode(rootNode, source, &tokens)

	return tokens, nil
}

type span struct{ start, end uint }

// lexicalError reports the first literal or comment opener that lies outside
// every well-formed literal and comment node
func (t *treeSitterTokenizer) lexicalError(root *tree_sitter.Node, source []byte) *TokenizeError {
	var spans []span
	t.collectSpans(root, &spans)

	next := 0
	for i := 0; i < len(source); i++ {
		for next < len(spans) && uint(i) >= spans[next].end {
			next++
		}
		if next < len(spans) && uint(i) >= spans[next].start {
			i = int(spans[next].end) - 1
			continue
		}
		for _, opener := range t.grammar.openers {
			if bytes.HasPrefix(source[i:], []byte(opener)) {
				return t.errorAt(source, i, opener)
			}
		}
	}
	return nil
}

// collectSpans records the byte ranges of error-free literal and comment
// nodes in source order
func (t *treeSitterTokenizer) collectSpans(node *tree_sitter.Node, spans *[]span) {
	if node == nil || node.IsMissing() {
		return
	}
	kind := node.Kind()
	if node.IsNamed() && !node.HasError() && (t.grammar.atomic[kind] || strings.Contains(kind, "comment")) {
		*spans = append(*spans, span{start: node.StartByte(), end: node.EndByte()})
		return
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		t.collectSpans(node.Child(i), spans)
	}
}

func (t *treeSitterTokenizer) errorAt(source []byte, offset int, opener string) *TokenizeError {
	line := bytes.Count(source[:offset], []byte("\n")) + 1
	column := offset - bytes.LastIndexByte(source[:offset], '\n')

	reason := fmt.Sprintf("unterminated literal opened by %q", opener)
	if strings.HasPrefix(opener, "/*") {
		reason = "unterminated comment"
	}
	return &TokenizeError{
		Language: t.grammar.name,
		Line:     line,
		Column:   column,
		Reason:   reason,
	}
}

func (t *treeSitterTokenizer) traverseNode(node *tree_sitter.Node, source []byte, tokens *ngram.TokenSequence) {
	if node == nil {
		return
	}

	nodeType := node.Kind()
	if strings.Contains(nodeType, "comment") {
		return
	}

	// Leaves, plus literal nodes that tree-sitter splits into fragments
	if node.ChildCount() == 0 || t.grammar.atomic[nodeType] {
		content := node.Utf8Text(source)
		// Go's newline terminators are leaves too
		if strings.TrimSpace(content) == "" {
			return
		}

		startPoint := node.StartPosition()
		*tokens = append(*tokens, ngram.Token{
			Kind:   t.classify(node, content),
			Type:   nodeType,
			Value:  content,
			Line:   int(startPoint.Row) + 1,
			Column: int(startPoint.Column) + 1,
		})
		return
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		t.traverseNode(node.Child(i), source, tokens)
	}
}

func (t *treeSitterTokenizer) classify(node *tree_sitter.Node, content string) ngram.TokenKind {
	kind := node.Kind()

	if t.grammar.atomic[kind] || t.grammar.literals[kind] || strings.HasSuffix(kind, "_literal") {
		return ngram.KindLiteral
	}
	if node.IsNamed() && strings.Contains(kind, "identifier") {
		return ngram.KindIdentifier
	}
	if isWord(content) {
		if node.IsNamed() && kind != content && !strings.HasSuffix(kind, "_type") {
			return ngram.KindIdentifier
		}
		return ngram.KindKeyword
	}
	if t.grammar.separators[content] {
		return ngram.KindSeparator
	}
	return ngram.KindOperator
}

func isWord(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}

// Normalize keeps identifiers, literals and keywords verbatim and collapses
// punctuation to its category label
func (t *treeSitterTokenizer) Normalize(token ngram.Token) string {
	switch token.Kind {
	case ngram.KindSeparator:
		return ngram.SeparatorLabel
	case ngram.KindOperator:
		return ngram.OperatorLabel
	default:
		return token.Value
	}
}

func (t *treeSitterTokenizer) Language() string {
	return t.grammar.name
}

// Close releases the underlying parser
func (t *treeSitterTokenizer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parser.Close()
}
