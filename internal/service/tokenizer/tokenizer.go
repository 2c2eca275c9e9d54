package tokenizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ngram-go/internal/model/ngram"
)

// Tokenizer defines the interface for language-specific tokenization
type Tokenizer interface {
	// Tokenize converts source code into a sequence of tokens.
	// Malformed input yields a *TokenizeError.
	Tokenize(ctx context.Context, source []byte) (ngram.TokenSequence, error)

	// Normalize maps a token to the string the language model sees
	Normalize(token ngram.Token) string

	// Language returns the language this tokenizer handles
	Language() string
}

// TokenizeError reports source that could not be tokenized.
// Callers drop the offending record instead of aborting the run.
type TokenizeError struct {
	Language string
	Line     int
	Column   int
	Reason   string
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("failed to tokenize %s source at %d:%d: %s", e.Language, e.Line, e.Column, e.Reason)
}

// Sequence tokenizes source and normalizes every token
func Sequence(ctx context.Context, tok Tokenizer, source []byte) (ngram.Sequence, error) {
	tokens, err := tok.Tokenize(ctx, source)
	if err != nil {
		return nil, err
	}
	seq := make(ngram.Sequence, 0, len(tokens))
	for _, token := range tokens {
		seq = append(seq, tok.Normalize(token))
	}
	return seq, nil
}

// TokenizerRegistry manages tokenizers for different languages
type TokenizerRegistry struct {
	tokenizers map[string]Tokenizer
	extensions map[string]string // file extension -> language
}

// NewTokenizerRegistry creates a new tokenizer registry
func NewTokenizerRegistry() *TokenizerRegistry {
	return &TokenizerRegistry{
		tokenizers: make(map[string]Tokenizer),
		extensions: make(map[string]string),
	}
}

// NewDefaultRegistry registers every tree-sitter backed tokenizer
func NewDefaultRegistry() (*TokenizerRegistry, error) {
	registry := NewTokenizerRegistry()

	javaTokenizer, err := NewJavaTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create Java tokenizer: %w", err)
	}
	registry.Register("java", javaTokenizer, []string{".java"})

	goTokenizer, err := NewGoTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go tokenizer: %w", err)
	}
	registry.Register("go", goTokenizer, []string{".go"})

	pythonTokenizer, err := NewPythonTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create Python tokenizer: %w", err)
	}
	registry.Register("python", pythonTokenizer, []string{".py", ".pyw"})

	jsTokenizer, err := NewJavaScriptTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create JavaScript tokenizer: %w", err)
	}
	registry.Register("javascript", jsTokenizer, []string{".js", ".jsx", ".mjs"})

	tsTokenizer, err := NewTypeScriptTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create TypeScript tokenizer: %w", err)
	}
	registry.Register("typescript", tsTokenizer, []string{".ts", ".tsx"})

	return registry, nil
}

// Register adds a tokenizer for a specific language
func (tr *TokenizerRegistry) Register(language string, tokenizer Tokenizer, extensions []string) {
	tr.tokenizers[language] = tokenizer
	for _, ext := range extensions {
		tr.extensions[ext] = language
	}
}

// GetTokenizer returns the tokenizer for a given language
func (tr *TokenizerRegistry) GetTokenizer(language string) (Tokenizer, bool) {
	tokenizer, ok := tr.tokenizers[language]
	return tokenizer, ok
}

// LanguageForExtension maps a file extension (".java") to its language
func (tr *TokenizerRegistry) LanguageForExtension(extension string) (string, bool) {
	language, ok := tr.extensions[extension]
	return language, ok
}

// Lookup returns the tokenizer for language or an error naming the supported ones
func (tr *TokenizerRegistry) Lookup(language string) (Tokenizer, error) {
	tok, ok := tr.GetTokenizer(language)
	if !ok {
		return nil, fmt.Errorf("no tokenizer found for language %q (supported: %s)",
			language, strings.Join(tr.SupportedLanguages(), ", "))
	}
	return tok, nil
}

// SupportedLanguages returns a sorted list of all supported languages
func (tr *TokenizerRegistry) SupportedLanguages() []string {
	languages := make([]string, 0, len(tr.tokenizers))
	for lang := range tr.tokenizers {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// Close releases parser resources held by registered tokenizers
func (tr *TokenizerRegistry) Close() {
	for _, tok := range tr.tokenizers {
		if closer, ok := tok.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}
