package ngram

import (
	"context"
	"sort"
	"sync"

	ngmodel "ngram-go/internal/model/ngram"
)

// Distribution is the next-token distribution of one context.
// Tokens are kept in the order they were first counted.
type Distribution struct {
	tokens []string
	probs  []float64
	index  map[string]int
}

func newDistribution(tokens []string, probs []float64) *Distribution {
	index := make(map[string]int, len(tokens))
	for i, token := range tokens {
		index[token] = i
	}
	return &Distribution{tokens: tokens, probs: probs, index: index}
}

// Len returns the number of distinct next tokens
func (d *Distribution) Len() int {
	return len(d.tokens)
}

// Tokens returns the next tokens in first-seen order
func (d *Distribution) Tokens() []string {
	out := make([]string, len(d.tokens))
	copy(out, d.tokens)
	return out
}

// Probability returns P(token | context); ok is false for unseen tokens
func (d *Distribution) Probability(token string) (float64, bool) {
	i, ok := d.index[token]
	if !ok {
		return 0, false
	}
	return d.probs[i], true
}

// Argmax returns the most probable token. Ties go to the token counted first.
func (d *Distribution) Argmax() string {
	best := 0
	for i := 1; i < len(d.probs); i++ {
		if d.probs[i] > d.probs[best] {
			best = i
		}
	}
	return d.tokens[best]
}

// Model maps (n-1)-token contexts to maximum-likelihood next-token distributions.
// A fitted model is never mutated and is safe for concurrent readers.
type Model struct {
	n        int
	contexts map[string]*Distribution
}

// Order returns n
func (m *Model) Order() int {
	return m.n
}

// Len returns the number of stored contexts
func (m *Model) Len() int {
	return len(m.contexts)
}

// Distribution looks up an exact context of n-1 tokens
func (m *Model) Distribution(context []string) (*Distribution, bool) {
	if len(context) != m.n-1 {
		return nil, false
	}
	d, ok := m.contexts[ngmodel.NGram(context).Key()]
	return d, ok
}

// Probability returns P(token | context) when both are known to the model
func (m *Model) Probability(context []string, token string) (float64, bool) {
	d, ok := m.Distribution(context)
	if !ok {
		return 0, false
	}
	return d.Probability(token)
}

// Contexts returns every stored context in lexical key order
func (m *Model) Contexts() []ngmodel.NGram {
	keys := make([]string, 0, len(m.contexts))
	for key := range m.contexts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]ngmodel.NGram, len(keys))
	for i, key := range keys {
		out[i] = ngmodel.SplitKey(key)
	}
	return out
}

// position orders the first occurrence of a (context, token) pair across the corpus
type position struct {
	seq    int
	offset int
}

func (p position) before(o position) bool {
	if p.seq != o.seq {
		return p.seq < o.seq
	}
	return p.offset < o.offset
}

type tokenCount struct {
	count int64
	first position
}

// CountTable accumulates raw n-gram counts. Tables built over disjoint shards
// merge by summation, and the merge is independent of the order it happens in.
type CountTable struct {
	n        int
	contexts map[string]map[string]*tokenCount
}

// NewCountTable creates an empty table for order n
func NewCountTable(n int) *CountTable {
	return &CountTable{
		n:        n,
		contexts: make(map[string]map[string]*tokenCount),
	}
}

// Add counts every padded n-gram of seq. seqIndex is the sequence's position
// in the corpus and fixes first-seen order for tie-breaking.
func (ct *CountTable) Add(seqIndex int, seq ngmodel.Sequence) {
	for offset, ng := range ngmodel.NGrams(seq, ct.n) {
		ctxKey := ng.Context().Key()
		next, ok := ct.contexts[ctxKey]
		if !ok {
			next = make(map[string]*tokenCount)
			ct.contexts[ctxKey] = next
		}

		token := ng.LastToken()
		if tc, ok := next[token]; ok {
			tc.count++
			continue
		}
		next[token] = &tokenCount{count: 1, first: position{seq: seqIndex, offset: offset}}
	}
}

// Merge adds the counts of other into ct
func (ct *CountTable) Merge(other *CountTable) {
	if other == nil || other.n != ct.n {
		return
	}

	for ctxKey, otherNext := range other.contexts {
		next, ok := ct.contexts[ctxKey]
		if !ok {
			next = make(map[string]*tokenCount, len(otherNext))
			ct.contexts[ctxKey] = next
		}
		for token, otc := range otherNext {
			tc, ok := next[token]
			if !ok {
				next[token] = &tokenCount{count: otc.count, first: otc.first}
				continue
			}
			tc.count += otc.count
			if otc.first.before(tc.first) {
				tc.first = otc.first
			}
		}
	}
}

// Model converts counts to probabilities. Contexts only exist once a token has
// been counted in them, so no stored distribution is empty.
func (ct *CountTable) Model() *Model {
	contexts := make(map[string]*Distribution, len(ct.contexts))

	for ctxKey, next := range ct.contexts {
		tokens := make([]string, 0, len(next))
		var total int64
		for token, tc := range next {
			tokens = append(tokens, token)
			total += tc.count
		}
		sort.Slice(tokens, func(i, j int) bool {
			return next[tokens[i]].first.before(next[tokens[j]].first)
		})

		probs := make([]float64, len(tokens))
		for i, token := range tokens {
			probs[i] = float64(next[token].count) / float64(total)
		}
		contexts[ctxKey] = newDistribution(tokens, probs)
	}

	return &Model{n: ct.n, contexts: contexts}
}

// Fit estimates an order-n model from the corpus by maximum likelihood.
// An empty corpus yields an empty model.
func Fit(corpus []ngmodel.Sequence, n int) (*Model, error) {
	if err := ngmodel.ValidateOrder(n); err != nil {
		return nil, err
	}

	table := NewCountTable(n)
	for i, seq := range corpus {
		table.Add(i, seq)
	}
	return table.Model(), nil
}

// FitParallel shards the corpus across workers, counts each shard into its own
// table and merges the tables. The result equals Fit on the same corpus.
func FitParallel(ctx context.Context, corpus []ngmodel.Sequence, n int, workers int) (*Model, error) {
	if err := ngmodel.ValidateOrder(n); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(corpus) {
		workers = len(corpus)
	}
	if workers <= 1 {
		return Fit(corpus, n)
	}

	shardSize := (len(corpus) + workers - 1) / workers
	tables := make([]*CountTable, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		start := w * shardSize
		end := start + shardSize
		if end > len(corpus) {
			end = len(corpus)
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			table := NewCountTable(n)
			for i := start; i < end; i++ {
				if ctx.Err() != nil {
					return
				}
				table.Add(i, corpus[i])
			}
			tables[w] = table
		}(w, start, end)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := NewCountTable(n)
	for _, table := range tables {
		merged.Merge(table)
	}
	return merged.Model(), nil
}
