// Package chain composes searchers into an ordered pipeline. Each searcher
// may handle a request itself or pass it on through its Execution.
package chain

import (
	"context"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

// Searcher is one element of a chain.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q *query.Query, exec *Execution) *result.Result
	Fill(ctx context.Context, r *result.Result, class string, exec *Execution)
}

// Chain is an immutable ordered list of searchers.
type Chain struct {
	searchers []Searcher
}

// New creates a chain. The last searcher is expected to answer every
// request without delegating.
func New(searchers ...Searcher) *Chain {
	return &Chain{searchers: append([]Searcher(nil), searchers...)}
}

// Names returns the searcher names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.searchers))
	for i, s := range c.searchers {
		names[i] = s.Name()
	}
	return names
}

// Search runs q through the chain.
func (c *Chain) Search(ctx context.Context, q *query.Query) *result.Result {
	return (&Execution{chain: c}).Search(ctx, q)
}

// Fill fills r's hits with summary class through the chain.
func (c *Chain) Fill(ctx context.Context, r *result.Result, class string) {
	(&Execution{chain: c}).Fill(ctx, r, class)
}

// Execution is a position in a chain. Calling it invokes the searcher at
// that position.
type Execution struct {
	chain *Chain
	index int
}

// Search passes q to the next searcher. Past the end of the chain it
// returns an empty result.
func (e *Execution) Search(ctx context.Context, q *query.Query) *result.Result {
	s, next, ok := e.next()
	if !ok {
		return result.New(q)
	}
	return s.Search(ctx, q, next)
}

// Fill passes r to the next searcher. Past the end of the chain it does
// nothing.
func (e *Execution) Fill(ctx context.Context, r *result.Result, class string) {
	s, next, ok := e.next()
	if !ok {
		return
	}
	s.Fill(ctx, r, class, next)
}

func (e *Execution) next() (Searcher, *Execution, bool) {
	if e == nil || e.chain == nil || e.index >= len(e.chain.searchers) {
		return nil, nil, false
	}
	return e.chain.searchers[e.index], &Execution{chain: e.chain, index: e.index + 1}, true
}
