package chain

import (
	"context"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

// Validator rejects queries that cannot be dispatched.
type Validator struct{}

// Name implements Searcher.
func (Validator) Name() string { return "validator" }

// Search returns a NullQuery error for a query without terms.
func (Validator) Search(ctx context.Context, q *query.Query, exec *Execution) *result.Result {
	if q.IsNull() {
		return result.NewWithError(q, result.NewNullQuery("query has no terms"))
	}
	if q.Offset < 0 || q.Hits < 0 {
		return result.NewWithError(q, result.NewNullQuery("negative offset or hits"))
	}
	return exec.Search(ctx, q)
}

// Fill implements Searcher.
func (Validator) Fill(ctx context.Context, r *result.Result, class string, exec *Execution) {
	exec.Fill(ctx, r, class)
}
