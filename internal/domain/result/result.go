// Package result holds the outcome of a dispatched search.
package result

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
)

// Coverage describes how much of the corpus a backend response covers.
type Coverage struct {
	Present bool // the backend reported coverage at all
	Docs    uint64
	Active  uint64
	Full    bool
}

// Result is an ordered list of hits plus errors and metadata.
// Errors may be appended at any stage without discarding hits.
type Result struct {
	query    *query.Query
	hits     []*hit.Hit
	errors   []ErrorMessage
	total    uint64
	coverage Coverage

	filled   []string
	cached   bool
	docstamp uint32
}

// New creates an empty result for q.
func New(q *query.Query) *Result {
	return &Result{query: q}
}

// NewWithError creates an empty result carrying a single error.
func NewWithError(q *query.Query, e ErrorMessage) *Result {
	r := New(q)
	r.AddError(e)
	return r
}

// Query returns the query the result answers.
func (r *Result) Query() *query.Query { return r.query }

// Add appends a hit.
func (r *Result) Add(h *hit.Hit) { r.hits = append(r.hits, h) }

// Hits returns the hits in ranked order.
func (r *Result) Hits() []*hit.Hit { return r.hits }

// HitCount returns the number of hits held.
func (r *Result) HitCount() int { return len(r.hits) }

// Hit returns hit i.
func (r *Result) Hit(i int) *hit.Hit { return r.hits[i] }

// AddError appends an error entry.
func (r *Result) AddError(e ErrorMessage) { r.errors = append(r.errors, e) }

// Errors returns all error entries.
func (r *Result) Errors() []ErrorMessage { return r.errors }

// Error returns the first error entry, if any.
func (r *Result) Error() (ErrorMessage, bool) {
	if len(r.errors) == 0 {
		return ErrorMessage{}, false
	}
	return r.errors[0], true
}

// TotalHitCount returns the total number of matches reported by the backend.
func (r *Result) TotalHitCount() uint64 { return r.total }

// SetTotalHitCount sets the total number of matches.
func (r *Result) SetTotalHitCount(n uint64) { r.total = n }

// Coverage returns the coverage metadata.
func (r *Result) Coverage() Coverage { return r.coverage }

// SetCoverage sets the coverage metadata.
func (r *Result) SetCoverage(c Coverage) { r.coverage = c }

// Docstamp returns the index generation the hits were ranked in.
func (r *Result) Docstamp() uint32 { return r.docstamp }

// SetDocstamp records the index generation the hits were ranked in.
func (r *Result) SetDocstamp(d uint32) { r.docstamp = d }

// IsFilled reports whether every hit carries summary class class.
// A result without hits is trivially filled.
func (r *Result) IsFilled(class string) bool {
	for _, h := range r.hits {
		if !h.IsFilled(class) {
			return false
		}
	}
	return true
}

// AnalyzeHits recomputes the aggregate fill and cache bookkeeping.
func (r *Result) AnalyzeHits() {
	r.cached = len(r.hits) > 0
	var common map[string]int
	for _, h := range r.hits {
		if !h.IsCached() {
			r.cached = false
		}
		if common == nil {
			common = make(map[string]int)
		}
		for _, c := range h.Filled() {
			common[c]++
		}
	}
	r.filled = r.filled[:0]
	for c, n := range common {
		if n == len(r.hits) {
			r.filled = append(r.filled, c)
		}
	}
	sort.Strings(r.filled)
}

// Filled returns the summary classes every hit carried at the last AnalyzeHits.
func (r *Result) Filled() []string { return r.filled }

// IsCached reports whether every hit was served from the cache at the last AnalyzeHits.
func (r *Result) IsCached() bool { return r.cached }

func (r *Result) String() string {
	return fmt.Sprintf("result of %s: %d hits, %d errors", r.query, len(r.hits), len(r.errors))
}
