// Package query holds the search request as seen by the dispatch layer.
//
// Query parsing and linguistic normalization happen upstream: a Query arrives
// here with its terms already normalized and is read, never retained.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultHits is the hit count used when the caller does not set one.
	DefaultHits = 10
	// DefaultTimeout is the request budget used when the caller does not set one.
	DefaultTimeout = 5 * time.Second
	// DefaultRankProfile is the ranking profile used when none is selected.
	DefaultRankProfile = "default"
)

// Ranking selects how the backend scores documents.
type Ranking struct {
	Profile      string
	QueryCache   bool              // backend keeps the query for the session
	ListFeatures bool              // dump all rank features with each hit
	Features     map[string]string // rank feature overrides
}

// Presentation holds rendering-related selections relevant to dispatch.
type Presentation struct {
	Summary string // summary class; empty means unset
}

// Query is a single search request.
type Query struct {
	Terms        []string
	Properties   Properties
	Offset       int
	Hits         int
	Timeout      time.Duration
	Ranking      Ranking
	Presentation Presentation
	Restrict     []string // document types the query is restricted to
	TraceLevel   int
	NoCache      bool

	start     time.Time
	sessionID string
	trace     []string
}

// New creates a query for the given normalized terms with default settings.
func New(terms ...string) *Query {
	return &Query{
		Terms:      terms,
		Properties: Properties{},
		Hits:       DefaultHits,
		Timeout:    DefaultTimeout,
		Ranking:    Ranking{Profile: DefaultRankProfile},
		start:      time.Now(),
	}
}

// IsNull reports whether the query carries no terms.
func (q *Query) IsNull() bool { return len(q.Terms) == 0 }

// StartTime returns when the query budget started counting.
func (q *Query) StartTime() time.Time { return q.start }

// TimeLeft returns the remaining time budget, which may be negative.
func (q *Query) TimeLeft() time.Duration {
	return q.Timeout - time.Since(q.start)
}

// SessionID returns the rank session id, generating one on first use.
func (q *Query) SessionID() string {
	if q.sessionID == "" {
		q.sessionID = "qrserver." + uuid.NewString()
	}
	return q.sessionID
}

// Trace records msg when the query's trace level is at least level.
func (q *Query) Trace(level int, msg ...any) {
	if q.TraceLevel < level {
		return
	}
	q.trace = append(q.trace, fmt.Sprint(msg...))
}

// TraceLog returns the recorded trace messages in order.
func (q *Query) TraceLog() []string {
	out := make([]string, len(q.trace))
	copy(out, q.trace)
	return out
}

func (q *Query) String() string {
	return "query '" + strings.Join(q.Terms, " ") + "'"
}
