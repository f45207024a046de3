package dispatch

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
)

// traceQuery records the request about to be dispatched at trace level 2.
func (d *Dispatcher) traceQuery(q *query.Query, phase, class string) {
	if q.TraceLevel < 2 {
		return
	}
	summary := "[null]"
	if class != "" {
		summary = "'" + class + "'"
	}
	q.Trace(2, fmt.Sprintf("%s %s to dispatch: query=[%s] timeout=%dms offset=%d hits=%d summary=%s",
		d.cfg.Name, phase, strings.Join(q.Terms, " "), q.Timeout.Milliseconds(), q.Offset, q.Hits, summary))
}

// summaryNeedsQuery reports whether the docsum request must carry the query:
// when the backend has not kept it and the summary or the rank profile
// depends on it. Unknown definitions count as depending on it.
func (d *Dispatcher) summaryNeedsQuery(q *query.Query, class string) bool {
	if q.Ranking.QueryCache {
		return false
	}
	db := d.docsums.ForQuery(q)

	def, ok := db.Definition(class)
	if !ok || def.Dynamic {
		return true
	}

	profile, ok := db.RankProfile(q.Ranking.Profile)
	if !ok || profile.HasSummaryFeatures {
		return true
	}
	return q.Ranking.ListFeatures
}
