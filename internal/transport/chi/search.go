package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

const codeBadRequest = "bad_request"

// searcher runs a query and fills its hits.
type searcher interface {
	Search(ctx context.Context, q *query.Query) *result.Result
	Fill(ctx context.Context, r *result.Result, class string)
}

// WithSearcher enables POST /search.
func (s *Server) WithSearcher(sr searcher) *Server {
	s.searcher = sr
	return s
}

type searchRequest struct {
	Query      string            `json:"query"`
	Offset     int               `json:"offset"`
	Hits       *int              `json:"hits"`
	TimeoutMs  int               `json:"timeout_ms"`
	Summary    string            `json:"summary"`
	Profile    string            `json:"profile"`
	Restrict   []string          `json:"restrict"`
	TraceLevel int               `json:"trace_level"`
	NoCache    bool              `json:"no_cache"`
	Properties map[string]string `json:"properties"`
}

func (req searchRequest) toQuery() *query.Query {
	q := query.New(strings.Fields(req.Query)...)
	q.Offset = req.Offset
	if req.Hits != nil {
		q.Hits = *req.Hits
	}
	if req.TimeoutMs > 0 {
		q.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if req.Profile != "" {
		q.Ranking.Profile = req.Profile
	}
	q.Presentation.Summary = req.Summary
	q.Restrict = req.Restrict
	q.TraceLevel = req.TraceLevel
	q.NoCache = req.NoCache
	for k, v := range req.Properties {
		q.Properties.Set(k, v)
	}
	return q
}

type hitResponse struct {
	ID        string         `json:"id"`
	Relevance float64        `json:"relevance"`
	Source    string         `json:"source"`
	Cached    bool           `json:"cached"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type searchError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type searchResponse struct {
	TotalHits uint64        `json:"total_hits"`
	Coverage  *coverageView `json:"coverage,omitempty"`
	Cached    bool          `json:"cached"`
	Hits      []hitResponse `json:"hits"`
	Errors    []searchError `json:"errors,omitempty"`
	Trace     []string      `json:"trace,omitempty"`
}

type coverageView struct {
	Docs   uint64 `json:"docs"`
	Active uint64 `json:"active"`
	Full   bool   `json:"full"`
}

// Search handles POST /search: query phase then fill phase.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body")
		return
	}

	q := req.toQuery()
	res := s.searcher.Search(r.Context(), q)
	if _, failed := res.Error(); !failed {
		s.searcher.Fill(r.Context(), res, q.Presentation.Summary)
	}

	writeJSON(w, http.StatusOK, newSearchResponse(res, q))
}

func newSearchResponse(res *result.Result, q *query.Query) searchResponse {
	out := searchResponse{
		TotalHits: res.TotalHitCount(),
		Cached:    res.IsCached(),
		Hits:      make([]hitResponse, 0, res.HitCount()),
		Trace:     q.TraceLog(),
	}
	if c := res.Coverage(); c.Present {
		out.Coverage = &coverageView{Docs: c.Docs, Active: c.Active, Full: c.Full}
	}
	for _, h := range res.Hits() {
		hr := hitResponse{ID: h.ID(), Relevance: h.Relevance(), Source: h.Source(), Cached: h.IsCached()}
		if names := h.FieldNames(); len(names) > 0 {
			hr.Fields = make(map[string]any, len(names))
			for _, n := range names {
				hr.Fields[n], _ = h.Field(n)
			}
		}
		out.Hits = append(out.Hits, hr)
	}
	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, searchError{Code: e.Code, Message: e.Message, Detail: e.Detail})
	}
	return out
}
