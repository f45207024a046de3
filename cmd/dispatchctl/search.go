package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

type searchOptions struct {
	offset     int
	hits       int
	timeout    time.Duration
	summary    string
	profile    string
	restrict   []string
	properties map[string]string
	traceLevel int
	noCache    bool
	noFill     bool
	jsonOutput bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <term>...",
		Short: "Run a query and fill its hits",
		Long: `Run the query phase against the dispatch backend, then fill the hits with
the selected summary class. Repeated searches are served from the response
cache when it is enabled.

Examples:
  dispatchctl search kind of blue
  dispatchctl search --hits 20 --summary snippets blue
  dispatchctl search --trace 3 --no-fill blue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q := so.query(args)
			r := a.Chain.Search(cmd.Context(), q)
			if _, failed := r.Error(); !failed && !so.noFill {
				a.Chain.Fill(cmd.Context(), r, q.Presentation.Summary)
			}
			if err := printResult(cmd.OutOrStdout(), r, q, so.jsonOutput); err != nil {
				return err
			}
			if e, failed := r.Error(); failed {
				return e
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&so.offset, "offset", 0, "index of the first hit")
	f.IntVar(&so.hits, "hits", query.DefaultHits, "number of hits")
	f.DurationVar(&so.timeout, "timeout", query.DefaultTimeout, "query budget")
	f.StringVar(&so.summary, "summary", "", "summary class (default: dispatch.default_summary)")
	f.StringVar(&so.profile, "profile", query.DefaultRankProfile, "rank profile")
	f.StringSliceVar(&so.restrict, "restrict", nil, "document types to restrict to")
	f.StringToStringVar(&so.properties, "property", nil, "query property, e.g. dispatch.compression=none")
	f.IntVar(&so.traceLevel, "trace", 0, "trace level")
	f.BoolVar(&so.noCache, "no-cache", false, "bypass the response cache")
	f.BoolVar(&so.noFill, "no-fill", false, "skip the summary fill")
	f.BoolVar(&so.jsonOutput, "json", false, "output as JSON")
	return cmd
}

func (so *searchOptions) query(terms []string) *query.Query {
	q := query.New(terms...)
	q.Offset = so.offset
	q.Hits = so.hits
	q.Timeout = so.timeout
	q.Ranking.Profile = so.profile
	q.Presentation.Summary = so.summary
	q.Restrict = so.restrict
	q.TraceLevel = so.traceLevel
	q.NoCache = so.noCache
	for k, v := range so.properties {
		q.Properties.Set(k, v)
	}
	return q
}

type hitView struct {
	Rank      int            `json:"rank"`
	ID        string         `json:"id"`
	Relevance float64        `json:"relevance"`
	Cached    bool           `json:"cached"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type resultView struct {
	TotalHits uint64    `json:"total_hits"`
	Cached    bool      `json:"cached"`
	Hits      []hitView `json:"hits"`
	Errors    []string  `json:"errors,omitempty"`
	Trace     []string  `json:"trace,omitempty"`
}

func newResultView(r *result.Result, q *query.Query) resultView {
	v := resultView{
		TotalHits: r.TotalHitCount(),
		Cached:    r.IsCached(),
		Hits:      make([]hitView, 0, r.HitCount()),
		Trace:     q.TraceLog(),
	}
	for i, h := range r.Hits() {
		hv := hitView{Rank: q.Offset + i + 1, ID: h.ID(), Relevance: h.Relevance(), Cached: h.IsCached()}
		for _, name := range h.FieldNames() {
			if hv.Fields == nil {
				hv.Fields = make(map[string]any)
			}
			hv.Fields[name], _ = h.Field(name)
		}
		v.Hits = append(v.Hits, hv)
	}
	for _, e := range r.Errors() {
		v.Errors = append(v.Errors, e.Error())
	}
	return v
}

func printResult(w io.Writer, r *result.Result, q *query.Query, jsonOutput bool) error {
	v := newResultView(r, q)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintf(w, "total hits: %d (cached: %v)\n", v.TotalHits, v.Cached)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tRELEVANCE\tID\tFIELDS")
	for _, h := range v.Hits {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", h.Rank, h.Relevance, h.ID, formatFields(h.Fields))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, e := range v.Errors {
		fmt.Fprintln(w, "error:", e)
	}
	for _, line := range v.Trace {
		fmt.Fprintln(w, "trace:", line)
	}
	return nil
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(fields))
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, fields[name]))
	}
	return strings.Join(parts, " ")
}
