package chain

import (
	"context"
	"reflect"
	"testing"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

// recorder logs every call and then delegates, or answers when terminal.
type recorder struct {
	name     string
	log      *[]string
	terminal bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Search(ctx context.Context, q *query.Query, exec *Execution) *result.Result {
	*r.log = append(*r.log, "search:"+r.name)
	if r.terminal {
		res := result.New(q)
		res.Add(hit.New(hit.GlobalID{}, 0, 0, 1, r.name))
		return res
	}
	return exec.Search(ctx, q)
}

func (r *recorder) Fill(ctx context.Context, res *result.Result, class string, exec *Execution) {
	*r.log = append(*r.log, "fill:"+r.name+":"+class)
	if !r.terminal {
		exec.Fill(ctx, res, class)
	}
}

func TestChain_Order(t *testing.T) {
	var log []string
	c := New(&recorder{name: "a", log: &log}, &recorder{name: "b", log: &log, terminal: true})

	res := c.Search(context.Background(), query.New("x"))
	c.Fill(context.Background(), res, "default")

	want := []string{"search:a", "search:b", "fill:a:default", "fill:b:default"}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("log = %v, want %v", log, want)
	}
	if res.HitCount() != 1 || res.Hit(0).Source() != "b" {
		t.Errorf("result not produced by terminal searcher: %v", res)
	}
	if got := c.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names = %v", got)
	}
}

func TestChain_EndOfChain(t *testing.T) {
	var log []string
	c := New(&recorder{name: "a", log: &log})

	res := c.Search(context.Background(), query.New("x"))
	if res == nil || res.HitCount() != 0 {
		t.Fatalf("expected empty result past end of chain, got %v", res)
	}
	c.Fill(context.Background(), res, "default")
}

func TestValidator(t *testing.T) {
	var log []string
	c := New(Validator{}, &recorder{name: "backend", log: &log, terminal: true})

	tests := []struct {
		name     string
		query    *query.Query
		wantCode int
	}{
		{"null query", query.New(), result.CodeNullQuery},
		{"negative offset", func() *query.Query { q := query.New("a"); q.Offset = -1; return q }(), result.CodeNullQuery},
		{"valid", query.New("a"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log = nil
			res := c.Search(context.Background(), tt.query)
			e, hasErr := res.Error()
			if tt.wantCode == 0 {
				if hasErr {
					t.Errorf("unexpected error %v", e)
				}
				if len(log) != 1 {
					t.Errorf("backend not reached: %v", log)
				}
				return
			}
			if !hasErr || e.Code != tt.wantCode {
				t.Errorf("error = %v, %v; want code %d", e, hasErr, tt.wantCode)
			}
			if len(log) != 0 {
				t.Errorf("backend reached: %v", log)
			}
		})
	}
}
