package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
	healthuc "github.com/kailas-cloud/fastdispatch/internal/usecase/health"
)

type fakeHealth struct {
	report healthuc.Report
}

func (f fakeHealth) Check(context.Context) healthuc.Report { return f.report }

type fakeCache struct {
	entries  int
	bytes    int64
	capacity int
	cleared  int
}

func (f *fakeCache) Len() int      { return f.entries }
func (f *fakeCache) Bytes() int64  { return f.bytes }
func (f *fakeCache) Capacity() int { return f.capacity }
func (f *fakeCache) Clear()        { f.cleared++; f.entries = 0; f.bytes = 0 }

type fakeTopology struct {
	cluster topology.Cluster
}

func (f fakeTopology) Cluster() topology.Cluster { return f.cluster }

func healthy() fakeHealth {
	return fakeHealth{report: healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"dispatch": healthuc.CheckOK},
	}}
}

func doRequest(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		report healthuc.Report
		want   int
	}{
		{"healthy", healthy().report, http.StatusOK},
		{"degraded", healthuc.Report{
			Status: healthuc.Degraded,
			Checks: map[string]healthuc.CheckResult{"dispatch": healthuc.CheckOK, "topology_store": healthuc.CheckError},
		}, http.StatusServiceUnavailable},
		{"unhealthy", healthuc.Report{
			Status: healthuc.Unhealthy,
			Checks: map[string]healthuc.CheckResult{"dispatch": healthuc.CheckError},
		}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(fakeHealth{report: tt.report}, nil, nil, zap.NewNop())
			rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/healthz", "")

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			var body healthResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != string(tt.report.Status) {
				t.Errorf("status field: got %q, want %q", body.Status, tt.report.Status)
			}
			if len(body.Checks) != len(tt.report.Checks) {
				t.Errorf("checks: got %v", body.Checks)
			}
		})
	}
}

func TestHealthCheck_ExemptFromAuth(t *testing.T) {
	srv := NewServer(healthy(), nil, nil, zap.NewNop())
	rr := doRequest(t, srv.Router(Options{APIKeys: []string{"secret"}}), http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestCacheStats(t *testing.T) {
	c := &fakeCache{entries: 3, bytes: 4096, capacity: 64}
	srv := NewServer(healthy(), c, nil, zap.NewNop())

	rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/cache", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var body cacheResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := cacheResponse{Enabled: true, Entries: 3, Bytes: 4096, CapacityMB: 64}
	if body != want {
		t.Errorf("got %+v, want %+v", body, want)
	}
}

func TestCacheStats_NoCache(t *testing.T) {
	srv := NewServer(healthy(), nil, nil, zap.NewNop())
	rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/cache", "")

	var body cacheResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Enabled || body.Entries != 0 {
		t.Errorf("got %+v", body)
	}
}

func TestClearCache(t *testing.T) {
	c := &fakeCache{entries: 5, bytes: 100, capacity: 8}
	srv := NewServer(healthy(), c, nil, zap.NewNop())
	h := srv.Router(Options{APIKeys: []string{"secret"}})

	rr := doRequest(t, h, http.MethodDelete, "/cache", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("without token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if c.cleared != 0 {
		t.Fatal("cache cleared without auth")
	}

	rr = doRequest(t, h, http.MethodDelete, "/cache", "secret")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("with token: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if c.cleared != 1 || c.entries != 0 {
		t.Errorf("cleared=%d entries=%d", c.cleared, c.entries)
	}
}

func TestClearCache_Disabled(t *testing.T) {
	srv := NewServer(healthy(), nil, nil, zap.NewNop())
	rr := doRequest(t, srv.Router(Options{}), http.MethodDelete, "/cache", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != codeUnavailable {
		t.Errorf("code: got %q", body.Code)
	}
}

func TestTopology(t *testing.T) {
	topo := fakeTopology{cluster: topology.NewCluster([]topology.Node{
		{Hostname: "a", Port: 19100, Group: 0, Working: true},
		{Hostname: "b", Port: 19100, Group: 1, Working: false},
	})}
	srv := NewServer(healthy(), nil, topo, zap.NewNop())

	rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/topology", "")
	var body struct {
		Nodes []nodeResponse `json:"nodes"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Nodes) != 2 {
		t.Fatalf("nodes: got %d, want 2", len(body.Nodes))
	}
	seen := map[string]bool{}
	for _, n := range body.Nodes {
		seen[n.Host] = n.Working
	}
	if !seen["a"] || seen["b"] {
		t.Errorf("working flags: %v", seen)
	}
}

func TestTopology_Empty(t *testing.T) {
	srv := NewServer(healthy(), nil, nil, zap.NewNop())
	rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/topology", "")
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"nodes":[]`)) {
		t.Errorf("body: %s", rr.Body.String())
	}
}

func TestRouter_RequestIDAndCanonicalLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := NewServer(healthy(), nil, nil, zap.New(core))

	rr := doRequest(t, srv.Router(Options{}), http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("http_request lines: got %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/healthz" {
		t.Errorf("path: got %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status: got %v (%T)", fields["status"], fields["status"])
	}
	if fields["request_id"] == "" || fields["request_id"] == nil {
		t.Error("request_id not attached")
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cache", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != codeInternal {
		t.Errorf("code: got %q", body.Code)
	}
}
