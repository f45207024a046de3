// Package chi serves the admin HTTP API of the dispatch service.
package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
	"github.com/kailas-cloud/fastdispatch/internal/metrics"
	healthuc "github.com/kailas-cloud/fastdispatch/internal/usecase/health"
)

// Error codes returned in errorResponse.Code.
const (
	codeUnauthorized = "unauthorized"
	codeUnavailable  = "unavailable"
	codeInternal     = "internal_error"
)

// healthChecker reports aggregated health.
type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// responseCache is the admin view of the response cache.
type responseCache interface {
	Len() int
	Bytes() int64
	Capacity() int
	Clear()
}

// topologySource returns the current cluster snapshot.
type topologySource interface {
	Cluster() topology.Cluster
}

// Server handles admin requests.
type Server struct {
	health   healthChecker
	cache    responseCache
	topology topologySource
	searcher searcher
	logger   *zap.Logger
}

// NewServer creates an admin server. cache and topology may be nil.
func NewServer(health healthChecker, cache responseCache, topo topologySource, logger *zap.Logger) *Server {
	return &Server{health: health, cache: cache, topology: topo, logger: logger}
}

// Options configures the router.
type Options struct {
	APIKeys []string
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.HealthCheck)
	r.Get("/cache", s.CacheStats)
	r.Delete("/cache", s.ClearCache)
	r.Get("/topology", s.Topology)
	if s.searcher != nil {
		r.Post("/search", s.Search)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

type cacheResponse struct {
	Enabled    bool  `json:"enabled"`
	Entries    int   `json:"entries"`
	Bytes      int64 `json:"bytes"`
	CapacityMB int   `json:"capacity_mb"`
}

// CacheStats handles GET /cache.
func (s *Server) CacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, cacheResponse{})
		return
	}
	writeJSON(w, http.StatusOK, cacheResponse{
		Enabled:    s.cache.Capacity() > 0,
		Entries:    s.cache.Len(),
		Bytes:      s.cache.Bytes(),
		CapacityMB: s.cache.Capacity(),
	})
}

// ClearCache handles DELETE /cache.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "response cache is disabled")
		return
	}
	entries := s.cache.Len()
	s.cache.Clear()
	s.logger.Info("response cache cleared",
		zap.Int("entries", entries), zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

type nodeResponse struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Group   int    `json:"group"`
	Working bool   `json:"working"`
}

// Topology handles GET /topology.
func (s *Server) Topology(w http.ResponseWriter, _ *http.Request) {
	nodes := []nodeResponse{}
	if s.topology != nil {
		for _, n := range s.topology.Cluster().Nodes() {
			nodes = append(nodes, nodeResponse{Host: n.Hostname, Port: n.Port, Group: n.Group, Working: n.Working})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
