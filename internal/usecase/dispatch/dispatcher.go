// Package dispatch runs the two-phase search protocol against backend search
// nodes: a query phase returning ranked document ids, then a fill phase
// fetching document summaries. Both phases consult the response cache.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/domain/docsum"
	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/cache"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/chain"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/health"
)

// Compile-time check: Dispatcher is a chain element.
var _ chain.Searcher = (*Dispatcher)(nil)

// minDeadline is the floor applied to every backend wait.
const minDeadline = 50 * time.Millisecond

// Metric label values.
const (
	PhaseSearch = "search"
	PhaseFill   = "fill"

	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"

	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Config holds dispatcher settings.
type Config struct {
	Name           string // searcher name used in traces, errors and hit sources
	DefaultSummary string
	PingTimeout    time.Duration
}

// Metrics are the optional collectors a Dispatcher reports to.
type Metrics struct {
	Requests     *prometheus.CounterVec   // phase, status
	Duration     *prometheus.HistogramVec // phase
	CacheLookups *prometheus.CounterVec   // phase, result
}

// Deps are the collaborators of a Dispatcher. Only Dispatch is required.
type Deps struct {
	Dispatch backend.Backend
	Chooser  Chooser
	Topology TopologySource
	Cache    ResponseCache
	Docsums  *docsum.Set
	Filler   SummaryFiller
	Monitor  Pinger
	Metrics  Metrics
}

// Dispatcher is the terminal searcher of a chain.
type Dispatcher struct {
	cfg      Config
	dispatch backend.Backend
	chooser  Chooser
	topology TopologySource
	cache    ResponseCache
	docsums  *docsum.Set
	filler   SummaryFiller
	monitor  Pinger
	metrics  Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps, logger *zap.Logger) *Dispatcher {
	if cfg.Name == "" {
		cfg.Name = "dispatch"
	}
	if cfg.DefaultSummary == "" {
		cfg.DefaultSummary = "default"
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = time.Second
	}
	d := &Dispatcher{
		cfg:      cfg,
		dispatch: deps.Dispatch,
		chooser:  deps.Chooser,
		topology: deps.Topology,
		cache:    deps.Cache,
		docsums:  deps.Docsums,
		filler:   deps.Filler,
		monitor:  deps.Monitor,
		metrics:  deps.Metrics,
		tracer:   otel.Tracer("github.com/kailas-cloud/fastdispatch/internal/usecase/dispatch"),
		logger:   logger.With(zap.String("searcher", cfg.Name)),
	}
	if d.docsums == nil {
		d.docsums = docsum.NewSet()
	}
	if d.monitor == nil {
		var observer interface{ ObserveDocstamp(uint32) }
		if d.cache != nil {
			observer = d.cache
		}
		d.monitor = health.NewMonitor(observer, nil, d.logger)
	}
	return d
}

// Name implements chain.Searcher.
func (d *Dispatcher) Name() string { return d.cfg.Name }

// Search runs the query phase. Failures are reported as error entries on the
// returned result.
func (d *Dispatcher) Search(ctx context.Context, q *query.Query, _ *chain.Execution) *result.Result {
	ctx, span := d.tracer.Start(ctx, "dispatch.search", trace.WithAttributes(
		attribute.Int("query.offset", q.Offset),
		attribute.Int("query.hits", q.Hits),
	))
	defer span.End()
	start := time.Now()

	r := d.search(ctx, q)
	if e, ok := r.Error(); !ok && q.Properties.Bool(query.PropRankFeatures, false) {
		// No summary class is right for rank features in general; fetch the
		// presentation class and accept a possible second fetch later.
		d.Fill(ctx, r, q.Presentation.Summary, nil)
	} else if ok {
		span.SetStatus(codes.Error, e.Error())
	}

	span.SetAttributes(attribute.Int("result.hits", r.HitCount()), attribute.Bool("result.cached", r.IsCached()))
	d.observe(PhaseSearch, r, start)
	return r
}

func (d *Dispatcher) search(ctx context.Context, q *query.Query) *result.Result {
	if q.IsNull() {
		return result.NewWithError(q, result.NewNullQuery("query has no terms"))
	}
	q.Trace(3, d.cfg.Name, " search started at ", query.FormatTimestamp(q.StartTime(), nil))

	qp := packet.NewQuery(q)
	useCache := d.cache != nil && d.cache.UseCache(q)
	var key cache.Key
	if useCache {
		key = cache.NewKey(qp)
		if r, ok := d.searchCached(q, key); ok {
			d.countLookup(PhaseSearch, LookupHit)
			return r
		}
		d.countLookup(PhaseSearch, LookupMiss)
	}

	return d.searchBackend(ctx, d.choose(q), q, qp, key, useCache)
}

func (d *Dispatcher) choose(q *query.Query) backend.Backend {
	if d.chooser == nil {
		return d.dispatch
	}
	var cluster topology.Cluster
	if d.topology != nil {
		cluster = d.topology.Cluster()
	}
	return d.chooser.Choose(q, cluster)
}

func (d *Dispatcher) searchCached(q *query.Query, key cache.Key) (*result.Result, bool) {
	w, ok := d.cache.Lookup(key, q)
	if !ok {
		return nil, false
	}
	rp, ok := w.Range(q.Offset, q.Hits)
	if !ok {
		return nil, false
	}
	q.Trace(3, "Result served from cache")
	d.resolveSummary(q)
	return d.buildResult(q, rp, key, true), true
}

func (d *Dispatcher) searchBackend(
	ctx context.Context,
	b backend.Backend,
	q *query.Query,
	qp *packet.Query,
	key cache.Key,
	useCache bool,
) *result.Result {
	ctx, cancel := context.WithTimeout(ctx, deadline(q))
	defer cancel()
	name := d.cfg.Name

	ch, err := b.OpenChannel(ctx)
	if err != nil {
		return result.NewWithError(q, d.commError(err, "Could not reach '"+name+"'"))
	}
	defer ch.Close()

	d.logger.Debug("sending query packet", zap.String("backend", b.Name()))
	if err := ch.Send(ctx, qp); err != nil {
		return result.NewWithError(q, d.sendError(err, "Could not reach '"+name+"'"))
	}

	packets, err := ch.Receive(ctx, 1)
	switch {
	case errors.Is(err, backend.ErrTimeout):
		return result.NewWithError(q, result.NewTimeout("Timeout while waiting for "+name))
	case errors.Is(err, backend.ErrInvalidChannel):
		return result.NewWithError(q, result.NewBackendCommunicationError("Invalid channel for "+name))
	case err != nil:
		return result.NewWithError(q, d.commError(err, name+" failed"))
	}
	if len(packets) == 0 {
		return result.NewWithError(q, result.NewBackendCommunicationError(name+" got no packets back"))
	}
	d.logger.Debug("got packets", zap.Int("count", len(packets)))

	rp, err := packet.As[*packet.QueryResult](packets[0])
	if err != nil {
		return result.NewWithError(q, d.unexpectedPacket(packets[0], err))
	}

	d.resolveSummary(q)
	r := d.buildResult(q, rp, key, false)
	if d.cache != nil {
		d.cache.ObserveDocstamp(rp.Docstamp)
	}
	if useCache {
		d.cacheResult(q, key, rp)
	}
	return r
}

func (d *Dispatcher) cacheResult(q *query.Query, key cache.Key, rp *packet.QueryResult) {
	if _, ok := d.cache.Lookup(key, q); ok {
		d.cache.Update(key, q, nil, []packet.Packet{rp})
		return
	}
	// An incomplete first phase must never seed an entry.
	if !rp.FullCoverage() {
		q.Trace(3, "Incomplete coverage, result not cached")
		return
	}
	d.cache.Cache(key, q, nil, []packet.Packet{rp})
}

func (d *Dispatcher) buildResult(q *query.Query, rp *packet.QueryResult, key cache.Key, cached bool) *result.Result {
	r := result.New(q)
	r.SetDocstamp(rp.Docstamp)
	r.SetTotalHitCount(rp.TotalDocs)
	r.SetCoverage(result.Coverage{
		Present: rp.CoveragePresent,
		Docs:    rp.CoverageDocs,
		Active:  rp.ActiveDocs,
		Full:    rp.FullCoverage(),
	})
	for _, doc := range rp.Documents {
		h := hit.New(doc.GlobalID, doc.PartID, doc.DistributionKey, doc.Relevance, d.cfg.Name)
		if key != "" {
			h.SetCacheKey(string(key))
		}
		h.SetCached(cached)
		r.Add(h)
	}
	r.AnalyzeHits()
	return r
}

func (d *Dispatcher) resolveSummary(q *query.Query) {
	if q.Presentation.Summary == "" {
		q.Presentation.Summary = d.cfg.DefaultSummary
	}
}

// Ping pings the dispatch backend.
func (d *Dispatcher) Ping(ctx context.Context) *health.Pong {
	ctx, span := d.tracer.Start(ctx, "dispatch.ping")
	defer span.End()

	pong := d.monitor.Ping(ctx, d.dispatch, d.cfg.PingTimeout)
	if !pong.OK() {
		span.SetStatus(codes.Error, pong.String())
	}
	return pong
}

func deadline(q *query.Query) time.Duration {
	return max(minDeadline, q.TimeLeft())
}

func (d *Dispatcher) sendError(err error, rejected string) result.ErrorMessage {
	switch {
	case errors.Is(err, backend.ErrSendRejected):
		return result.NewBackendCommunicationError(rejected)
	case errors.Is(err, backend.ErrInvalidChannel):
		return result.NewBackendCommunicationError("Invalid channel " + d.cfg.Name)
	case errors.Is(err, backend.ErrIllegalState):
		return result.NewBackendCommunicationError("Illegal state: " + err.Error())
	default:
		return d.commError(err, d.cfg.Name+" failed")
	}
}

func (d *Dispatcher) commError(err error, msg string) result.ErrorMessage {
	if errors.Is(err, backend.ErrTimeout) {
		return result.NewTimeout("Timeout while waiting for " + d.cfg.Name)
	}
	d.logger.Warn("backend communication failed", zap.Error(err))
	return result.NewBackendCommunicationError(msg + ": " + err.Error())
}

func (d *Dispatcher) unexpectedPacket(p packet.Packet, err error) result.ErrorMessage {
	if e, ok := p.(*packet.Error); ok {
		return result.NewBackendCommunicationError(d.cfg.Name + " failed: " + e.String())
	}
	return result.NewBackendCommunicationError("Unexpected packet from " + d.cfg.Name + ": " + err.Error())
}

func (d *Dispatcher) countLookup(phase, outcome string) {
	if d.metrics.CacheLookups != nil {
		d.metrics.CacheLookups.WithLabelValues(phase, outcome).Inc()
	}
}

func (d *Dispatcher) observe(phase string, r *result.Result, start time.Time) {
	status := StatusOK
	if e, ok := r.Error(); ok {
		status = StatusError
		if e.IsTimeout() {
			status = StatusTimeout
		}
	}
	if d.metrics.Requests != nil {
		d.metrics.Requests.WithLabelValues(phase, status).Inc()
	}
	if d.metrics.Duration != nil {
		d.metrics.Duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	}
}
