package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/domain/docsum"
	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/cache"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/chain"
)

// Fill fetches summary class for every hit of r that lacks it, using at most
// one backend round trip. An empty class selects the default summary.
// Failures are reported as error entries on r.
func (d *Dispatcher) Fill(ctx context.Context, r *result.Result, class string, _ *chain.Execution) {
	requested := class
	if class == "" {
		class = d.cfg.DefaultSummary
	}
	if r.IsFilled(class) {
		return
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.fill", trace.WithAttributes(
		attribute.String("summary.class", class),
		attribute.Int("result.hits", r.HitCount()),
	))
	defer span.End()
	start := time.Now()
	errorsBefore := len(r.Errors())

	q := r.Query()
	d.traceQuery(q, "fill", requested)
	d.fill(ctx, r, class)

	if errs := r.Errors(); len(errs) > errorsBefore {
		span.SetStatus(codes.Error, errs[errorsBefore].Error())
		d.observeFill(errs[errorsBefore], start)
		return
	}
	d.observeFill(result.ErrorMessage{}, start)
}

func (d *Dispatcher) fill(ctx context.Context, r *result.Result, class string) {
	q := r.Query()
	db := d.docsums.ForQuery(q)

	if q.Properties.Bool(query.PropDispatchSummaries, false) {
		d.fillRPC(ctx, r, class, db)
		return
	}

	var (
		key     cache.Key
		wrapper *cache.PacketWrapper
	)
	if d.cache != nil && d.cache.UseCache(q) {
		key = cacheKeyFromHits(r, class)
		if key == "" {
			key = cache.KeyFor(q)
		}
		var ok bool
		if wrapper, ok = d.cache.Lookup(key, q); ok {
			d.countLookup(PhaseFill, LookupHit)
			d.fillFromCache(r, wrapper, class, db)
		} else {
			d.countLookup(PhaseFill, LookupMiss)
			d.detachFromCache(r, !d.cache.Current(r.Docstamp()))
		}
	}

	docs := unfilledDocs(r, class)
	var packets []packet.Packet
	if len(docs) > 0 {
		var ok bool
		if packets, ok = d.fetchSummaries(ctx, r, class, docs); !ok {
			return
		}
	}

	keys, docsums, skipped := d.fillHits(r, packets, class, db)
	if skipped == 0 && wrapper != nil && len(docsums) > 0 {
		d.cache.Update(key, q, keys, docsums)
	}
	if skipped > 0 {
		d.logger.Info("could not fill summary",
			zap.String("summary", class), zap.Int("skipped", skipped), zap.Stringer("query", q))
		r.AddError(result.NewEmptyDocsums(
			fmt.Sprintf("Missing hit data for summary '%s' for %d hits", class, skipped)))
	}
	r.AnalyzeHits()

	if q.TraceLevel >= 3 {
		for i, h := range r.Hits() {
			from := "backend"
			if h.IsCached() {
				from = "cache"
			}
			msg := fmt.Sprintf("Hit: %d from %s", i, from)
			if !h.IsFilled(class) {
				msg += ". Error, hit, not filled"
			}
			q.Trace(3, msg)
		}
	}
}

func (d *Dispatcher) fillRPC(ctx context.Context, r *result.Result, class string, db *docsum.Database) {
	q := r.Query()
	compression, err := packet.ParseCompression(q.Properties.String(query.PropDispatchCompression, "lz4"))
	if err != nil {
		r.AddError(result.NewBackendCommunicationError(err.Error()))
		return
	}

	// The RPC path does not carry the document type.
	if name := db.Name(); name != "" {
		for _, h := range r.Hits() {
			h.SetField(hit.DocumentTypeField, name)
		}
	}

	if d.filler == nil {
		r.AddError(result.NewBackendCommunicationError(d.cfg.Name + " has no summary dispatcher configured"))
		return
	}
	if err := d.filler.Fill(ctx, r, class, compression); err != nil {
		r.AddError(d.commError(err, "Summary dispatch from "+d.cfg.Name+" failed"))
	}
}

// fetchSummaries sends one docsum request on the dispatch backend and
// returns the packets received. On failure it records an error on r.
func (d *Dispatcher) fetchSummaries(ctx context.Context, r *result.Result, class string, docs []packet.DocKey) ([]packet.Packet, bool) {
	q := r.Query()
	name := d.cfg.Name
	ctx, cancel := context.WithTimeout(ctx, deadline(q))
	defer cancel()

	resend := d.summaryNeedsQuery(q, class)
	if resend {
		q.Trace(3, "Resending query during document summary fetching")
	} else {
		q.Trace(3, "Not resending query during document summary fetching")
	}
	req := packet.NewGetDocsums(q, class, resend, docs)

	ch, err := d.dispatch.OpenChannel(ctx)
	if err != nil {
		r.AddError(d.commError(err, "Could not reach '"+name+"' (summary fetch)"))
		return nil, false
	}
	defer ch.Close()

	d.logger.Debug("sending docsum request", zap.Int("docs", len(docs)), zap.String("summary", class))
	if err := ch.Send(ctx, req); err != nil {
		switch {
		case errors.Is(err, backend.ErrInvalidChannel):
			r.AddError(result.NewBackendCommunicationError("Invalid channel " + name + " (summary fetch)"))
		case errors.Is(err, backend.ErrTimeout):
			r.AddError(result.NewTimeout("timeout waiting for summaries from " + name))
		default:
			r.AddError(result.NewBackendCommunicationError(
				"IO error while talking on channel " + name + " (summary fetch): " + err.Error()))
		}
		return nil, false
	}

	packets, err := ch.Receive(ctx, req.NumDocsums()+1)
	switch {
	case errors.Is(err, backend.ErrInvalidChannel):
		r.AddError(result.NewBackendCommunicationError("Invalid channel " + name + " (summary fetch)"))
		return nil, false
	case errors.Is(err, backend.ErrTimeout):
		r.AddError(result.NewTimeout("timeout waiting for summaries from " + name))
		return nil, false
	case err != nil:
		r.AddError(result.NewBackendCommunicationError(
			"IO error while talking on channel " + name + " (summary fetch): " + err.Error()))
		return nil, false
	}
	if len(packets) == 0 {
		r.AddError(result.NewBackendCommunicationError(name + " got no packets back (summary fetch)"))
		return nil, false
	}
	if e, ok := packets[0].(*packet.Error); ok {
		r.AddError(result.NewBackendCommunicationError(name + " failed (summary fetch): " + e.String()))
		return nil, false
	}
	d.logger.Debug("got docsum packets", zap.Int("count", len(packets)))
	return packets, true
}

// fillHits decodes received docsums into the unfilled hits with matching
// global ids. It returns the docsums that filled a hit with their cache keys,
// and the number of hits still unfilled.
func (d *Dispatcher) fillHits(r *result.Result, packets []packet.Packet, class string, db *docsum.Database) ([]cache.DocsumKey, []packet.Packet, int) {
	pending := make(map[hit.GlobalID][]*hit.Hit)
	for _, h := range r.Hits() {
		if !h.IsFilled(class) {
			pending[h.GlobalID()] = append(pending[h.GlobalID()], h)
		}
	}

	var (
		keys       []cache.DocsumKey
		docsums    []packet.Packet
		decodeFail bool
	)
	for _, p := range packets {
		ds, ok := p.(*packet.Docsum)
		if !ok {
			continue
		}
		hits := pending[ds.GlobalID]
		if len(hits) == 0 {
			continue
		}
		filled := false
		for _, h := range hits {
			switch err := decodeInto(h, ds, class, db); {
			case err == nil:
				filled = true
			case !errors.Is(err, docsum.ErrEmpty):
				decodeFail = true
				d.logger.Warn("could not decode summary", zap.Stringer("hit", h), zap.Error(err))
			}
		}
		delete(pending, ds.GlobalID)
		if filled {
			keys = append(keys, cache.DocsumKeyFor(hits[0], class))
			docsums = append(docsums, ds)
		}
	}
	if decodeFail {
		r.AddError(result.NewBackendCommunicationError("Error filling hits with summary fields, source: " + d.cfg.Name))
	}

	skipped := 0
	for _, h := range r.Hits() {
		if !h.IsFilled(class) {
			skipped++
		}
	}
	return keys, docsums, skipped
}

func (d *Dispatcher) fillFromCache(r *result.Result, w *cache.PacketWrapper, class string, db *docsum.Database) {
	for _, h := range r.Hits() {
		if h.IsFilled(class) {
			continue
		}
		ds, ok := w.Docsum(cache.DocsumKeyFor(h, class))
		if !ok {
			continue
		}
		if err := decodeInto(h, ds, class, db); err == nil {
			h.SetCached(true)
		}
	}
}

// detachFromCache clears the cached flag of hits whose cache entry is gone.
// Summaries already filled are kept unless the hits were ranked in an index
// generation other than the current one.
func (d *Dispatcher) detachFromCache(r *result.Result, stale bool) {
	for _, h := range r.Hits() {
		if !h.IsCached() {
			continue
		}
		if stale {
			h.ResetFilled()
		}
		h.SetCached(false)
	}
}

func decodeInto(h *hit.Hit, ds *packet.Docsum, class string, db *docsum.Database) error {
	_, values, err := db.Decode(ds.Payload)
	if err != nil {
		return err
	}
	for name, v := range values {
		h.SetField(name, v)
	}
	if name := db.Name(); name != "" {
		h.SetField(hit.DocumentTypeField, name)
	}
	h.SetFilled(class)
	return nil
}

// cacheKeyFromHits returns the cache key carried by the first hit still
// lacking class.
func cacheKeyFromHits(r *result.Result, class string) cache.Key {
	for _, h := range r.Hits() {
		if h.IsFilled(class) {
			continue
		}
		if k, ok := h.CacheKey(); ok {
			return cache.Key(k)
		}
	}
	return ""
}

func unfilledDocs(r *result.Result, class string) []packet.DocKey {
	var docs []packet.DocKey
	for _, h := range r.Hits() {
		if !h.IsFilled(class) {
			docs = append(docs, packet.DocKey{GlobalID: h.GlobalID(), PartID: h.PartID()})
		}
	}
	return docs
}

func (d *Dispatcher) observeFill(e result.ErrorMessage, start time.Time) {
	status := StatusOK
	switch {
	case e.IsTimeout():
		status = StatusTimeout
	case e.Code != 0:
		status = StatusError
	}
	if d.metrics.Requests != nil {
		d.metrics.Requests.WithLabelValues(PhaseFill, status).Inc()
	}
	if d.metrics.Duration != nil {
		d.metrics.Duration.WithLabelValues(PhaseFill).Observe(time.Since(start).Seconds())
	}
}
