package cache

import (
	"maps"
	"slices"

	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// PacketWrapper is one cache entry: the query-result packets seen for a key,
// kept as sorted non-overlapping segments, and the docsum packets fetched for
// their hits. A wrapper is never modified after it is stored; merges return a
// new wrapper.
type PacketWrapper struct {
	docstamp uint32
	total    uint64
	segments []*packet.QueryResult
	docsums  map[DocsumKey]*packet.Docsum
	size     int
}

func newPacketWrapper(docstamp uint32) *PacketWrapper {
	return &PacketWrapper{
		docstamp: docstamp,
		docsums:  make(map[DocsumKey]*packet.Docsum),
	}
}

// Docstamp returns the index generation the wrapper's packets belong to.
func (w *PacketWrapper) Docstamp() uint32 { return w.docstamp }

// TotalDocs returns the total hit count reported by the latest result packet.
func (w *PacketWrapper) TotalDocs() uint64 { return w.total }

// Size returns the encoded size of all packets in bytes.
func (w *PacketWrapper) Size() int { return w.size }

// NumDocsums returns how many summaries the wrapper holds.
func (w *PacketWrapper) NumDocsums() int { return len(w.docsums) }

// Range returns a result packet holding documents [offset, offset+hits) when
// one segment covers that window, or reaches the end of the result set.
func (w *PacketWrapper) Range(offset, hits int) (*packet.QueryResult, bool) {
	if offset < 0 || hits < 0 {
		return nil, false
	}
	for _, s := range w.segments {
		start := int(s.Offset)
		end := start + len(s.Documents)
		if start > offset {
			break
		}
		if end < offset+hits && uint64(end) < w.total {
			continue
		}

		from := min(offset, end) - start
		to := min(offset+hits, end) - start
		out := *s
		out.Offset = uint32(offset)
		out.Documents = slices.Clone(s.Documents[from:to])
		out.TotalDocs = w.total
		return &out, true
	}
	return nil, false
}

// Docsum returns the cached summary for key.
func (w *PacketWrapper) Docsum(key DocsumKey) (*packet.Docsum, bool) {
	d, ok := w.docsums[key]
	return d, ok
}

// merge returns a copy of w extended with packets. Docsum packets pair with
// keys in order; result packets with incomplete coverage are ignored.
func (w *PacketWrapper) merge(keys []DocsumKey, packets []packet.Packet) *PacketWrapper {
	out := &PacketWrapper{
		docstamp: w.docstamp,
		total:    w.total,
		segments: slices.Clone(w.segments),
		docsums:  maps.Clone(w.docsums),
		size:     w.size,
	}

	next := 0
	for _, p := range packets {
		switch p := p.(type) {
		case *packet.QueryResult:
			if !p.FullCoverage() {
				continue
			}
			out.total = p.TotalDocs
			out.addSegment(p)
		case *packet.Docsum:
			if next >= len(keys) {
				continue
			}
			key := keys[next]
			next++
			if old, ok := out.docsums[key]; ok {
				out.size -= packet.EncodedLen(old)
			}
			out.docsums[key] = p
			out.size += packet.EncodedLen(p)
		}
	}
	return out
}

func (w *PacketWrapper) addSegment(p *packet.QueryResult) {
	segs := append(w.segments, p)
	slices.SortStableFunc(segs, func(a, b *packet.QueryResult) int {
		return int(a.Offset) - int(b.Offset)
	})

	merged := segs[:0:0]
	for _, s := range segs {
		n := len(merged)
		if n == 0 {
			merged = append(merged, s)
			continue
		}
		last := merged[n-1]
		lastEnd := int(last.Offset) + len(last.Documents)
		if int(s.Offset) > lastEnd {
			merged = append(merged, s)
			continue
		}
		if end := int(s.Offset) + len(s.Documents); end > lastEnd {
			joined := *last
			joined.Documents = append(slices.Clone(last.Documents), s.Documents[lastEnd-int(s.Offset):]...)
			joined.TotalDocs = s.TotalDocs
			merged[n-1] = &joined
		}
	}

	w.segments = merged
	w.size = 0
	for _, s := range w.segments {
		w.size += packet.EncodedLen(s)
	}
	for _, d := range w.docsums {
		w.size += packet.EncodedLen(d)
	}
}
