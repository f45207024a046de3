package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

func gid(n byte) hit.GlobalID {
	var g hit.GlobalID
	g[0] = n
	return g
}

// resultPacket returns a result covering [offset, offset+n) of a corpus of
// total documents whose gids are their positions.
func resultPacket(offset, n int, total uint64, docstamp uint32) *packet.QueryResult {
	p := &packet.QueryResult{Offset: uint32(offset), TotalDocs: total, Docstamp: docstamp}
	for i := offset; i < offset+n; i++ {
		p.Documents = append(p.Documents, packet.Document{GlobalID: gid(byte(i)), Relevance: float64(100 - i)})
	}
	return p
}

func newTestCache(capacityMB int) *Cache {
	return New(Config{CapacityMB: capacityMB, TTL: time.Minute}, nil, nil, zap.NewNop())
}

func TestKey_IgnoresWindowAndBudget(t *testing.T) {
	a := query.New("foo")
	b := query.New("foo")
	b.Offset = 20
	b.Hits = 3
	b.Timeout = time.Second

	if KeyFor(a) != KeyFor(b) {
		t.Error("keys differ for queries differing only in window and timeout")
	}
	if KeyFor(a) == KeyFor(query.New("bar")) {
		t.Error("different terms share a key")
	}
	if len(KeyFor(a)) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(KeyFor(a)))
	}
}

func TestPacketWrapper_Range(t *testing.T) {
	w := newPacketWrapper(1).merge(nil, []packet.Packet{resultPacket(0, 2, 5, 1)})

	tests := []struct {
		name          string
		offset, hits  int
		wantOK        bool
		wantDocuments int
	}{
		{"exact", 0, 2, true, 2},
		{"subrange", 1, 1, true, 1},
		{"wider", 0, 3, false, 0},
		{"disjoint", 2, 1, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := w.Range(tt.offset, tt.hits)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && len(got.Documents) != tt.wantDocuments {
				t.Errorf("documents = %d, want %d", len(got.Documents), tt.wantDocuments)
			}
			if ok && got.Offset != uint32(tt.offset) {
				t.Errorf("offset = %d, want %d", got.Offset, tt.offset)
			}
		})
	}
}

func TestPacketWrapper_RangeReachingTotal(t *testing.T) {
	w := newPacketWrapper(1).merge(nil, []packet.Packet{resultPacket(0, 2, 2, 1)})

	got, ok := w.Range(0, 10)
	if !ok {
		t.Fatal("window past the end of the result set not covered")
	}
	if len(got.Documents) != 2 || got.Documents[1].GlobalID != gid(1) {
		t.Errorf("documents = %+v", got.Documents)
	}
}

func TestPacketWrapper_MergesSegments(t *testing.T) {
	w := newPacketWrapper(1).merge(nil, []packet.Packet{resultPacket(0, 1, 4, 1)})
	w = w.merge(nil, []packet.Packet{resultPacket(2, 1, 4, 1)})
	if len(w.segments) != 2 {
		t.Fatalf("segments = %d, want 2 disjoint", len(w.segments))
	}
	if _, ok := w.Range(0, 3); ok {
		t.Error("gap between segments reported as covered")
	}

	w = w.merge(nil, []packet.Packet{resultPacket(1, 1, 4, 1)})
	if len(w.segments) != 1 {
		t.Fatalf("segments = %d, want 1 after filling the gap", len(w.segments))
	}
	got, ok := w.Range(0, 3)
	if !ok {
		t.Fatal("merged range not covered")
	}
	for i, d := range got.Documents {
		if d.GlobalID != gid(byte(i)) {
			t.Errorf("document %d = %s", i, d.GlobalID)
		}
	}
}

func TestPacketWrapper_MergeIsCopyOnWrite(t *testing.T) {
	w := newPacketWrapper(1).merge(nil, []packet.Packet{resultPacket(0, 1, 2, 1)})
	key := DocsumKey{GlobalID: gid(0), Class: "default"}
	w2 := w.merge([]DocsumKey{key}, []packet.Packet{&packet.Docsum{GlobalID: gid(0)}, &packet.EOL{}})

	if _, ok := w.Docsum(key); ok {
		t.Error("merge modified the original wrapper")
	}
	if _, ok := w2.Docsum(key); !ok {
		t.Error("merged wrapper missing docsum")
	}
	if w2.Size() <= w.Size() {
		t.Errorf("size %d did not grow from %d", w2.Size(), w.Size())
	}
}

func TestPacketWrapper_IgnoresPartialCoverage(t *testing.T) {
	partial := resultPacket(0, 2, 2, 1)
	partial.CoveragePresent = true
	partial.CoverageFull = false

	w := newPacketWrapper(1).merge(nil, []packet.Packet{partial})
	if _, ok := w.Range(0, 1); ok {
		t.Error("partial-coverage result was cached")
	}
}

func TestCache_LookupAndUpdate(t *testing.T) {
	c := newTestCache(1)
	q := query.New("foo")
	key := KeyFor(q)

	if _, ok := c.Lookup(key, q); ok {
		t.Fatal("hit on empty cache")
	}
	if c.Update(key, q, nil, []packet.Packet{resultPacket(0, 1, 2, 0)}) {
		t.Error("Update without an entry reported success")
	}

	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 2, 2, 0)})
	dk := DocsumKey{GlobalID: gid(1), Class: "default"}
	if !c.Update(key, q, []DocsumKey{dk}, []packet.Packet{&packet.Docsum{GlobalID: gid(1)}}) {
		t.Fatal("Update of existing entry failed")
	}

	w, ok := c.Lookup(key, q)
	if !ok {
		t.Fatal("miss after Cache")
	}
	if _, ok := w.Docsum(dk); !ok {
		t.Error("docsum not found after Update")
	}
	if c.Len() != 1 || c.Bytes() != int64(w.Size()) {
		t.Errorf("Len = %d, Bytes = %d, want 1, %d", c.Len(), c.Bytes(), w.Size())
	}
}

func TestCache_NeverShrinks(t *testing.T) {
	c := newTestCache(1)
	q := query.New("foo")
	key := KeyFor(q)

	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 4, 10, 0)})
	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 1, 10, 0)})

	w, ok := c.Lookup(key, q)
	if !ok {
		t.Fatal("miss")
	}
	if _, ok := w.Range(0, 4); !ok {
		t.Error("narrower result shrank the entry")
	}
}

func TestCache_DocstampInvalidates(t *testing.T) {
	c := newTestCache(1)
	q := query.New("foo")
	key := KeyFor(q)

	c.ObserveDocstamp(7)
	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 1, 1, 7)})
	if _, ok := c.Lookup(key, q); !ok {
		t.Fatal("miss in the same generation")
	}

	c.ObserveDocstamp(8)
	if _, ok := c.Lookup(key, q); ok {
		t.Error("entry from an older generation served")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("stale entry kept: Len = %d, Bytes = %d", c.Len(), c.Bytes())
	}
	if c.Update(key, q, nil, []packet.Packet{&packet.Docsum{}}) {
		t.Error("Update after invalidation reported success")
	}
}

func TestCache_Current(t *testing.T) {
	c := newTestCache(1)
	if !c.Current(3) {
		t.Error("any generation is current before one is observed")
	}
	c.ObserveDocstamp(3)
	if !c.Current(3) {
		t.Error("observed generation not current")
	}
	if c.Current(2) {
		t.Error("older generation reported current")
	}
}

func TestCache_NewGenerationReplacesEntry(t *testing.T) {
	c := newTestCache(1)
	q := query.New("foo")
	key := KeyFor(q)

	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 3, 3, 1)})
	c.ObserveDocstamp(2)
	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 1, 3, 2)})

	w, ok := c.Lookup(key, q)
	if !ok {
		t.Fatal("miss")
	}
	if w.Docstamp() != 2 {
		t.Errorf("docstamp = %d, want 2", w.Docstamp())
	}
	if _, ok := w.Range(0, 3); ok {
		t.Error("documents from the old generation survived")
	}
}

func TestCache_Disabled(t *testing.T) {
	q := query.New("foo")
	key := KeyFor(q)

	off := newTestCache(0)
	off.Cache(key, q, nil, []packet.Packet{resultPacket(0, 1, 1, 0)})
	if off.Len() != 0 {
		t.Error("zero-capacity cache stored an entry")
	}

	c := newTestCache(1)
	noCache := query.New("foo")
	noCache.Properties.Set(query.PropNoCache, "true")
	if c.UseCache(noCache) {
		t.Error("nocache property ignored")
	}
	noCache2 := query.New("foo")
	noCache2.NoCache = true
	if c.UseCache(noCache2) {
		t.Error("NoCache flag ignored")
	}
}

func TestCache_EvictsOverCapacity(t *testing.T) {
	c := newTestCache(1)
	payload := make([]byte, 300<<10)

	for i := 0; i < 5; i++ {
		q := query.New(fmt.Sprintf("q%d", i))
		key := KeyFor(q)
		c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 1, 1, 0)})
		c.Update(key, q, []DocsumKey{{GlobalID: gid(0)}}, []packet.Packet{&packet.Docsum{Payload: payload}})
	}

	if c.Bytes() > 1<<20 {
		t.Errorf("Bytes = %d exceeds capacity", c.Bytes())
	}
	if c.Len() >= 5 {
		t.Errorf("Len = %d, want evictions", c.Len())
	}
	first := query.New("q0")
	if _, ok := c.Lookup(KeyFor(first), first); ok {
		t.Error("oldest entry survived eviction")
	}
}

func TestCache_Clear(t *testing.T) {
	entries := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_entries"})
	bytes := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_bytes"})
	c := New(Config{CapacityMB: 1}, entries, bytes, zap.NewNop())
	q := query.New("foo")

	c.Cache(KeyFor(q), q, nil, []packet.Packet{resultPacket(0, 1, 1, 0)})
	if got := testutil.ToFloat64(entries); got != 1 {
		t.Errorf("entries gauge = %v, want 1", got)
	}

	c.Clear()
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("Len = %d, Bytes = %d after Clear", c.Len(), c.Bytes())
	}
	if got := testutil.ToFloat64(bytes); got != 0 {
		t.Errorf("bytes gauge = %v, want 0", got)
	}
}

func TestCache_ConcurrentUpdates(t *testing.T) {
	c := newTestCache(4)
	q := query.New("foo")
	key := KeyFor(q)
	c.Cache(key, q, nil, []packet.Packet{resultPacket(0, 50, 50, 0)})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dk := DocsumKey{GlobalID: gid(byte(i)), Class: "default"}
			c.Update(key, q, []DocsumKey{dk}, []packet.Packet{&packet.Docsum{GlobalID: gid(byte(i))}})
			c.Lookup(key, q)
		}(i)
	}
	wg.Wait()

	w, ok := c.Lookup(key, q)
	if !ok {
		t.Fatal("miss")
	}
	if w.NumDocsums() != 50 {
		t.Errorf("docsums = %d, want 50: concurrent updates were lost", w.NumDocsums())
	}
	if c.Bytes() != int64(w.Size()) {
		t.Errorf("Bytes = %d, want %d", c.Bytes(), w.Size())
	}
}
