// Package cache holds raw backend responses keyed by query so that repeated
// and overlapping requests are answered without a backend round trip.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

const stripes = 64

// noDocstamp marks that no generation has been observed yet.
const noDocstamp = -1

// Config bounds the cache.
type Config struct {
	CapacityMB int           // 0 disables caching
	TTL        time.Duration // 0 means entries never expire
}

// Cache is a byte-bounded LRU of PacketWrappers with per-entry TTL.
// Updates to one key are serialized; lookups never block on them.
type Cache struct {
	capacityMB int
	maxBytes   int64
	lru        *expirable.LRU[Key, *PacketWrapper]
	locks      [stripes]sync.Mutex
	bytes      atomic.Int64
	docstamp   atomic.Int64

	entriesGauge prometheus.Gauge
	bytesGauge   prometheus.Gauge
	logger       *zap.Logger
}

// New creates a cache. entries and bytes are optional gauges kept in sync
// with the cache contents.
func New(cfg Config, entries, bytes prometheus.Gauge, logger *zap.Logger) *Cache {
	c := &Cache{
		capacityMB:   cfg.CapacityMB,
		maxBytes:     int64(cfg.CapacityMB) << 20,
		entriesGauge: entries,
		bytesGauge:   bytes,
		logger:       logger,
	}
	c.docstamp.Store(noDocstamp)
	c.lru = expirable.NewLRU[Key, *PacketWrapper](0, c.onEvict, cfg.TTL)
	return c
}

// UseCache reports whether q may read and populate the cache.
func (c *Cache) UseCache(q *query.Query) bool {
	if c.maxBytes <= 0 || q.NoCache {
		return false
	}
	return !q.Properties.Bool(query.PropNoCache, false)
}

// Capacity returns the configured capacity in megabytes.
func (c *Cache) Capacity() int { return c.capacityMB }

// Len returns the number of entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Bytes returns the encoded size of all entries.
func (c *Cache) Bytes() int64 { return c.bytes.Load() }

// ObserveDocstamp records the index generation most recently reported by a
// backend. Entries from other generations are dropped on lookup.
func (c *Cache) ObserveDocstamp(d uint32) {
	if old := c.docstamp.Swap(int64(d)); old != noDocstamp && old != int64(d) {
		c.logger.Info("index generation changed",
			zap.Int64("old_docstamp", old), zap.Uint32("docstamp", d))
	}
}

// Current reports whether docstamp matches the latest observed generation.
// Before any generation is observed every docstamp is current.
func (c *Cache) Current(docstamp uint32) bool {
	d := c.docstamp.Load()
	return d == noDocstamp || int64(docstamp) == d
}

// Lookup returns the entry for key if it belongs to the current generation.
func (c *Cache) Lookup(key Key, q *query.Query) (*PacketWrapper, bool) {
	if !c.UseCache(q) {
		return nil, false
	}
	w, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.stale(w) {
		mu := c.lock(key)
		if cur, ok := c.lru.Peek(key); ok && cur == w {
			c.lru.Remove(key)
			c.syncGauges()
		}
		mu.Unlock()
		return nil, false
	}
	return w, true
}

// Cache stores packets under key. An existing entry of the same generation
// is extended, otherwise a new entry replaces it.
func (c *Cache) Cache(key Key, q *query.Query, keys []DocsumKey, packets []packet.Packet) {
	if !c.UseCache(q) {
		return
	}
	mu := c.lock(key)
	defer mu.Unlock()

	base, ok := c.lru.Peek(key)
	if !ok || c.stale(base) || base.docstamp != docstampOf(packets, base.docstamp) {
		base = newPacketWrapper(docstampOf(packets, c.current()))
	}
	c.store(key, base.merge(keys, packets))
}

// Update extends the existing entry for key with packets. It reports false
// when there is no current entry to extend.
func (c *Cache) Update(key Key, q *query.Query, keys []DocsumKey, packets []packet.Packet) bool {
	if !c.UseCache(q) {
		return false
	}
	mu := c.lock(key)
	defer mu.Unlock()

	base, ok := c.lru.Peek(key)
	if !ok || c.stale(base) {
		return false
	}
	c.store(key, base.merge(keys, packets))
	return true
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.lru.Purge()
	c.syncGauges()
}

// store replaces the entry for key and evicts oldest entries until the byte
// budget holds. The caller holds the key's stripe lock.
func (c *Cache) store(key Key, w *PacketWrapper) {
	c.lru.Remove(key)
	c.lru.Add(key, w)
	c.bytes.Add(int64(w.size))

	for c.bytes.Load() > c.maxBytes && c.lru.Len() > 0 {
		evicted, _, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		c.logger.Debug("evicted cache entry over capacity", zap.String("key", string(evicted)))
	}
	c.syncGauges()
}

func (c *Cache) onEvict(_ Key, w *PacketWrapper) {
	c.bytes.Add(-int64(w.size))
}

func (c *Cache) current() uint32 {
	d := c.docstamp.Load()
	if d == noDocstamp {
		return 0
	}
	return uint32(d)
}

func (c *Cache) stale(w *PacketWrapper) bool {
	return !c.Current(w.docstamp)
}

func (c *Cache) lock(key Key) *sync.Mutex {
	mu := &c.locks[xxhash.Sum64String(string(key))%stripes]
	mu.Lock()
	return mu
}

func (c *Cache) syncGauges() {
	if c.entriesGauge != nil {
		c.entriesGauge.Set(float64(c.lru.Len()))
	}
	if c.bytesGauge != nil {
		c.bytesGauge.Set(float64(c.bytes.Load()))
	}
}

// docstampOf returns the docstamp of the first result packet, or def.
func docstampOf(packets []packet.Packet, def uint32) uint32 {
	for _, p := range packets {
		if r, ok := p.(*packet.QueryResult); ok {
			return r.Docstamp
		}
	}
	return def
}
