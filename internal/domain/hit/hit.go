// Package hit holds a single ranked document reference.
package hit

import (
	"encoding/hex"
	"fmt"
	"sort"
)

// GlobalIDLength is the width of a global document id in bytes.
const GlobalIDLength = 12

// DocumentTypeField is the field carrying the document type name.
const DocumentTypeField = "sddocname"

// GlobalID identifies a document across partitions.
type GlobalID [GlobalIDLength]byte

// GlobalIDFromBytes copies a raw id. b must be exactly GlobalIDLength bytes.
func GlobalIDFromBytes(b []byte) (GlobalID, error) {
	var g GlobalID
	if len(b) != GlobalIDLength {
		return g, fmt.Errorf("global id must be %d bytes, got %d", GlobalIDLength, len(b))
	}
	copy(g[:], b)
	return g, nil
}

func (g GlobalID) String() string { return hex.EncodeToString(g[:]) }

// Hit is one ranked document. Hits are created unfilled by the query phase
// and filled in place by the summary phase.
type Hit struct {
	gid       GlobalID
	partID    uint32
	distKey   uint32
	relevance float64
	source    string

	fields   map[string]any
	filled   map[string]struct{}
	cached   bool
	cacheKey string
}

// New creates an unfilled hit.
func New(gid GlobalID, partID, distKey uint32, relevance float64, source string) *Hit {
	return &Hit{
		gid:       gid,
		partID:    partID,
		distKey:   distKey,
		relevance: relevance,
		source:    source,
		fields:    make(map[string]any),
		filled:    make(map[string]struct{}),
	}
}

// GlobalID returns the document's global id.
func (h *Hit) GlobalID() GlobalID { return h.gid }

// PartID returns the partition the document was found in.
func (h *Hit) PartID() uint32 { return h.partID }

// DistributionKey returns the backend node's distribution key.
func (h *Hit) DistributionKey() uint32 { return h.distKey }

// Relevance returns the relevance score.
func (h *Hit) Relevance() float64 { return h.relevance }

// Source returns the name of the cluster the hit came from.
func (h *Hit) Source() string { return h.source }

// ID returns the hit's index URI.
func (h *Hit) ID() string {
	return fmt.Sprintf("index:%s/%d/%d/%s", h.source, h.partID, h.distKey, h.gid)
}

// Field returns a summary field value.
func (h *Hit) Field(name string) (any, bool) {
	v, ok := h.fields[name]
	return v, ok
}

// SetField sets a summary field value.
func (h *Hit) SetField(name string, value any) {
	h.fields[name] = value
}

// FieldNames returns the names of all set fields, sorted.
func (h *Hit) FieldNames() []string {
	names := make([]string, 0, len(h.fields))
	for n := range h.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsFilled reports whether the hit carries summary class class.
func (h *Hit) IsFilled(class string) bool {
	_, ok := h.filled[class]
	return ok
}

// SetFilled marks summary class class as filled.
func (h *Hit) SetFilled(class string) {
	h.filled[class] = struct{}{}
}

// Filled returns the filled summary classes, sorted.
func (h *Hit) Filled() []string {
	out := make([]string, 0, len(h.filled))
	for c := range h.filled {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ResetFilled drops all fill state. Only used when the index generation changed.
func (h *Hit) ResetFilled() {
	h.filled = make(map[string]struct{})
	h.fields = make(map[string]any)
}

// IsCached reports whether any part of the hit was served from the response cache.
func (h *Hit) IsCached() bool { return h.cached }

// SetCached flags the hit as served from the response cache.
func (h *Hit) SetCached(cached bool) { h.cached = cached }

// CacheKey returns the response cache key the hit was produced under.
func (h *Hit) CacheKey() (string, bool) {
	return h.cacheKey, h.cacheKey != ""
}

// SetCacheKey records the response cache key the hit was produced under.
func (h *Hit) SetCacheKey(key string) { h.cacheKey = key }

func (h *Hit) String() string {
	return fmt.Sprintf("hit %s (relevance %g)", h.ID(), h.relevance)
}
