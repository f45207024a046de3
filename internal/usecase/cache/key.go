package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Key identifies the cached responses of one query. Two queries share a key
// exactly when they would send the same request apart from the result window,
// the time budget and the rank session.
type Key string

// NewKey derives the key of an encoded query packet.
func NewKey(p *packet.Query) Key {
	h := sha256.Sum256(p.KeyBytes())
	return Key(hex.EncodeToString(h[:]))
}

// KeyFor encodes q and derives its key.
func KeyFor(q *query.Query) Key {
	return NewKey(packet.NewQuery(q))
}

// DocsumKey addresses one cached document summary.
type DocsumKey struct {
	GlobalID hit.GlobalID
	PartID   uint32
	Class    string
}

// DocsumKeyFor returns the key of h's summary in class.
func DocsumKeyFor(h *hit.Hit, class string) DocsumKey {
	return DocsumKey{GlobalID: h.GlobalID(), PartID: h.PartID(), Class: class}
}

func (k DocsumKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.GlobalID, k.PartID, k.Class)
}
