package dispatch

import (
	"context"
	"time"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/cache"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/health"
)

// ResponseCache stores raw backend responses.
type ResponseCache interface {
	UseCache(q *query.Query) bool
	Lookup(key cache.Key, q *query.Query) (*cache.PacketWrapper, bool)
	Cache(key cache.Key, q *query.Query, keys []cache.DocsumKey, packets []packet.Packet)
	Update(key cache.Key, q *query.Query, keys []cache.DocsumKey, packets []packet.Packet) bool
	ObserveDocstamp(d uint32)
	Current(docstamp uint32) bool
}

// Chooser picks the backend for the query phase.
type Chooser interface {
	Choose(q *query.Query, cluster topology.Cluster) backend.Backend
}

// TopologySource returns the current cluster snapshot.
type TopologySource interface {
	Cluster() topology.Cluster
}

// Pinger pings a backend.
type Pinger interface {
	Ping(ctx context.Context, b backend.Backend, timeout time.Duration) *health.Pong
}

// SummaryFiller fills summaries over the RPC protocol, bypassing the
// response cache.
type SummaryFiller interface {
	Fill(ctx context.Context, r *result.Result, class string, compression packet.Compression) error
}
