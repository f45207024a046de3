// Package selection decides whether a query goes to the configured dispatch
// backend or directly to a search node on the local host.
package selection

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

// Target label values for the selections counter.
const (
	TargetDispatch = "dispatch"
	TargetDirect   = "direct"
)

// Config describes the local host's place in the deployment.
type Config struct {
	SelfHostname         string
	ContainerClusterSize int
}

// Policy chooses the backend for a query. It performs no I/O.
type Policy struct {
	dispatch   backend.Backend
	pool       pool
	cfg        Config
	selections *prometheus.CounterVec
}

// New creates a policy. selections is an optional counter vec labelled
// "target".
func New(dispatch backend.Backend, p pool, cfg Config, selections *prometheus.CounterVec) *Policy {
	return &Policy{
		dispatch:   dispatch,
		pool:       p,
		cfg:        cfg,
		selections: selections,
	}
}

// Dispatch returns the configured dispatch backend.
func (p *Policy) Dispatch() backend.Backend { return p.dispatch }

// Choose returns a direct backend for the single local node when every
// precondition holds, and the dispatch backend otherwise.
func (p *Policy) Choose(q *query.Query, cluster topology.Cluster) backend.Backend {
	node, ok := p.directNode(q, cluster)
	if !ok {
		p.count(TargetDispatch)
		return p.dispatch
	}
	q.Trace(2, "Dispatching directly to ", node)
	p.count(TargetDirect)
	return p.pool.Backend(node.Hostname, node.Port)
}

func (p *Policy) directNode(q *query.Query, cluster topology.Cluster) (topology.Node, bool) {
	if !q.Properties.Bool(query.PropDispatchDirect, false) {
		return topology.Node{}, false
	}

	local := cluster.NodesByHost(p.cfg.SelfHostname)
	if len(local) != 1 {
		return topology.Node{}, false
	}
	node := local[0]

	// The local node must hold the whole corpus.
	group, ok := cluster.Group(node.Group)
	if !ok || len(group.Nodes) != 1 {
		return topology.Node{}, false
	}

	// With fewer containers than search nodes, some nodes would get no
	// direct traffic while local ones are overloaded.
	if p.cfg.ContainerClusterSize < cluster.Size() {
		return topology.Node{}, false
	}

	if !node.Working {
		return topology.Node{}, false
	}
	return node, true
}

func (p *Policy) count(target string) {
	if p.selections != nil {
		p.selections.WithLabelValues(target).Inc()
	}
}
