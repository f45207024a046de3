// Package topology loads cluster layout snapshots from the key/value store
// and keeps a refreshed copy for the dispatcher.
package topology

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/fastdispatch/internal/db"
	domtopo "github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

// ErrNodeNotFound is returned when a node is not registered.
var ErrNodeNotFound = errors.New("topology: node not found")

// DefaultKeyPrefix namespaces topology keys in a shared store.
const DefaultKeyPrefix = "fastdispatch:"

// store is the consumer interface for topology (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores search nodes as hashes under <prefix>node:<host>:<port>.
type Repo struct {
	store  store
	prefix string
}

// New creates a topology repository.
func New(s store, prefix string) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Repo{store: s, prefix: prefix}
}

// Register stores or replaces a node.
func (r *Repo) Register(ctx context.Context, n domtopo.Node) error {
	if n.Hostname == "" || n.Port <= 0 {
		return fmt.Errorf("invalid node %q:%d", n.Hostname, n.Port)
	}
	if err := r.store.HSet(ctx, r.nodeKey(n.Hostname, n.Port), nodeToHash(n)); err != nil {
		return fmt.Errorf("hset node %s:%d: %w", n.Hostname, n.Port, err)
	}
	return nil
}

// Deregister removes a node.
func (r *Repo) Deregister(ctx context.Context, host string, port int) error {
	if err := r.store.Del(ctx, r.nodeKey(host, port)); err != nil {
		return fmt.Errorf("del node %s:%d: %w", host, port, err)
	}
	return nil
}

// Get returns one node.
func (r *Repo) Get(ctx context.Context, host string, port int) (domtopo.Node, error) {
	m, err := r.store.HGetAll(ctx, r.nodeKey(host, port))
	if errors.Is(err, db.ErrKeyNotFound) || (err == nil && len(m) == 0) {
		return domtopo.Node{}, ErrNodeNotFound
	}
	if err != nil {
		return domtopo.Node{}, fmt.Errorf("hgetall node %s:%d: %w", host, port, err)
	}
	return nodeFromHash(m)
}

// Load returns a snapshot of every registered node. Hashes that vanish
// between the scan and the read are skipped.
func (r *Repo) Load(ctx context.Context) (domtopo.Cluster, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"node:*")
	if err != nil {
		return domtopo.Cluster{}, fmt.Errorf("scan nodes: %w", err)
	}
	if len(keys) == 0 {
		return domtopo.NewCluster(nil), nil
	}

	results, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return domtopo.Cluster{}, fmt.Errorf("hgetall nodes: %w", err)
	}

	nodes := make([]domtopo.Node, 0, len(results))
	for i, m := range results {
		if len(m) == 0 {
			continue
		}
		n, err := nodeFromHash(m)
		if err != nil {
			return domtopo.Cluster{}, fmt.Errorf("node %s: %w", keys[i], err)
		}
		nodes = append(nodes, n)
	}
	return domtopo.NewCluster(nodes), nil
}

func (r *Repo) nodeKey(host string, port int) string {
	return r.prefix + "node:" + host + ":" + strconv.Itoa(port)
}
