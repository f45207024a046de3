package health

import "context"

// DBPinger checks availability of the topology store.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// docstampObserver is told the index generation of every successful pong.
type docstampObserver interface {
	ObserveDocstamp(d uint32)
}
