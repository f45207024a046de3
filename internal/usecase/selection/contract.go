package selection

import "github.com/kailas-cloud/fastdispatch/internal/backend"

// pool supplies backends for direct node connections.
type pool interface {
	Backend(host string, port int) backend.Backend
}
