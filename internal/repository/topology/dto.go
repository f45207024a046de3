package topology

import (
	"fmt"
	"strconv"

	domtopo "github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

// nodeToHash converts a node to a map for HSET.
func nodeToHash(n domtopo.Node) map[string]string {
	return map[string]string{
		"host":    n.Hostname,
		"port":    strconv.Itoa(n.Port),
		"group":   strconv.Itoa(n.Group),
		"working": strconv.FormatBool(n.Working),
	}
}

// nodeFromHash hydrates a node from an HGETALL result map. A missing
// working flag counts as working.
func nodeFromHash(m map[string]string) (domtopo.Node, error) {
	host := m["host"]
	if host == "" {
		return domtopo.Node{}, fmt.Errorf("missing host")
	}
	port, err := strconv.Atoi(m["port"])
	if err != nil || port <= 0 {
		return domtopo.Node{}, fmt.Errorf("invalid port %q", m["port"])
	}
	group := 0
	if s, ok := m["group"]; ok {
		if group, err = strconv.Atoi(s); err != nil {
			return domtopo.Node{}, fmt.Errorf("invalid group %q: %w", s, err)
		}
	}
	working := true
	if s, ok := m["working"]; ok {
		if working, err = strconv.ParseBool(s); err != nil {
			return domtopo.Node{}, fmt.Errorf("invalid working flag %q: %w", s, err)
		}
	}
	return domtopo.Node{Hostname: host, Port: port, Group: group, Working: working}, nil
}
