// Package topology is a read-only snapshot of the search cluster layout.
package topology

import (
	"fmt"
	"sort"
)

// Node is one backend search node.
type Node struct {
	Hostname string
	Port     int
	Group    int
	Working  bool
}

func (n Node) String() string {
	return fmt.Sprintf("search node %s:%d (group %d)", n.Hostname, n.Port, n.Group)
}

// Group is the set of nodes sharing one data-partition group.
type Group struct {
	ID    int
	Nodes []Node
}

// Cluster indexes nodes by host and by group.
type Cluster struct {
	nodes  []Node
	byHost map[string][]Node
	groups map[int]Group
}

// NewCluster builds a snapshot from a node list.
func NewCluster(nodes []Node) Cluster {
	c := Cluster{
		nodes:  append([]Node(nil), nodes...),
		byHost: make(map[string][]Node),
		groups: make(map[int]Group),
	}
	sort.SliceStable(c.nodes, func(i, j int) bool {
		if c.nodes[i].Group != c.nodes[j].Group {
			return c.nodes[i].Group < c.nodes[j].Group
		}
		return c.nodes[i].Hostname < c.nodes[j].Hostname
	})
	for _, n := range c.nodes {
		c.byHost[n.Hostname] = append(c.byHost[n.Hostname], n)
		g := c.groups[n.Group]
		g.ID = n.Group
		g.Nodes = append(g.Nodes, n)
		c.groups[n.Group] = g
	}
	return c
}

// Nodes returns all nodes ordered by group, then host.
func (c Cluster) Nodes() []Node { return c.nodes }

// NodesByHost returns the nodes configured on host.
func (c Cluster) NodesByHost(host string) []Node { return c.byHost[host] }

// Group returns the group with the given id.
func (c Cluster) Group(id int) (Group, bool) {
	g, ok := c.groups[id]
	return g, ok
}

// Size returns the number of nodes.
func (c Cluster) Size() int { return len(c.nodes) }
