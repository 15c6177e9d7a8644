package netgraph

import (
	"sort"

	"mechpower.ai/internal/sim/power/geom"
)

// Network is one connected component.
type Network[N Node] struct {
	id      ID
	members map[geom.Key]N
}

func newNetwork[N Node](id ID) *Network[N] {
	return &Network[N]{id: id, members: map[geom.Key]N{}}
}

func (n *Network[N]) ID() ID   { return n.id }
func (n *Network[N]) Len() int { return len(n.members) }

func (n *Network[N]) Member(k geom.Key) (N, bool) {
	m, ok := n.members[k]
	return m, ok
}

// Keys returns member keys in ascending order.
func (n *Network[N]) Keys() []geom.Key {
	keys := make([]geom.Key, 0, len(n.members))
	for k := range n.members {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Members returns members ordered by key.
func (n *Network[N]) Members() []N {
	keys := n.Keys()
	out := make([]N, 0, len(keys))
	for _, k := range keys {
		out = append(out, n.members[k])
	}
	return out
}
