package netgraph

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"mechpower.ai/internal/sim/power/geom"
)

// Verify checks the partition invariants from scratch: node/network
// membership agree both ways, no network is empty, every network is exactly
// one connected component, and every edge inside a network agrees on its
// latch. It is linear in the number of nodes and meant for tests and debug
// endpoints, not for the tick path.
func (m *Manager[N, L]) Verify() error {
	for _, id := range m.NetworkIDs() {
		net := m.networks[id]
		if len(net.members) == 0 {
			return fmt.Errorf("network %d is empty", id)
		}
		for k, member := range net.members {
			if member.NetworkID() != id {
				return fmt.Errorf("member %v of network %d carries id %d", k.Pos(), id, member.NetworkID())
			}
			if arena, ok := m.nodes[k]; !ok || any(arena) != any(member) {
				return fmt.Errorf("member %v of network %d missing from arena", k.Pos(), id)
			}
		}
		keys := net.Keys()
		if comp := m.component(net, keys[0], nil); len(comp) != len(keys) {
			return fmt.Errorf("network %d spans %d nodes but its first component has %d", id, len(keys), len(comp))
		}
	}
	for k, n := range m.nodes {
		if !n.Pos().InBounds() || n.Key() != k {
			return fmt.Errorf("node %v filed under key of %v", n.Pos(), k.Pos())
		}
		net, ok := m.networks[n.NetworkID()]
		if !ok {
			return fmt.Errorf("node %v points at missing network %d", k.Pos(), n.NetworkID())
		}
		if _, ok := net.members[k]; !ok {
			return fmt.Errorf("node %v not listed in network %d", k.Pos(), net.id)
		}
		nl, ok := m.rules.Latch(n)
		if !ok {
			return fmt.Errorf("node %v has no latch", k.Pos())
		}
		for _, d := range n.Connections().Dirs() {
			nb, ok := m.neighbour(n, d)
			if !ok {
				continue
			}
			if nb.NetworkID() != n.NetworkID() {
				return fmt.Errorf("edge %v->%v crosses networks %d and %d", k.Pos(), d, n.NetworkID(), nb.NetworkID())
			}
			nbl, ok := m.rules.Latch(nb)
			if !ok {
				return fmt.Errorf("node %v has no latch", nb.Pos())
			}
			if !m.rules.Agree(n, nl, d, nb, nbl) {
				return fmt.Errorf("edge %v->%v disagrees", k.Pos(), d)
			}
		}
	}
	return nil
}

// Digest hashes the partition independent of network ids: each network is
// reduced to its sorted member keys and networks are ordered by their lowest
// key. Two managers holding the same components produce the same digest.
func (m *Manager[N, L]) Digest() uint64 {
	parts := make([][]geom.Key, 0, len(m.networks))
	for _, net := range m.networks {
		if net.Len() == 0 {
			continue
		}
		parts = append(parts, net.Keys())
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i][0] < parts[j][0] })

	h := xxhash.New()
	var buf [8]byte
	for _, keys := range parts {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(keys)))
		_, _ = h.Write(buf[:])
		for _, k := range keys {
			binary.LittleEndian.PutUint64(buf[:], uint64(k))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}
