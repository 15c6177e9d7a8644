package netgraph

import (
	"sort"

	"mechpower.ai/internal/sim/power/geom"
)

// Manager owns the node arena and the network partition. It is not safe for
// concurrent use; every call runs to completion on the simulation goroutine.
type Manager[N Node, L comparable] struct {
	rules Rules[N, L]
	obs   Observer

	nodes    map[geom.Key]N
	networks map[ID]*Network[N]
	nextID   ID
}

func NewManager[N Node, L comparable](rules Rules[N, L], obs Observer) *Manager[N, L] {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Manager[N, L]{
		rules:    rules,
		obs:      obs,
		nodes:    map[geom.Key]N{},
		networks: map[ID]*Network[N]{},
		nextID:   1,
	}
}

func (m *Manager[N, L]) NodeCount() int    { return len(m.nodes) }
func (m *Manager[N, L]) NetworkCount() int { return len(m.networks) }

func (m *Manager[N, L]) Node(p geom.Pos) (N, bool) {
	if !p.InBounds() {
		var zero N
		return zero, false
	}
	n, ok := m.nodes[p.Key()]
	return n, ok
}

func (m *Manager[N, L]) Network(id ID) (*Network[N], bool) {
	net, ok := m.networks[id]
	return net, ok
}

// NetworkIDs returns every live network id in ascending order.
func (m *Manager[N, L]) NetworkIDs() []ID {
	ids := make([]ID, 0, len(m.networks))
	for id := range m.networks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PerformAction applies one lifecycle action. A false result means the node
// is illegal where it stands: it is not (or no longer) part of any network and
// its owner must destroy it.
func (m *Manager[N, L]) PerformAction(n N, a Action) bool {
	switch a {
	case ActionAdd:
		return m.add(n)
	case ActionUpdate:
		return m.update(n)
	case ActionUpdateInNetwork:
		return m.updateInNetwork(n)
	case ActionRemove:
		m.remove(n)
		return true
	default:
		invariantf("unknown action %v", a)
		return false
	}
}

func (m *Manager[N, L]) add(n N) bool {
	if !n.Pos().InBounds() {
		invariantf("add: position %v out of bounds", n.Pos())
	}
	k := n.Key()
	if _, exists := m.nodes[k]; exists {
		invariantf("add: position %v already occupied", n.Pos())
	}
	n.SetNetworkID(None)

	sc, ok := m.scan(n, nil, *new(L))
	if !ok {
		m.obs.NodeRejected(n.Pos(), ActionAdd)
		return false
	}

	created := false
	if sc.joined == nil {
		sc.joined = m.newNetwork()
		created = true
		if l, latched := m.rules.Latch(n); latched {
			sc.self = l
		} else {
			sc.self = m.rules.Default(n)
		}
	}
	m.rules.Commit(n, sc.self)
	m.commitPlan(sc.plan)

	m.nodes[k] = n
	sc.joined.members[k] = n
	n.SetNetworkID(sc.joined.id)
	if created {
		m.obs.NetworkCreated(sc.joined.id)
	}
	m.mergeInto(sc.joined, sc.merges)
	m.obs.NetworkChanged(sc.joined.id)
	return true
}

func (m *Manager[N, L]) update(n N) bool {
	k := n.Key()
	cur, ok := m.nodes[k]
	if !ok {
		return m.add(n)
	}
	if any(cur) != any(n) {
		invariantf("update: node at %v is not the registered instance", n.Pos())
	}
	origin := m.mustNetwork(n.NetworkID())
	self, latched := m.rules.Latch(n)
	if !latched {
		invariantf("update: member %v has no latch", n.Pos())
	}

	sc, ok := m.scan(n, origin, self)
	if !ok {
		m.detach(n)
		m.obs.NodeRejected(n.Pos(), ActionUpdate)
		return false
	}
	m.commitPlan(sc.plan)
	m.mergeInto(origin, sc.merges)
	m.obs.NetworkChanged(origin.id)

	// The update may have severed an edge the origin relied on.
	m.revalidate(origin)
	return true
}

func (m *Manager[N, L]) updateInNetwork(n N) bool {
	if _, ok := m.nodes[n.Key()]; !ok {
		return false
	}
	net := m.mustNetwork(n.NetworkID())
	m.obs.NetworkChanged(net.id)
	return true
}

func (m *Manager[N, L]) remove(n N) {
	if _, ok := m.nodes[n.Key()]; !ok {
		return
	}
	m.detach(n)
}

// detach drops n from the arena and its network, then re-validates what is
// left of that network.
func (m *Manager[N, L]) detach(n N) {
	k := n.Key()
	delete(m.nodes, k)
	net := m.mustNetwork(n.NetworkID())
	delete(net.members, k)
	n.SetNetworkID(None)
	if len(net.members) == 0 {
		delete(m.networks, net.id)
		m.obs.NetworkRemoved(net.id)
		return
	}
	m.obs.NetworkChanged(net.id)
	m.revalidate(net)
}

type scanResult[N Node, L comparable] struct {
	joined *Network[N]
	self   L
	plan   map[geom.Key]L
	merges []*Network[N]
}

type link[N Node] struct {
	d   geom.Direction
	nb  N
	net *Network[N]
}

// scan walks n's connections. joined is nil for a node that is not yet in a
// network; n then joins the network of its first connecting neighbour. Every
// other network met along the way either already agrees with n or is planned
// (forced to agree) and queued for merging. Nothing is committed here.
//
// A network holding a rigid member cannot be forced, so when n is free to
// choose it takes its orientation from the first such network.
func (m *Manager[N, L]) scan(n N, joined *Network[N], self L) (scanResult[N, L], bool) {
	sc := scanResult[N, L]{joined: joined, self: self, plan: map[geom.Key]L{}}
	var links []link[N]
	for _, d := range n.Connections().Dirs() {
		nb, ok := m.neighbour(n, d)
		if !ok {
			continue
		}
		links = append(links, link[N]{d: d, nb: nb, net: m.mustNetwork(nb.NetworkID())})
	}

	handled := map[ID]bool{}
	if sc.joined == nil {
		if len(links) == 0 {
			return sc, true
		}
		sc.joined = links[0].net
		if l, latched := m.rules.Latch(n); latched && m.rules.Rigid(n) {
			sc.self = l
		} else {
			anchor := links[0]
			rigid := map[ID]bool{}
			for _, ln := range links {
				r, seen := rigid[ln.net.id]
				if !seen {
					r = m.hasRigid(ln.net)
					rigid[ln.net.id] = r
				}
				if r {
					anchor = ln
					break
				}
			}
			sc.self = m.rules.Adopt(n, anchor.d, anchor.nb, m.latchOf(anchor.nb, nil))
		}
	} else {
		// An updating node keeps its own latch; its network is never forced.
		handled[sc.joined.id] = true
	}

	for _, ln := range links {
		nbl := m.latchOf(ln.nb, sc.plan)
		if handled[ln.net.id] {
			if !m.rules.Agree(n, sc.self, ln.d, ln.nb, nbl) {
				return sc, false
			}
			continue
		}
		handled[ln.net.id] = true
		if !m.rules.Agree(n, sc.self, ln.d, ln.nb, nbl) {
			start := m.rules.Adopt(ln.nb, ln.d.Opposite(), n, sc.self)
			if !m.planNetwork(sc.plan, ln.net, ln.nb, start) {
				return sc, false
			}
		}
		if ln.net != sc.joined {
			sc.merges = append(sc.merges, ln.net)
		}
	}
	return sc, true
}

func (m *Manager[N, L]) hasRigid(net *Network[N]) bool {
	for _, member := range net.members {
		if m.rules.Rigid(member) {
			return true
		}
	}
	return false
}

// planNetwork force-propagates start through every member of net reachable
// from first, recording latches in plan. It fails when a loop inside net
// cannot agree with the proposed orientation or a rigid member would have to
// turn the other way.
func (m *Manager[N, L]) planNetwork(plan map[geom.Key]L, net *Network[N], first N, start L) bool {
	if !m.rules.Accept(first, start) {
		return false
	}
	plan[first.Key()] = start
	queue := []N{first}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		lx := plan[x.Key()]
		for _, d := range x.Connections().Dirs() {
			y, ok := m.neighbour(x, d)
			if !ok || y.NetworkID() != net.id {
				continue
			}
			if ly, seen := plan[y.Key()]; seen {
				if !m.rules.Agree(x, lx, d, y, ly) {
					return false
				}
				continue
			}
			ly := m.rules.Adopt(y, d.Opposite(), x, lx)
			if !m.rules.Accept(y, ly) {
				return false
			}
			plan[y.Key()] = ly
			queue = append(queue, y)
		}
	}
	return true
}

func (m *Manager[N, L]) commitPlan(plan map[geom.Key]L) {
	for k, l := range plan {
		m.rules.Commit(m.nodes[k], l)
	}
}

// mergeInto moves every member of each queued network into dst.
func (m *Manager[N, L]) mergeInto(dst *Network[N], merges []*Network[N]) {
	for _, src := range merges {
		for k, member := range src.members {
			dst.members[k] = member
			member.SetNetworkID(dst.id)
		}
		delete(m.networks, src.id)
		m.obs.NetworkMerged(dst.id, src.id)
	}
}

// revalidate splits net into its connected components. The component holding
// the lowest key keeps the network id; every other component moves to a new
// network. Cost is linear in the size of net.
func (m *Manager[N, L]) revalidate(net *Network[N]) {
	if len(net.members) == 0 {
		delete(m.networks, net.id)
		m.obs.NetworkRemoved(net.id)
		return
	}
	keys := net.Keys()
	seen := m.component(net, keys[0], nil)
	if len(seen) == len(keys) {
		return
	}
	for _, k := range keys[1:] {
		if seen[k] {
			continue
		}
		comp := m.component(net, k, seen)
		split := m.newNetwork()
		for ck := range comp {
			member := net.members[ck]
			delete(net.members, ck)
			split.members[ck] = member
			member.SetNetworkID(split.id)
		}
		m.obs.NetworkSplit(net.id, split.id)
	}
	m.obs.NetworkChanged(net.id)
}

// component collects the members of net reachable from start over mutual
// connections. Reached keys are also marked in seen when it is non-nil.
func (m *Manager[N, L]) component(net *Network[N], start geom.Key, seen map[geom.Key]bool) map[geom.Key]bool {
	if seen == nil {
		seen = map[geom.Key]bool{}
	}
	comp := map[geom.Key]bool{start: true}
	seen[start] = true
	queue := []N{net.members[start]}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		for _, d := range x.Connections().Dirs() {
			y, ok := m.neighbour(x, d)
			if !ok {
				continue
			}
			yk := y.Key()
			if comp[yk] {
				continue
			}
			if _, member := net.members[yk]; !member {
				continue
			}
			comp[yk] = true
			seen[yk] = true
			queue = append(queue, y)
		}
	}
	return comp
}

// neighbour returns the node across d from n if it connects back. Nothing
// lies beyond the world bounds.
func (m *Manager[N, L]) neighbour(n N, d geom.Direction) (N, bool) {
	var zero N
	q := n.Pos().Add(d)
	if !q.InBounds() {
		return zero, false
	}
	nb, ok := m.nodes[q.Key()]
	if !ok || !nb.Connections().Has(d.Opposite()) {
		return zero, false
	}
	return nb, true
}

func (m *Manager[N, L]) latchOf(n N, plan map[geom.Key]L) L {
	if l, ok := plan[n.Key()]; ok {
		return l
	}
	l, ok := m.rules.Latch(n)
	if !ok {
		invariantf("member %v has no latch", n.Pos())
	}
	return l
}

func (m *Manager[N, L]) mustNetwork(id ID) *Network[N] {
	net, ok := m.networks[id]
	if !ok {
		invariantf("network %d does not exist", id)
	}
	return net
}

func (m *Manager[N, L]) newNetwork() *Network[N] {
	net := newNetwork[N](m.nextID)
	m.nextID++
	m.networks[net.id] = net
	return net
}
