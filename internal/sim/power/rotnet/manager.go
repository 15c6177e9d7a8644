// Package rotnet specialises the generic network manager for rotation: it
// keeps per-network torque and speed, advances them every tick and decides
// which networks observers need to hear about.
package rotnet

import (
	"fmt"
	"math"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/power/rotation"
)

type Graph = netgraph.Manager[*node.Node, node.Latch]

// Manager is scoped to one world. Like the graph it wraps, it is driven from
// the simulation goroutine only.
type Manager struct {
	cfg   Config
	graph *Graph
	dyn   map[netgraph.ID]*Dynamics
	// listener receives every topology event after dynamics are updated.
	listener netgraph.Observer

	tick    uint64
	removed []netgraph.ID
}

// New builds a manager. listener may be nil.
func New(cfg Config, listener netgraph.Observer) *Manager {
	cfg.applyDefaults()
	if listener == nil {
		listener = netgraph.NopObserver{}
	}
	m := &Manager{
		cfg:      cfg,
		dyn:      map[netgraph.ID]*Dynamics{},
		listener: listener,
	}
	m.graph = netgraph.NewManager[*node.Node, node.Latch](node.Rules{}, hooks{m})
	return m
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Graph() *Graph  { return m.graph }
func (m *Manager) Tick() uint64   { return m.tick }

// PerformAction forwards a lifecycle action to the graph; see
// netgraph.Manager.PerformAction.
func (m *Manager) PerformAction(n *node.Node, a netgraph.Action) bool {
	return m.graph.PerformAction(n, a)
}

// Dynamics returns a copy of a network's physical state.
func (m *Manager) Dynamics(id netgraph.ID) (Dynamics, bool) {
	d, ok := m.dyn[id]
	if !ok {
		return Dynamics{}, false
	}
	return *d, true
}

// Rotation reports how the node at p is turning. ok is false when no node is
// registered there.
func (m *Manager) Rotation(p geom.Pos) (rotation.Rotation, bool) {
	n, ok := m.graph.Node(p)
	if !ok {
		return rotation.Rotation{}, false
	}
	d := m.mustDynamics(n.NetworkID())
	l := n.Latch()
	if !l.Set {
		panic(fmt.Sprintf("rotnet: node %v has no latched rotation", p))
	}
	return rotation.Rotation{Dir: l.Dir, Speed: d.CurrentSpeed, Angle: d.CurrentAngle}, true
}

// TickAll advances every network by one tick. Networks never read each
// other, so iteration order does not matter.
func (m *Manager) TickAll() {
	m.tick++
	for _, d := range m.dyn {
		d.step(m.cfg)
		if d.synced && math.Abs(d.CurrentSpeed-d.syncedSpd) >= m.cfg.SpeedQuantum {
			d.dirty = true
		}
	}
}

func (m *Manager) mustDynamics(id netgraph.ID) *Dynamics {
	d, ok := m.dyn[id]
	if !ok {
		panic(fmt.Sprintf("rotnet: no dynamics for network %d", id))
	}
	return d
}

// recompute refreshes required torque and target speed from the members.
func (m *Manager) recompute(id netgraph.ID) {
	net, ok := m.graph.Network(id)
	if !ok {
		return
	}
	d := m.mustDynamics(id)
	required := 0.0
	supply := map[float64]float64{}
	for _, n := range net.Members() {
		required += n.RequiredTorque()
		if s := n.ProvidedSpeed(); s > 0 {
			supply[s] += n.ProvidedTorque()
		}
	}
	target := TargetSpeed(required, supply, m.cfg.DeficitDamping)
	if required != d.RequiredTorque || target != d.TargetSpeed {
		d.dirty = true
	}
	d.RequiredTorque = required
	d.TargetSpeed = target
	if target > 0 {
		d.Active = true
	}
}

// hooks keeps dynamics in step with topology before the listener hears of it.
type hooks struct{ m *Manager }

func (h hooks) NetworkCreated(id netgraph.ID) {
	h.m.dyn[id] = &Dynamics{dirty: true}
	h.m.listener.NetworkCreated(id)
}

func (h hooks) NetworkMerged(into, from netgraph.ID) {
	dst := h.m.mustDynamics(into)
	if src, ok := h.m.dyn[from]; ok {
		dst.Active = dst.Active || src.Active
		if src.synced {
			h.m.removed = append(h.m.removed, from)
		}
		delete(h.m.dyn, from)
	}
	dst.dirty = true
	h.m.listener.NetworkMerged(into, from)
}

// NetworkSplit starts the peeled-off network from its parent's motion so the
// visuals stay continuous.
func (h hooks) NetworkSplit(from, into netgraph.ID) {
	src := h.m.mustDynamics(from)
	h.m.dyn[into] = &Dynamics{
		CurrentSpeed: src.CurrentSpeed,
		CurrentAngle: src.CurrentAngle,
		Active:       src.Active,
		dirty:        true,
	}
	h.m.recompute(into)
	src.dirty = true
	h.m.listener.NetworkSplit(from, into)
}

func (h hooks) NetworkChanged(id netgraph.ID) {
	h.m.recompute(id)
	h.m.listener.NetworkChanged(id)
}

func (h hooks) NetworkRemoved(id netgraph.ID) {
	if d, ok := h.m.dyn[id]; ok {
		if d.synced {
			h.m.removed = append(h.m.removed, id)
		}
		delete(h.m.dyn, id)
	}
	h.m.listener.NetworkRemoved(id)
}

func (h hooks) NodeRejected(p geom.Pos, a netgraph.Action) {
	h.m.listener.NodeRejected(p, a)
}

// Restore seeds a live network's motion from persisted state. Torque and
// target are always recomputed from the members.
func (m *Manager) Restore(id netgraph.ID, speed, angle float64, active bool) bool {
	d, ok := m.dyn[id]
	if !ok {
		return false
	}
	d.CurrentSpeed = speed
	d.CurrentAngle = rotation.WrapAngle(angle)
	d.Active = d.Active || active
	d.dirty = true
	return true
}
