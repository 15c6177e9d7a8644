// Package node defines the closed set of mechanical component kinds and how
// each one turns a rotation arriving on one face into the rotation it emits on
// another.
package node

import (
	"fmt"
	"strings"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
)

type Kind uint8

const (
	KindAxle Kind = iota + 1
	KindGearBox
	KindClutch
	KindWheel
	KindWindmill
	KindCrank
	KindConsumer
)

var kindNames = map[Kind]string{
	KindAxle:     "AXLE",
	KindGearBox:  "GEARBOX",
	KindClutch:   "CLUTCH",
	KindWheel:    "WHEEL",
	KindWindmill: "WINDMILL",
	KindCrank:    "CRANK",
	KindConsumer: "CONSUMER",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == t {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

// KindNames lists every kind name in declaration order.
func KindNames() []string {
	out := make([]string, 0, len(kindNames))
	for k := KindAxle; k <= KindConsumer; k++ {
		out = append(out, k.String())
	}
	return out
}

// Provider reports whether the kind can supply torque.
func (k Kind) Provider() bool {
	return k == KindWheel || k == KindWindmill || k == KindCrank
}

// Latch is the orientation a node has committed to: the rotation Dir present
// on Face, where Face is the face it was driven through.
type Latch struct {
	Face geom.Direction
	Dir  geom.Direction
	Set  bool
}

// Node is one grid-positioned component. Topology and latch changes go
// through the network manager; the owner calls the matching lifecycle action
// after using any of the setters below.
type Node struct {
	pos  geom.Pos
	kind Kind

	axis    geom.Axis
	faces   geom.DirSet
	engaged bool

	demand float64
	speed  float64
	torque float64

	latch   Latch
	network netgraph.ID
}

func (n *Node) Pos() geom.Pos               { return n.pos }
func (n *Node) Key() geom.Key               { return n.pos.Key() }
func (n *Node) Kind() Kind                  { return n.kind }
func (n *Node) Axis() geom.Axis             { return n.axis }
func (n *Node) Faces() geom.DirSet          { return n.faces }
func (n *Node) Engaged() bool               { return n.engaged }
func (n *Node) NetworkID() netgraph.ID      { return n.network }
func (n *Node) SetNetworkID(id netgraph.ID) { n.network = id }
func (n *Node) Latch() Latch                { return n.latch }

// Connections is the set of faces the node currently connects through. A
// disengaged clutch connects nowhere.
func (n *Node) Connections() geom.DirSet {
	if n.kind == KindClutch && !n.engaged {
		return 0
	}
	return n.faces
}

// RequiredTorque is this node's share of its network's torque demand.
func (n *Node) RequiredTorque() float64 { return n.demand }

// ProvidedSpeed is the speed a provider can drive its network to; zero for
// everything else.
func (n *Node) ProvidedSpeed() float64 {
	if !n.kind.Provider() {
		return 0
	}
	return n.speed
}

func (n *Node) ProvidedTorque() float64 {
	if !n.kind.Provider() || n.speed <= 0 {
		return 0
	}
	return n.torque
}

// SetEngaged toggles a clutch. Follow with an UPDATE.
func (n *Node) SetEngaged(on bool) { n.engaged = on }

// SetFaces replaces a gearbox's or consumer's declared faces. Follow with an
// UPDATE.
func (n *Node) SetFaces(faces geom.DirSet) { n.faces = faces }

// SetDemand changes the required torque. Follow with UPDATE_IN_NETWORK.
func (n *Node) SetDemand(torque float64) { n.demand = torque }

// SetPower changes what a provider supplies. Follow with UPDATE_IN_NETWORK.
func (n *Node) SetPower(speed, torque float64) {
	n.speed = speed
	n.torque = torque
}

// RestoreLatch installs persisted orientation before the node is re-added.
func (n *Node) RestoreLatch(l Latch) { n.latch = l }

// Derive computes the rotation this kind emits on face out when it is driven
// with rotation dir arriving on face in. It is pure.
func Derive(k Kind, in, dir, out geom.Direction) geom.Direction {
	switch k {
	case KindAxle, KindClutch, KindWheel, KindWindmill, KindCrank, KindConsumer:
		// One rigid shaft.
		return dir
	case KindGearBox:
		// One shaft per axis. Faces on the same axis share it; the bevel mesh
		// between the two shafts reverses the sign of the rotation vector.
		// Which face the drive came through does not matter.
		if out.Axis() == in.Axis() {
			return dir
		}
		if dir == dir.Axis().Positive() {
			return out.Axis().Positive().Opposite()
		}
		return out.Axis().Positive()
	default:
		panic(fmt.Sprintf("node: derive for unknown kind %v", k))
	}
}

// RotationOut is the rotation present on face given the committed latch.
func (n *Node) RotationOut(face geom.Direction) (geom.Direction, bool) {
	if !n.latch.Set {
		return 0, false
	}
	return Derive(n.kind, n.latch.Face, n.latch.Dir, face), true
}

// Commit latches the node to rotation dir on face. It always succeeds.
func (n *Node) Commit(face, dir geom.Direction) {
	n.latch = Latch{Face: face, Dir: dir, Set: true}
}

// IsCompatible reports whether rotation dir on face matches the committed
// latch. An unlatched node accepts anything. It never mutates.
func (n *Node) IsCompatible(face, dir geom.Direction) bool {
	out, ok := n.RotationOut(face)
	return !ok || out == dir
}
