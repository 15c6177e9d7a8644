package node

import (
	"errors"
	"fmt"

	"mechpower.ai/internal/sim/power/geom"
)

var ErrBadSpec = errors.New("node: bad spec")

// Spec is the owner-facing description of a component, also used as the
// persisted form.
type Spec struct {
	Kind    Kind
	Pos     geom.Pos
	Axis    geom.Axis
	Faces   geom.DirSet // gearbox/consumer; defaults to both ends of Axis
	Engaged bool        // clutch
	Speed   float64     // providers, rad/tick
	Torque  float64     // providers
	Demand  float64     // required torque, any kind
}

// New builds a node from spec. Faces must lie on Axis for every kind except
// the gearbox, whose faces may open at most two of the three axes.
func New(s Spec) (*Node, error) {
	if _, ok := kindNames[s.Kind]; !ok {
		return nil, fmt.Errorf("%w: kind %v", ErrBadSpec, s.Kind)
	}
	if !s.Pos.InBounds() {
		return nil, fmt.Errorf("%w: position %v outside the world", ErrBadSpec, s.Pos)
	}
	if s.Demand < 0 || s.Speed < 0 || s.Torque < 0 {
		return nil, fmt.Errorf("%w: negative demand/speed/torque", ErrBadSpec)
	}
	n := &Node{
		pos:     s.Pos,
		kind:    s.Kind,
		axis:    s.Axis,
		faces:   s.Faces,
		engaged: s.Engaged,
		demand:  s.Demand,
		speed:   s.Speed,
		torque:  s.Torque,
	}
	switch s.Kind {
	case KindGearBox:
		if s.Faces.Empty() {
			return nil, fmt.Errorf("%w: gearbox without faces", ErrBadSpec)
		}
		if openAxes(s.Faces) > 2 {
			return nil, fmt.Errorf("%w: gearbox faces %v open all three axes", ErrBadSpec, s.Faces)
		}
	default:
		axisFaces := geom.AxisDirs(s.Axis)
		if n.faces.Empty() {
			n.faces = axisFaces
		}
		if n.faces&^axisFaces != 0 {
			return nil, fmt.Errorf("%w: %v faces %v off axis %v", ErrBadSpec, s.Kind, n.faces, s.Axis)
		}
	}
	return n, nil
}

// openAxes counts the axes with at least one face in faces.
func openAxes(faces geom.DirSet) int {
	n := 0
	for _, a := range []geom.Axis{geom.AxisX, geom.AxisY, geom.AxisZ} {
		if faces&geom.AxisDirs(a) != 0 {
			n++
		}
	}
	return n
}

// Spec returns the node's current description.
func (n *Node) Spec() Spec {
	return Spec{
		Kind:    n.kind,
		Pos:     n.pos,
		Axis:    n.axis,
		Faces:   n.faces,
		Engaged: n.engaged,
		Speed:   n.speed,
		Torque:  n.torque,
		Demand:  n.demand,
	}
}

func NewAxle(p geom.Pos, axis geom.Axis) *Node {
	return must(New(Spec{Kind: KindAxle, Pos: p, Axis: axis}))
}

func NewGearBox(p geom.Pos, faces ...geom.Direction) *Node {
	return must(New(Spec{Kind: KindGearBox, Pos: p, Faces: geom.DirsOf(faces...)}))
}

func NewClutch(p geom.Pos, axis geom.Axis, engaged bool) *Node {
	return must(New(Spec{Kind: KindClutch, Pos: p, Axis: axis, Engaged: engaged}))
}

// NewProvider builds a wheel, windmill or crank.
func NewProvider(k Kind, p geom.Pos, axis geom.Axis, speed, torque float64) *Node {
	if !k.Provider() {
		panic(fmt.Sprintf("node: %v is not a provider", k))
	}
	return must(New(Spec{Kind: k, Pos: p, Axis: axis, Speed: speed, Torque: torque}))
}

func NewConsumer(p geom.Pos, axis geom.Axis, demand float64, faces ...geom.Direction) *Node {
	return must(New(Spec{Kind: KindConsumer, Pos: p, Axis: axis, Demand: demand, Faces: geom.DirsOf(faces...)}))
}

func must(n *Node, err error) *Node {
	if err != nil {
		panic(err)
	}
	return n
}
