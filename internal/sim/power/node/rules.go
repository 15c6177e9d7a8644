package node

import "mechpower.ai/internal/sim/power/geom"

// Rules plugs rotation handedness into the generic network manager. Two nodes
// agree across an edge when both see the same rotation on the shared shaft.
// Providers take their handedness from the network they first join and keep
// it from then on.
type Rules struct{}

func (Rules) Latch(n *Node) (Latch, bool) { return n.latch, n.latch.Set }

// Default spins toward the positive end of the node's first face axis.
func (Rules) Default(n *Node) Latch {
	face, ok := n.faces.First()
	if !ok {
		face = n.axis.Positive()
	}
	return Latch{Face: face, Dir: face.Axis().Positive(), Set: true}
}

func (Rules) Adopt(n *Node, d geom.Direction, nb *Node, nbl Latch) Latch {
	return Latch{Face: d, Dir: Derive(nb.kind, nbl.Face, nbl.Dir, d.Opposite()), Set: true}
}

func (Rules) Agree(n *Node, nl Latch, d geom.Direction, nb *Node, nbl Latch) bool {
	return Derive(n.kind, nl.Face, nl.Dir, d) == Derive(nb.kind, nbl.Face, nbl.Dir, d.Opposite())
}

func (Rules) Commit(n *Node, l Latch) { n.Commit(l.Face, l.Dir) }

// Rigid holds for latched torque providers: a source already turning one way
// cannot be driven the other way by its network.
func (Rules) Rigid(n *Node) bool { return n.kind.Provider() && n.latch.Set }

func (r Rules) Accept(n *Node, l Latch) bool {
	return !r.Rigid(n) || n.IsCompatible(l.Face, l.Dir)
}
