package world

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/power/rotation"
)

// Place builds a node from s and adds it to the power graph. A node whose
// rotation conflicts with its neighbours is never placed.
func (w *World) Place(s node.Spec) error {
	n, err := node.New(s)
	if err != nil {
		return err
	}
	k := s.Pos.Key()
	if _, ok := w.blocks[k]; ok {
		return fmt.Errorf("%w: %v", ErrOccupied, s.Pos)
	}
	ok := w.perform(n, netgraph.ActionAdd)
	if !ok {
		w.counters.Rejected++
		return fmt.Errorf("%w: place %v at %v", ErrRejected, s.Kind, s.Pos)
	}
	w.blocks[k] = &block{n: n}
	w.counters.Placed++
	w.audit(AuditEntry{Event: "PLACE", Pos: s.Pos.ToArray(), Kind: s.Kind.String(), Network: uint64(n.NetworkID())})
	return nil
}

func (w *World) Break(p geom.Pos) error {
	b, err := w.lookup(p)
	if err != nil {
		return err
	}
	k := p.Key()
	delete(w.blocks, k)
	delete(w.pending, k)
	w.perform(b.n, netgraph.ActionRemove)
	w.counters.Broken++
	w.audit(AuditEntry{Event: "BREAK", Pos: p.ToArray(), Kind: b.n.Kind().String()})
	return nil
}

// Reconfigure changes the connectivity-relevant state of the block at s.Pos
// (faces, clutch engagement) together with its power parameters. Kind and
// axis are fixed for the block's lifetime. If the new connectivity conflicts
// the block stays in the world detached and is retried after
// InvalidRecheckTicks.
func (w *World) Reconfigure(s node.Spec) error {
	b, err := w.lookup(s.Pos)
	if err != nil {
		return err
	}
	cur := b.n
	if s.Kind != cur.Kind() {
		return fmt.Errorf("%w: cannot turn %v into %v", node.ErrBadSpec, cur.Kind(), s.Kind)
	}
	if s.Kind != node.KindGearBox && s.Axis != cur.Axis() {
		return fmt.Errorf("%w: cannot rotate %v from axis %v to %v", node.ErrBadSpec, s.Kind, cur.Axis(), s.Axis)
	}
	checked, err := node.New(s)
	if err != nil {
		return err
	}
	cur.SetFaces(checked.Faces())
	cur.SetEngaged(s.Engaged)
	cur.SetDemand(s.Demand)
	if cur.Kind().Provider() {
		cur.SetPower(s.Speed, s.Torque)
	}

	if w.perform(cur, netgraph.ActionUpdate) {
		if b.invalid {
			w.revalidated(s.Pos, b)
		}
		return nil
	}
	w.invalidate(s.Pos, b)
	return fmt.Errorf("%w: reconfigure %v at %v", ErrRejected, s.Kind, s.Pos)
}

// SetPower changes what a provider supplies. The network's target speed is
// recomputed; topology is untouched.
func (w *World) SetPower(p geom.Pos, speed, torque float64) error {
	b, err := w.lookup(p)
	if err != nil {
		return err
	}
	if !b.n.Kind().Provider() {
		return fmt.Errorf("%w: %v at %v supplies no power", node.ErrBadSpec, b.n.Kind(), p)
	}
	if speed < 0 || torque < 0 {
		return fmt.Errorf("%w: negative speed/torque", node.ErrBadSpec)
	}
	b.n.SetPower(speed, torque)
	if !b.invalid {
		w.perform(b.n, netgraph.ActionUpdateInNetwork)
	}
	return nil
}

func (w *World) SetDemand(p geom.Pos, torque float64) error {
	b, err := w.lookup(p)
	if err != nil {
		return err
	}
	if torque < 0 {
		return fmt.Errorf("%w: negative demand", node.ErrBadSpec)
	}
	b.n.SetDemand(torque)
	if !b.invalid {
		w.perform(b.n, netgraph.ActionUpdateInNetwork)
	}
	return nil
}

// Rotation reports how the block at p is turning. Detached blocks do not
// turn.
func (w *World) Rotation(p geom.Pos) (rotation.Rotation, bool) {
	return w.power.Rotation(p)
}

// Block returns the spec of the block at p and whether it is waiting for a
// re-check.
func (w *World) Block(p geom.Pos) (spec node.Spec, invalid bool, ok bool) {
	b, err := w.lookup(p)
	if err != nil {
		return node.Spec{}, false, false
	}
	return b.n.Spec(), b.invalid, true
}

func (w *World) BlockCount() int { return len(w.blocks) }

func (w *World) lookup(p geom.Pos) (*block, error) {
	if !p.InBounds() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownBlock, p)
	}
	b, ok := w.blocks[p.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownBlock, p)
	}
	return b, nil
}

func (w *World) perform(n *node.Node, a netgraph.Action) bool {
	ok := w.power.PerformAction(n, a)
	if w.metrics != nil {
		w.metrics.RecordAction(a.String(), ok)
	}
	return ok
}

func (w *World) invalidate(p geom.Pos, b *block) {
	b.invalid = true
	b.recheckAt = w.tick.Load() + uint64(w.cfg.InvalidRecheckTicks)
	w.pending[p.Key()] = struct{}{}
	w.log.Info("block invalidated", zap.Stringer("pos", p), zap.Stringer("kind", b.n.Kind()), zap.Uint64("recheck_tick", b.recheckAt))
	w.audit(AuditEntry{Event: "INVALID", Pos: p.ToArray(), Kind: b.n.Kind().String()})
}

func (w *World) revalidated(p geom.Pos, b *block) {
	b.invalid = false
	b.recheckAt = 0
	delete(w.pending, p.Key())
	w.audit(AuditEntry{Event: "REVALIDATED", Pos: p.ToArray(), Kind: b.n.Kind().String(), Network: uint64(b.n.NetworkID())})
}

// recheckInvalid retries every detached block whose grace period is over.
// Blocks that still conflict are dropped from the world.
func (w *World) recheckInvalid(tick uint64) {
	if len(w.pending) == 0 {
		return
	}
	due := make([]geom.Key, 0, len(w.pending))
	for k := range w.pending {
		if b := w.blocks[k]; b != nil && b.recheckAt <= tick {
			due = append(due, k)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	for _, k := range due {
		b := w.blocks[k]
		p := k.Pos()
		if w.perform(b.n, netgraph.ActionUpdate) {
			w.revalidated(p, b)
			continue
		}
		delete(w.blocks, k)
		delete(w.pending, k)
		w.counters.Broken++
		w.log.Info("invalid block dropped", zap.Stringer("pos", p), zap.Stringer("kind", b.n.Kind()))
		w.audit(AuditEntry{Event: "DROPPED", Pos: p.ToArray(), Kind: b.n.Kind().String(), Reason: "still conflicts after re-check"})
	}
}
