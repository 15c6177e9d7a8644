package world

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
	"mechpower.ai/internal/sim/power/node"
)

// ImportSnapshot rebuilds a fresh world from s by replaying ADD for every
// block in key order; connectivity is rediscovered rather than trusted.
// Persisted latches seed singletons, and network motion is carried over
// through the old network ids. It sets the world's tick to snapshotTick+1
// (the next tick to simulate).
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("%w: %d", snapshot.ErrVersion, s.Header.Version)
	}
	if len(w.blocks) != 0 {
		return ErrNotEmpty
	}

	type loaded struct {
		n   *node.Node
		old snapshot.BlockV1
	}
	items := make([]loaded, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		n, err := importBlock(b)
		if err != nil {
			return fmt.Errorf("block %v: %w", b.Pos, err)
		}
		items = append(items, loaded{n: n, old: b})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].n.Key() < items[j].n.Key() })

	w.tick.Store(s.Header.Tick + 1)
	oldNet := map[geom.Key]uint64{}
	for _, it := range items {
		k := it.n.Key()
		if _, dup := w.blocks[k]; dup {
			return fmt.Errorf("%w: duplicate block %v", ErrOccupied, it.n.Pos())
		}
		b := &block{n: it.n}
		if it.old.Invalid {
			b.invalid = true
			b.recheckAt = it.old.RecheckTick
			w.blocks[k] = b
			w.pending[k] = struct{}{}
			continue
		}
		if !w.power.PerformAction(it.n, netgraph.ActionAdd) {
			w.log.Warn("snapshot block conflicts, dropped", zap.Stringer("pos", it.n.Pos()), zap.Stringer("kind", it.n.Kind()))
			continue
		}
		w.blocks[k] = b
		oldNet[k] = it.old.Network
	}

	motion := map[uint64]snapshot.NetworkV1{}
	for _, n := range s.Networks {
		motion[n.ID] = n
	}
	g := w.power.Graph()
	for _, id := range g.NetworkIDs() {
		net, _ := g.Network(id)
		for _, k := range net.Keys() {
			if m, ok := motion[oldNet[k]]; ok {
				w.power.Restore(id, m.CurrentSpeed, m.CurrentAngle, m.Active)
				break
			}
		}
	}

	w.counters = s.Counters
	// Replay events are not news.
	w.audits = nil
	w.publishStatus(s.Header.Tick, 0)
	w.publishStates()
	w.log.Info("snapshot imported",
		zap.Uint64("tick", s.Header.Tick),
		zap.Int("blocks", len(w.blocks)),
		zap.Int("networks", g.NetworkCount()),
	)
	return nil
}

func importBlock(b snapshot.BlockV1) (*node.Node, error) {
	spec, err := SpecFromFields(geom.PosFromArray(b.Pos), b.Kind, b.Axis, b.Faces, b.Engaged, b.Speed, b.Torque, b.Demand)
	if err != nil {
		return nil, err
	}
	n, err := node.New(spec)
	if err != nil {
		return nil, err
	}
	if b.Latch != nil {
		face, err := geom.ParseDirection(b.Latch.Face)
		if err != nil {
			return nil, err
		}
		dir, err := geom.ParseDirection(b.Latch.Dir)
		if err != nil {
			return nil, err
		}
		n.RestoreLatch(node.Latch{Face: face, Dir: dir, Set: true})
	}
	return n, nil
}
