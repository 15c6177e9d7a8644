package world

import (
	"sort"

	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
)

// ExportSnapshot captures every block in key order together with the motion
// of each live network.
func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	keys := make([]geom.Key, 0, len(w.blocks))
	for k := range w.blocks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	blocks := make([]snapshot.BlockV1, 0, len(keys))
	for _, k := range keys {
		blocks = append(blocks, exportBlock(w.blocks[k]))
	}

	ids := w.power.Graph().NetworkIDs()
	nets := make([]snapshot.NetworkV1, 0, len(ids))
	for _, id := range ids {
		d, ok := w.power.Dynamics(id)
		if !ok {
			continue
		}
		nets = append(nets, snapshot.NetworkV1{
			ID:           uint64(id),
			CurrentSpeed: d.CurrentSpeed,
			CurrentAngle: d.CurrentAngle,
			Active:       d.Active,
		})
	}

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    tick,
			RunID:   w.runID,
		},
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		Blocks:             blocks,
		Networks:           nets,
		Counters:           w.counters,
	}
}

func exportBlock(b *block) snapshot.BlockV1 {
	s := b.n.Spec()
	out := snapshot.BlockV1{
		Pos:         s.Pos.ToArray(),
		Kind:        s.Kind.String(),
		Faces:       faceNames(s.Faces),
		Engaged:     s.Engaged,
		Speed:       s.Speed,
		Torque:      s.Torque,
		Demand:      s.Demand,
		Network:     uint64(b.n.NetworkID()),
		Invalid:     b.invalid,
		RecheckTick: b.recheckAt,
	}
	if s.Kind != node.KindGearBox {
		out.Axis = s.Axis.String()
	}
	if l := b.n.Latch(); l.Set {
		out.Latch = &snapshot.LatchV1{Face: l.Face.String(), Dir: l.Dir.String()}
	}
	return out
}
