package rotnet

import (
	"sort"

	"mechpower.ai/internal/sim/power/netgraph"
)

// Record is the per-network state observers mirror. Removed records carry
// only the id and tell observers to forget the network.
type Record struct {
	ID             netgraph.ID
	RequiredTorque float32
	CurrentSpeed   float32
	TargetSpeed    float32
	Removed        bool
}

// Sync returns the records due this tick: removals, networks whose state
// changed since their last record, and every active network on the
// keepalive cadence. Networks that have never been active are omitted since
// they have no visible motion.
func (m *Manager) Sync() []Record {
	keepalive := m.cfg.SyncEveryTicks > 0 && m.tick%uint64(m.cfg.SyncEveryTicks) == 0

	out := make([]Record, 0, len(m.removed))
	for _, id := range m.removed {
		out = append(out, Record{ID: id, Removed: true})
	}
	m.removed = m.removed[:0]

	ids := make([]netgraph.ID, 0, len(m.dyn))
	for id, d := range m.dyn {
		if !d.Active {
			continue
		}
		if keepalive || d.dirty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, m.emit(id))
	}
	return out
}

// SyncAll returns a record for every active network without touching the
// change tracking; it seeds a freshly joined observer.
func (m *Manager) SyncAll() []Record {
	ids := make([]netgraph.ID, 0, len(m.dyn))
	for id, d := range m.dyn {
		if d.Active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, record(id, m.dyn[id]))
	}
	return out
}

func (m *Manager) emit(id netgraph.ID) Record {
	d := m.dyn[id]
	d.dirty = false
	d.synced = true
	d.syncedSpd = d.CurrentSpeed
	d.syncedTgt = d.TargetSpeed
	d.syncedTorq = d.RequiredTorque
	return record(id, d)
}

func record(id netgraph.ID, d *Dynamics) Record {
	return Record{
		ID:             id,
		RequiredTorque: float32(d.RequiredTorque),
		CurrentSpeed:   float32(d.CurrentSpeed),
		TargetSpeed:    float32(d.TargetSpeed),
	}
}
