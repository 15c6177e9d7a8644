package world

import (
	"time"

	"mechpower.ai/internal/observerproto"
	"mechpower.ai/internal/sim/power/rotnet"
)

// Status is a thread-safe read-only view of the world, republished after
// every tick and read from HTTP handlers.
type Status struct {
	Tick           uint64  `json:"tick"`
	Blocks         int     `json:"blocks"`
	InvalidBlocks  int     `json:"invalid_blocks"`
	Nodes          int     `json:"nodes"`
	Networks       int     `json:"networks"`
	ActiveNetworks int     `json:"active_networks"`
	Observers      int     `json:"observers"`
	StepMS         float64 `json:"step_ms"`
}

func (w *World) Status() Status {
	if st := w.status.Load(); st != nil {
		return *st
	}
	return Status{}
}

func (w *World) publishStatus(tick uint64, elapsed time.Duration) {
	g := w.power.Graph()
	w.status.Store(&Status{
		Tick:           tick,
		Blocks:         len(w.blocks),
		InvalidBlocks:  len(w.pending),
		Nodes:          g.NodeCount(),
		Networks:       g.NetworkCount(),
		ActiveNetworks: activeCount(w.power),
		Observers:      len(w.observers),
		StepMS:         float64(elapsed.Microseconds()) / 1000,
	})
}

// NetworkStates returns the active networks as of the last tick that emitted
// sync records.
func (w *World) NetworkStates() []observerproto.NetworkState {
	if st := w.states.Load(); st != nil {
		return *st
	}
	return nil
}

func (w *World) publishStates() {
	st := networkStates(w.power.SyncAll())
	w.states.Store(&st)
}

func networkStates(recs []rotnet.Record) []observerproto.NetworkState {
	out := make([]observerproto.NetworkState, 0, len(recs))
	for _, r := range recs {
		out = append(out, observerproto.NetworkState{
			ID:             uint64(r.ID),
			RequiredTorque: r.RequiredTorque,
			CurrentSpeed:   r.CurrentSpeed,
			TargetSpeed:    r.TargetSpeed,
		})
	}
	return out
}

func wireRecords(recs []rotnet.Record) []observerproto.NetworkRecord {
	out := make([]observerproto.NetworkRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, observerproto.NetworkRecord{
			ID:             uint64(r.ID),
			RequiredTorque: r.RequiredTorque,
			CurrentSpeed:   r.CurrentSpeed,
			TargetSpeed:    r.TargetSpeed,
			Removed:        r.Removed,
		})
	}
	return out
}
