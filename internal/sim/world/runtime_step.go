package world

import (
	"time"

	"go.uber.org/zap"

	"mechpower.ai/internal/sim/power/rotnet"
)

// stepInternal runs one tick: queued commands in arrival order, due
// re-checks, dynamics, sync and the periodic sinks.
func (w *World) stepInternal(cmds []Command) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	for _, c := range cmds {
		err := w.apply(c)
		if err != nil {
			w.log.Debug("command failed", zap.Stringer("cmd", c.Kind), zap.Error(err))
		}
		if c.Resp != nil {
			select {
			case c.Resp <- err:
			default:
			}
		}
	}

	w.recheckInvalid(nowTick)
	w.power.TickAll()

	recs := w.power.Sync()
	audits := w.flushAudits()
	w.stepObservers(nowTick, recs, audits)
	if len(recs) > 0 {
		w.publishStates()
	}

	if w.metrics != nil {
		removed := 0
		for _, r := range recs {
			if r.Removed {
				removed++
			}
		}
		w.metrics.RecordSync(len(recs)-removed, removed)
	}

	if every := w.power.Config().SyncEveryTicks; w.statsSink != nil && every > 0 && nowTick%uint64(every) == 0 {
		if err := w.statsSink.WriteStats(w.stats(nowTick)); err != nil {
			w.log.Warn("stats write failed", zap.Error(err))
		}
	}

	if every := w.cfg.SnapshotEveryTicks; w.snapshotSink != nil && every > 0 && nowTick > 0 && nowTick%uint64(every) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot(nowTick):
		default:
			w.log.Warn("snapshot sink full, skipping", zap.Uint64("tick", nowTick))
		}
	}

	elapsed := time.Since(stepStart)
	w.publishStatus(nowTick, elapsed)
	if w.metrics != nil {
		st := w.Status()
		w.metrics.RecordStep(elapsed, st.Nodes, st.Networks, st.ActiveNetworks)
	}

	w.tick.Add(1)
}

func (w *World) stats(tick uint64) StatsEntry {
	all := w.power.SyncAll()
	g := w.power.Graph()
	return StatsEntry{
		Tick:           tick,
		Nodes:          g.NodeCount(),
		Networks:       g.NetworkCount(),
		ActiveNetworks: len(all),
		States:         networkStates(all),
	}
}

func activeCount(m *rotnet.Manager) int {
	n := 0
	for _, id := range m.Graph().NetworkIDs() {
		if d, ok := m.Dynamics(id); ok && d.Active {
			n++
		}
	}
	return n
}
