package world

import (
	"go.uber.org/zap"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
)

// topology turns power graph events into audits, metrics and debug logs.
type topology struct{ w *World }

func (t topology) NetworkCreated(id netgraph.ID) {
	t.w.audit(AuditEntry{Event: "NETWORK_CREATED", Network: uint64(id)})
}

func (t topology) NetworkMerged(into, from netgraph.ID) {
	if t.w.metrics != nil {
		t.w.metrics.MergesTotal.Inc()
	}
	t.w.log.Debug("networks merged", zap.Uint64("into", uint64(into)), zap.Uint64("from", uint64(from)))
	t.w.audit(AuditEntry{Event: "NETWORK_MERGED", Network: uint64(into), Other: uint64(from)})
}

func (t topology) NetworkSplit(from, into netgraph.ID) {
	if t.w.metrics != nil {
		t.w.metrics.SplitsTotal.Inc()
	}
	t.w.log.Debug("network split", zap.Uint64("from", uint64(from)), zap.Uint64("into", uint64(into)))
	t.w.audit(AuditEntry{Event: "NETWORK_SPLIT", Network: uint64(from), Other: uint64(into)})
}

func (t topology) NetworkChanged(netgraph.ID) {}

func (t topology) NetworkRemoved(id netgraph.ID) {
	if t.w.metrics != nil {
		t.w.metrics.RemovedTotal.Inc()
	}
	t.w.audit(AuditEntry{Event: "NETWORK_REMOVED", Network: uint64(id)})
}

func (t topology) NodeRejected(p geom.Pos, a netgraph.Action) {
	if t.w.metrics != nil {
		t.w.metrics.RejectedTotal.WithLabelValues(a.String()).Inc()
	}
	t.w.log.Info("node rejected", zap.Stringer("pos", p), zap.Stringer("action", a))
	t.w.audit(AuditEntry{Event: "REJECTED", Pos: p.ToArray(), Action: a.String(), Reason: "rotation conflict"})
}

func (w *World) audit(e AuditEntry) {
	e.Tick = w.tick.Load()
	w.audits = append(w.audits, e)
}

// flushAudits hands this tick's audits to the audit log and returns them for
// the observer stream.
func (w *World) flushAudits() []AuditEntry {
	out := w.audits
	w.audits = nil
	if w.auditLogger != nil {
		for _, e := range out {
			if err := w.auditLogger.WriteAudit(e); err != nil {
				w.log.Warn("audit write failed", zap.Error(err))
				break
			}
		}
	}
	return out
}
