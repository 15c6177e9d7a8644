package world

import (
	"encoding/json"

	"go.uber.org/zap"

	"mechpower.ai/internal/observerproto"
	"mechpower.ai/internal/sim/power/rotnet"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - binary network record frames (RecordsOut)
// - JSON WELCOME and TICK messages (TickOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID  string
	TickOut    chan []byte
	RecordsOut chan []byte

	// Events asks for TICK messages carrying audits.
	Events bool
}

type observerClient struct {
	id         string
	tickOut    chan []byte
	recordsOut chan []byte
	events     bool

	// needsFull forces a reset frame after a dropped record batch.
	needsFull bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.RecordsOut == nil {
		return
	}
	c := &observerClient{
		id:         req.SessionID,
		tickOut:    req.TickOut,
		recordsOut: req.RecordsOut,
		events:     req.Events,
		needsFull:  true,
	}
	w.observers[c.id] = c

	tick := w.tick.Load()
	welcome, _ := json.Marshal(observerproto.WelcomeMsg{
		Type:            "WELCOME",
		ProtocolVersion: observerproto.Version,
		SessionID:       c.id,
		Tick:            tick,
	})
	sendLatest(c.tickOut, welcome)
	w.sendFull(c, tick)
	w.log.Info("observer joined", zap.String("session", c.id), zap.Int("observers", len(w.observers)))
}

func (w *World) handleObserverLeave(id string) {
	if _, ok := w.observers[id]; !ok {
		return
	}
	delete(w.observers, id)
	w.log.Info("observer left", zap.String("session", id), zap.Int("observers", len(w.observers)))
}

// sendFull replaces the observer's view with every active network.
func (w *World) sendFull(c *observerClient, tick uint64) {
	recs := append([]observerproto.NetworkRecord{{Reset: true}}, wireRecords(w.power.SyncAll())...)
	select {
	case c.recordsOut <- observerproto.EncodeBatch(tick, recs):
		c.needsFull = false
	default:
		c.needsFull = true
	}
}

func (w *World) stepObservers(tick uint64, recs []rotnet.Record, audits []AuditEntry) {
	if len(w.observers) == 0 {
		return
	}
	var frame []byte
	if len(recs) > 0 {
		frame = observerproto.EncodeBatch(tick, wireRecords(recs))
	}
	var tickMsg []byte
	if len(audits) > 0 {
		g := w.power.Graph()
		tickMsg, _ = json.Marshal(observerproto.TickMsg{
			Type:            "TICK",
			ProtocolVersion: observerproto.Version,
			Tick:            tick,
			Nodes:           g.NodeCount(),
			Networks:        g.NetworkCount(),
			Audits:          audits,
		})
	}

	for _, c := range w.observers {
		if c.needsFull {
			w.sendFull(c, tick)
		} else if frame != nil {
			select {
			case c.recordsOut <- frame:
			default:
				// A lost delta leaves the client stale; resync next tick.
				c.needsFull = true
			}
		}
		if tickMsg != nil && c.events {
			sendLatest(c.tickOut, tickMsg)
		}
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
