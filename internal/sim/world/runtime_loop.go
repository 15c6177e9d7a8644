package world

import (
	"context"
	"errors"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Info("world loop started")
	defer w.log.Info("world loop stopped")

	var pendingCmds []Command
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case c := <-w.inbox:
			pendingCmds = append(pendingCmds, c)
		case <-ticker.C:
			w.stepInternal(pendingCmds)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingCmds = pendingCmds[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Submit queues c for the next tick and waits for its outcome. It is safe to
// call from other goroutines.
func (w *World) Submit(ctx context.Context, c Command) error {
	if c.Resp == nil {
		c.Resp = make(chan error, 1)
	}
	select {
	case w.inbox <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stop:
		return errors.New("world stopped")
	}
	select {
	case err := <-c.Resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server. It is primarily intended for deterministic
// replays/tests.
func (w *World) StepOnce(cmds []Command) (tick uint64, digest uint64) {
	tick = w.tick.Load()
	w.stepInternal(cmds)
	return tick, w.Digest()
}
