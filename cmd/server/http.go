package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mechpower.ai/internal/metrics"
	"mechpower.ai/internal/sim/world"
	"mechpower.ai/internal/transport/observer"
	"mechpower.ai/internal/transport/ws"
)

// auditReader is the part of the index the admin API queries.
type auditReader interface {
	AuditsSince(ctx context.Context, tick uint64, limit int) ([]world.AuditEntry, error)
}

func newMux(w *world.World, reg *metrics.Registry, idx auditReader, logger *zap.Logger) *http.ServeMux {
	log := logger.Named("http")
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	enableAdminHTTP := envBool("MP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("MP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			writeJSON(rw, http.StatusOK, struct {
				WorldID string       `json:"world_id"`
				RunID   string       `json:"run_id"`
				Status  world.Status `json:"status"`
			}{
				WorldID: w.ID(),
				RunID:   w.RunID(),
				Status:  w.Status(),
			})
		}))
		mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			if err != nil {
				writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": tick})
		}))
		mux.HandleFunc("/admin/v1/commands", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			var req world.CommandRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			cmd, err := req.Command()
			if err != nil {
				writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "code": ws.CodeFor(err), "error": err.Error()})
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			if err := w.Submit(ctx2, cmd); err != nil {
				log.Debug("command refused", zap.Stringer("op", cmd.Kind), zap.Error(err))
				writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "code": ws.CodeFor(err), "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": w.CurrentTick()})
		}))
		mux.HandleFunc("/admin/v1/audits", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusNotFound)
				return
			}
			since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			audits, err := idx.AuditsSince(r.Context(), since, limit)
			if err != nil {
				writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "audits": audits})
		}))

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		log.Info("admin endpoints disabled (MP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
