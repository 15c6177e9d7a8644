package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mechpower.ai/internal/logging"
	"mechpower.ai/internal/metrics"
	persistlog "mechpower.ai/internal/persistence/log"
	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/tuning"
	"mechpower.ai/internal/sim/world"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (audits, stats and snapshot metadata)")
		logLevel   = flag.String("log_level", "info", "log level (debug, info, warn, error)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel)
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("server")

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		log.Fatal("create world dir", zap.Error(err))
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Tuning is required for a fresh world; a resume may fall back to defaults.
	tune, err := tuning.Load(tp)
	if err != nil {
		if snapshotToLoad == "" || !errors.Is(err, fs.ErrNotExist) {
			log.Fatal("load tuning", zap.String("path", tp), zap.Error(err))
		}
		log.Warn("tuning not found, using defaults", zap.String("path", tp))
		tune = tuning.Defaults()
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		log.Fatal("open index backend", zap.Error(err))
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(*worldID, tune); err != nil {
			log.Warn("index backend: upsert tuning", zap.Error(err))
		}
	}

	reg := metrics.NewRegistry()
	w := world.New(world.ConfigFromTuning(*worldID, tune), logger)
	w.SetMetrics(reg)

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.Fatal("read snapshot", zap.String("path", snapshotToLoad), zap.Error(err))
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			log.Fatal("snapshot world id mismatch", zap.String("flag", *worldID), zap.String("snapshot", snap.Header.WorldID))
		}
		if err := w.ImportSnapshot(snap); err != nil {
			log.Fatal("import snapshot", zap.Error(err))
		}
		log.Info("resumed from snapshot", zap.String("file", filepath.Base(snapshotToLoad)), zap.Uint64("tick", w.CurrentTick()))
	}

	auditLog := persistlog.NewAuditLogger(worldDir)
	statsLog := persistlog.NewStatsLogger(worldDir)
	defer auditLog.Close()
	defer statsLog.Close()
	var (
		audits = multiAuditLogger{auditLog}
		stats  = multiStatsSink{statsLog}
	)
	if idx != nil {
		audits = append(audits, idx)
		stats = append(stats, idx)
	}
	w.SetAuditLogger(audits)
	w.SetStatsSink(stats)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mir, err := buildSnapshotMirror(ctx, *dataDir, reg, logger)
	if err != nil {
		log.Fatal("snapshot mirror", zap.Error(err))
	}
	// Only a nil interface reads as "no mirror".
	var snapMirror snapshotMirror
	if mir != nil {
		defer mir.Close()
		snapMirror = mir
	}

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(w, reg, idx, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		writeSnapshots(gctx, worldDir, snapCh, idx, snapMirror, reg, log)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", *addr), zap.String("world", *worldID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		return
	}
	log.Info("server stopped")
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
