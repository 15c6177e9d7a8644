package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mechpower.ai/internal/metrics"
	"mechpower.ai/internal/persistence/snapshot"
)

type snapshotIndex interface {
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type snapshotMirror interface {
	Enqueue(localPath string)
}

// writeSnapshots persists snapshots handed over by the world loop until ctx
// is done.
func writeSnapshots(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, idx snapshotIndex, mir snapshotMirror, reg *metrics.Registry, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			err := snapshot.WriteSnapshot(path, snap)
			reg.RecordSnapshot(err)
			if err != nil {
				log.Error("snapshot write", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("snapshot written", zap.String("path", path), zap.Int("blocks", len(snap.Blocks)))
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
			if mir != nil {
				mir.Enqueue(path)
			}
		}
	}
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
