package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mechpower.ai/internal/persistence/indexdb"
	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/tuning"
	"mechpower.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.AuditLogger
	world.StatsSink
	Close() error
	UpsertTuning(worldID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	AuditsSince(ctx context.Context, tick uint64, limit int) ([]world.AuditEntry, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("MP_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported MP_INDEX_BACKEND: %s", backend)
	}
}

// multiAuditLogger fans audits out to every sink; one failing sink does not
// starve the others.
type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteAudit(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiStatsSink []world.StatsSink

func (m multiStatsSink) WriteStats(entry world.StatsEntry) error {
	var first error
	for _, s := range m {
		if err := s.WriteStats(entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}
