package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/tuning"
	"mechpower.ai/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit}

	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	_ = s.WriteStats(world.StatsEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	require.Equal(t, uint64(1), st.DropAuditTotal)
	require.Equal(t, uint64(1), st.DropStatsTotal)
	require.Equal(t, uint64(1), st.DropSnapshotTotal)
	require.Equal(t, 1, st.QueueDepth)
	require.Equal(t, 1, st.QueueCapacity)
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	require.NoError(t, s.WriteAudit(world.AuditEntry{}))
	require.NoError(t, s.WriteStats(world.StatsEntry{}))
	s.RecordSnapshot("x", snapshot.SnapshotV1{})
	require.NoError(t, s.UpsertTuning("w", tuning.Defaults()))
	require.Equal(t, Stats{}, s.Stats())
}

func TestSQLiteIndex_WritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	s, err := OpenSQLite(path)
	require.NoError(t, err)

	require.NoError(t, s.UpsertTuning("world_1", tuning.Defaults()))
	require.NoError(t, s.WriteAudit(world.AuditEntry{Tick: 5, Event: "NETWORK_CREATED", Network: 1}))
	require.NoError(t, s.WriteAudit(world.AuditEntry{Tick: 5, Event: "PLACE", Pos: [3]int{1, 0, 0}, Kind: "AXLE"}))
	require.NoError(t, s.WriteAudit(world.AuditEntry{Tick: 9, Event: "NETWORK_MERGED", Network: 1, Other: 2}))
	require.NoError(t, s.WriteStats(world.StatsEntry{Tick: 20, Nodes: 3, Networks: 1}))
	s.RecordSnapshot("/data/20.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, Tick: 20, RunID: "r1"},
		Blocks: []snapshot.BlockV1{{Kind: "AXLE"}, {Kind: "GEARBOX", Invalid: true}},
	})
	// Close drains the queue and commits.
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	id, err := s.Meta(ctx, "world_id")
	require.NoError(t, err)
	require.Equal(t, "world_1", id)

	audits, err := s.AuditsSince(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, audits, 3)
	require.Equal(t, "PLACE", audits[1].Event)
	require.Equal(t, uint64(2), audits[2].Other)

	later, err := s.AuditsSince(ctx, 6, 0)
	require.NoError(t, err)
	require.Len(t, later, 1)

	tick, snapPath, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(20), tick)
	require.Equal(t, "/data/20.snap.zst", snapPath)

	var invalid, nodes int
	require.NoError(t, s.db.QueryRow(`SELECT invalid FROM snapshots WHERE tick = 20`).Scan(&invalid))
	require.Equal(t, 1, invalid)
	require.NoError(t, s.db.QueryRow(`SELECT nodes FROM power_stats WHERE tick = 20`).Scan(&nodes))
	require.Equal(t, 3, nodes)
}
