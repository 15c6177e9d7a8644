package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/persistence/snapshot"
	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
)

func TestRunSubmitAndSnapshot(t *testing.T) {
	w := New(WorldConfig{ID: "run", TickRateHz: 200}, nil)
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	spec := node.Spec{Kind: node.KindAxle, Pos: geom.Pos{}, Axis: geom.AxisX}
	require.NoError(t, w.Submit(ctx, Command{Kind: CmdPlace, Spec: spec}))
	err := w.Submit(ctx, Command{Kind: CmdPlace, Spec: spec})
	require.True(t, errors.Is(err, ErrOccupied), "%v", err)

	require.Eventually(t, func() bool { return w.Status().Blocks == 1 }, time.Second, 5*time.Millisecond)

	tick, err := w.RequestSnapshot(ctx)
	require.NoError(t, err)
	snap := <-sink
	require.Equal(t, tick, snap.Header.Tick)
	require.Len(t, snap.Blocks, 1)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestStopEndsRun(t *testing.T) {
	w := New(WorldConfig{ID: "stop", TickRateHz: 100}, nil)
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	w.Stop()
	require.NoError(t, <-done)
}

func TestRequestSnapshotWithoutSink(t *testing.T) {
	w := New(WorldConfig{ID: "nosink", TickRateHz: 100}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	_, err := w.RequestSnapshot(ctx)
	require.Error(t, err)
}

func TestCommandRequestParsing(t *testing.T) {
	c, err := CommandRequest{Op: "place", Pos: [3]int{1, 2, 3}, Kind: "GEARBOX", Faces: []string{"+x", "-y"}}.Command()
	require.NoError(t, err)
	require.Equal(t, CmdPlace, c.Kind)
	require.Equal(t, geom.Pos{X: 1, Y: 2, Z: 3}, c.Spec.Pos)
	require.Equal(t, geom.DirsOf(geom.East, geom.Down), c.Spec.Faces)

	c, err = CommandRequest{Op: "SET_POWER", Pos: [3]int{1, 0, 0}, Speed: 0.2, Torque: 4}.Command()
	require.NoError(t, err)
	require.Equal(t, Command{Kind: CmdSetPower, Pos: geom.Pos{X: 1}, Speed: 0.2, Torque: 4}, c)

	_, err = CommandRequest{Op: "place", Kind: "AXLE", Axis: "W"}.Command()
	require.True(t, errors.Is(err, node.ErrBadSpec))
	_, err = CommandRequest{Op: "explode"}.Command()
	require.Error(t, err)
	require.Equal(t, "SET_DEMAND", CmdSetDemand.String())
}
