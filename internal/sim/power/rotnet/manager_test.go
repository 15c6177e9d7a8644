package rotnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/netgraph"
	"mechpower.ai/internal/sim/power/node"
	"mechpower.ai/internal/sim/power/rotation"
)

type events struct {
	netgraph.NopObserver
	created, removed []netgraph.ID
	rejected         []geom.Pos
}

func (e *events) NetworkCreated(id netgraph.ID) { e.created = append(e.created, id) }
func (e *events) NetworkRemoved(id netgraph.ID) { e.removed = append(e.removed, id) }
func (e *events) NodeRejected(p geom.Pos, _ netgraph.Action) {
	e.rejected = append(e.rejected, p)
}

func add(t *testing.T, m *Manager, n *node.Node) netgraph.ID {
	t.Helper()
	require.True(t, m.PerformAction(n, netgraph.ActionAdd), "add %v", n.Pos())
	require.NoError(t, m.Graph().Verify())
	return n.NetworkID()
}

func dyn(t *testing.T, m *Manager, id netgraph.ID) Dynamics {
	t.Helper()
	d, ok := m.Dynamics(id)
	require.True(t, ok, "network %d has no dynamics", id)
	return d
}

func TestSingletonAxleIsIdle(t *testing.T) {
	ev := &events{}
	m := New(DefaultConfig(), ev)
	id := add(t, m, node.NewAxle(geom.Pos{}, geom.AxisX))

	require.Equal(t, []netgraph.ID{id}, ev.created)
	d := dyn(t, m, id)
	require.Zero(t, d.RequiredTorque)
	require.Zero(t, d.TargetSpeed)
	require.False(t, d.Active)
	require.Empty(t, m.Sync(), "a network that never moved is not synced")

	r, ok := m.Rotation(geom.Pos{})
	require.True(t, ok)
	require.Equal(t, geom.East, r.Dir)
	_, ok = m.Rotation(geom.Pos{X: 9})
	require.False(t, ok)
}

func TestConsumerDemandIsRequiredTorque(t *testing.T) {
	m := New(DefaultConfig(), nil)
	id := add(t, m, node.NewConsumer(geom.Pos{}, geom.AxisX, 6))
	require.Equal(t, 6.0, dyn(t, m, id).RequiredTorque)
}

func TestProviderSpinsNetworkUpWithoutOvershoot(t *testing.T) {
	m := New(DefaultConfig(), nil)
	id := add(t, m, node.NewAxle(geom.Pos{}, geom.AxisX))
	require.Equal(t, id, add(t, m, node.NewAxle(geom.Pos{X: 1}, geom.AxisX)))
	add(t, m, node.NewProvider(node.KindWindmill, geom.Pos{X: -1}, geom.AxisX, 0.1, 40))
	require.Equal(t, 1, m.Graph().NetworkCount())

	id = m.Graph().NetworkIDs()[0]
	d := dyn(t, m, id)
	require.Equal(t, 0.1, d.TargetSpeed)
	require.True(t, d.Active)

	prev := 0.0
	for i := 0; i < 200; i++ {
		m.TickAll()
		cur := dyn(t, m, id).CurrentSpeed
		require.GreaterOrEqual(t, cur, prev)
		require.LessOrEqual(t, cur, 0.1)
		prev = cur
	}
	require.Equal(t, 0.1, prev)

	r, ok := m.Rotation(geom.Pos{X: 1})
	require.True(t, ok)
	require.Equal(t, 0.1, r.Speed)
	require.Less(t, r.Angle, rotation.TwoPi)
}

func TestSplitKeepsMotion(t *testing.T) {
	m := New(DefaultConfig(), nil)
	a := node.NewProvider(node.KindWheel, geom.Pos{}, geom.AxisX, 0.05, 10)
	b := node.NewAxle(geom.Pos{X: 1}, geom.AxisX)
	c := node.NewAxle(geom.Pos{X: 2}, geom.AxisX)
	for _, n := range []*node.Node{a, b, c} {
		add(t, m, n)
	}
	for i := 0; i < 10; i++ {
		m.TickAll()
	}
	before := dyn(t, m, a.NetworkID())
	require.True(t, before.Active)
	require.Greater(t, before.CurrentSpeed, 0.0)

	require.True(t, m.PerformAction(b, netgraph.ActionRemove))
	require.NoError(t, m.Graph().Verify())
	require.Equal(t, 2, m.Graph().NetworkCount())
	require.NotEqual(t, a.NetworkID(), c.NetworkID())

	left, right := dyn(t, m, a.NetworkID()), dyn(t, m, c.NetworkID())
	for _, d := range []Dynamics{left, right} {
		require.True(t, d.Active)
		require.Equal(t, before.CurrentSpeed, d.CurrentSpeed)
		require.Equal(t, before.CurrentAngle, d.CurrentAngle)
	}
	require.Equal(t, 0.05, left.TargetSpeed)
	require.Zero(t, right.TargetSpeed, "the peeled off axle has no provider")

	m.TickAll()
	require.Less(t, dyn(t, m, c.NetworkID()).CurrentSpeed, before.CurrentSpeed)
}

func TestMergeSumsTorque(t *testing.T) {
	m := New(DefaultConfig(), nil)
	left := add(t, m, node.NewConsumer(geom.Pos{}, geom.AxisX, 3))
	right := add(t, m, node.NewConsumer(geom.Pos{X: 2}, geom.AxisX, 4))
	require.NotEqual(t, left, right)

	bridge := node.NewConsumer(geom.Pos{X: 1}, geom.AxisX, 1)
	id := add(t, m, bridge)
	require.Equal(t, 1, m.Graph().NetworkCount())
	require.Contains(t, []netgraph.ID{left, right}, id)
	require.Equal(t, 8.0, dyn(t, m, id).RequiredTorque)

	gone := left
	if id == left {
		gone = right
	}
	_, ok := m.Dynamics(gone)
	require.False(t, ok, "the absorbed network's dynamics are dropped")
}

func TestSyncCadence(t *testing.T) {
	m := New(DefaultConfig(), nil)
	add(t, m, node.NewAxle(geom.Pos{}, geom.AxisX))
	add(t, m, node.NewProvider(node.KindCrank, geom.Pos{X: 1}, geom.AxisX, 0.02, 5))
	id := m.Graph().NetworkIDs()[0]

	recs := m.Sync()
	require.Len(t, recs, 1)
	require.Equal(t, id, recs[0].ID)
	require.Equal(t, float32(0.02), recs[0].TargetSpeed)

	// Spin-up moves the speed by more than the quantum every tick.
	m.TickAll()
	require.Len(t, m.Sync(), 1)

	for m.Tick() < 200 {
		m.TickAll()
		m.Sync()
	}
	require.Equal(t, 0.02, dyn(t, m, id).CurrentSpeed)

	m.TickAll()
	require.Empty(t, m.Sync(), "settled networks wait for the keepalive")
	for m.Tick()%uint64(m.Config().SyncEveryTicks) != 0 {
		m.TickAll()
		if m.Tick()%uint64(m.Config().SyncEveryTicks) != 0 {
			require.Empty(t, m.Sync())
		}
	}
	recs = m.Sync()
	require.Len(t, recs, 1)
	require.Equal(t, float32(0.02), recs[0].CurrentSpeed)

	require.Equal(t, recs, m.SyncAll())
}

func TestSyncRemovedSentinel(t *testing.T) {
	ev := &events{}
	m := New(DefaultConfig(), ev)
	mill := node.NewProvider(node.KindWindmill, geom.Pos{}, geom.AxisY, 0.1, 5)
	id := add(t, m, mill)
	require.Len(t, m.Sync(), 1)

	require.True(t, m.PerformAction(mill, netgraph.ActionRemove))
	require.Equal(t, []netgraph.ID{id}, ev.removed)
	require.Equal(t, []Record{{ID: id, Removed: true}}, m.Sync())
	require.Empty(t, m.Sync())

	// A network observers never heard of leaves no sentinel.
	quiet := node.NewAxle(geom.Pos{}, geom.AxisX)
	add(t, m, quiet)
	require.True(t, m.PerformAction(quiet, netgraph.ActionRemove))
	require.Empty(t, m.Sync())
}

func TestMergeRetiresSyncedNetwork(t *testing.T) {
	m := New(DefaultConfig(), nil)
	left := add(t, m, node.NewProvider(node.KindWheel, geom.Pos{}, geom.AxisX, 0.1, 5))
	right := add(t, m, node.NewProvider(node.KindWheel, geom.Pos{X: 2}, geom.AxisX, 0.1, 5))
	require.Len(t, m.Sync(), 2)

	id := add(t, m, node.NewAxle(geom.Pos{X: 1}, geom.AxisX))
	gone := left
	if id == left {
		gone = right
	}
	recs := m.Sync()
	require.Equal(t, []Record{{ID: gone, Removed: true}, {ID: id, TargetSpeed: 0.1}}, recs)
}

func TestUnchangedUpdateIsQuiet(t *testing.T) {
	m := New(DefaultConfig(), nil)
	add(t, m, node.NewConsumer(geom.Pos{}, geom.AxisX, 2))
	w := node.NewProvider(node.KindWheel, geom.Pos{X: 1}, geom.AxisX, 0.1, 1)
	id := add(t, m, w)
	m.Sync()
	// Loaded spin-up stays under the quantum for one tick.
	m.TickAll()
	before := dyn(t, m, id)

	require.True(t, m.PerformAction(w, netgraph.ActionUpdate))
	require.Equal(t, before, dyn(t, m, id))
	require.Empty(t, m.Sync())
}

func TestUpdateInNetworkRetargets(t *testing.T) {
	m := New(DefaultConfig(), nil)
	w := node.NewProvider(node.KindWheel, geom.Pos{}, geom.AxisX, 0.1, 10)
	id := add(t, m, w)
	m.Sync()

	w.SetPower(0.3, 10)
	require.True(t, m.PerformAction(w, netgraph.ActionUpdateInNetwork))
	require.Equal(t, 0.3, dyn(t, m, id).TargetSpeed)
	recs := m.Sync()
	require.Len(t, recs, 1)
	require.Equal(t, float32(0.3), recs[0].TargetSpeed)
}

func TestRejectedNodeForwarded(t *testing.T) {
	ev := &events{}
	m := New(DefaultConfig(), ev)
	a := node.NewProvider(node.KindWheel, geom.Pos{}, geom.AxisX, 0.1, 10)
	a.RestoreLatch(node.Latch{Face: geom.East, Dir: geom.East, Set: true})
	add(t, m, a)

	b := node.NewProvider(node.KindWindmill, geom.Pos{X: 2}, geom.AxisX, 0.1, 10)
	b.RestoreLatch(node.Latch{Face: geom.East, Dir: geom.West, Set: true})
	add(t, m, b)

	bridge := node.NewAxle(geom.Pos{X: 1}, geom.AxisX)
	require.False(t, m.PerformAction(bridge, netgraph.ActionAdd))
	require.Equal(t, []geom.Pos{{X: 1}}, ev.rejected)
	require.Equal(t, 2, m.Graph().NetworkCount())
	require.Equal(t, 0.1, dyn(t, m, a.NetworkID()).TargetSpeed)
	require.Equal(t, 0.1, dyn(t, m, b.NetworkID()).TargetSpeed)
}

func TestFreeNetworksMergeByForce(t *testing.T) {
	m := New(DefaultConfig(), nil)
	a := node.NewAxle(geom.Pos{}, geom.AxisX)
	a.RestoreLatch(node.Latch{Face: geom.East, Dir: geom.East, Set: true})
	add(t, m, a)
	b := node.NewAxle(geom.Pos{X: 2}, geom.AxisX)
	b.RestoreLatch(node.Latch{Face: geom.East, Dir: geom.West, Set: true})
	add(t, m, b)

	id := add(t, m, node.NewAxle(geom.Pos{X: 1}, geom.AxisX))
	require.Equal(t, 1, m.Graph().NetworkCount())
	ra, _ := m.Rotation(geom.Pos{})
	rb, _ := m.Rotation(geom.Pos{X: 2})
	require.Equal(t, ra.Dir, rb.Dir)
	require.Equal(t, id, a.NetworkID())
}

func TestRestoreSeedsMotion(t *testing.T) {
	m := New(DefaultConfig(), nil)
	id := add(t, m, node.NewAxle(geom.Pos{}, geom.AxisX))
	require.False(t, m.Restore(id+100, 1, 0, true))

	require.True(t, m.Restore(id, 0.3, rotation.TwoPi+1, true))
	d := dyn(t, m, id)
	require.Equal(t, 0.3, d.CurrentSpeed)
	require.InDelta(t, 1.0, d.CurrentAngle, 1e-9)
	require.True(t, d.Active)

	recs := m.Sync()
	require.Len(t, recs, 1)
	require.Equal(t, float32(0.3), recs[0].CurrentSpeed)

	// Without a provider the restored spin decays.
	m.TickAll()
	require.Less(t, dyn(t, m, id).CurrentSpeed, 0.3)
}
