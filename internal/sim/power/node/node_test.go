package node

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/sim/power/geom"
)

func TestDerive_ShaftKindsPassThrough(t *testing.T) {
	for _, k := range []Kind{KindAxle, KindClutch, KindWheel, KindWindmill, KindCrank, KindConsumer} {
		require.Equal(t, geom.West, Derive(k, geom.East, geom.West, geom.West), "%v", k)
		require.Equal(t, geom.East, Derive(k, geom.West, geom.East, geom.East), "%v", k)
	}
}

func TestDerive_GearBox(t *testing.T) {
	cases := []struct {
		name        string
		in, dir     geom.Direction
		out, expect geom.Direction
	}{
		{"straight keeps vector", geom.East, geom.East, geom.West, geom.East},
		{"straight keeps vector reversed", geom.East, geom.West, geom.West, geom.West},
		{"same face", geom.Up, geom.Down, geom.Up, geom.Down},
		{"turn, positive source", geom.East, geom.East, geom.South, geom.North},
		{"turn, negative source", geom.East, geom.West, geom.South, geom.South},
		{"turn, driven from the far face", geom.West, geom.East, geom.South, geom.North},
		{"turn to vertical", geom.North, geom.South, geom.Up, geom.Down},
		{"turn to the negative face", geom.Up, geom.Up, geom.West, geom.West},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, Derive(KindGearBox, tc.in, tc.dir, tc.out))
		})
	}
}

func TestDerive_GearBoxIsSymmetric(t *testing.T) {
	// Driving the box backwards through the exit reproduces the source.
	for _, in := range geom.All {
		for _, dir := range []geom.Direction{in, in.Opposite()} {
			for _, out := range geom.All {
				got := Derive(KindGearBox, in, dir, out)
				require.Equal(t, dir, Derive(KindGearBox, out, got, in), "in=%v dir=%v out=%v", in, dir, out)
			}
		}
	}
}

func TestDerive_GearBoxIgnoresSourceFace(t *testing.T) {
	// A box with four faces on two axes must show one rotation per shaft no
	// matter which face it was latched through.
	faces := []geom.Direction{geom.East, geom.West, geom.South, geom.North}
	for _, in := range faces {
		for _, dir := range []geom.Direction{in, in.Opposite()} {
			for _, in2 := range faces {
				dir2 := Derive(KindGearBox, in, dir, in2)
				for _, out := range faces {
					require.Equal(t, Derive(KindGearBox, in, dir, out), Derive(KindGearBox, in2, dir2, out),
						"latched %v/%v vs %v/%v on %v", in, dir, in2, dir2, out)
				}
			}
		}
	}
}

func TestCommitAndCompatibility(t *testing.T) {
	a := NewAxle(geom.Pos{}, geom.AxisX)
	_, ok := a.RotationOut(geom.East)
	require.False(t, ok)
	require.True(t, a.IsCompatible(geom.East, geom.West), "unlatched accepts anything")

	a.Commit(geom.West, geom.East)
	out, ok := a.RotationOut(geom.East)
	require.True(t, ok)
	require.Equal(t, geom.East, out)
	require.True(t, a.IsCompatible(geom.East, geom.East))
	require.False(t, a.IsCompatible(geom.East, geom.West))
	require.Equal(t, Latch{Face: geom.West, Dir: geom.East, Set: true}, a.Latch())
}

func TestConnections(t *testing.T) {
	require.Equal(t, geom.DirsOf(geom.East, geom.West), NewAxle(geom.Pos{}, geom.AxisX).Connections())
	require.Equal(t, geom.DirsOf(geom.Up, geom.East), NewGearBox(geom.Pos{}, geom.Up, geom.East).Connections())

	c := NewClutch(geom.Pos{}, geom.AxisZ, false)
	require.True(t, c.Connections().Empty())
	c.SetEngaged(true)
	require.Equal(t, geom.DirsOf(geom.South, geom.North), c.Connections())

	mill := NewConsumer(geom.Pos{}, geom.AxisY, 4, geom.Down)
	require.Equal(t, geom.DirsOf(geom.Down), mill.Connections())
	require.Equal(t, 4.0, mill.RequiredTorque())
	require.Zero(t, mill.ProvidedSpeed())
}

func TestProviders(t *testing.T) {
	w := NewProvider(KindWindmill, geom.Pos{}, geom.AxisX, 0.1, 40)
	require.Equal(t, 0.1, w.ProvidedSpeed())
	require.Equal(t, 40.0, w.ProvidedTorque())
	w.SetPower(0, 40)
	require.Zero(t, w.ProvidedTorque(), "a stalled provider supplies nothing")

	require.Panics(t, func() { NewProvider(KindAxle, geom.Pos{}, geom.AxisX, 1, 1) })
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Spec{Kind: KindGearBox})
	require.True(t, errors.Is(err, ErrBadSpec))

	_, err = New(Spec{Kind: KindAxle, Axis: geom.AxisX, Faces: geom.DirsOf(geom.Up)})
	require.True(t, errors.Is(err, ErrBadSpec))

	_, err = New(Spec{Kind: KindConsumer, Axis: geom.AxisY, Demand: -1})
	require.True(t, errors.Is(err, ErrBadSpec))

	_, err = New(Spec{Kind: Kind(99)})
	require.True(t, errors.Is(err, ErrBadSpec))

	_, err = New(Spec{Kind: KindAxle, Pos: geom.Pos{Y: geom.MaxY + 1}, Axis: geom.AxisY})
	require.True(t, errors.Is(err, ErrBadSpec), "above the build limit")
	_, err = New(Spec{Kind: KindAxle, Pos: geom.Pos{X: geom.MinXZ - 1}, Axis: geom.AxisX})
	require.True(t, errors.Is(err, ErrBadSpec))
	_, err = New(Spec{Kind: KindAxle, Pos: geom.Pos{Y: geom.MaxY}, Axis: geom.AxisY})
	require.NoError(t, err)

	n, err := New(Spec{Kind: KindWheel, Pos: geom.Pos{X: 3}, Axis: geom.AxisZ, Speed: 0.2, Torque: 10})
	require.NoError(t, err)
	require.Equal(t, Spec{Kind: KindWheel, Pos: geom.Pos{X: 3}, Axis: geom.AxisZ, Faces: geom.AxisDirs(geom.AxisZ), Speed: 0.2, Torque: 10}, n.Spec())
}

func TestNew_GearBoxOpensAtMostTwoAxes(t *testing.T) {
	all := geom.DirSet(0x3f)
	_, err := New(Spec{Kind: KindGearBox, Faces: all})
	require.True(t, errors.Is(err, ErrBadSpec))
	_, err = New(Spec{Kind: KindGearBox, Faces: geom.DirsOf(geom.East, geom.South, geom.Up)})
	require.True(t, errors.Is(err, ErrBadSpec))

	g, err := New(Spec{Kind: KindGearBox, Faces: geom.DirsOf(geom.East, geom.West, geom.South, geom.North)})
	require.NoError(t, err)
	require.Equal(t, 4, g.Faces().Len())
}

func TestRules_ProvidersAreRigidOnceLatched(t *testing.T) {
	var r Rules
	w := NewProvider(KindWindmill, geom.Pos{}, geom.AxisX, 0.1, 10)
	require.False(t, r.Rigid(w), "an unlatched provider takes whatever it is given")
	require.True(t, r.Accept(w, Latch{Face: geom.East, Dir: geom.West, Set: true}))

	w.Commit(geom.East, geom.East)
	require.True(t, r.Rigid(w))
	require.True(t, r.Accept(w, Latch{Face: geom.West, Dir: geom.East, Set: true}), "same shaft rotation seen from the other face")
	require.False(t, r.Accept(w, Latch{Face: geom.East, Dir: geom.West, Set: true}))

	a := NewAxle(geom.Pos{}, geom.AxisX)
	a.Commit(geom.East, geom.East)
	require.False(t, r.Rigid(a))
	require.True(t, r.Accept(a, Latch{Face: geom.East, Dir: geom.West, Set: true}), "plain shafts can be forced")
}

func TestRules_AdoptThenAgree(t *testing.T) {
	var r Rules
	g := NewGearBox(geom.Pos{}, geom.East, geom.South)
	g.Commit(geom.East, geom.East)
	a := NewAxle(geom.Pos{Z: 1}, geom.AxisZ)

	gl, _ := r.Latch(g)
	al := r.Adopt(a, geom.North, g, gl)
	require.Equal(t, Latch{Face: geom.North, Dir: geom.North, Set: true}, al)
	require.True(t, r.Agree(a, al, geom.North, g, gl))
	require.True(t, r.Agree(g, gl, geom.South, a, al))

	flipped := Latch{Face: geom.North, Dir: geom.South, Set: true}
	require.False(t, r.Agree(a, flipped, geom.North, g, gl))
}

func TestKindNames(t *testing.T) {
	for k := KindAxle; k <= KindConsumer; k++ {
		back, err := ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, back)
	}
	_, err := ParseKind("FLUX_CAPACITOR")
	require.Error(t, err)
}

func TestKindNamesInOrder(t *testing.T) {
	require.Equal(t, []string{"AXLE", "GEARBOX", "CLUTCH", "WHEEL", "WINDMILL", "CRANK", "CONSUMER"}, KindNames())
	k, err := ParseKind(" gearbox ")
	require.NoError(t, err)
	require.Equal(t, KindGearBox, k)
}
