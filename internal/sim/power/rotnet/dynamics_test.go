package rotnet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mechpower.ai/internal/sim/power/rotation"
)

func TestTargetSpeed(t *testing.T) {
	const k = 0.05
	cases := []struct {
		name     string
		required float64
		supply   map[float64]float64
		want     float64
	}{
		{"no providers", 5, nil, 0},
		{"stalled provider ignored", 0, map[float64]float64{0: 10}, 0},
		{"enough torque", 10, map[float64]float64{0.1: 40}, 0.1},
		{"exactly enough", 40, map[float64]float64{0.1: 40}, 0.1},
		{"short of torque", 50, map[float64]float64{0.1: 40}, 0.1 / 1.5},
		{"fastest wins when free", 0, map[float64]float64{0.1: 10, 0.2: 10}, 0.2},
		{"between two providers", 15, map[float64]float64{0.1: 10, 0.2: 10}, 0.1 + 0.1/1.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.want, TargetSpeed(tc.required, tc.supply, k), 1e-12)
		})
	}
}

func TestStep(t *testing.T) {
	cfg := DefaultConfig()

	d := Dynamics{TargetSpeed: 0.1}
	d.step(cfg)
	require.InDelta(t, cfg.SpinUpStep, d.CurrentSpeed, 1e-12)
	require.InDelta(t, cfg.SpinUpStep, d.CurrentAngle, 1e-12)

	loaded := Dynamics{RequiredTorque: 1, CurrentSpeed: 0.1}
	loaded.step(cfg)
	require.InDelta(t, 0.1-cfg.SpinDownStep/2, loaded.CurrentSpeed, 1e-12)

	near := Dynamics{TargetSpeed: 0.1, CurrentSpeed: 0.0999}
	near.step(cfg)
	require.Equal(t, 0.1, near.CurrentSpeed)

	wrap := Dynamics{TargetSpeed: 1, CurrentSpeed: 1, CurrentAngle: 6}
	wrap.step(cfg)
	require.InDelta(t, 7-rotation.TwoPi, wrap.CurrentAngle, 1e-9)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.applyDefaults()
	require.Equal(t, DefaultConfig(), c)

	c = Config{SyncEveryTicks: 5}
	c.applyDefaults()
	require.Equal(t, 5, c.SyncEveryTicks)
	require.Equal(t, DefaultConfig().SpinUpStep, c.SpinUpStep)
}
