package world

import (
	"mechpower.ai/internal/sim/power/rotnet"
	"mechpower.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	// InvalidRecheckTicks is how long a block rejected by a reconfigure may
	// sit detached before it is retried and, failing that, dropped.
	InvalidRecheckTicks int
	SnapshotEveryTicks  int
	ObserverQueue       int

	Rotation rotnet.Config
}

// ConfigFromTuning maps the tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                  id,
		TickRateHz:          t.TickRateHz,
		InvalidRecheckTicks: t.InvalidRecheckTicks,
		SnapshotEveryTicks:  t.SnapshotEveryTicks,
		ObserverQueue:       t.ObserverQueue,
		Rotation: rotnet.Config{
			SpinUpStep:     t.SpinUpStep,
			SpinDownStep:   t.SpinDownStep,
			DeficitDamping: t.TorqueDeficitDamping,
			SyncEveryTicks: t.SyncEveryTicks,
			SpeedQuantum:   t.SyncSpeedQuantum,
		},
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.InvalidRecheckTicks <= 0 {
		c.InvalidRecheckTicks = 5
	}
	if c.SnapshotEveryTicks < 0 {
		c.SnapshotEveryTicks = 0
	}
	if c.ObserverQueue <= 0 {
		c.ObserverQueue = 64
	}
}
