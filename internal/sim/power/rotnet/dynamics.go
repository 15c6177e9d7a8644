package rotnet

import (
	"math"
	"sort"

	"mechpower.ai/internal/sim/power/rotation"
)

// Config holds the dynamics and sync tuning.
type Config struct {
	// SpinUpStep and SpinDownStep are the per-tick speed changes of an
	// unloaded network, divided by 1+torque for loaded ones.
	SpinUpStep   float64
	SpinDownStep float64
	// DeficitDamping is k in 1/(1+k*deficit) when providers fall short.
	DeficitDamping float64

	// SyncEveryTicks is the keepalive cadence for active networks.
	SyncEveryTicks int
	// SpeedQuantum is the current-speed drift that triggers an early record.
	SpeedQuantum float64
}

func DefaultConfig() Config {
	return Config{
		SpinUpStep:     0.002,
		SpinDownStep:   0.01,
		DeficitDamping: 0.05,
		SyncEveryTicks: 20,
		SpeedQuantum:   0.001,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SpinUpStep <= 0 {
		c.SpinUpStep = d.SpinUpStep
	}
	if c.SpinDownStep <= 0 {
		c.SpinDownStep = d.SpinDownStep
	}
	if c.DeficitDamping <= 0 {
		c.DeficitDamping = d.DeficitDamping
	}
	if c.SyncEveryTicks <= 0 {
		c.SyncEveryTicks = d.SyncEveryTicks
	}
	if c.SpeedQuantum <= 0 {
		c.SpeedQuantum = d.SpeedQuantum
	}
}

// Dynamics is the aggregate physical state of one network.
type Dynamics struct {
	RequiredTorque float64
	TargetSpeed    float64
	CurrentSpeed   float64
	CurrentAngle   float64
	// Active latches the first time TargetSpeed turns positive.
	Active bool

	dirty      bool
	synced     bool
	syncedSpd  float64
	syncedTgt  float64
	syncedTorq float64
}

// step eases CurrentSpeed toward TargetSpeed and integrates the angle.
// Networks spin up slower than they spin down, and heavier networks respond
// more sluggishly in both directions. The target is never overshot.
func (d *Dynamics) step(cfg Config) {
	scale := 1 / (1 + d.RequiredTorque)
	switch {
	case d.CurrentSpeed < d.TargetSpeed:
		d.CurrentSpeed = math.Min(d.TargetSpeed, d.CurrentSpeed+cfg.SpinUpStep*scale)
	case d.CurrentSpeed > d.TargetSpeed:
		d.CurrentSpeed = math.Max(d.TargetSpeed, d.CurrentSpeed-cfg.SpinDownStep*scale)
	}
	d.CurrentAngle = rotation.WrapAngle(d.CurrentAngle + d.CurrentSpeed)
}

// TargetSpeed resolves the speed a network settles at. supply maps each
// provided speed to the torque available at it.
//
// Candidates are walked in ascending speed. Every provider helps at speeds up
// to its own, so the walk starts with the full supply and spends a
// candidate's torque once it has been passed. When the remaining torque falls
// short of required, the speed is interpolated between the previous and the
// current candidate and damped by 1/(1+k*deficit).
func TargetSpeed(required float64, supply map[float64]float64, k float64) float64 {
	if len(supply) == 0 {
		return 0
	}
	speeds := make([]float64, 0, len(supply))
	available := 0.0
	for s, t := range supply {
		if s <= 0 || t <= 0 {
			continue
		}
		speeds = append(speeds, s)
	}
	if len(speeds) == 0 {
		return 0
	}
	sort.Float64s(speeds)
	for _, s := range speeds {
		available += supply[s]
	}

	target, prev := 0.0, 0.0
	for _, s := range speeds {
		if available < required {
			deficit := required - available
			return prev + (s-prev)/(1+k*deficit)
		}
		target, prev = s, s
		available -= supply[s]
	}
	return target
}
