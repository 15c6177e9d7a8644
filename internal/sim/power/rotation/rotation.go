// Package rotation describes angular motion on the lattice.
package rotation

import (
	"math"

	"mechpower.ai/internal/sim/power/geom"
)

const TwoPi = 2 * math.Pi

// Rotation is a snapshot of angular motion for one tick. Dir carries the
// handedness (left-hand rule: the thumb points along Dir and the fingers curl
// in the direction of positive rotation). Speed is in radians per tick.
type Rotation struct {
	Dir   geom.Direction
	Speed float64
	Angle float64
}

// WrapAngle maps a into [0, 2π).
func WrapAngle(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	// math.Mod of a tiny negative value can round up to exactly 2π.
	if a >= TwoPi {
		a = 0
	}
	return a
}
