package geom

import (
	"fmt"
	"strings"
)

type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return "?"
	}
}

func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return AxisX, nil
	case "Y":
		return AxisY, nil
	case "Z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("bad axis %q", s)
	}
}

// Positive is the direction pointing toward the positive end of the axis.
func (a Axis) Positive() Direction { return Direction(a * 2) }

// Direction is one of the six unit vectors. Even values point toward the
// positive end of their axis, odd values toward the negative end.
type Direction uint8

const (
	East  Direction = iota // +X
	West                   // -X
	Up                     // +Y
	Down                   // -Y
	South                  // +Z
	North                  // -Z
)

// All lists the directions in scan order.
var All = [6]Direction{East, West, Up, Down, South, North}

var offsets = [6]Pos{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

var dirNames = [6]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

func (d Direction) Valid() bool { return d < 6 }

func (d Direction) Opposite() Direction { return d ^ 1 }

func (d Direction) Axis() Axis { return Axis(d >> 1) }

func (d Direction) Positive() bool { return d&1 == 0 }

// Sign is +1 for directions toward the positive end of their axis, -1 otherwise.
func (d Direction) Sign() int {
	if d.Positive() {
		return 1
	}
	return -1
}

func (d Direction) Offset() Pos { return offsets[d] }

func (d Direction) String() string {
	if !d.Valid() {
		return "?"
	}
	return dirNames[d]
}

func ParseDirection(s string) (Direction, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range dirNames {
		if n == t {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("bad direction %q", s)
}

// DirSet is a bitset of directions.
type DirSet uint8

func DirsOf(dirs ...Direction) DirSet {
	var s DirSet
	for _, d := range dirs {
		s = s.With(d)
	}
	return s
}

// AxisDirs is the set holding both ends of an axis.
func AxisDirs(a Axis) DirSet {
	p := a.Positive()
	return DirsOf(p, p.Opposite())
}

func (s DirSet) Has(d Direction) bool    { return s&(1<<d) != 0 }
func (s DirSet) With(d Direction) DirSet { return s | 1<<d }
func (s DirSet) Without(d Direction) DirSet {
	return s &^ (1 << d)
}
func (s DirSet) Empty() bool { return s == 0 }

func (s DirSet) Len() int {
	n := 0
	for _, d := range All {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Dirs returns the members in scan order.
func (s DirSet) Dirs() []Direction {
	out := make([]Direction, 0, 6)
	for _, d := range All {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// First returns the first member in scan order.
func (s DirSet) First() (Direction, bool) {
	for _, d := range All {
		if s.Has(d) {
			return d, true
		}
	}
	return 0, false
}

func (s DirSet) String() string {
	parts := make([]string, 0, 6)
	for _, d := range s.Dirs() {
		parts = append(parts, d.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
