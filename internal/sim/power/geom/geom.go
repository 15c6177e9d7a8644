// Package geom holds the integer lattice primitives shared by the power network:
// positions, packed position keys and the six axis-aligned directions.
package geom

import "fmt"

type Pos struct {
	X int
	Y int
	Z int
}

func (p Pos) Add(d Direction) Pos {
	o := d.Offset()
	return Pos{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

func (p Pos) ToArray() [3]int { return [3]int{p.X, p.Y, p.Z} }

func PosFromArray(a [3]int) Pos { return Pos{X: a[0], Y: a[1], Z: a[2]} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Key packs a position into 64 bits: 26 bits for X and Z, 12 bits for Y.
// Only positions inside the world bounds have a unique key.
type Key uint64

const (
	keyXZBits = 26
	keyYBits  = 12
	keyXZMask = 1<<keyXZBits - 1
	keyYMask  = 1<<keyYBits - 1
)

// World bounds, inclusive. Every position inside them packs to its own Key.
const (
	MinXZ = -(1 << (keyXZBits - 1))
	MaxXZ = 1<<(keyXZBits-1) - 1
	MinY  = -(1 << (keyYBits - 1))
	MaxY  = 1<<(keyYBits-1) - 1
)

// InBounds reports whether p lies inside the world bounds.
func (p Pos) InBounds() bool {
	return p.X >= MinXZ && p.X <= MaxXZ &&
		p.Y >= MinY && p.Y <= MaxY &&
		p.Z >= MinXZ && p.Z <= MaxXZ
}

func (p Pos) Key() Key {
	x := uint64(p.X) & keyXZMask
	y := uint64(p.Y) & keyYMask
	z := uint64(p.Z) & keyXZMask
	return Key(x<<(keyXZBits+keyYBits) | z<<keyYBits | y)
}

func (k Key) Pos() Pos {
	x := int(uint64(k) >> (keyXZBits + keyYBits) & keyXZMask)
	z := int(uint64(k) >> keyYBits & keyXZMask)
	y := int(uint64(k) & keyYMask)
	return Pos{X: signExtend(x, keyXZBits), Y: signExtend(y, keyYBits), Z: signExtend(z, keyXZBits)}
}

func signExtend(v, bits int) int {
	if v&(1<<(bits-1)) != 0 {
		return v - 1<<bits
	}
	return v
}
