// Package grid addresses the 2D cell grid that claims are built from.
//
// A cell ("chunk") is a CellSize x CellSize square of world columns. Cells are
// identified by their integer coordinates packed into a single Key, plus the
// world they belong to.
package grid

import (
	"fmt"

	"github.com/google/uuid"
)

// CellSize is the edge length of one cell in block units.
const CellSize = 16

// Key packs cell coordinates: lower 32 bits hold x, upper 32 bits hold z.
type Key int64

func Pack(x, z int32) Key {
	return Key(int64(z)<<32 | int64(uint32(x)))
}

func (k Key) X() int32 { return int32(k) }
func (k Key) Z() int32 { return int32(k >> 32) }

// ChunkPos identifies one cell in one world. It is comparable and safe to use
// as a map key.
type ChunkPos struct {
	World uuid.UUID
	Key   Key
}

func At(world uuid.UUID, x, z int32) ChunkPos {
	return ChunkPos{World: world, Key: Pack(x, z)}
}

// FromBlock returns the cell containing block column (bx, bz).
func FromBlock(world uuid.UUID, bx, bz int) ChunkPos {
	return At(world, int32(bx>>4), int32(bz>>4))
}

func (p ChunkPos) X() int32 { return p.Key.X() }
func (p ChunkPos) Z() int32 { return p.Key.Z() }

func (p ChunkPos) Offset(dx, dz int32) ChunkPos {
	return At(p.World, p.X()+dx, p.Z()+dz)
}

// Neighbors returns the four edge-adjacent cells (east, west, south, north).
func (p ChunkPos) Neighbors() [4]ChunkPos {
	x, z := p.X(), p.Z()
	return [4]ChunkPos{
		At(p.World, x+1, z),
		At(p.World, x-1, z),
		At(p.World, x, z+1),
		At(p.World, x, z-1),
	}
}

// Adjacent reports whether q shares an edge with p in the same world.
func (p ChunkPos) Adjacent(q ChunkPos) bool {
	if p.World != q.World {
		return false
	}
	dx := int64(p.X()) - int64(q.X())
	dz := int64(p.Z()) - int64(q.Z())
	if dx < 0 {
		dx = -dx
	}
	if dz < 0 {
		dz = -dz
	}
	return dx+dz == 1
}

// Less orders positions by world, then z, then x.
func (p ChunkPos) Less(q ChunkPos) bool {
	if p.World != q.World {
		return p.World.String() < q.World.String()
	}
	if p.Z() != q.Z() {
		return p.Z() < q.Z()
	}
	return p.X() < q.X()
}

func (p ChunkPos) String() string {
	return fmt.Sprintf("%s[%d,%d]", p.World, p.X(), p.Z())
}
