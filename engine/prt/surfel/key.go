package surfel

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Direction is one of the six signed principal axes a surfel normal is snapped to when choosing its brick.
type Direction uint8

const (
	DirPosX Direction = iota
	DirNegX
	DirPosY
	DirNegY
	DirPosZ
	DirNegZ
)

const (
	// cellBits is the width of each packed cell coordinate. Coordinates are biased by cellBias so the packed field
	// is unsigned; cells outside [-cellBias, cellBias) wrap.
	cellBits = 20
	cellBias = 1 << (cellBits - 1)
	cellMask = 1<<cellBits - 1
)

// DominantDirection snaps n to the signed axis with the largest absolute component. Ties resolve X, then Y, then
// Z, and a zero component counts as positive.
//
// Parameters:
//   - n: the surfel normal, not necessarily unit length
//
// Returns:
//   - Direction: the dominant signed axis
func DominantDirection(n mgl32.Vec3) Direction {
	axis := 0
	best := math32.Abs(n[0])
	for i := 1; i < 3; i++ {
		if a := math32.Abs(n[i]); a > best {
			best = a
			axis = i
		}
	}
	d := Direction(axis * 2)
	if n[axis] < 0 {
		d++
	}
	return d
}

// CellCoord returns the integer brick cell containing p.
//
// Parameters:
//   - p: world position
//   - brickSize: brick edge length, must be positive
//
// Returns:
//   - [3]int32: floor(p / brickSize) per axis
func CellCoord(p mgl32.Vec3, brickSize float32) [3]int32 {
	return [3]int32{
		int32(math32.Floor(p[0] / brickSize)),
		int32(math32.Floor(p[1] / brickSize)),
		int32(math32.Floor(p[2] / brickSize)),
	}
}

// BrickKey packs a cell coordinate and a direction into a 64-bit key: 20 bits per axis followed by 3 direction
// bits. Distinct cells within ±2^19 of the origin never collide.
//
// Parameters:
//   - cell: brick cell coordinate
//   - dir: dominant normal direction
//
// Returns:
//   - uint64: the brick key
func BrickKey(cell [3]int32, dir Direction) uint64 {
	x := uint64(uint32(cell[0]+cellBias) & cellMask)
	y := uint64(uint32(cell[1]+cellBias) & cellMask)
	z := uint64(uint32(cell[2]+cellBias) & cellMask)
	return x<<(2*cellBits+3) | y<<(cellBits+3) | z<<3 | uint64(dir)
}
