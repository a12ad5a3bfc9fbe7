package octree

import "github.com/gekko3d/voxelcore/voxel"

// side ordering: +X, -X, +Y, -Y, +Z, -Z, one bit per side in the mask.
var sideNormals = [6]voxel.IVec3{
	{X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
}

// sidePlaneAxes lists, per side, the pair of axes varied to enumerate the
// four lod-1 children on that side (the axes
// orthogonal to that side's normal).
var sidePlaneAxes = [6][2]int{
	{1, 2}, {1, 2}, // X sides: vary Y,Z
	{0, 2}, {0, 2}, // Y sides: vary X,Z
	{0, 1}, {0, 1}, // Z sides: vary X,Y
}

// ActiveQuery reports whether a mesh block at (pos, lod) is currently
// active, used by ComputeTransitionMask to probe same-lod, coarser and
// finer neighbors.
type ActiveQuery func(pos voxel.IVec3, lod int) bool

// ComputeTransitionMask computes the 6-bit transition mask for the active
// block at (pos, lod), per §4.9's "Transition mask" rules:
//  1. a same-lod neighbor sets its bit directly;
//  2. otherwise a same-or-coarser (lod+1) neighbor sets the bit;
//  3. otherwise, if lod > 0, the bit is set only when none of the four
//     lod-1 children on that side are active (a world/load-frontier
//     border is conservatively treated as a coarser neighbor); at lod 0
//     there is no finer level to probe, so the border case always sets
//     the bit once the first two checks fail.
func ComputeTransitionMask(pos voxel.IVec3, lod int, active ActiveQuery) uint8 {
	var mask uint8
	for side, normal := range sideNormals {
		neighbor := voxel.IVec3{X: pos.X + normal.X, Y: pos.Y + normal.Y, Z: pos.Z + normal.Z}
		if active(neighbor, lod) {
			continue
		}
		coarseNeighbor := voxel.IVec3{
			X: floorDiv2(neighbor.X),
			Y: floorDiv2(neighbor.Y),
			Z: floorDiv2(neighbor.Z),
		}
		if active(coarseNeighbor, lod+1) {
			mask |= 1 << uint(side)
			continue
		}
		if lod > 0 {
			if !anyFinerChildActive(pos, normal, lod, side, active) {
				mask |= 1 << uint(side)
			}
			continue
		}
		mask |= 1 << uint(side)
	}
	return mask
}

func anyFinerChildActive(pos voxel.IVec3, normal voxel.IVec3, lod, side int, active ActiveQuery) bool {
	base := voxel.IVec3{X: (pos.X + normal.X) * 2, Y: (pos.Y + normal.Y) * 2, Z: (pos.Z + normal.Z) * 2}
	// On a negative side the children touching this block are the odd
	// layer of the neighbor, one past its even origin.
	if normal.X < 0 {
		base.X++
	}
	if normal.Y < 0 {
		base.Y++
	}
	if normal.Z < 0 {
		base.Z++
	}
	axes := sidePlaneAxes[side]
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			p := base
			setAxis(&p, axes[0], getAxis(base, axes[0])+int32(a))
			setAxis(&p, axes[1], getAxis(p, axes[1])+int32(b))
			if active(p, lod-1) {
				return true
			}
		}
	}
	return false
}

func getAxis(p voxel.IVec3, axis int) int32 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

func setAxis(p *voxel.IVec3, axis int, v int32) {
	switch axis {
	case 0:
		p.X = v
	case 1:
		p.Y = v
	default:
		p.Z = v
	}
}

// floorDiv2 is arithmetic right shift by 1, matching C++'s `>> 1` on
// non-negative coordinates; for negative coordinates it rounds toward
// negative infinity, which is what adjoining a coarser block requires.
func floorDiv2(v int32) int32 {
	if v >= 0 {
		return v >> 1
	}
	return -((-v + 1) >> 1)
}
