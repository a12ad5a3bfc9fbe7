package voximport

import "github.com/gekko3d/voxelcore/voxel"

// parseBasis decodes a packed rotation byte into a 3x3 integer basis.
// Bits 0-1 select which axis of the first row is non-zero, bits 2-3 the
// second row, the third is whatever axis is left over; bits 4-6 are the
// sign of each axis. The remaining remap mirrors the file's
// MagicaVoxel-to-engine axis convention (see magicaToEngine).
func parseBasis(data byte) Basis {
	xi := int(data & 0x03)
	yi := int((data >> 2) & 0x03)
	occupied := [3]bool{}
	occupied[xi] = true
	occupied[yi] = true
	zi := 2
	switch {
	case !occupied[0]:
		zi = 0
	case !occupied[1]:
		zi = 1
	}

	sign := func(bit uint) int32 {
		if (data>>bit)&1 == 1 {
			return -1
		}
		return 1
	}

	var x, y, z [3]int32
	x[xi] = sign(4)
	y[yi] = sign(5)
	z[zi] = sign(6)

	// Transpose the (x,y,z) rows into columns.
	magicaX := [3]int32{x[0], y[0], z[0]}
	magicaY := [3]int32{x[1], y[1], z[1]}
	magicaZ := [3]int32{x[2], y[2], z[2]}

	remap := func(v [3]int32) [3]int32 { return [3]int32{v[1], v[2], v[0]} }
	magicaX = remap(magicaX)
	magicaY = remap(magicaY)
	magicaZ = remap(magicaZ)

	newX, newY, newZ := magicaY, magicaZ, magicaX

	var b Basis
	b.Rows[0] = voxel.IVec3{X: newX[0], Y: newY[0], Z: newZ[0]}
	b.Rows[1] = voxel.IVec3{X: newX[1], Y: newY[1], Z: newZ[1]}
	b.Rows[2] = voxel.IVec3{X: newX[2], Y: newY[2], Z: newZ[2]}
	return b
}
