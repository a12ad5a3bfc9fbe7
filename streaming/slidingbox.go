// Package streaming implements the data-map and mesh-map sliding-box
// unload/load passes (§4.6, §4.7), edit propagation/LOD mipping (§4.10),
// and async edit handling (§4.11). Grounded on the reference engine's
// world streaming grid (mod_spatialgrid.go) for the sliding-region set
// difference shape, generalized here from entity visibility cells to
// per-LOD voxel chunk maps.
package streaming

import "github.com/gekko3d/voxelcore/voxel"

// Box is a cubic region of block coordinates (inclusive min, exclusive
// max per axis), used for sliding-window set-difference computation.
type Box struct {
	Min, Max voxel.IVec3
}

// NewCenteredBox builds a box of the given half-extent (in blocks) around
// center.
func NewCenteredBox(center voxel.IVec3, halfExtent int32) Box {
	return Box{
		Min: voxel.IVec3{X: center.X - halfExtent, Y: center.Y - halfExtent, Z: center.Z - halfExtent},
		Max: voxel.IVec3{X: center.X + halfExtent + 1, Y: center.Y + halfExtent + 1, Z: center.Z + halfExtent + 1},
	}
}

func (b Box) Contains(p voxel.IVec3) bool {
	return p.X >= b.Min.X && p.X < b.Max.X &&
		p.Y >= b.Min.Y && p.Y < b.Max.Y &&
		p.Z >= b.Min.Z && p.Z < b.Max.Z
}

func (b Box) Padded(n int32) Box {
	return Box{
		Min: voxel.IVec3{X: b.Min.X - n, Y: b.Min.Y - n, Z: b.Min.Z - n},
		Max: voxel.IVec3{X: b.Max.X + n, Y: b.Max.Y + n, Z: b.Max.Z + n},
	}
}

// Positions enumerates every block coordinate in the box. Only used for
// modestly sized regions (sliding-box deltas), never a whole LOD map.
func (b Box) Positions() []voxel.IVec3 {
	out := make([]voxel.IVec3, 0)
	for z := b.Min.Z; z < b.Max.Z; z++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			for y := b.Min.Y; y < b.Max.Y; y++ {
				out = append(out, voxel.IVec3{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// Removed returns every position in prev but not in next (set difference
// prev - next), the entries to unload.
func Removed(prev, next Box) []voxel.IVec3 {
	out := make([]voxel.IVec3, 0)
	for _, p := range prev.Positions() {
		if !next.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

// Added returns every position in next but not in prev (set difference
// next - prev), the entries to load.
func Added(prev, next Box) []voxel.IVec3 {
	out := make([]voxel.IVec3, 0)
	for _, p := range next.Positions() {
		if !prev.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
