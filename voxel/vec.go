package voxel

// IVec3 is a local, in-buffer integer coordinate. World-space math
// (distances, transforms) is the concern of higher-level packages, which
// use plain [3]float64 positions.
type IVec3 struct {
	X, Y, Z int32
}

func (v IVec3) Add(o IVec3) IVec3 { return IVec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v IVec3) Sub(o IVec3) IVec3 { return IVec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Box is an axis-aligned integer box, Min inclusive, Min+Size exclusive.
type Box struct {
	Min  IVec3
	Size IVec3
}

func (b Box) Contains(p IVec3) bool {
	return p.X >= b.Min.X && p.X < b.Min.X+b.Size.X &&
		p.Y >= b.Min.Y && p.Y < b.Min.Y+b.Size.Y &&
		p.Z >= b.Min.Z && p.Z < b.Min.Z+b.Size.Z
}

func (b Box) Volume() int64 {
	return int64(b.Size.X) * int64(b.Size.Y) * int64(b.Size.Z)
}
