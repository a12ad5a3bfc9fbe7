// Package voximport reads MagicaVoxel .vox files into Model/SceneGraph
// data, for seeding or comparing against generated terrain during
// authoring. Grounded directly on the original engine's vox chunk reader:
// same chunk dispatch order, the same file-Z-up to engine-Y-up axis
// remap, and the same packed-basis rotation decode.
package voximport

import "github.com/gekko3d/voxelcore/voxel"

// NodeType discriminates the three scene-graph node kinds a .vox file can
// contain.
type NodeType int

const (
	NodeTransform NodeType = iota
	NodeGroup
	NodeShape
)

// Node is the common header shared by every scene-graph node: its id and
// free-form string attributes.
type Node struct {
	Type       NodeType
	ID         int32
	Attributes map[string]string

	// Transform-only fields.
	Name       string
	Hidden     bool
	ChildID    int32
	LayerID    int32
	Position   voxel.IVec3
	HasRotation bool
	Rotation   Basis

	// Group-only field.
	ChildIDs []int32

	// Shape-only fields.
	ModelID          int32
	ModelAttributes  map[string]string
}

// Basis is a 3x3 rotation matrix, decoded from a packed-basis byte.
type Basis struct {
	Rows [3]voxel.IVec3
}

// Layer is one entry of a .vox file's LAYR chunk.
type Layer struct {
	ID         int32
	Name       string
	Hidden     bool
	Attributes map[string]string
}

// MaterialType enumerates the handful of material kinds MATL declares.
type MaterialType int

const (
	MaterialDiffuse MaterialType = iota
	MaterialMetal
	MaterialGlass
	MaterialEmit
	MaterialUnknown
)

// Material is one entry of a .vox file's MATL chunk.
type Material struct {
	ID         int32
	Type       MaterialType
	Weight     float64
	Roughness  float64
	Specular   float64
	IOR        float64
	Att        float64
	Flux       float64
}

// Model is one XYZI chunk: a dense color-index grid sized by the SIZE
// chunk that precedes it, remapped into engine (Y-up) space.
type Model struct {
	Size        voxel.IVec3
	ColorIndex  []byte // zxy-ordered, len == Size.X*Size.Y*Size.Z
}

// Color8 is one 8-bit-per-channel RGBA palette entry.
type Color8 struct {
	R, G, B, A uint8
}

// zxyIndex matches VoxelBuffer's own z,x,y cell ordering.
func zxyIndex(pos, size voxel.IVec3) int {
	return int((pos.Z*size.X+pos.X)*size.Y + pos.Y)
}
