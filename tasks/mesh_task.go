package tasks

import (
	"context"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/voxel"
)

// MeshBlockTask implements §4.5.d: builds a mesh block from a grid of
// neighbor data buffers (3x3x3 at mesh/data block size factor 1, 4x4x4 at
// factor 2, per meshmap.BlockSizeFactor).
type MeshBlockTask struct {
	Position voxel.IVec3
	Lod      int

	// Neighbors is indexed [z][flat local x,y index]; nil entries mean that
	// neighbor isn't currently loaded, meshed as empty/unknown by the
	// mesher.
	Neighbors     [][]*voxel.VoxelBuffer
	WantCollision bool

	MeshingDep *depend.MeshingDependency
	PriorityFn PriorityFunc

	Sink MeshOutputSink

	out contracts.MeshOutput
	err error
}

func (t *MeshBlockTask) Kind() Kind { return KindMesh }
func (t *MeshBlockTask) Lane() Lane { return LaneCompute }

func (t *MeshBlockTask) Priority() priority.Key {
	k, _, _ := t.PriorityFn()
	return k
}

// IsCancelled drops the task when the meshing dependency snapshot it holds
// has been superseded, identical in spirit to the streaming-dependency
// check generate/load tasks perform.
func (t *MeshBlockTask) IsCancelled() bool {
	return t.MeshingDep == nil || !t.MeshingDep.Valid()
}

func (t *MeshBlockTask) Run(ctx context.Context) Status {
	if t.IsCancelled() {
		return StatusDone
	}
	mesher := t.MeshingDep.Mesher
	if mesher == nil {
		return StatusDone
	}
	in := contracts.MeshInputs{Neighbors: t.Neighbors, Lod: t.Lod, WantCollision: t.WantCollision}
	out, err := mesher.Build(ctx, in)
	if err != nil {
		t.err = err
		return StatusDone
	}
	t.out = out
	return StatusDone
}

func (t *MeshBlockTask) ApplyResult(dropped bool) {
	if t.Sink == nil {
		return
	}
	outType := MeshMeshed
	if dropped {
		outType = MeshDropped
	}
	t.Sink.OnBlockMesh(BlockMeshOutput{
		Type:     outType,
		Position: t.Position,
		Lod:      t.Lod,
		Surfaces: t.out,
	})
}
