package tasks

import (
	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
)

// DataOutputType distinguishes why a BlockDataOutput was posted.
type DataOutputType int

const (
	DataLoaded DataOutputType = iota
	DataGenerated
	DataSaved
)

// BlockDataOutput is posted to the volume's data callback from
// ApplyResult, per §6.
type BlockDataOutput struct {
	Type         DataOutputType
	Position     voxel.IVec3
	Lod          int
	Voxels       *voxel.VoxelBuffer
	Instances    []byte
	Dropped      bool
	MaxLodHint   int
	InitialLoad  bool
	HadVoxels    bool
	HadInstances bool
}

// MeshOutputType distinguishes why a BlockMeshOutput was posted.
type MeshOutputType int

const (
	MeshMeshed MeshOutputType = iota
	MeshDropped
)

// BlockMeshOutput is posted to the volume's mesh callback from
// ApplyResult, per §6.
type BlockMeshOutput struct {
	Type     MeshOutputType
	Position voxel.IVec3
	Lod      int
	Surfaces contracts.MeshOutput
}

// DataOutputSink receives BlockDataOutput records. The main-thread
// applier forwards to whatever the volume registered.
type DataOutputSink interface {
	OnBlockData(BlockDataOutput)
}

// MeshOutputSink receives BlockMeshOutput records.
type MeshOutputSink interface {
	OnBlockMesh(BlockMeshOutput)
}

// DataOutputSinkFunc adapts a function to a DataOutputSink.
type DataOutputSinkFunc func(BlockDataOutput)

func (f DataOutputSinkFunc) OnBlockData(o BlockDataOutput) { f(o) }

// MeshOutputSinkFunc adapts a function to a MeshOutputSink.
type MeshOutputSinkFunc func(BlockMeshOutput)

func (f MeshOutputSinkFunc) OnBlockMesh(o BlockMeshOutput) { f(o) }
