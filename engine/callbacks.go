package engine

import "github.com/gekko3d/voxelcore/tasks"

// Callbacks are the per-volume sinks a host registers with AddVolume. Both
// are optional; a nil callback simply drops the corresponding output.
type Callbacks struct {
	OnBlockData func(tasks.BlockDataOutput)
	OnBlockMesh func(tasks.BlockMeshOutput)
}

type volumeDataSink struct{ v *Volume }

func (s volumeDataSink) OnBlockData(o tasks.BlockDataOutput) { s.v.handleBlockData(o) }

type volumeMeshSink struct{ v *Volume }

func (s volumeMeshSink) OnBlockMesh(o tasks.BlockMeshOutput) { s.v.handleBlockMesh(o) }
