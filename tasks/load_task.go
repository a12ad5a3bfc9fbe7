package tasks

import (
	"context"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/voxel"
)

// LoadBlockDataTask implements §4.5.a.
type LoadBlockDataTask struct {
	Position         voxel.IVec3
	Lod              int
	BlockSize        int
	RequestInstances bool
	GenerateCache    bool

	StreamDep *depend.StreamingDependency
	PriorityFn PriorityFunc

	Sink DataOutputSink
	// OnGenerateCache is invoked instead of directly posting a LOADED
	// result when the stream reports not-found and GenerateCache is set:
	// the caller enqueues a follow-up GenerateBlockTask that will
	// cache-save its output.
	OnGenerateCache func(pos voxel.IVec3, lod int)

	result   *voxel.VoxelBuffer
	instances []byte
	outType  DataOutputType
	hadVoxels bool
	hadInstances bool
}

func (t *LoadBlockDataTask) Kind() Kind { return KindLoad }
func (t *LoadBlockDataTask) Lane() Lane { return LaneIO }

func (t *LoadBlockDataTask) Priority() priority.Key {
	k, _, _ := t.PriorityFn()
	return k
}

// IsCancelled drops the task when its stream dependency snapshot has been
// superseded. This resolves the Open Question in SPEC_FULL.md §9: an
// invalid snapshot means cancelled, full stop — see DESIGN.md.
func (t *LoadBlockDataTask) IsCancelled() bool {
	return t.StreamDep == nil || !t.StreamDep.Valid()
}

func (t *LoadBlockDataTask) Run(ctx context.Context) Status {
	if t.IsCancelled() {
		return StatusDone
	}
	q := contracts.BlockQuery{Position: t.Position, Lod: t.Lod, BlockSize: t.BlockSize}
	buf, err := t.StreamDep.Stream.LoadVoxelBlock(ctx, q)
	if err == nil {
		t.result = buf
		t.hadVoxels = buf != nil
		t.outType = DataLoaded
		if t.RequestInstances {
			if is, ok := t.StreamDep.Stream.(contracts.InstanceStream); ok {
				if data, ierr := is.LoadInstanceBlock(ctx, q); ierr == nil {
					t.instances = data
					t.hadInstances = len(data) > 0
				}
			}
		}
		return StatusDone
	}
	// Not found (or any other load error, per §7 "version mismatch on
	// deserialization" falls back identically): try generation.
	if t.StreamDep.Generator != nil {
		if t.GenerateCache && t.OnGenerateCache != nil {
			t.OnGenerateCache(t.Position, t.Lod)
			t.outType = DataGenerated
			return StatusDone
		}
		// Synthesize an empty block marker: a DataBlock with no buffer.
		t.result = nil
		t.outType = DataGenerated
		return StatusDone
	}
	t.result = nil
	t.outType = DataLoaded
	return StatusDone
}

func (t *LoadBlockDataTask) ApplyResult(dropped bool) {
	if t.Sink == nil {
		return
	}
	t.Sink.OnBlockData(BlockDataOutput{
		Type:         t.outType,
		Position:     t.Position,
		Lod:          t.Lod,
		Voxels:       t.result,
		Instances:    t.instances,
		Dropped:      dropped,
		InitialLoad:  true,
		HadVoxels:    t.hadVoxels,
		HadInstances: t.hadInstances,
	})
}
