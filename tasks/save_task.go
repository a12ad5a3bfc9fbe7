package tasks

import (
	"context"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/voxel"
)

// SaveBlockDataTask implements §4.5.c. Unlike load/generate/mesh, a save is
// never cancelled by stream invalidation: once a block is dirty it must
// reach disk even if the volume's stream is being swapped out, since the
// old stream is still the correct target for data written under it.
type SaveBlockDataTask struct {
	Position voxel.IVec3
	Lod      int
	BlockSize int

	Stream contracts.Stream

	Voxels    *voxel.VoxelBuffer
	Instances []byte
	HasInstances bool

	PriorityFn PriorityFunc

	// FlushTracker, if non-nil, is Done() after this save completes; when
	// it reaches zero the registered callback flushes the stream. Gates
	// §4.5.c's "flush after the last pending write of a batch".
	FlushTracker *depend.Tracker

	Sink DataOutputSink

	err error
}

// NewSaveVoxelsTask constructs a save task for voxel content only.
func NewSaveVoxelsTask(pos voxel.IVec3, lod, blockSize int, stream contracts.Stream, buf *voxel.VoxelBuffer) *SaveBlockDataTask {
	return &SaveBlockDataTask{Position: pos, Lod: lod, BlockSize: blockSize, Stream: stream, Voxels: buf}
}

// NewSaveInstancesTask constructs a save task for instance content only.
func NewSaveInstancesTask(pos voxel.IVec3, lod, blockSize int, stream contracts.Stream, data []byte) *SaveBlockDataTask {
	return &SaveBlockDataTask{Position: pos, Lod: lod, BlockSize: blockSize, Stream: stream, Instances: data, HasInstances: true}
}

func (t *SaveBlockDataTask) Kind() Kind { return KindSave }
func (t *SaveBlockDataTask) Lane() Lane { return LaneIO }

func (t *SaveBlockDataTask) Priority() priority.Key {
	if t.PriorityFn == nil {
		return priority.Pack(priority.BandMax, 0, priority.ClassSave, priority.DefaultBand3)
	}
	k, _, _ := t.PriorityFn()
	return k
}

// IsCancelled is always false: saves run to completion regardless of
// dependency invalidation.
func (t *SaveBlockDataTask) IsCancelled() bool { return false }

func (t *SaveBlockDataTask) Run(ctx context.Context) Status {
	if t.Stream == nil {
		return StatusDone
	}
	q := contracts.BlockQuery{Position: t.Position, Lod: t.Lod, BlockSize: t.BlockSize}
	if t.Voxels != nil {
		if err := t.Stream.SaveVoxelBlock(ctx, q, t.Voxels); err != nil {
			t.err = err
		}
	}
	if t.HasInstances {
		if is, ok := t.Stream.(contracts.InstanceStream); ok {
			if err := is.SaveInstanceBlock(ctx, q, t.Instances); err != nil && t.err == nil {
				t.err = err
			}
		}
	}
	return StatusDone
}

func (t *SaveBlockDataTask) ApplyResult(dropped bool) {
	if t.FlushTracker != nil {
		t.FlushTracker.Done()
	}
	if t.Sink == nil {
		return
	}
	t.Sink.OnBlockData(BlockDataOutput{
		Type:      DataSaved,
		Position:  t.Position,
		Lod:       t.Lod,
		Voxels:    t.Voxels,
		Instances: t.Instances,
		Dropped:   dropped,
	})
}
