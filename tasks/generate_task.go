package tasks

import (
	"context"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/voxel"
)

// GenerateBlockTask implements §4.5.b: runs the generator (CPU or GPU),
// optionally applies modifier overlays, and optionally enqueues a follow-up
// save so that generated content is cached for next time.
type GenerateBlockTask struct {
	Position  voxel.IVec3
	Lod       int
	BlockSize int

	StreamDep  *depend.StreamingDependency
	PriorityFn PriorityFunc

	// Modifiers, if non-nil, is applied to the buffer after generation but
	// before the result is posted, in registration order.
	Modifiers []Modifier

	// SaveAfterGenerate requests a follow-up SaveBlockDataTask be enqueued
	// via OnNeedSave once generation completes, caching the result.
	SaveAfterGenerate bool
	OnNeedSave        func(pos voxel.IVec3, lod int, buf *voxel.VoxelBuffer)

	Sink DataOutputSink

	// gpuTicket is set when the generator took the submit/convert path and
	// Run returned StatusTakenOut; ResumeConvert must run before Pool.Resume.
	gpuTicket contracts.GPUTicket

	buf        *voxel.VoxelBuffer
	maxLodHint int
	err        error
}

// Modifier mutates a freshly generated buffer in place (e.g. persistent
// edits replayed over procedural content).
type Modifier interface {
	Apply(buf *voxel.VoxelBuffer, originVoxels voxel.IVec3, lod int)
}

func (t *GenerateBlockTask) Kind() Kind { return KindGenerate }
func (t *GenerateBlockTask) Lane() Lane { return LaneCompute }

func (t *GenerateBlockTask) Priority() priority.Key {
	k, _, _ := t.PriorityFn()
	return k
}

func (t *GenerateBlockTask) IsCancelled() bool {
	return t.StreamDep == nil || !t.StreamDep.Valid()
}

func (t *GenerateBlockTask) originVoxels() voxel.IVec3 {
	scale := int32(1) << uint(t.Lod)
	return voxel.IVec3{
		X: t.Position.X * int32(t.BlockSize) * scale,
		Y: t.Position.Y * int32(t.BlockSize) * scale,
		Z: t.Position.Z * int32(t.BlockSize) * scale,
	}
}

func (t *GenerateBlockTask) Run(ctx context.Context) Status {
	if t.IsCancelled() {
		return StatusDone
	}
	if t.gpuTicket != nil {
		// Resumed after ResumeConvert: the GPU result is already in t.buf.
		return StatusDone
	}
	gen := t.StreamDep.Generator
	if gen == nil {
		t.buf = nil
		return StatusDone
	}
	origin := t.originVoxels()

	if gpuGen, ok := gen.(contracts.GPUGenerator); ok {
		ticket, err := gpuGen.SubmitBlock(ctx, origin, t.Lod)
		if err != nil {
			t.err = err
			return StatusDone
		}
		t.gpuTicket = ticket
		return StatusTakenOut
	}

	buf := voxel.Create(voxel.IVec3{X: int32(t.BlockSize), Y: int32(t.BlockSize), Z: int32(t.BlockSize)})
	res, err := gen.GenerateBlock(ctx, buf, origin, t.Lod)
	if err != nil {
		t.err = err
		return StatusDone
	}
	t.maxLodHint = res.MaxLodHint
	t.applyModifiers(buf, origin)
	t.buf = buf
	return StatusDone
}

// ResumeConvert is invoked by the GPU backend once device results are
// ready, consuming the ticket and finishing the task off the GPU queue.
// The pool's Resume re-enqueues the task so ApplyResult still runs on the
// main thread via the ordinary completion channel.
func (t *GenerateBlockTask) ResumeConvert(ctx context.Context) {
	if t.gpuTicket == nil {
		return
	}
	buf := voxel.Create(voxel.IVec3{X: int32(t.BlockSize), Y: int32(t.BlockSize), Z: int32(t.BlockSize)})
	if err := t.gpuTicket.Consume(buf); err != nil {
		t.err = err
		return
	}
	t.applyModifiers(buf, t.originVoxels())
	t.buf = buf
}

func (t *GenerateBlockTask) applyModifiers(buf *voxel.VoxelBuffer, origin voxel.IVec3) {
	for _, m := range t.Modifiers {
		m.Apply(buf, origin, t.Lod)
	}
}

func (t *GenerateBlockTask) ApplyResult(dropped bool) {
	if !dropped && t.buf != nil && t.SaveAfterGenerate && t.OnNeedSave != nil {
		t.OnNeedSave(t.Position, t.Lod, t.buf)
	}
	if t.Sink == nil {
		return
	}
	t.Sink.OnBlockData(BlockDataOutput{
		Type:       DataGenerated,
		Position:   t.Position,
		Lod:        t.Lod,
		Voxels:     t.buf,
		Dropped:    dropped,
		MaxLodHint: t.maxLodHint,
		HadVoxels:  t.buf != nil,
	})
}
