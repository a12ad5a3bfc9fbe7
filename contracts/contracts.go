// Package contracts declares the pluggable producer/sink interfaces the
// task pipeline operates against: Generator, Stream and Mesher. Only their
// contracts live here — concrete procedural graphs, blocky meshers,
// transvoxel meshers and file backends are external collaborators.
package contracts

import (
	"context"

	"github.com/gekko3d/voxelcore/voxel"
)

// GenerateResult is returned by a successful Generator.GenerateBlock call.
type GenerateResult struct {
	// MaxLodHint optionally tells the caller that this block (and its
	// neighbors) are trivially uniform well past this LOD, letting the
	// octree driver skip finer subdivision there.
	MaxLodHint int
}

// Generator produces voxel content for a block. Implementations must be
// safe for concurrent use by multiple worker goroutines.
type Generator interface {
	// GenerateBlock fills buf for the block whose origin (in voxel space)
	// and lod are given. May take arbitrary time; callers run it off the
	// main thread.
	GenerateBlock(ctx context.Context, buf *voxel.VoxelBuffer, originVoxels voxel.IVec3, lod int) (GenerateResult, error)
}

// BroadGenerator is an optional capability: a cheap check for whether an
// entire block is trivially uniform (e.g. far above terrain), letting
// callers bypass detailed generation.
type BroadGenerator interface {
	// IsBlockUniform reports whether the whole block would generate to a
	// single uniform value, and what that value is, without doing full
	// generation.
	IsBlockUniform(originVoxels voxel.IVec3, lod int) (uniform bool, value uint64)
}

// GPUGenerator is the optional GPU back-end capability of a Generator: it
// splits generation into a submit step (returns immediately) and a later
// convert step once the device produces results, matching the task
// pipeline's TAKEN_OUT hand-off.
type GPUGenerator interface {
	// SubmitBlock enqueues GPU work for the block and returns a handle the
	// task pipeline polls or is notified on.
	SubmitBlock(ctx context.Context, originVoxels voxel.IVec3, lod int) (GPUTicket, error)
}

// GPUTicket identifies in-flight GPU generation work.
type GPUTicket interface {
	// Ready reports whether the device has produced results.
	Ready() bool
	// Consume copies device results into buf and releases the ticket.
	// Called at most once.
	Consume(buf *voxel.VoxelBuffer) error
}

// BlockQuery addresses a single chunk for stream I/O.
type BlockQuery struct {
	Position voxel.IVec3
	Lod      int
	BlockSize int
}

// ErrNotFound is returned by Stream.LoadVoxelBlock when the position has
// never been saved.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "contracts: block not found" }

// Stream is a persistent chunk store. I/O is expected to be serial
// per-volume; implementations need not be internally thread-safe across
// concurrent calls from the same volume, but must be safe to call from
// whichever single goroutine the I/O lane schedules them on.
type Stream interface {
	LoadVoxelBlock(ctx context.Context, q BlockQuery) (*voxel.VoxelBuffer, error)
	SaveVoxelBlock(ctx context.Context, q BlockQuery, buf *voxel.VoxelBuffer) error
	// Flush persists any buffered writes. Called after the last pending
	// save of a batch completes (see depend.Tracker).
	Flush(ctx context.Context) error
}

// BulkLoader is an optional Stream capability for streams that can load
// every known block in one pass (e.g. at volume startup).
type BulkLoader interface {
	LoadAllBlocks(ctx context.Context) (map[voxel.IVec3]*voxel.VoxelBuffer, error)
}

// InstanceStream is an optional Stream capability for instance (scatter
// object) block I/O, kept separate from voxel I/O because not every
// stream backend supports instances.
type InstanceStream interface {
	LoadInstanceBlock(ctx context.Context, q BlockQuery) ([]byte, error)
	SaveInstanceBlock(ctx context.Context, q BlockQuery, data []byte) error
}

// MeshInputs bundles the neighbor data needed to build one mesh block: a
// 3x3x3 or 4x4x4 grid of neighbor buffers depending on the mesh/data block
// size factor (see config.Settings.MeshBlockSizeFactor).
type MeshInputs struct {
	Neighbors  [][]*voxel.VoxelBuffer // indexed [z][local flat index], nil where the neighbor isn't loaded
	Lod        int
	WantCollision bool
}

// Surface is one renderable triangle set.
type Surface struct {
	Positions  []float32 // 3 floats per vertex
	Normals    []float32 // 3 floats per vertex
	UVs        []float32 // 2 floats per vertex
	Indices    []uint32
	MaterialID int
}

// MeshOutput is what a Mesher produces for one mesh block.
type MeshOutput struct {
	PrimitiveType int
	MeshFlags     int
	Main          Surface
	Transitions   [6]Surface // one per cube side, empty if unused
	HasCollision  bool
	Collision     Surface
}

// Mesher turns neighbor voxel data into renderable surfaces. Must be
// thread-safe.
type Mesher interface {
	Build(ctx context.Context, in MeshInputs) (MeshOutput, error)
}
