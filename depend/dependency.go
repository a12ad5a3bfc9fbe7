// Package depend implements immutable, versioned snapshots of the
// generator/stream/mesher a volume currently uses. Replacing any of them
// publishes a new snapshot and marks the previous one invalid, so
// in-flight tasks still holding it short-circuit and drop their results
// instead of racing a live swap. Grounded on the atomic-pointer
// snapshot-swap idiom used for camera/instance state in the reference
// engine, applied here to generator/stream/mesher handles.
package depend

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gekko3d/voxelcore/contracts"
)

// StreamingDependency is the snapshot a LoadBlockDataTask / GenerateBlockTask
// holds: the generator and stream in effect when the task was scheduled.
type StreamingDependency struct {
	Generation uuid.UUID
	Generator  contracts.Generator
	Stream     contracts.Stream
	valid      atomic.Bool
}

// MeshingDependency is the snapshot a MeshBlockTask holds.
type MeshingDependency struct {
	Generation uuid.UUID
	Mesher     contracts.Mesher
	valid      atomic.Bool
}

func NewStreamingDependency(gen contracts.Generator, stream contracts.Stream) *StreamingDependency {
	d := &StreamingDependency{Generation: uuid.New(), Generator: gen, Stream: stream}
	d.valid.Store(true)
	return d
}

func NewMeshingDependency(mesher contracts.Mesher) *MeshingDependency {
	d := &MeshingDependency{Generation: uuid.New(), Mesher: mesher}
	d.valid.Store(true)
	return d
}

// Valid reports whether this snapshot is still the one in effect.
func (d *StreamingDependency) Valid() bool { return d.valid.Load() }

// Invalidate marks this snapshot superseded. Idempotent.
func (d *StreamingDependency) Invalidate() { d.valid.Store(false) }

func (d *MeshingDependency) Valid() bool { return d.valid.Load() }
func (d *MeshingDependency) Invalidate() { d.valid.Store(false) }

// StreamingHandle holds the currently-published StreamingDependency,
// swapped atomically on reassignment. Outstanding tasks keep referencing
// the pointer they captured at scheduling time.
type StreamingHandle struct {
	current atomic.Pointer[StreamingDependency]
}

func NewStreamingHandle(gen contracts.Generator, stream contracts.Stream) *StreamingHandle {
	h := &StreamingHandle{}
	h.current.Store(NewStreamingDependency(gen, stream))
	return h
}

// Current returns the live snapshot. Safe to call without external
// locking from any goroutine.
func (h *StreamingHandle) Current() *StreamingDependency { return h.current.Load() }

// Replace publishes a new snapshot and invalidates the previous one.
func (h *StreamingHandle) Replace(gen contracts.Generator, stream contracts.Stream) *StreamingDependency {
	next := NewStreamingDependency(gen, stream)
	prev := h.current.Swap(next)
	if prev != nil {
		prev.Invalidate()
	}
	return next
}

// MeshingHandle is the MeshingDependency analogue of StreamingHandle.
type MeshingHandle struct {
	current atomic.Pointer[MeshingDependency]
}

func NewMeshingHandle(mesher contracts.Mesher) *MeshingHandle {
	h := &MeshingHandle{}
	h.current.Store(NewMeshingDependency(mesher))
	return h
}

func (h *MeshingHandle) Current() *MeshingDependency { return h.current.Load() }

func (h *MeshingHandle) Replace(mesher contracts.Mesher) *MeshingDependency {
	next := NewMeshingDependency(mesher)
	prev := h.current.Swap(next)
	if prev != nil {
		prev.Invalidate()
	}
	return next
}
