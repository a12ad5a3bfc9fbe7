// Package meshmap implements the per-LOD meshed-chunk record (MeshBlock)
// and its state machine (§4.8), plus the MeshMap owning them per LOD.
// Grounded on the reference engine's budget-per-frame edit-draining
// pattern for the scheduling shape, and its RenderMode-style small-enum
// state handling for the state machine itself.
package meshmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
)

// State is a MeshBlock's position in the update lifecycle.
type State int32

const (
	NeverUpdated State = iota
	NeedUpdate
	UpdateNotSent
	UpdateSent
	UpToDate
)

func (s State) String() string {
	switch s {
	case NeverUpdated:
		return "NEVER_UPDATED"
	case NeedUpdate:
		return "NEED_UPDATE"
	case UpdateNotSent:
		return "UPDATE_NOT_SENT"
	case UpdateSent:
		return "UPDATE_SENT"
	case UpToDate:
		return "UP_TO_DATE"
	default:
		return "UNKNOWN"
	}
}

// MeshBlock holds the currently displayed mesh identity, the transition
// mask and active flag, and the update state machine. No voxel data.
type MeshBlock struct {
	state State32

	Active          bool
	TransitionMask  uint8
	LastMesh        *contracts.MeshOutput
	CollisionDirty  bool
	collisionLastMs int64

	// FadeAlpha is an optional 0..1 cross-fade value used when activating
	// or deactivating a block against an adjacent LOD.
	FadeAlpha float32
}

// State32 wraps an atomic int32 so MeshBlock.State's compare-exchange can
// be lock-free, matching the spec's description of an atomic
// UPDATE_SENT -> UP_TO_DATE transition.
type State32 struct{ v int32 }

func (s *State32) Load() State          { return State(atomic.LoadInt32(&s.v)) }
func (s *State32) Store(v State)        { atomic.StoreInt32(&s.v, int32(v)) }
func (s *State32) CAS(old, next State) bool {
	return atomic.CompareAndSwapInt32(&s.v, int32(old), int32(next))
}

func NewMeshBlock() *MeshBlock {
	return &MeshBlock{}
}

// CollisionLastMs returns the millisecond timestamp of the last collider
// rebuild, for rate-limiting by the main-thread applier.
func (b *MeshBlock) CollisionLastMs() int64 { return b.collisionLastMs }

// SetCollisionLastMs records the millisecond timestamp of a just-completed
// collider rebuild.
func (b *MeshBlock) SetCollisionLastMs(ms int64) { b.collisionLastMs = ms }

func (b *MeshBlock) State() State { return b.state.Load() }

// ScheduleMeshUpdate implements §4.8's schedule_mesh_update transition: if
// not already UPDATE_NOT_SENT and the block is active, move to
// UPDATE_NOT_SENT and report that it should be appended to
// blocks_pending_update. If inactive, it is simply marked NEED_UPDATE for
// the visibility system to pick up later.
func (b *MeshBlock) ScheduleMeshUpdate() (shouldEnqueue bool) {
	if !b.Active {
		b.state.Store(NeedUpdate)
		return false
	}
	if b.state.Load() == UpdateNotSent {
		return false
	}
	b.state.Store(UpdateNotSent)
	return true
}

// Dispatch marks the block as having had a task handed to the pool:
// UPDATE_NOT_SENT -> UPDATE_SENT.
func (b *MeshBlock) Dispatch() {
	b.state.Store(UpdateSent)
}

// CompleteResult applies an arrived mesh result. It uses a
// compare-and-swap from UPDATE_SENT to UP_TO_DATE; if an edit happened
// meanwhile the state will already be NEED_UPDATE, in which case the
// result is still applied but the CAS fails, signalling the caller to
// reschedule.
func (b *MeshBlock) CompleteResult(mesh *contracts.MeshOutput) (needsReschedule bool) {
	b.LastMesh = mesh
	if b.state.CAS(UpdateSent, UpToDate) {
		return false
	}
	return true
}

// MeshMap owns MeshBlocks for one LOD, guarded by a reader/writer lock.
type MeshMap struct {
	mu             sync.RWMutex
	blocks         map[voxel.IVec3]*MeshBlock
	pendingUpdate  map[voxel.IVec3]bool
}

func NewMeshMap() *MeshMap {
	return &MeshMap{
		blocks:        make(map[voxel.IVec3]*MeshBlock),
		pendingUpdate: make(map[voxel.IVec3]bool),
	}
}

func (m *MeshMap) GetOrCreate(pos voxel.IVec3) *MeshBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[pos]
	if !ok {
		b = NewMeshBlock()
		m.blocks[pos] = b
	}
	return b
}

func (m *MeshMap) Get(pos voxel.IVec3) *MeshBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[pos]
}

func (m *MeshMap) Delete(pos voxel.IVec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, pos)
	delete(m.pendingUpdate, pos)
}

// ScheduleMeshUpdate wraps MeshBlock.ScheduleMeshUpdate and tracks the
// position in blocks_pending_update when it should be enqueued.
func (m *MeshMap) ScheduleMeshUpdate(pos voxel.IVec3) {
	b := m.GetOrCreate(pos)
	if b.ScheduleMeshUpdate() {
		m.mu.Lock()
		m.pendingUpdate[pos] = true
		m.mu.Unlock()
	}
}

// DrainPendingUpdates returns and clears the set of positions queued for a
// mesh task dispatch.
func (m *MeshMap) DrainPendingUpdates() []voxel.IVec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]voxel.IVec3, 0, len(m.pendingUpdate))
	for p := range m.pendingUpdate {
		out = append(out, p)
	}
	m.pendingUpdate = make(map[voxel.IVec3]bool)
	return out
}

// CancelPending removes pos from blocks_pending_update without touching
// its block's state, matching mesh-map unload cancellation (§4.7).
func (m *MeshMap) CancelPending(pos voxel.IVec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingUpdate, pos)
}

// Positions returns a snapshot of every currently-tracked position.
func (m *MeshMap) Positions() []voxel.IVec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]voxel.IVec3, 0, len(m.blocks))
	for p := range m.blocks {
		out = append(out, p)
	}
	return out
}

// LodMeshMap is a fixed-size array of MeshMaps, one per LOD level,
// mirroring datamap.DataLodMap.
type LodMeshMap struct {
	maps []*MeshMap
}

// NewLodMeshMap creates lodCount MeshMaps, capped at 32 per §3.
func NewLodMeshMap(lodCount int) *LodMeshMap {
	if lodCount > 32 {
		lodCount = 32
	}
	maps := make([]*MeshMap, lodCount)
	for i := range maps {
		maps[i] = NewMeshMap()
	}
	return &LodMeshMap{maps: maps}
}

func (d *LodMeshMap) LodCount() int { return len(d.maps) }

func (d *LodMeshMap) At(lod int) *MeshMap {
	if lod < 0 || lod >= len(d.maps) {
		return nil
	}
	return d.maps[lod]
}

// BlockSizeFactor validates the mesh/data block size ratio. Only exact
// factors 1 and 2 are supported (Open Question in SPEC_FULL.md §9); other
// combinations are a caller error, surfaced here as an error return rather
// than an assertion-abort, since Go has no process-wide assert the rest of
// this codebase uses.
func BlockSizeFactor(meshBlockSize, dataBlockSize int) (int, error) {
	if dataBlockSize <= 0 || meshBlockSize%dataBlockSize != 0 {
		return 0, fmt.Errorf("meshmap: mesh block size %d is not a multiple of data block size %d", meshBlockSize, dataBlockSize)
	}
	factor := meshBlockSize / dataBlockSize
	if factor != 1 && factor != 2 {
		return 0, fmt.Errorf("meshmap: unsupported mesh/data block size factor %d (only 1 and 2 are supported)", factor)
	}
	return factor, nil
}
