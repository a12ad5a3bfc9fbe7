package streaming

import (
	"sync"

	"github.com/gekko3d/voxelcore/voxel"
)

// PendingSet tracks positions with an in-flight load, so sliding-box
// passes don't double-issue a load for a position already loading.
type PendingSet struct {
	mu  sync.Mutex
	set map[voxel.IVec3]bool
}

func NewPendingSet() *PendingSet {
	return &PendingSet{set: make(map[voxel.IVec3]bool)}
}

// TryMark reports whether pos was newly marked pending (true) or was
// already pending (false).
func (p *PendingSet) TryMark(pos voxel.IVec3) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.set[pos] {
		return false
	}
	p.set[pos] = true
	return true
}

func (p *PendingSet) Clear(pos voxel.IVec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.set, pos)
}

func (p *PendingSet) Has(pos voxel.IVec3) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set[pos]
}
