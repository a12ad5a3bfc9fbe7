// Package datamap implements the per-LOD chunk map: DataBlock, DataMap and
// DataLodMap (§3, §4.6). Grounded on the reference engine's per-entity
// world-map pattern (stale-entry cleanup on a keyed map under a lock),
// generalized here from entity keys to (position, lod) chunk identity.
package datamap

import (
	"sync"
	"sync/atomic"

	"github.com/gekko3d/voxelcore/voxel"
)

// DataBlock is a chunk record. A DataBlock with a nil Buffer is valid and
// means "known-empty/unedited" — a marker that avoids reloading the same
// position repeatedly.
type DataBlock struct {
	Buffer *voxel.VoxelBuffer

	Modified     bool
	Edited       bool
	NeedsLodding bool
	LodIndex     int

	viewers int32
}

// AddViewer increments the viewer refcount.
func (b *DataBlock) AddViewer() { atomic.AddInt32(&b.viewers, 1) }

// RemoveViewer decrements the viewer refcount and reports the count after
// the decrement.
func (b *DataBlock) RemoveViewer() int32 { return atomic.AddInt32(&b.viewers, -1) }

// ViewerCount returns the current refcount.
func (b *DataBlock) ViewerCount() int32 { return atomic.LoadInt32(&b.viewers) }

// DataMap is a single LOD's position -> DataBlock map, guarded by a
// reader/writer lock: readers lock for lookups, writers lock for
// insertion, deletion and replacement.
type DataMap struct {
	mu        sync.RWMutex
	blocks    map[voxel.IVec3]*DataBlock
	blockSize int
}

func NewDataMap(blockSize int) *DataMap {
	return &DataMap{blocks: make(map[voxel.IVec3]*DataBlock), blockSize: blockSize}
}

func (m *DataMap) BlockSize() int { return m.blockSize }

// Get returns the block at pos, or nil if absent.
func (m *DataMap) Get(pos voxel.IVec3) *DataBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[pos]
}

// Set installs a block at pos, replacing any existing one. Invariant:
// for every position and LOD, at most one DataBlock exists — enforced by
// this map simply being a Go map keyed on position.
func (m *DataMap) Set(pos voxel.IVec3, b *DataBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[pos] = b
}

// Delete removes the block at pos, if any.
func (m *DataMap) Delete(pos voxel.IVec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, pos)
}

// Has reports whether pos has a block, without copying it out.
func (m *DataMap) Has(pos voxel.IVec3) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[pos]
	return ok
}

// Positions returns a snapshot of every currently-loaded position.
func (m *DataMap) Positions() []voxel.IVec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]voxel.IVec3, 0, len(m.blocks))
	for p := range m.blocks {
		out = append(out, p)
	}
	return out
}

// Len reports how many blocks are currently loaded.
func (m *DataMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// DataLodMap is a fixed-size array of DataMaps, one per LOD level.
type DataLodMap struct {
	maps []*DataMap
}

// NewDataLodMap creates lodCount DataMaps, all with the same blockSize:
// a block's edge in voxels does not change with LOD, only the voxel size
// doubles per LOD step. lodCount must be <= 32.
func NewDataLodMap(lodCount int, blockSize int) *DataLodMap {
	if lodCount > 32 {
		lodCount = 32
	}
	maps := make([]*DataMap, lodCount)
	for i := range maps {
		maps[i] = NewDataMap(blockSize)
	}
	return &DataLodMap{maps: maps}
}

func (d *DataLodMap) LodCount() int { return len(d.maps) }

func (d *DataLodMap) At(lod int) *DataMap {
	if lod < 0 || lod >= len(d.maps) {
		return nil
	}
	return d.maps[lod]
}
