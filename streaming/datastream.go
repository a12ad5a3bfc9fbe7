package streaming

import (
	"github.com/gekko3d/voxelcore/datamap"
	"github.com/gekko3d/voxelcore/voxel"
)

// DataMapUnloadHooks are the side effects DataMapSlide triggers: enqueue a
// save for a dirty block being dropped, enqueue a load for a newly
// entered position, and notify listeners of an unload.
type DataMapUnloadHooks struct {
	SaveOnUnload func(pos voxel.IVec3, block *datamap.DataBlock)
	LoadNew      func(pos voxel.IVec3)
	OnUnloaded   func(pos voxel.IVec3)
}

// DataMapSlide implements §4.6 for a single (non-largest) LOD: computes the
// prev/new sliding boxes, unloads the set difference (saving dirty blocks
// first) and schedules loads for newly covered positions not already
// loaded.
func DataMapSlide(m *datamap.DataMap, prevBox, newBox Box, loading *PendingSet, hooks DataMapUnloadHooks) {
	for _, pos := range Removed(prevBox, newBox) {
		block := m.Get(pos)
		if block == nil {
			continue
		}
		if block.Modified && hooks.SaveOnUnload != nil {
			hooks.SaveOnUnload(pos, block)
		}
		m.Delete(pos)
		loading.Clear(pos)
		if hooks.OnUnloaded != nil {
			hooks.OnUnloaded(pos)
		}
	}
	for _, pos := range Added(prevBox, newBox) {
		if m.Has(pos) {
			continue
		}
		if !loading.TryMark(pos) {
			continue
		}
		if hooks.LoadNew != nil {
			hooks.LoadNew(pos)
		}
	}
}
