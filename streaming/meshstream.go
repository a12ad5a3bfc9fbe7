package streaming

import (
	"github.com/gekko3d/voxelcore/meshmap"
	"github.com/gekko3d/voxelcore/voxel"
)

// MeshMapSlide implements §4.7: same shape as DataMapSlide but acting on a
// MeshMap. Unloaded mesh blocks are dropped outright and their pending
// update, if any, is cancelled; positions that fell out of the padded new
// box also have any pending update cancelled even when the block itself
// stays loaded (it just isn't due an update right now).
func MeshMapSlide(m *meshmap.MeshMap, prevBox, newBox Box, paddedNewBox Box, onScheduleLoad func(pos voxel.IVec3)) {
	for _, pos := range Removed(prevBox, newBox) {
		if m.Get(pos) == nil {
			continue
		}
		m.Delete(pos)
	}
	for _, pos := range m.Positions() {
		if !paddedNewBox.Contains(pos) {
			m.CancelPending(pos)
		}
	}
	for _, pos := range Added(prevBox, newBox) {
		if m.Get(pos) != nil {
			continue
		}
		if onScheduleLoad != nil {
			onScheduleLoad(pos)
		}
	}
}
