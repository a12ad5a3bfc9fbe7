package octree

import (
	"testing"

	"github.com/gekko3d/voxelcore/voxel"
)

type fakeWorld struct {
	ready       map[blockKey]bool
	upToDate    map[blockKey]bool
	active      map[blockKey]bool
	loadCalls   []blockKey
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		ready:    map[blockKey]bool{},
		upToDate: map[blockKey]bool{},
		active:   map[blockKey]bool{},
	}
}

func (w *fakeWorld) Ready(pos voxel.IVec3, lod int) bool       { return w.ready[blockKey{pos, lod}] }
func (w *fakeWorld) MeshUpToDate(pos voxel.IVec3, lod int) bool { return w.upToDate[blockKey{pos, lod}] }
func (w *fakeWorld) RequestLoad(pos voxel.IVec3, lod int) {
	w.loadCalls = append(w.loadCalls, blockKey{pos, lod})
}
func (w *fakeWorld) ActivateMeshBlock(pos voxel.IVec3, lod int) {
	w.active[blockKey{pos, lod}] = true
}
func (w *fakeWorld) DeactivateMeshBlock(pos voxel.IVec3, lod int) {
	delete(w.active, blockKey{pos, lod})
}

func TestDriver_CreatesRootOnceReady(t *testing.T) {
	world := newFakeWorld()
	d := NewDriver(2, 16, []float64{1e9, 1e9})

	blocked := d.Update(world, [3]float64{0, 0, 0})
	if blocked == 0 {
		t.Fatalf("expected a blocked root before any block is ready")
	}
	if len(world.loadCalls) == 0 {
		t.Errorf("expected a load request for the missing root")
	}

	// Mark every requested root ready and force a re-run.
	for _, k := range world.loadCalls {
		world.ready[k] = true
	}
	d.ForceUpdate()
	blocked = d.Update(world, [3]float64{0, 0, 0})
	if blocked != 0 {
		t.Errorf("expected no blocked nodes once roots are ready, got %d", blocked)
	}
	if len(world.active) == 0 {
		t.Errorf("expected at least one active root mesh block")
	}
}

func TestDriver_SplitsWhenWithinThresholdAndChildrenReady(t *testing.T) {
	world := newFakeWorld()
	// Large threshold at rootLod so the root always wants to split once
	// children are ready; lod0 threshold irrelevant since there is no
	// further split below 0.
	d := NewDriver(2, 16, []float64{1e9, 1e9})

	// First update: no data ready anywhere, root blocked.
	d.Update(world, [3]float64{0, 0, 0})
	for _, k := range world.loadCalls {
		world.ready[k] = true
	}
	d.ForceUpdate()
	d.Update(world, [3]float64{0, 0, 0}) // root created and active

	// Now mark every lod0 child ready so the root can split.
	world.loadCalls = nil
	d.ForceUpdate()
	blocked := d.Update(world, [3]float64{0, 0, 0})
	if blocked == 0 {
		t.Fatalf("expected split attempt to block on missing lod0 children")
	}
	for _, k := range world.loadCalls {
		world.ready[k] = true
	}
	d.ForceUpdate()
	blocked = d.Update(world, [3]float64{0, 0, 0})
	if blocked != 0 {
		t.Errorf("expected split to succeed once all 8 children are ready, still blocked=%d", blocked)
	}
	if len(world.active) != 8 {
		t.Errorf("expected 8 active leaf children after split, got %d", len(world.active))
	}
}

// TestComputeTransitionMask_Scenario5 exercises a LOD0 block whose +X
// neighbor is a coarser (LOD1) block and every other side faces the edge
// of loaded data: every bit must be set.
func TestComputeTransitionMask_Scenario5(t *testing.T) {
	pos := voxel.IVec3{X: 4, Y: 4, Z: 4}
	active := func(p voxel.IVec3, lod int) bool {
		coarseNeighbor := voxel.IVec3{X: (pos.X + 1) / 2, Y: pos.Y / 2, Z: pos.Z / 2}
		return lod == 1 && p == coarseNeighbor
	}
	mask := ComputeTransitionMask(pos, 0, active)
	if mask != 0b111111 {
		t.Errorf("expected mask 0b111111, got %06b", mask)
	}
}

func TestComputeTransitionMask_NoTransitionsWhenFullyMatched(t *testing.T) {
	pos := voxel.IVec3{X: 0, Y: 0, Z: 0}
	active := func(p voxel.IVec3, lod int) bool {
		return lod == 1 // every same-lod-1 neighbor reported active
	}
	mask := ComputeTransitionMask(pos, 1, active)
	if mask != 0 {
		t.Errorf("expected mask 0 when all same-lod neighbors are active, got %06b", mask)
	}
}
