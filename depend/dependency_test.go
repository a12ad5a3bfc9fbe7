package depend

import (
	"context"
	"testing"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
)

type stubGenerator struct{}

func (stubGenerator) GenerateBlock(ctx context.Context, buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) (contracts.GenerateResult, error) {
	return contracts.GenerateResult{}, nil
}

type stubStream struct{}

func (stubStream) LoadVoxelBlock(ctx context.Context, q contracts.BlockQuery) (*voxel.VoxelBuffer, error) {
	return nil, contracts.ErrNotFound
}
func (stubStream) SaveVoxelBlock(ctx context.Context, q contracts.BlockQuery, buf *voxel.VoxelBuffer) error {
	return nil
}
func (stubStream) Flush(ctx context.Context) error { return nil }

func TestStreamingHandle_ReplaceInvalidatesPrevious(t *testing.T) {
	h := NewStreamingHandle(stubGenerator{}, stubStream{})
	old := h.Current()
	if !old.Valid() {
		t.Fatalf("fresh snapshot should be valid")
	}

	h.Replace(stubGenerator{}, stubStream{})
	if old.Valid() {
		t.Errorf("replaced snapshot must become invalid")
	}
	if !h.Current().Valid() {
		t.Errorf("newly published snapshot must be valid")
	}
	if old.Generation == h.Current().Generation {
		t.Errorf("expected distinct generation ids across replace")
	}
}

// TestDependencyInvalidation_TenInFlightTasksDrop exercises end-to-end
// scenario 6: replacing a volume's stream mid-flight invalidates every
// outstanding task's captured snapshot.
func TestDependencyInvalidation_TenInFlightTasksDrop(t *testing.T) {
	h := NewStreamingHandle(stubGenerator{}, stubStream{})
	snapshots := make([]*StreamingDependency, 10)
	for i := range snapshots {
		snapshots[i] = h.Current()
	}

	h.Replace(stubGenerator{}, stubStream{})

	dropped := 0
	for _, s := range snapshots {
		if !s.Valid() {
			dropped++
		}
	}
	if dropped != 10 {
		t.Errorf("expected all 10 captured snapshots invalid after replace, got %d", dropped)
	}
}

func TestTracker_FiresOnceAllDone(t *testing.T) {
	fired := 0
	tr := NewTracker(3, func() { fired++ })
	tr.Done()
	tr.Done()
	if fired != 0 {
		t.Fatalf("tracker fired early")
	}
	tr.Done()
	if fired != 1 {
		t.Errorf("expected tracker to fire exactly once, fired %d times", fired)
	}
	tr.Done()
	if fired != 1 {
		t.Errorf("tracker fired again after completion")
	}
}

func TestTracker_AbortDestroysPendingWithoutRunning(t *testing.T) {
	ran := false
	aborted := false
	tr := NewTracker(2, func() { ran = true })
	tr.OnAbort(func() { aborted = true })
	tr.Abort()
	tr.Done()
	tr.Done()
	if ran {
		t.Errorf("aborted tracker must not run its completion callback")
	}
	if !aborted {
		t.Errorf("expected abort callback to fire")
	}
}

func TestTracker_ZeroPendingFiresImmediately(t *testing.T) {
	fired := false
	NewTracker(0, func() { fired = true })
	if !fired {
		t.Errorf("tracker created with zero pending should fire immediately")
	}
}
