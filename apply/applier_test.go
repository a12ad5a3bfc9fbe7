package apply

import (
	"testing"
	"time"

	"github.com/gekko3d/voxelcore/meshmap"
	"github.com/gekko3d/voxelcore/tasks"
	"github.com/gekko3d/voxelcore/voxel"
)

func TestApplier_DrainsWithinBudget(t *testing.T) {
	pool := tasks.New(1, 8, nil)
	a := New(pool, nil)

	applied := a.Tick(16*time.Millisecond, false, nil)
	if applied != 0 {
		t.Errorf("expected nothing to drain from an empty pool, got %d", applied)
	}
}

func TestApplier_RefreshesViewerSnapshotOnlyWhenCountChanged(t *testing.T) {
	pool := tasks.New(1, 8, nil)
	a := New(pool, nil)

	refreshed := 0
	a.Tick(16*time.Millisecond, false, func() { refreshed++ })
	if refreshed != 0 {
		t.Errorf("expected no refresh when viewer count did not change")
	}
	a.Tick(16*time.Millisecond, true, func() { refreshed++ })
	if refreshed != 1 {
		t.Errorf("expected exactly one refresh when viewer count changed, got %d", refreshed)
	}
}

func TestApplier_CollisionRebuildIsRateLimited(t *testing.T) {
	pool := tasks.New(1, 8, nil)
	a := New(pool, nil)
	a.CollisionUpdateDelay = 100 * time.Millisecond

	clock := int64(1000)
	a.nowMs = func() int64 { return clock }

	builds := 0
	a.BuildCollision = func(pos voxel.IVec3, lod int, block *meshmap.MeshBlock) { builds++ }

	block := meshmap.NewMeshBlock()
	a.QueueCollisionRebuild(voxel.IVec3{}, 0, block)

	a.Tick(0, false, nil)
	if builds != 1 {
		t.Fatalf("expected the first rebuild to run immediately, got %d builds", builds)
	}

	block.CollisionDirty = true
	a.pendingCollision = append(a.pendingCollision, collisionEntry{Pos: voxel.IVec3{}, Lod: 0, Block: block})
	clock = 1050
	a.Tick(0, false, nil)
	if builds != 1 {
		t.Errorf("expected rebuild to be withheld before the rate-limit window elapsed, got %d builds", builds)
	}

	clock = 1150
	a.Tick(0, false, nil)
	if builds != 2 {
		t.Errorf("expected rebuild to run once the rate-limit window elapsed, got %d builds", builds)
	}
}

func TestApplier_FadeProgressesAndStopsAtBounds(t *testing.T) {
	pool := tasks.New(1, 8, nil)
	a := New(pool, nil)
	a.FadeSpeedPerSecond = 1 // 1.0 alpha per second

	block := meshmap.NewMeshBlock()
	a.QueueFade(block, true)

	a.Tick(500*time.Millisecond, false, nil)
	if block.FadeAlpha <= 0 || block.FadeAlpha >= 1 {
		t.Fatalf("expected partial fade progress, got %v", block.FadeAlpha)
	}

	a.Tick(time.Second, false, nil)
	if block.FadeAlpha != 1 {
		t.Errorf("expected fade to clamp at 1, got %v", block.FadeAlpha)
	}
}
