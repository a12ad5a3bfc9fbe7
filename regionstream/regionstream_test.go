package regionstream

import (
	"context"
	"testing"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/voxel"
)

func newTestStream(t *testing.T) *Stream {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveThenLoadVoxelBlock_RoundTrips(t *testing.T) {
	s := newTestStream(t)
	ctx := context.Background()

	buf := voxel.Create(voxel.IVec3{X: 4, Y: 4, Z: 4})
	buf.Fill(voxel.ChannelSDF, 1, voxel.Depth16)
	buf.SetVoxel(voxel.IVec3{X: 1, Y: 1, Z: 1}, 99, voxel.ChannelSDF, voxel.Depth16)

	q := contracts.BlockQuery{Position: voxel.IVec3{X: 3, Y: -5, Z: 20}, Lod: 0, BlockSize: 4}
	if err := s.SaveVoxelBlock(ctx, q, buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadVoxelBlock(ctx, q)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !buf.Equals(got) {
		t.Errorf("expected loaded buffer to equal the saved one")
	}
}

func TestLoadVoxelBlock_ReturnsNotFoundForUnsavedPosition(t *testing.T) {
	s := newTestStream(t)
	_, err := s.LoadVoxelBlock(context.Background(), contracts.BlockQuery{Position: voxel.IVec3{X: 1000}, Lod: 0})
	if err != contracts.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveVoxelBlock_OverwriteIsVisibleAfterReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	pos := voxel.IVec3{X: 7, Y: 7, Z: 7}
	q := contracts.BlockQuery{Position: pos, Lod: 1}

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf1 := voxel.Create(voxel.IVec3{X: 2, Y: 2, Z: 2})
	buf1.Fill(voxel.ChannelSDF, 1, voxel.Depth16)
	if err := s1.SaveVoxelBlock(ctx, q, buf1); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	buf2 := voxel.Create(voxel.IVec3{X: 2, Y: 2, Z: 2})
	buf2.Fill(voxel.ChannelSDF, 0xFFFF, voxel.Depth16)
	if err := s1.SaveVoxelBlock(ctx, q, buf2); err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if err := s1.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.LoadVoxelBlock(ctx, q)
	if err != nil {
		t.Fatalf("load after reopen: %v", err)
	}
	if !buf2.Equals(got) {
		t.Errorf("expected the second (overwriting) save to survive a reopen")
	}
}

func TestInstanceBlock_RoundTrips(t *testing.T) {
	s := newTestStream(t)
	ctx := context.Background()
	q := contracts.BlockQuery{Position: voxel.IVec3{X: 1, Y: 2, Z: 3}, Lod: 0}
	data := []byte("scatter-object-payload")

	if err := s.SaveInstanceBlock(ctx, q, data); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadInstanceBlock(ctx, q)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("expected %q, got %q", data, got)
	}
}

func TestRegionCoord_HandlesNegativePositionsConsistently(t *testing.T) {
	region, idx := regionCoord(voxel.IVec3{X: -1, Y: -1, Z: -1})
	if region.X != -1 || region.Y != -1 || region.Z != -1 {
		t.Errorf("expected region (-1,-1,-1) for position just below the origin region, got %v", region)
	}
	if idx < 0 || idx >= regionCapacity {
		t.Errorf("expected a valid in-range local index, got %d", idx)
	}
}
