package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gekko3d/voxelcore/config"
	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/tasks"
	"github.com/gekko3d/voxelcore/voxel"
)

type fakeGenerator struct{ calls int32 }

func (g *fakeGenerator) GenerateBlock(ctx context.Context, buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) (contracts.GenerateResult, error) {
	atomic.AddInt32(&g.calls, 1)
	buf.Fill(voxel.ChannelType, 1, voxel.Depth8)
	return contracts.GenerateResult{}, nil
}

type fakeStream struct {
	mu     sync.Mutex
	saved  map[voxel.IVec3]*voxel.VoxelBuffer
}

func newFakeStream() *fakeStream {
	return &fakeStream{saved: map[voxel.IVec3]*voxel.VoxelBuffer{}}
}

func (s *fakeStream) LoadVoxelBlock(ctx context.Context, q contracts.BlockQuery) (*voxel.VoxelBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.saved[q.Position]; ok {
		return buf, nil
	}
	return nil, contracts.ErrNotFound
}

func (s *fakeStream) SaveVoxelBlock(ctx context.Context, q contracts.BlockQuery, buf *voxel.VoxelBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[q.Position] = buf
	return nil
}

func (s *fakeStream) Flush(ctx context.Context) error { return nil }

type fakeMesher struct{ calls int32 }

func (m *fakeMesher) Build(ctx context.Context, in contracts.MeshInputs) (contracts.MeshOutput, error) {
	atomic.AddInt32(&m.calls, 1)
	return contracts.MeshOutput{Main: contracts.Surface{Positions: []float32{0, 0, 0}}}, nil
}

func testSettings() *config.Settings {
	s := config.Default()
	s.LodCount = 2
	s.LodDistance = []int{2, 2}
	s.WorkerCount = 2
	return s
}

func newTestVolume(t *testing.T) (*Engine, VolumeID, *fakeGenerator, *fakeStream, *fakeMesher) {
	t.Helper()
	e := New(nil)
	gen := &fakeGenerator{}
	stream := newFakeStream()
	mesher := &fakeMesher{}
	id, err := e.AddVolume(testSettings(), Callbacks{}, gen, stream, mesher)
	if err != nil {
		t.Fatalf("AddVolume: %v", err)
	}
	return e, id, gen, stream, mesher
}

func TestAddRemoveVolume_RoundTrip(t *testing.T) {
	e, id, _, _, _ := newTestVolume(t)
	if err := e.RemoveVolume(id); err != nil {
		t.Fatalf("RemoveVolume: %v", err)
	}
	if err := e.RemoveVolume(id); err == nil {
		t.Fatalf("expected error removing an already-removed volume")
	}
}

func TestAddViewer_UnknownVolumeFails(t *testing.T) {
	e := New(nil)
	if _, err := e.AddViewer(VolumeID{}); err == nil {
		t.Fatalf("expected error adding a viewer to an unknown volume")
	}
}

// TestViewerID_StaleAfterRemove exercises the generation check: a
// ViewerID handed back after RemoveViewer must be rejected even though
// its index slot can be recycled by a later AddViewer.
func TestViewerID_StaleAfterRemove(t *testing.T) {
	e, volID, _, _, _ := newTestVolume(t)
	defer e.RemoveVolume(volID)

	vid, err := e.AddViewer(volID)
	if err != nil {
		t.Fatalf("AddViewer: %v", err)
	}
	if err := e.RemoveViewer(vid); err != nil {
		t.Fatalf("RemoveViewer: %v", err)
	}
	if err := e.SetViewerPosition(vid, [3]float64{1, 2, 3}); err == nil {
		t.Fatalf("expected stale ViewerID to be rejected after removal")
	}

	// A fresh AddViewer may recycle the same index but must carry a new
	// version, so the old handle still must not resolve to it.
	vid2, err := e.AddViewer(volID)
	if err != nil {
		t.Fatalf("AddViewer (2nd): %v", err)
	}
	if vid2 == vid {
		t.Fatalf("expected recycled slot to carry a bumped generation, got identical handle %s", vid2)
	}
	if err := e.SetViewerPosition(vid, [3]float64{1, 2, 3}); err == nil {
		t.Fatalf("old handle must still be rejected after a new viewer recycled its slot")
	}
	if err := e.SetViewerPosition(vid2, [3]float64{1, 2, 3}); err != nil {
		t.Fatalf("SetViewerPosition on the live handle should succeed: %v", err)
	}
}

func TestSetViewerPosition_UpdatesViewerWorldPos(t *testing.T) {
	e, volID, _, _, _ := newTestVolume(t)
	defer e.RemoveVolume(volID)

	vid, err := e.AddViewer(volID)
	if err != nil {
		t.Fatalf("AddViewer: %v", err)
	}

	vol, err := e.volume(volID)
	if err != nil {
		t.Fatalf("volume: %v", err)
	}
	vol.viewersMu.Lock()
	d := vol.drivers[vid]
	vol.viewersMu.Unlock()
	if d == nil {
		t.Fatalf("expected an octree driver to be registered for the new viewer")
	}

	if err := e.SetViewerPosition(vid, [3]float64{100, 0, 0}); err != nil {
		t.Fatalf("SetViewerPosition: %v", err)
	}
	vol.viewersMu.Lock()
	pos := vol.viewers[vid].worldPos
	vol.viewersMu.Unlock()
	if pos != [3]float64{100, 0, 0} {
		t.Fatalf("expected worldPos to be updated, got %v", pos)
	}
}

func TestSetViewerDistanceAndFlags_UnknownViewerFails(t *testing.T) {
	e := New(nil)
	bogus := ViewerID{id: slotID{Index: 0, Version: 1}}
	if err := e.SetViewerDistance(bogus, 10); err == nil {
		t.Fatalf("expected error for unknown viewer")
	}
	if err := e.SetViewerFlags(bogus, 1); err == nil {
		t.Fatalf("expected error for unknown viewer")
	}
}

// TestProcess_DrivesLoadGenerateActivateMesh drives a full load -> generate
// -> (octree) activate -> mesh cycle against fake collaborators.
func TestProcess_DrivesLoadGenerateActivateMesh(t *testing.T) {
	e, volID, gen, _, mesher := newTestVolume(t)
	defer e.RemoveVolume(volID)

	vid, err := e.AddViewer(volID)
	if err != nil {
		t.Fatalf("AddViewer: %v", err)
	}
	if err := e.SetViewerPosition(vid, [3]float64{0, 0, 0}); err != nil {
		t.Fatalf("SetViewerPosition: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.Process(16 * time.Millisecond)
		if atomic.LoadInt32(&gen.calls) > 0 && atomic.LoadInt32(&mesher.calls) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if atomic.LoadInt32(&gen.calls) == 0 {
		t.Errorf("expected generation to have run at least once")
	}
	if atomic.LoadInt32(&mesher.calls) == 0 {
		t.Errorf("expected a mesh build to have run at least once")
	}
}

func TestPushAsyncTask_RunsOnVolumePool(t *testing.T) {
	e, volID, _, _, _ := newTestVolume(t)
	defer e.RemoveVolume(volID)

	done := make(chan struct{})
	if err := e.PushAsyncTask(volID, func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("PushAsyncTask: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for pushed task to run")
	}
}

func TestPushAsyncIOTask_UnknownVolumeFails(t *testing.T) {
	e := New(nil)
	if err := e.PushAsyncIOTask(VolumeID{}, func(ctx context.Context) {}); err == nil {
		t.Fatalf("expected error for unknown volume")
	}
}

func TestPushMainThreadTimeSpreadTask_DrainedByProcess(t *testing.T) {
	e, volID, _, _, _ := newTestVolume(t)
	defer e.RemoveVolume(volID)

	ran := false
	e.PushMainThreadTimeSpreadTask(func(ctx context.Context) { ran = true })
	e.Process(time.Millisecond)
	if !ran {
		t.Errorf("expected the time-spread task to run during Process")
	}
}

var _ tasks.Task = (*funcTask)(nil)
