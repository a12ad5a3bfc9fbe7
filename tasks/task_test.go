package tasks

import (
	"context"
	"testing"

	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/voxel"
)

type fakeGenerator struct{ calls int }

func (g *fakeGenerator) GenerateBlock(ctx context.Context, buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) (contracts.GenerateResult, error) {
	g.calls++
	buf.Fill(voxel.ChannelType, 7, voxel.Depth8)
	return contracts.GenerateResult{MaxLodHint: 2}, nil
}

type fakeStream struct {
	saved    map[voxel.IVec3]*voxel.VoxelBuffer
	notFound bool
}

func newFakeStream() *fakeStream { return &fakeStream{saved: map[voxel.IVec3]*voxel.VoxelBuffer{}} }

func (s *fakeStream) LoadVoxelBlock(ctx context.Context, q contracts.BlockQuery) (*voxel.VoxelBuffer, error) {
	if buf, ok := s.saved[q.Position]; ok {
		return buf, nil
	}
	return nil, contracts.ErrNotFound
}
func (s *fakeStream) SaveVoxelBlock(ctx context.Context, q contracts.BlockQuery, buf *voxel.VoxelBuffer) error {
	s.saved[q.Position] = buf
	return nil
}
func (s *fakeStream) Flush(ctx context.Context) error { return nil }

func alwaysHighPriority() (priority.Key, float64, bool) {
	return priority.Pack(255, 0, priority.ClassLoad, 0), 0, false
}

// TestLoadBlockDataTask_FallsBackToGenerateOnNotFound checks that a
// first-time load with no saved data falls through to generation.
func TestLoadBlockDataTask_FallsBackToGenerateOnNotFound(t *testing.T) {
	gen := &fakeGenerator{}
	stream := newFakeStream()
	dep := depend.NewStreamingDependency(gen, stream)

	var posted BlockDataOutput
	var generateRequested bool

	lt := &LoadBlockDataTask{
		Position:      voxel.IVec3{X: 1},
		Lod:           0,
		BlockSize:     16,
		StreamDep:     dep,
		PriorityFn:    alwaysHighPriority,
		GenerateCache: true,
		OnGenerateCache: func(pos voxel.IVec3, lod int) {
			generateRequested = true
		},
		Sink: DataOutputSinkFunc(func(o BlockDataOutput) { posted = o }),
	}

	if lt.IsCancelled() {
		t.Fatalf("fresh dependency must not be cancelled")
	}
	status := lt.Run(context.Background())
	if status != StatusDone {
		t.Fatalf("expected StatusDone, got %v", status)
	}
	lt.ApplyResult(false)

	if !generateRequested {
		t.Errorf("expected a follow-up generate to be requested on not-found with GenerateCache set")
	}
	if posted.Type != DataGenerated {
		t.Errorf("expected posted type DataGenerated, got %v", posted.Type)
	}
}

func TestLoadBlockDataTask_DropsWhenDependencyInvalidated(t *testing.T) {
	gen := &fakeGenerator{}
	stream := newFakeStream()
	dep := depend.NewStreamingDependency(gen, stream)
	dep.Invalidate()

	lt := &LoadBlockDataTask{StreamDep: dep, PriorityFn: alwaysHighPriority}
	if !lt.IsCancelled() {
		t.Fatalf("invalidated dependency must cancel the task")
	}
}

func TestGenerateBlockTask_AppliesModifiersAndRequestsSave(t *testing.T) {
	gen := &fakeGenerator{}
	stream := newFakeStream()
	dep := depend.NewStreamingDependency(gen, stream)

	modApplied := false
	modFn := modifierFunc(func(buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) { modApplied = true })

	var savedBuf *voxel.VoxelBuffer
	gt := &GenerateBlockTask{
		Position:          voxel.IVec3{X: 2},
		Lod:               0,
		BlockSize:         16,
		StreamDep:         dep,
		PriorityFn:        alwaysHighPriority,
		Modifiers:         []Modifier{modFn},
		SaveAfterGenerate: true,
		OnNeedSave: func(pos voxel.IVec3, lod int, buf *voxel.VoxelBuffer) {
			savedBuf = buf
		},
	}

	status := gt.Run(context.Background())
	if status != StatusDone {
		t.Fatalf("expected CPU generation path to finish synchronously, got %v", status)
	}
	gt.ApplyResult(false)

	if gen.calls != 1 {
		t.Errorf("expected generator invoked once, got %d", gen.calls)
	}
	if !modApplied {
		t.Errorf("expected modifier to run over the generated buffer")
	}
	if savedBuf == nil {
		t.Errorf("expected a follow-up save to be requested after generation")
	}
}

type modifierFunc func(buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int)

func (f modifierFunc) Apply(buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) { f(buf, origin, lod) }

// TestSaveBlockDataTask_NeverCancelledAndFlushesOnLastPending exercises
// end-to-end scenario 4: an edited block queued for save must still reach
// disk, and the tracker-gated flush must fire once the final queued save
// completes.
func TestSaveBlockDataTask_NeverCancelledAndFlushesOnLastPending(t *testing.T) {
	stream := newFakeStream()
	buf := voxel.Create(voxel.IVec3{X: 16, Y: 16, Z: 16})

	flushed := false
	tr := depend.NewTracker(2, func() { flushed = true })

	st1 := NewSaveVoxelsTask(voxel.IVec3{X: 3}, 0, 16, stream, buf)
	st1.FlushTracker = tr
	st2 := NewSaveVoxelsTask(voxel.IVec3{X: 4}, 0, 16, stream, buf)
	st2.FlushTracker = tr

	if st1.IsCancelled() || st2.IsCancelled() {
		t.Fatalf("save tasks must never be cancelled")
	}

	st1.Run(context.Background())
	st1.ApplyResult(false)
	if flushed {
		t.Fatalf("flush fired before the last pending save completed")
	}

	st2.Run(context.Background())
	st2.ApplyResult(false)
	if !flushed {
		t.Errorf("expected flush to fire once the last pending save completed")
	}

	if _, ok := stream.saved[voxel.IVec3{X: 3}]; !ok {
		t.Errorf("expected block 3 to be persisted")
	}
	if _, ok := stream.saved[voxel.IVec3{X: 4}]; !ok {
		t.Errorf("expected block 4 to be persisted")
	}
}

type fakeMesher struct{ calls int }

func (m *fakeMesher) Build(ctx context.Context, in contracts.MeshInputs) (contracts.MeshOutput, error) {
	m.calls++
	return contracts.MeshOutput{Main: contracts.Surface{Indices: []uint32{0, 1, 2}}}, nil
}

func TestMeshBlockTask_DropsWhenMeshingDependencyInvalidated(t *testing.T) {
	mesher := &fakeMesher{}
	dep := depend.NewMeshingDependency(mesher)
	dep.Invalidate()

	mt := &MeshBlockTask{MeshingDep: dep, PriorityFn: alwaysHighPriority}
	if !mt.IsCancelled() {
		t.Fatalf("invalidated meshing dependency must cancel the task")
	}

	var posted BlockMeshOutput
	mt.Sink = MeshOutputSinkFunc(func(o BlockMeshOutput) { posted = o })
	mt.ApplyResult(true)
	if posted.Type != MeshDropped {
		t.Errorf("expected MeshDropped when applying a cancelled mesh result")
	}
	if mesher.calls != 0 {
		t.Errorf("mesher must not run for a cancelled task")
	}
}

func TestMeshBlockTask_BuildsSurfaceWhenValid(t *testing.T) {
	mesher := &fakeMesher{}
	dep := depend.NewMeshingDependency(mesher)

	var posted BlockMeshOutput
	mt := &MeshBlockTask{
		MeshingDep: dep,
		PriorityFn: alwaysHighPriority,
		Sink:       MeshOutputSinkFunc(func(o BlockMeshOutput) { posted = o }),
	}

	status := mt.Run(context.Background())
	if status != StatusDone {
		t.Fatalf("expected StatusDone, got %v", status)
	}
	mt.ApplyResult(false)

	if mesher.calls != 1 {
		t.Errorf("expected mesher invoked once")
	}
	if posted.Type != MeshMeshed {
		t.Errorf("expected MeshMeshed, got %v", posted.Type)
	}
	if len(posted.Surfaces.Main.Indices) != 3 {
		t.Errorf("expected surface indices to propagate through ApplyResult")
	}
}
