// Command voxelcore-demo drives one volume headlessly: a trivial
// procedural generator, an in-memory stream and a flat-quad mesher, with a
// single viewer walking a straight line. It exists to exercise engine.New
// end to end without a renderer or a real backing store.
package main

import (
	"context"
	"flag"
	"sync/atomic"
	"time"

	"github.com/gekko3d/voxelcore/config"
	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/engine"
	"github.com/gekko3d/voxelcore/logx"
	"github.com/gekko3d/voxelcore/tasks"
	"github.com/gekko3d/voxelcore/voxel"
)

// flatGenerator fills every block below voxel Y=0 with a uniform solid
// type and leaves the rest empty, a minimal terrain signal that still
// exercises the SDF/type channel path end to end.
type flatGenerator struct{}

func (flatGenerator) GenerateBlock(ctx context.Context, buf *voxel.VoxelBuffer, origin voxel.IVec3, lod int) (contracts.GenerateResult, error) {
	if origin.Y < 0 {
		buf.Fill(voxel.ChannelType, 1, voxel.Depth8)
	}
	return contracts.GenerateResult{}, nil
}

// memStream is an in-process Stream: no durability, just enough to satisfy
// the pipeline's load/save contract for a demo run.
type memStream struct {
	blocks map[voxel.IVec3]*voxel.VoxelBuffer
}

func newMemStream() *memStream {
	return &memStream{blocks: make(map[voxel.IVec3]*voxel.VoxelBuffer)}
}

func (s *memStream) LoadVoxelBlock(ctx context.Context, q contracts.BlockQuery) (*voxel.VoxelBuffer, error) {
	if buf, ok := s.blocks[q.Position]; ok {
		return buf, nil
	}
	return nil, contracts.ErrNotFound
}

func (s *memStream) SaveVoxelBlock(ctx context.Context, q contracts.BlockQuery, buf *voxel.VoxelBuffer) error {
	s.blocks[q.Position] = buf
	return nil
}

func (s *memStream) Flush(ctx context.Context) error { return nil }

// flatMesher stands in for a real blocky/transvoxel mesher: it always
// reports a trivial single-triangle surface so mesh blocks complete and
// reach UP_TO_DATE.
type flatMesher struct{}

func (flatMesher) Build(ctx context.Context, in contracts.MeshInputs) (contracts.MeshOutput, error) {
	return contracts.MeshOutput{
		Main: contracts.Surface{
			Positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
			Normals:   []float32{0, 1, 0, 0, 1, 0, 0, 1, 0},
			Indices:   []uint32{0, 1, 2},
		},
	}, nil
}

func main() {
	ticks := flag.Int("ticks", 200, "number of process() ticks to run")
	speed := flag.Float64("speed", 4, "viewer travel speed in voxel-space units per tick")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logx.NewDefaultLogger("voxelcore-demo", *debug)

	var blocksLoaded, meshesBuilt int64
	cb := engine.Callbacks{
		OnBlockData: func(o tasks.BlockDataOutput) {
			if !o.Dropped {
				atomic.AddInt64(&blocksLoaded, 1)
			}
		},
		OnBlockMesh: func(o tasks.BlockMeshOutput) {
			if o.Type == tasks.MeshMeshed {
				atomic.AddInt64(&meshesBuilt, 1)
			}
		},
	}

	e := engine.New(log)
	settings := config.Default()

	volID, err := e.AddVolume(settings, cb, flatGenerator{}, newMemStream(), flatMesher{})
	if err != nil {
		log.Errorf("add_volume: %v", err)
		return
	}

	vid, err := e.AddViewer(volID)
	if err != nil {
		log.Errorf("add_viewer: %v", err)
		return
	}

	const dt = 16 * time.Millisecond
	var pos [3]float64
	for i := 0; i < *ticks; i++ {
		pos[0] += *speed
		if err := e.SetViewerPosition(vid, pos); err != nil {
			log.Errorf("set_viewer_position: %v", err)
			return
		}
		e.Process(dt)
	}

	log.Infof("ran %d ticks: %d blocks loaded, %d meshes built", *ticks, atomic.LoadInt64(&blocksLoaded), atomic.LoadInt64(&meshesBuilt))

	if err := e.RemoveViewer(vid); err != nil {
		log.Errorf("remove_viewer: %v", err)
	}
	if err := e.RemoveVolume(volID); err != nil {
		log.Errorf("remove_volume: %v", err)
	}
}
