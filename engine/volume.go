package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/gekko3d/voxelcore/apply"
	"github.com/gekko3d/voxelcore/config"
	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/datamap"
	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/logx"
	"github.com/gekko3d/voxelcore/meshmap"
	"github.com/gekko3d/voxelcore/octree"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/streaming"
	"github.com/gekko3d/voxelcore/tasks"
	"github.com/gekko3d/voxelcore/voxel"
)

// Volume is one streamed voxel world: its own task pool, per-LOD data and
// mesh maps, dependency handles and octree grid. Everything here is
// reachable only through Engine, which owns the VolumeID slot it lives in.
type Volume struct {
	id       VolumeID
	settings *config.Settings
	log      logx.Logger
	cb       Callbacks

	meshFactor int

	data *datamap.DataLodMap
	mesh *meshmap.LodMeshMap

	streamHandle *depend.StreamingHandle
	meshHandle   *depend.MeshingHandle

	pool    *tasks.Pool
	applier *apply.Applier

	editor *streaming.EditPropagator
	async  *streaming.AsyncEditQueue

	loading []*streaming.PendingSet // one per LOD

	priorityHandle *priority.Handle

	// viewersMu guards viewers/drivers: Engine's viewer-registration
	// methods run under e.mu, but tick() (called from Process after e.mu
	// is released) reads the same maps, so they need their own lock.
	viewersMu sync.Mutex
	viewers   map[ViewerID]*viewerState
	drivers   map[ViewerID]*octree.Driver

	prevDataBox []streaming.Box // one per LOD, following the primary viewer
	prevMeshBox []streaming.Box
}

type viewerState struct {
	volume   VolumeID
	worldPos [3]float64
	distance float64
	flags    uint32
}

func newVolume(id VolumeID, settings *config.Settings, log logx.Logger, cb Callbacks, gen contracts.Generator, stream contracts.Stream, mesher contracts.Mesher) (*Volume, error) {
	factor, err := meshmap.BlockSizeFactor(settings.ChunkSize*settings.MeshBlockSizeFactor, settings.ChunkSize)
	if err != nil {
		return nil, err
	}
	workers := settings.WorkerCount
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	v := &Volume{
		id:             id,
		settings:       settings,
		log:            log,
		cb:             cb,
		meshFactor:     factor,
		data:           datamap.NewDataLodMap(settings.LodCount, settings.ChunkSize),
		mesh:           meshmap.NewLodMeshMap(settings.LodCount),
		streamHandle:   depend.NewStreamingHandle(gen, stream),
		meshHandle:     depend.NewMeshingHandle(mesher),
		pool:           tasks.New(workers, 1024, log),
		priorityHandle: priority.NewHandle(),
		viewers:        make(map[ViewerID]*viewerState),
		drivers:        make(map[ViewerID]*octree.Driver),
		prevDataBox:    make([]streaming.Box, settings.LodCount),
		prevMeshBox:    make([]streaming.Box, settings.LodCount),
	}
	v.applier = apply.New(v.pool, nil)
	v.applier.DrainBudget = settings.DrainBudget
	v.applier.CollisionUpdateDelay = settings.CollisionUpdateDelay
	v.editor = streaming.NewEditPropagator(v.data, v.mesh, settings.ChunkSize, gen)
	v.async = &streaming.AsyncEditQueue{
		MissingPositions: v.missingLod0Positions,
		PreloadOne:       v.preloadLod0,
		PostEdit:         v.editor.PostEditArea,
	}
	v.loading = make([]*streaming.PendingSet, settings.LodCount)
	for i := range v.loading {
		v.loading[i] = streaming.NewPendingSet()
	}
	v.pool.Start(context.Background())
	return v, nil
}

// leafBlockSize is the mesh block's voxel-space extent, the octree
// driver's grid cell unit.
func (v *Volume) leafBlockSize() int32 {
	return int32(v.settings.ChunkSize * v.settings.MeshBlockSizeFactor)
}

func (v *Volume) distanceThresholds() []float64 {
	out := make([]float64, v.settings.LodCount)
	for i := range out {
		chunkWorldSize := float64(v.settings.ChunkSize << uint(i))
		out[i] = float64(v.settings.LodDistanceAt(i)) * chunkWorldSize
	}
	return out
}

// addViewer registers a freshly created viewer and its octree driver.
func (v *Volume) addViewer(vid ViewerID) *viewerState {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	vs := &viewerState{volume: v.id, distance: v.settings.ViewDistance}
	v.viewers[vid] = vs
	v.drivers[vid] = octree.NewDriver(v.settings.LodCount, v.leafBlockSize(), v.distanceThresholds())
	return vs
}

func (v *Volume) removeViewer(vid ViewerID) {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	delete(v.viewers, vid)
	delete(v.drivers, vid)
}

func (v *Volume) hasViewer(vid ViewerID) bool {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	_, ok := v.viewers[vid]
	return ok
}

func (v *Volume) setViewerPosition(vid ViewerID, pos [3]float64) bool {
	v.viewersMu.Lock()
	vs, ok := v.viewers[vid]
	if ok {
		vs.worldPos = pos
	}
	v.viewersMu.Unlock()
	if !ok {
		return false
	}
	v.refreshPrioritySnapshot()
	v.forceViewerUpdate(vid)
	return true
}

func (v *Volume) setViewerDistance(vid ViewerID, distance float64) bool {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	vs, ok := v.viewers[vid]
	if ok {
		vs.distance = distance
	}
	return ok
}

func (v *Volume) setViewerFlags(vid ViewerID, flags uint32) bool {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	vs, ok := v.viewers[vid]
	if ok {
		vs.flags = flags
	}
	return ok
}

// forceViewerUpdate requests the viewer's octree driver ignore its
// movement threshold on its next Update call, e.g. right after a
// teleport-sized SetViewerPosition.
func (v *Volume) forceViewerUpdate(vid ViewerID) {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	if d, ok := v.drivers[vid]; ok {
		d.ForceUpdate()
	}
}

// --- octree.World ---

// Ready reports whether pos/lod's data block has arrived. Mesh readiness
// is intentionally not part of this check: the first mesh build for a
// block only gets scheduled once it becomes Active (see
// ActivateMeshBlock), and Active only happens once Ready is true, so
// requiring a mesh here would deadlock the split/root-creation sequence.
func (v *Volume) Ready(pos voxel.IVec3, lod int) bool {
	m := v.data.At(lod)
	if m == nil {
		return false
	}
	return m.Has(pos)
}

func (v *Volume) MeshUpToDate(pos voxel.IVec3, lod int) bool {
	m := v.mesh.At(lod)
	if m == nil {
		return false
	}
	b := m.Get(pos)
	return b != nil && b.State() == meshmap.UpToDate
}

func (v *Volume) RequestLoad(pos voxel.IVec3, lod int) {
	if lod < 0 || lod >= len(v.loading) {
		return
	}
	if !v.loading[lod].TryMark(pos) {
		return
	}
	v.submitLoad(pos, lod)
}

func (v *Volume) ActivateMeshBlock(pos voxel.IVec3, lod int) {
	m := v.mesh.At(lod)
	if m == nil {
		return
	}
	b := m.GetOrCreate(pos)
	b.Active = true
	m.ScheduleMeshUpdate(pos)
}

func (v *Volume) DeactivateMeshBlock(pos voxel.IVec3, lod int) {
	m := v.mesh.At(lod)
	if m == nil {
		return
	}
	if b := m.Get(pos); b != nil {
		b.Active = false
	}
}

// --- task submission ---

func (v *Volume) priorityFn(pos voxel.IVec3, lod int, class priority.Class) tasks.PriorityFunc {
	return func() (priority.Key, float64, bool) {
		worldPos := blockWorldCenter(pos, lod, v.settings.ChunkSize)
		key, distSq := priority.Evaluate(v.priorityHandle.Current(), worldPos, lod, class, v.settings.LodCount-1)
		return key, distSq, priority.TooFar(distSq, v.settings.DropDistanceSquared(lod))
	}
}

func blockWorldCenter(pos voxel.IVec3, lod int, chunkSize int) [3]float64 {
	scale := float64(chunkSize << uint(lod))
	return [3]float64{
		(float64(pos.X) + 0.5) * scale,
		(float64(pos.Y) + 0.5) * scale,
		(float64(pos.Z) + 0.5) * scale,
	}
}

func (v *Volume) submitLoad(pos voxel.IVec3, lod int) {
	dep := v.streamHandle.Current()
	t := &tasks.LoadBlockDataTask{
		Position:      pos,
		Lod:           lod,
		BlockSize:     v.settings.ChunkSize,
		GenerateCache: true,
		StreamDep:     dep,
		PriorityFn:    v.priorityFn(pos, lod, priority.ClassLoad),
		Sink:          volumeDataSink{v},
		OnGenerateCache: func(pos voxel.IVec3, lod int) {
			v.submitGenerate(pos, lod, true)
		},
	}
	v.pool.Submit(t)
}

func (v *Volume) submitGenerate(pos voxel.IVec3, lod int, saveAfter bool) {
	dep := v.streamHandle.Current()
	t := &tasks.GenerateBlockTask{
		Position:          pos,
		Lod:               lod,
		BlockSize:         v.settings.ChunkSize,
		StreamDep:         dep,
		PriorityFn:        v.priorityFn(pos, lod, priority.ClassGenerate),
		SaveAfterGenerate: saveAfter,
		Sink:              volumeDataSink{v},
		OnNeedSave: func(pos voxel.IVec3, lod int, buf *voxel.VoxelBuffer) {
			v.submitSave(pos, lod, buf, nil)
		},
	}
	v.pool.Submit(t)
}

func (v *Volume) submitSave(pos voxel.IVec3, lod int, buf *voxel.VoxelBuffer, tracker *depend.Tracker) {
	stream := v.streamHandle.Current().Stream
	if stream == nil {
		return
	}
	t := tasks.NewSaveVoxelsTask(pos, lod, v.settings.ChunkSize, stream, buf)
	t.PriorityFn = v.priorityFn(pos, lod, priority.ClassSave)
	t.FlushTracker = tracker
	t.Sink = volumeDataSink{v}
	v.pool.Submit(t)
}

func (v *Volume) submitMesh(pos voxel.IVec3, lod int) {
	block := v.mesh.At(lod).Get(pos)
	if block == nil {
		return
	}
	block.Dispatch()
	t := &tasks.MeshBlockTask{
		Position:      pos,
		Lod:           lod,
		Neighbors:     v.gatherMeshNeighbors(pos, lod),
		WantCollision: false,
		MeshingDep:    v.meshHandle.Current(),
		PriorityFn:    v.priorityFn(pos, lod, priority.ClassMesh),
		Sink:          volumeMeshSink{v},
	}
	v.pool.Submit(t)
}

// gatherMeshNeighbors builds the neighbor grid a Mesher needs: span =
// meshFactor+2 data blocks per axis (3 at factor 1, 4 at factor 2),
// centered so index 1 (factor 1) or indices 1..2 (factor 2) are the data
// blocks directly inside the mesh block and the rest are seam neighbors.
func (v *Volume) gatherMeshNeighbors(pos voxel.IVec3, lod int) [][]*voxel.VoxelBuffer {
	dm := v.data.At(lod)
	span := v.meshFactor + 2
	out := make([][]*voxel.VoxelBuffer, span)
	for zi := 0; zi < span; zi++ {
		row := make([]*voxel.VoxelBuffer, span*span)
		for yi := 0; yi < span; yi++ {
			for xi := 0; xi < span; xi++ {
				dataPos := voxel.IVec3{
					X: pos.X*int32(v.meshFactor) + int32(xi-1),
					Y: pos.Y*int32(v.meshFactor) + int32(yi-1),
					Z: pos.Z*int32(v.meshFactor) + int32(zi-1),
				}
				if dm != nil {
					if b := dm.Get(dataPos); b != nil {
						row[yi*span+xi] = b.Buffer
					}
				}
			}
		}
		out[zi] = row
	}
	return out
}

// --- output sinks ---

func (v *Volume) handleBlockData(o tasks.BlockDataOutput) {
	if o.Lod >= 0 && o.Lod < len(v.loading) {
		v.loading[o.Lod].Clear(o.Position)
	}
	switch o.Type {
	case tasks.DataLoaded, tasks.DataGenerated:
		if !o.Dropped {
			m := v.data.At(o.Lod)
			if m != nil {
				m.Set(o.Position, &datamap.DataBlock{Buffer: o.Voxels, LodIndex: o.Lod})
			}
		}
	case tasks.DataSaved:
		if !o.Dropped {
			if b := v.data.At(o.Lod).Get(o.Position); b != nil {
				b.Modified = false
			}
		}
	}
	if v.cb.OnBlockData != nil {
		v.cb.OnBlockData(o)
	}
}

func (v *Volume) handleBlockMesh(o tasks.BlockMeshOutput) {
	m := v.mesh.At(o.Lod)
	if m != nil {
		if b := m.Get(o.Position); b != nil {
			out := o.Surfaces
			if b.CompleteResult(&out) {
				// An edit landed while this mesh build was in flight;
				// re-enqueue instead of trusting the stale result.
				m.ScheduleMeshUpdate(o.Position)
			}
		}
	}
	if v.cb.OnBlockMesh != nil {
		v.cb.OnBlockMesh(o)
	}
}

// --- sliding-box unload/load, driven by the primary viewer (the live viewer
// with the lowest slot index) ---

func (v *Volume) slideLod(lod int, centerPos [3]float64) {
	dm := v.data.At(lod)
	mm := v.mesh.At(lod)
	if dm == nil || mm == nil {
		return
	}
	chunkWorld := float64(v.settings.ChunkSize << uint(lod))
	center := voxel.IVec3{
		X: int32(centerPos[0] / chunkWorld),
		Y: int32(centerPos[1] / chunkWorld),
		Z: int32(centerPos[2] / chunkWorld),
	}
	halfExtent := int32(v.settings.LodDistanceAt(lod))
	newBox := streaming.NewCenteredBox(center, halfExtent)

	streaming.DataMapSlide(dm, v.prevDataBox[lod], newBox, v.loading[lod], streaming.DataMapUnloadHooks{
		SaveOnUnload: func(p voxel.IVec3, b *datamap.DataBlock) {
			if b.Buffer != nil {
				v.submitSave(p, lod, b.Buffer, nil)
			}
		},
		LoadNew: func(p voxel.IVec3) { v.submitLoad(p, lod) },
	})
	paddedNewBox := newBox.Padded(1)
	streaming.MeshMapSlide(mm, v.prevMeshBox[lod], newBox, paddedNewBox, nil)

	v.prevDataBox[lod] = newBox
	v.prevMeshBox[lod] = newBox
}

func (v *Volume) missingLod0Positions(box streaming.Box) []voxel.IVec3 {
	dm := v.data.At(0)
	if dm == nil {
		return nil
	}
	var out []voxel.IVec3
	for _, p := range box.Positions() {
		if !dm.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

func (v *Volume) preloadLod0(pos voxel.IVec3, done func()) {
	if v.loading[0].Has(pos) {
		// Already loading via the regular path; rendezvous on the data
		// map instead of double-submitting. The async edit queue's
		// tracker semantics tolerate this as a same-tick best effort.
		done()
		return
	}
	v.loading[0].TryMark(pos)
	dep := v.streamHandle.Current()
	t := &tasks.LoadBlockDataTask{
		Position:   pos,
		Lod:        0,
		BlockSize:  v.settings.ChunkSize,
		StreamDep:  dep,
		PriorityFn: v.priorityFn(pos, 0, priority.ClassLoad),
		Sink: tasks.DataOutputSinkFunc(func(o tasks.BlockDataOutput) {
			v.handleBlockData(o)
			done()
		}),
	}
	v.pool.Submit(t)
}

// --- per-tick update ---

func (v *Volume) tick(dt time.Duration) {
	v.async.DrainTick()
	pending := v.editor.DrainPendingLodding()
	if len(pending) > 0 {
		v.editor.RunMipPass(context.Background(), 0, pending)
	}

	if pos, ok := v.primaryViewerPos(); ok {
		for lod := 0; lod < v.settings.LodCount; lod++ {
			v.slideLod(lod, pos)
		}
		v.updateDrivers()
	}

	for lod := 0; lod < v.mesh.LodCount(); lod++ {
		mm := v.mesh.At(lod)
		for _, pos := range mm.DrainPendingUpdates() {
			v.submitMesh(pos, lod)
		}
	}

	v.applier.Tick(dt, false, nil)
}

func (v *Volume) primaryViewerPos() ([3]float64, bool) {
	v.viewersMu.Lock()
	defer v.viewersMu.Unlock()
	var primary *viewerState
	var primaryIndex uint16
	for id, vs := range v.viewers {
		if primary == nil || id.id.Index < primaryIndex {
			primary, primaryIndex = vs, id.id.Index
		}
	}
	if primary == nil {
		return [3]float64{}, false
	}
	return primary.worldPos, true
}

// updateDrivers runs every viewer's octree driver update pass.
func (v *Volume) updateDrivers() {
	v.viewersMu.Lock()
	type job struct {
		d   *octree.Driver
		pos [3]float64
	}
	jobs := make([]job, 0, len(v.drivers))
	for id, d := range v.drivers {
		vs, ok := v.viewers[id]
		if !ok {
			continue
		}
		jobs = append(jobs, job{d: d, pos: vs.worldPos})
	}
	v.viewersMu.Unlock()

	for _, j := range jobs {
		j.d.Update(v, j.pos)
	}
}

func (v *Volume) refreshPrioritySnapshot() {
	v.viewersMu.Lock()
	snap := make([]priority.Viewer, 0, len(v.viewers))
	for id, vs := range v.viewers {
		snap = append(snap, priority.Viewer{ID: uint32(id.id.Index), LocalPos: vs.worldPos})
	}
	v.viewersMu.Unlock()
	v.priorityHandle.Replace(snap)
}

func (v *Volume) stop() {
	v.pool.Stop()
}
