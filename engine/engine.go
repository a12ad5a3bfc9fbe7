package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gekko3d/voxelcore/config"
	"github.com/gekko3d/voxelcore/contracts"
	"github.com/gekko3d/voxelcore/logx"
	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/tasks"
)

// Engine is the explicit context an embedding host threads through every
// public entry point, in place of the source's process-wide VoxelEngine /
// MemoryPool singletons (§9 notes this is behaviorally equivalent to a
// global, just explicit).
type Engine struct {
	log logx.Logger

	mu          sync.Mutex
	volumes     *slotMap[*Volume]
	viewerOwner *slotMap[VolumeID]

	mainThread       []mainThreadJob
	mainThreadBudget time.Duration
}

type mainThreadJob struct {
	fn func(ctx context.Context)
}

// New creates an Engine. A nil logger installs logx.NewNopLogger().
func New(log logx.Logger) *Engine {
	if log == nil {
		log = logx.NewNopLogger()
	}
	return &Engine{
		log:              log,
		volumes:          newSlotMap[*Volume](),
		viewerOwner:      newSlotMap[VolumeID](),
		mainThreadBudget: time.Millisecond,
	}
}

// AddVolume implements add_volume(callbacks) -> VolumeID. settings == nil
// uses config.Default().
func (e *Engine) AddVolume(settings *config.Settings, cb Callbacks, gen contracts.Generator, stream contracts.Stream, mesher contracts.Mesher) (VolumeID, error) {
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return VolumeID{}, fmt.Errorf("engine: add_volume: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	vol, err := newVolume(VolumeID{}, settings, e.log, cb, gen, stream, mesher)
	if err != nil {
		return VolumeID{}, err
	}
	slot := e.volumes.Insert(vol)
	id := VolumeID{id: slot}
	vol.id = id
	return id, nil
}

// RemoveVolume stops the volume's pool and drops every viewer still
// pointed at it.
func (e *Engine) RemoveVolume(id VolumeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vol, ok := e.volumes.Get(id.id)
	if !ok {
		return fmt.Errorf("engine: remove_volume: unknown volume %s", id)
	}
	var orphaned []slotID
	e.viewerOwner.Each(func(vid slotID, owner VolumeID) {
		if owner == id {
			orphaned = append(orphaned, vid)
		}
	})
	for _, vid := range orphaned {
		e.viewerOwner.Remove(vid)
	}
	vol.stop()
	e.volumes.Remove(id.id)
	return nil
}

func (e *Engine) volume(id VolumeID) (*Volume, error) {
	vol, ok := e.volumes.Get(id.id)
	if !ok {
		return nil, fmt.Errorf("engine: unknown or stale volume %s", id)
	}
	return vol, nil
}

// AddViewer implements add_viewer -> ViewerID.
func (e *Engine) AddViewer(volID VolumeID) (ViewerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vol, err := e.volume(volID)
	if err != nil {
		return ViewerID{}, err
	}
	slot := e.viewerOwner.Insert(volID)
	vid := ViewerID{id: slot}
	vol.addViewer(vid)
	vol.refreshPrioritySnapshot()
	return vid, nil
}

// RemoveViewer implements remove_viewer.
func (e *Engine) RemoveViewer(vid ViewerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	volID, ok := e.viewerOwner.Get(vid.id)
	if !ok {
		return fmt.Errorf("engine: remove_viewer: unknown viewer %s", vid)
	}
	if vol, ok := e.volumes.Get(volID.id); ok {
		vol.removeViewer(vid)
		vol.refreshPrioritySnapshot()
	}
	e.viewerOwner.Remove(vid.id)
	return nil
}

func (e *Engine) viewerVolume(vid ViewerID) (*Volume, error) {
	volID, ok := e.viewerOwner.Get(vid.id)
	if !ok {
		return nil, fmt.Errorf("engine: unknown or stale viewer %s", vid)
	}
	vol, ok := e.volumes.Get(volID.id)
	if !ok {
		return nil, fmt.Errorf("engine: viewer %s's volume is gone", vid)
	}
	if !vol.hasViewer(vid) {
		return nil, fmt.Errorf("engine: viewer %s not registered on its volume", vid)
	}
	return vol, nil
}

// SetViewerPosition implements set_viewer_position.
func (e *Engine) SetViewerPosition(vid ViewerID, worldPos [3]float64) error {
	e.mu.Lock()
	vol, err := e.viewerVolume(vid)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	vol.setViewerPosition(vid, worldPos)
	return nil
}

// SetViewerDistance implements set_viewer_distance.
func (e *Engine) SetViewerDistance(vid ViewerID, distance float64) error {
	e.mu.Lock()
	vol, err := e.viewerVolume(vid)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	vol.setViewerDistance(vid, distance)
	return nil
}

// SetViewerFlags implements set_viewer_flags. Flags are opaque to the
// core; hosts use them for things like "this viewer only streams
// collision, no visuals".
func (e *Engine) SetViewerFlags(vid ViewerID, flags uint32) error {
	e.mu.Lock()
	vol, err := e.viewerVolume(vid)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	vol.setViewerFlags(vid, flags)
	return nil
}

// hostTaskPriority is the fixed priority given to host-pushed async work:
// it doesn't go through priority.Evaluate because it isn't tied to a chunk
// position. band0 and band1 are at their maximum under the generate class,
// so it outranks every generate and save task, while load and mesh tasks
// (higher classes) still outrank it.
var hostTaskPriority = priority.Pack(priority.BandMax, priority.BandMax, priority.ClassGenerate, priority.DefaultBand3)

// PushAsyncIOTask implements push_async_io_task: runs fn on volID's
// serial I/O lane.
func (e *Engine) PushAsyncIOTask(volID VolumeID, fn func(ctx context.Context)) error {
	return e.pushFunc(volID, fn, tasks.LaneIO)
}

// PushAsyncTask implements push_async_task: runs fn on volID's parallel
// compute lane.
func (e *Engine) PushAsyncTask(volID VolumeID, fn func(ctx context.Context)) error {
	return e.pushFunc(volID, fn, tasks.LaneCompute)
}

func (e *Engine) pushFunc(volID VolumeID, fn func(ctx context.Context), lane tasks.Lane) error {
	e.mu.Lock()
	vol, err := e.volume(volID)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	vol.pool.Submit(&funcTask{kind: tasks.KindGenerate, lane: lane, key: hostTaskPriority, fn: fn})
	return nil
}

// PushMainThreadTimeSpreadTask implements push_main_thread_time_spread_task:
// fn runs on a future Process() call, on the goroutine that calls Process,
// bounded by the engine's main-thread budget per call.
func (e *Engine) PushMainThreadTimeSpreadTask(fn func(ctx context.Context)) {
	e.mu.Lock()
	e.mainThread = append(e.mainThread, mainThreadJob{fn: fn})
	e.mu.Unlock()
}

// Process implements process(): call once per host tick. Drives every
// volume's update tick and drains the time-spread main-thread queue.
func (e *Engine) Process(dt time.Duration) {
	e.mu.Lock()
	var vols []*Volume
	e.volumes.Each(func(_ slotID, v *Volume) { vols = append(vols, v) })
	e.mu.Unlock()

	for _, vol := range vols {
		vol.tick(dt)
	}

	e.drainMainThread()
}

func (e *Engine) drainMainThread() {
	deadline := time.Now().Add(e.mainThreadBudget)
	ctx := context.Background()
	for {
		e.mu.Lock()
		if len(e.mainThread) == 0 {
			e.mu.Unlock()
			return
		}
		job := e.mainThread[0]
		e.mainThread = e.mainThread[1:]
		e.mu.Unlock()

		job.fn(ctx)

		if time.Now().After(deadline) {
			return
		}
	}
}
