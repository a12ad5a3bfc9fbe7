// Package apply implements the main-thread applier (§4.12): draining
// completed tasks within a time budget, deferred rate-limited collision
// rebuilds, mesh fade state, and kicking the next update tick. Grounded on
// the reference engine's per-frame tick orchestration (sequential
// profiler-scoped phases) and its budget-draining edit-queue pattern,
// generalized from entity edits to streaming task results.
package apply

import (
	"time"

	"github.com/gekko3d/voxelcore/meshmap"
	"github.com/gekko3d/voxelcore/tasks"
	"github.com/gekko3d/voxelcore/voxel"
)

// Profiler receives named scope timings, mirroring the reference engine's
// BeginScope/EndScope pairing; nil is a valid no-op profiler.
type Profiler interface {
	BeginScope(name string)
	EndScope(name string)
}

type nopProfiler struct{}

func (nopProfiler) BeginScope(string) {}
func (nopProfiler) EndScope(string)   {}

// CollisionBuilder rebuilds a mesh block's collision surface from its last
// mesh result; rate-limited per block by CollisionUpdateDelay.
type CollisionBuilder func(pos voxel.IVec3, lod int, block *meshmap.MeshBlock)

// Applier runs the per-frame main-thread phases against one volume's pool
// and mesh maps.
type Applier struct {
	Pool     *tasks.Pool
	Profiler Profiler

	DrainBudget          time.Duration
	CollisionUpdateDelay time.Duration
	FadeSpeedPerSecond    float32

	BuildCollision CollisionBuilder

	// PendingCollision is the set of blocks whose collider needs a
	// (rate-limited) rebuild, queued by the mesh-result handler.
	pendingCollision []collisionEntry

	// Fading is the set of mesh blocks currently cross-fading between
	// LOD activation states.
	fading []fadeEntry

	// KickUpdate runs the update task (inline, or submitted to the
	// compute lane as one task) once per tick.
	KickUpdate func()

	nowMs func() int64
}

type collisionEntry struct {
	Pos   voxel.IVec3
	Lod   int
	Block *meshmap.MeshBlock
}

type fadeEntry struct {
	Block *meshmap.MeshBlock
	Up    bool
}

func New(pool *tasks.Pool, profiler Profiler) *Applier {
	if profiler == nil {
		profiler = nopProfiler{}
	}
	return &Applier{Pool: pool, Profiler: profiler, DrainBudget: 2 * time.Millisecond, CollisionUpdateDelay: 200 * time.Millisecond, FadeSpeedPerSecond: 2}
}

// QueueCollisionRebuild marks a mesh block's collider dirty, to be rebuilt
// (rate-limited) on a future Tick.
func (a *Applier) QueueCollisionRebuild(pos voxel.IVec3, lod int, block *meshmap.MeshBlock) {
	block.CollisionDirty = true
	a.pendingCollision = append(a.pendingCollision, collisionEntry{Pos: pos, Lod: lod, Block: block})
}

// QueueFade starts (or restarts) a cross-fade on block, fading in (Up) or
// out.
func (a *Applier) QueueFade(block *meshmap.MeshBlock, up bool) {
	a.fading = append(a.fading, fadeEntry{Block: block, Up: up})
}

// Tick runs one frame's worth of the five §4.12 phases.
func (a *Applier) Tick(dt time.Duration, viewerCountChanged bool, refreshViewerSnapshot func()) int {
	a.Profiler.BeginScope("apply.drain")
	applied := a.Pool.DrainCompleted(a.DrainBudget)
	a.Profiler.EndScope("apply.drain")

	a.Profiler.BeginScope("apply.collision")
	a.processCollisions()
	a.Profiler.EndScope("apply.collision")

	a.Profiler.BeginScope("apply.fade")
	a.processFading(dt)
	a.Profiler.EndScope("apply.fade")

	a.Profiler.BeginScope("apply.viewers")
	if viewerCountChanged && refreshViewerSnapshot != nil {
		refreshViewerSnapshot()
	}
	a.Profiler.EndScope("apply.viewers")

	a.Profiler.BeginScope("apply.kick")
	if a.KickUpdate != nil {
		a.KickUpdate()
	}
	a.Profiler.EndScope("apply.kick")

	return applied
}

func (a *Applier) processCollisions() {
	if a.BuildCollision == nil || len(a.pendingCollision) == 0 {
		return
	}
	now := a.now()
	remaining := a.pendingCollision[:0]
	for _, e := range a.pendingCollision {
		if !e.Block.CollisionDirty {
			continue
		}
		last := e.Block.CollisionLastMs()
		if now-last < a.CollisionUpdateDelay.Milliseconds() {
			remaining = append(remaining, e)
			continue
		}
		a.BuildCollision(e.Pos, e.Lod, e.Block)
		e.Block.CollisionDirty = false
		e.Block.SetCollisionLastMs(now)
	}
	a.pendingCollision = remaining
}

func (a *Applier) processFading(dt time.Duration) {
	if len(a.fading) == 0 {
		return
	}
	step := a.FadeSpeedPerSecond * float32(dt.Seconds())
	remaining := a.fading[:0]
	for _, f := range a.fading {
		if f.Up {
			f.Block.FadeAlpha += step
			if f.Block.FadeAlpha >= 1 {
				f.Block.FadeAlpha = 1
				continue
			}
		} else {
			f.Block.FadeAlpha -= step
			if f.Block.FadeAlpha <= 0 {
				f.Block.FadeAlpha = 0
				continue
			}
		}
		remaining = append(remaining, f)
	}
	a.fading = remaining
}

func (a *Applier) now() int64 {
	if a.nowMs != nil {
		return a.nowMs()
	}
	return time.Now().UnixMilli()
}
