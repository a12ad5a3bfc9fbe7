package streaming

import (
	"context"

	"github.com/gekko3d/voxelcore/depend"
	"github.com/gekko3d/voxelcore/voxel"
)

// AsyncEdit is one (box, task, tracker) triple pushed by a caller, per
// §4.11. Tracker, if non-nil, is Done() once the edit has actually run (or
// never, if it was aborted before running).
type AsyncEdit struct {
	Box     Box
	Run     func(ctx context.Context)
	Tracker *depend.Tracker
}

// AsyncEditQueue groups pending async edits at the beginning of each tick:
// for each edit it preloads every currently-missing chunk intersecting its
// box under a shared tracker, then runs the edit once every preload
// completes. Aborting the edit's own tracker before the preload finishes
// destroys the edit without running it.
type AsyncEditQueue struct {
	pending []AsyncEdit

	// MissingPositions reports which LOD0 positions within box are not
	// currently loaded.
	MissingPositions func(box Box) []voxel.IVec3
	// PreloadOne schedules a load for pos and calls done() once that load
	// (or generation) completes.
	PreloadOne func(pos voxel.IVec3, done func())
	// PostEdit re-publishes the edited box through the same path as a
	// direct edit, once the edit task itself completes.
	PostEdit func(box Box)
	// RunEdit executes an edit's Run callback, e.g. by handing it to the
	// compute lane; defaults to running it inline if nil.
	RunEdit func(edit AsyncEdit)
}

func (q *AsyncEditQueue) Push(edit AsyncEdit) {
	q.pending = append(q.pending, edit)
}

// DrainTick starts the preload phase for every queued edit. Edits whose
// preload set is already empty run synchronously within this call; others
// run later, as their last preload completes.
func (q *AsyncEditQueue) DrainTick() {
	edits := q.pending
	q.pending = nil
	for _, edit := range edits {
		q.start(edit)
	}
}

func (q *AsyncEditQueue) start(edit AsyncEdit) {
	var missing []voxel.IVec3
	if q.MissingPositions != nil {
		missing = q.MissingPositions(edit.Box)
	}

	runOnce := func() {
		if q.RunEdit != nil {
			q.RunEdit(edit)
		} else if edit.Run != nil {
			edit.Run(context.Background())
		}
		if q.PostEdit != nil {
			q.PostEdit(edit.Box)
		}
		if edit.Tracker != nil {
			edit.Tracker.Done()
		}
	}

	preload := depend.NewTracker(len(missing), runOnce)
	if edit.Tracker != nil {
		edit.Tracker.OnAbort(func() { preload.Abort() })
	}
	for _, pos := range missing {
		if q.PreloadOne == nil {
			preload.Done()
			continue
		}
		q.PreloadOne(pos, preload.Done)
	}
}
