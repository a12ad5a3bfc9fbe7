package tasks

import (
	"sync/atomic"

	"github.com/gekko3d/voxelcore/priority"
)

// CancelToken is an explicit, settable cancellation flag distinct from
// dependency invalidation or distance-based dropping — e.g. set when the
// host removes a volume outright while tasks are in flight.
type CancelToken struct{ v atomic.Bool }

func (c *CancelToken) Cancel()     { c.v.Store(true) }
func (c *CancelToken) IsSet() bool { return c.v.Load() }

// PriorityFunc is recomputed by the pool's rescue loop and on each pop;
// tasks close over the viewer snapshot handle and their own fixed
// position/lod/class so that a fresh evaluation always reflects the
// latest viewer positions.
type PriorityFunc func() (key priority.Key, distSq float64, tooFar bool)
