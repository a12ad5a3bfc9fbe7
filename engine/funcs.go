package engine

import (
	"context"

	"github.com/gekko3d/voxelcore/priority"
	"github.com/gekko3d/voxelcore/tasks"
)

// funcTask adapts a plain function to tasks.Task for the two
// push_async_*_task entry points (§6): host-supplied background work that
// isn't one of the four built-in kinds, e.g. a custom analysis pass or a
// multiplayer sync job. It is never cancelled and always runs at a fixed,
// caller-supplied priority.
type funcTask struct {
	kind tasks.Kind
	lane tasks.Lane
	key  priority.Key
	fn   func(ctx context.Context)
	done func()
}

func (t *funcTask) Kind() tasks.Kind       { return t.kind }
func (t *funcTask) Lane() tasks.Lane       { return t.lane }
func (t *funcTask) Priority() priority.Key { return t.key }
func (t *funcTask) IsCancelled() bool      { return false }

func (t *funcTask) Run(ctx context.Context) tasks.Status {
	if t.fn != nil {
		t.fn(ctx)
	}
	return tasks.StatusDone
}

func (t *funcTask) ApplyResult(dropped bool) {
	if t.done != nil {
		t.done()
	}
}
