// Package tasks implements the priority-ordered worker pool and the four
// task kinds (Load/Generate/Save/Mesh) described in §4.5. Two logical
// lanes share the pool: a parallel compute lane (generate, mesh) and a
// serial I/O lane (load, save) limited to one in-flight task at a time per
// volume, since streams are assumed non-reentrant. Grounded on the
// reference engine's budget-per-frame draining pattern for the
// main-thread completion drain, and on its two-stage submit/convert task
// shape for the optional GPU path.
package tasks

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gekko3d/voxelcore/logx"
	"github.com/gekko3d/voxelcore/priority"
)

// Lane selects which admission queue a task runs under.
type Lane int

const (
	LaneCompute Lane = iota // parallel: generate, mesh
	LaneIO                  // serial per volume: load, save
)

// Kind names the four task kinds for counters and logging.
type Kind int

const (
	KindLoad Kind = iota
	KindGenerate
	KindSave
	KindMesh
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindGenerate:
		return "generate"
	case KindSave:
		return "save"
	case KindMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// Status is the outcome of one Run call.
type Status int

const (
	StatusDone Status = iota
	StatusTakenOut
)

// Task is the contract every pipeline task satisfies.
type Task interface {
	Kind() Kind
	Lane() Lane
	// Priority is recomputed periodically by the pool to rescue stale
	// priorities as viewers move (see rescueLoop).
	Priority() priority.Key
	// IsCancelled is checked each time a task is popped. A cancelled task
	// skips Run but still runs ApplyResult(dropped=true).
	IsCancelled() bool
	// Run performs the work. May return StatusTakenOut to hand ownership
	// to a secondary scheduler (GPU); the task is then expected to
	// re-submit itself via Pool.Resume once the secondary scheduler
	// finishes.
	Run(ctx context.Context) Status
	// ApplyResult runs on the main thread after Run finished or the task
	// was cancelled.
	ApplyResult(dropped bool)
}

// heapItem wraps a Task with insertion sequence, so that within equal
// priority insertion order is preserved (a plain binary heap is not
// stable, so ties are broken by seq).
type heapItem struct {
	task Task
	seq  int64
}

type taskHeap []*heapItem

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].task.Priority(), h[j].task.Priority()
	if pi != pj {
		return pi > pj // greater key = higher priority = pops first
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Result is what a finished or cancelled task posts to the completion
// channel, drained by the main thread.
type Result struct {
	Task    Task
	Dropped bool
	TraceID uuid.UUID
}

// Pool is the priority worker pool. One Pool serves one volume: its IO
// lane is strictly one-in-flight, matching "streams are assumed
// non-reentrant".
type Pool struct {
	log logx.Logger

	mu        sync.Mutex
	computeQ  taskHeap
	ioQ       taskHeap
	seq       int64
	ioBusy    bool
	closed    bool
	notify    chan struct{}

	completed chan Result

	workerCount int
	wg          sync.WaitGroup

	counters [4]int64 // indexed by Kind, see Stats
	statMu   sync.Mutex

	rescueInterval time.Duration
	stopRescue     chan struct{}
}

// New creates a pool with workerCount parallel compute workers (at least
// 1) plus one dedicated IO-lane worker, and a completion channel of the
// given buffer size.
func New(workerCount, completedBuffer int, log logx.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if log == nil {
		log = logx.NewNopLogger()
	}
	p := &Pool{
		log:            log,
		notify:         make(chan struct{}, 1),
		completed:      make(chan Result, completedBuffer),
		workerCount:    workerCount,
		rescueInterval: 200 * time.Millisecond,
		stopRescue:     make(chan struct{}),
	}
	return p
}

// Start launches the compute workers, the single IO worker and the
// priority-rescue ticker.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.computeWorker(ctx)
	}
	p.wg.Add(1)
	go p.ioWorker(ctx)
	go p.rescueLoop()
}

// Stop signals every worker to exit once their current task finishes and
// waits for them to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	close(p.stopRescue)
	p.wakeAll()
	p.wg.Wait()
}

func (p *Pool) wakeAll() {
	for i := 0; i < p.workerCount+1; i++ {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
}

// Submit enqueues a task onto its declared lane.
func (p *Pool) Submit(t Task) {
	p.mu.Lock()
	item := &heapItem{task: t, seq: p.seq}
	p.seq++
	switch t.Lane() {
	case LaneIO:
		heap.Push(&p.ioQ, item)
	default:
		heap.Push(&p.computeQ, item)
	}
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Completed exposes the channel the main thread drains.
func (p *Pool) Completed() <-chan Result { return p.completed }

func (p *Pool) computeWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		item := p.popCompute()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stopRescue:
				return
			case <-p.notify:
				continue
			}
		}
		p.run(ctx, item.task)
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed && p.computeQ.Len() == 0 {
			return
		}
	}
}

func (p *Pool) ioWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		item := p.popIO()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-p.stopRescue:
				return
			case <-p.notify:
				continue
			}
		}
		p.run(ctx, item.task)
		p.setIOBusy(false)
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed && p.ioQ.Len() == 0 {
			return
		}
	}
}

func (p *Pool) popCompute() *heapItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.computeQ.Len() == 0 {
		return nil
	}
	return heap.Pop(&p.computeQ).(*heapItem)
}

func (p *Pool) popIO() *heapItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ioBusy || p.ioQ.Len() == 0 {
		return nil
	}
	p.ioBusy = true
	return heap.Pop(&p.ioQ).(*heapItem)
}

func (p *Pool) setIOBusy(busy bool) {
	p.mu.Lock()
	p.ioBusy = busy
	p.mu.Unlock()
}

func (p *Pool) run(ctx context.Context, t Task) {
	p.bumpCounter(t.Kind())
	if t.IsCancelled() {
		p.completed <- Result{Task: t, Dropped: true}
		return
	}
	status := t.Run(ctx)
	if status == StatusTakenOut {
		// Ownership handed to a secondary scheduler (GPU); it is
		// responsible for re-submitting the task via Pool.Submit once
		// conversion is ready.
		return
	}
	p.completed <- Result{Task: t, Dropped: t.IsCancelled()}
}

// Resume re-submits a task previously taken out by a GPU stage, once the
// secondary scheduler's conversion step is ready to run.
func (p *Pool) Resume(t Task) { p.Submit(t) }

func (p *Pool) rescueLoop() {
	ticker := time.NewTicker(p.rescueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopRescue:
			return
		case <-ticker.C:
			p.rescuePriorities()
		}
	}
}

// rescuePriorities rebuilds both heaps so that tasks whose priority
// changed because a viewer moved are correctly reordered. A plain heap
// does not re-sort on an external priority change, so this runs
// periodically instead of on every viewer move.
func (p *Pool) rescuePriorities() {
	p.mu.Lock()
	heap.Init(&p.computeQ)
	heap.Init(&p.ioQ)
	p.mu.Unlock()
}

func (p *Pool) bumpCounter(k Kind) {
	p.statMu.Lock()
	p.counters[k]++
	p.statMu.Unlock()
}

// Stats returns the running count of tasks executed per kind. Counted
// independently per kind — in particular meshing tasks are never folded
// into the generate counter (see DESIGN.md Open Question #2).
func (p *Pool) Stats() map[Kind]int64 {
	p.statMu.Lock()
	defer p.statMu.Unlock()
	out := make(map[Kind]int64, 4)
	for k := Kind(0); k < 4; k++ {
		out[k] = p.counters[k]
	}
	return out
}

// DrainCompleted drains the completion channel up to budget, calling
// ApplyResult on each, and returns how many were applied. If the budget
// is exhausted, remaining results wait for the next call (one frame).
func (p *Pool) DrainCompleted(budget time.Duration) int {
	deadline := time.Now().Add(budget)
	applied := 0
	for {
		if budget > 0 && time.Now().After(deadline) {
			return applied
		}
		select {
		case res := <-p.completed:
			res.Task.ApplyResult(res.Dropped)
			applied++
		default:
			return applied
		}
	}
}
