package depend

import "sync"

// Tracker is a counted completion barrier: N background tasks decrement it
// as they finish, and once it reaches zero a completion callback runs
// exactly once. Used to gate a save's flush on the last pending write
// (§4.5.c) and to gate an async edit on every preload chunk having
// arrived (§4.11). Grounded on the reference engine's async dependency
// tracker concept, generalized from a C++ intrusive-refcount object into a
// small Go type with explicit Add/Done calls.
type Tracker struct {
	mu       sync.Mutex
	pending  int
	aborted  bool
	onDone   func()
	onAbort  func()
	finished bool
}

// NewTracker creates a tracker expecting `pending` completions.
func NewTracker(pending int, onDone func()) *Tracker {
	t := &Tracker{pending: pending, onDone: onDone}
	if pending <= 0 {
		t.finished = true
		if onDone != nil {
			onDone()
		}
	}
	return t
}

// OnAbort registers a callback invoked if Abort is called before
// completion. Must be set before any Done/Abort call races it.
func (t *Tracker) OnAbort(fn func()) {
	t.mu.Lock()
	t.onAbort = fn
	t.mu.Unlock()
}

// Add increments the pending count. Safe to call before the tracker has
// finished; calling it after completion is a caller error (no-op here,
// since the tracker already fired).
func (t *Tracker) Add(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.pending += n
}

// Done decrements the pending count; when it reaches zero the completion
// callback runs, at most once.
func (t *Tracker) Done() {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.pending--
	fire := t.pending <= 0
	if fire {
		t.finished = true
	}
	cb := t.onDone
	t.mu.Unlock()
	if fire && cb != nil {
		cb()
	}
}

// Abort marks the tracker aborted: pending edit tasks are destroyed
// without running, per §4.11. Idempotent.
func (t *Tracker) Abort() {
	t.mu.Lock()
	if t.finished || t.aborted {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	t.finished = true
	cb := t.onAbort
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Aborted reports whether Abort was called.
func (t *Tracker) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// Pending reports the current outstanding count, for diagnostics.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
