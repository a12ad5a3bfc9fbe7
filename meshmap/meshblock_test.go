package meshmap

import "testing"

func TestMeshBlock_ScheduleUpdateInactiveOnlyMarksNeedUpdate(t *testing.T) {
	b := NewMeshBlock()
	b.Active = false
	if enqueue := b.ScheduleMeshUpdate(); enqueue {
		t.Errorf("inactive block must not be enqueued")
	}
	if b.State() != NeedUpdate {
		t.Errorf("expected NEED_UPDATE, got %s", b.State())
	}
}

func TestMeshBlock_ScheduleUpdateActiveEnqueues(t *testing.T) {
	b := NewMeshBlock()
	b.Active = true
	if enqueue := b.ScheduleMeshUpdate(); !enqueue {
		t.Errorf("active block should be enqueued")
	}
	if b.State() != UpdateNotSent {
		t.Errorf("expected UPDATE_NOT_SENT, got %s", b.State())
	}
	// Scheduling again while already UPDATE_NOT_SENT must not re-enqueue.
	if enqueue := b.ScheduleMeshUpdate(); enqueue {
		t.Errorf("must not re-enqueue while already UPDATE_NOT_SENT")
	}
}

func TestMeshBlock_CompleteResultForcesRescheduleOnLateEdit(t *testing.T) {
	b := NewMeshBlock()
	b.Active = true
	b.ScheduleMeshUpdate()
	b.Dispatch()
	if b.State() != UpdateSent {
		t.Fatalf("expected UPDATE_SENT after dispatch")
	}

	// An edit lands while the task is in flight.
	b.ScheduleMeshUpdate()

	needsReschedule := b.CompleteResult(nil)
	if !needsReschedule {
		t.Errorf("expected reschedule when an edit raced the in-flight task")
	}
}

func TestMeshBlock_CompleteResultAdvancesToUpToDate(t *testing.T) {
	b := NewMeshBlock()
	b.Active = true
	b.ScheduleMeshUpdate()
	b.Dispatch()
	if needsReschedule := b.CompleteResult(nil); needsReschedule {
		t.Errorf("expected clean UP_TO_DATE transition")
	}
	if b.State() != UpToDate {
		t.Errorf("expected UP_TO_DATE, got %s", b.State())
	}
}

func TestBlockSizeFactor_OnlyOneAndTwoSupported(t *testing.T) {
	cases := []struct {
		mesh, data int
		wantErr    bool
		wantFactor int
	}{
		{16, 16, false, 1},
		{32, 16, false, 2},
		{48, 16, true, 0},
		{16, 0, true, 0},
	}
	for _, c := range cases {
		f, err := BlockSizeFactor(c.mesh, c.data)
		if c.wantErr && err == nil {
			t.Errorf("mesh=%d data=%d: expected error", c.mesh, c.data)
		}
		if !c.wantErr && (err != nil || f != c.wantFactor) {
			t.Errorf("mesh=%d data=%d: expected factor %d, got %d err=%v", c.mesh, c.data, c.wantFactor, f, err)
		}
	}
}
