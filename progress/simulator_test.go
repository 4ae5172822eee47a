package progress

import (
	"testing"
	"time"
)

func newTestSimulator() (*Simulator, *ManualScheduler) {
	sched := NewManualScheduler()
	return New(Config{Scheduler: sched}), sched
}

// drain returns the updates buffered on ch without blocking, and whether
// the channel has been closed.
func drain(ch <-chan Update) ([]Update, bool) {
	var out []Update
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out, true
			}
			out = append(out, u)
		default:
			return out, false
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	if s.cfg.StepInterval != DefaultStepInterval {
		t.Errorf("StepInterval = %v, want %v", s.cfg.StepInterval, DefaultStepInterval)
	}
	if s.cfg.SettleDelay != DefaultSettleDelay {
		t.Errorf("SettleDelay = %v, want %v", s.cfg.SettleDelay, DefaultSettleDelay)
	}
	if s.cfg.Scheduler == nil {
		t.Error("Scheduler should default to SystemScheduler")
	}
}

func TestSimulator_Cadence(t *testing.T) {
	sim, sched := newTestSimulator()
	run := sim.Start([]any{"Fetching data", "Scoring"})

	steps := []struct {
		advance  time.Duration
		want     []int
		autoHide bool
		closed   bool
	}{
		{0, []int{0}, false, false},
		{799 * time.Millisecond, nil, false, false},
		{1 * time.Millisecond, []int{1}, false, false},
		{800 * time.Millisecond, []int{2}, false, false},
		{1999 * time.Millisecond, nil, false, false},
		{1 * time.Millisecond, []int{2}, true, true},
	}

	for i, step := range steps {
		sched.Advance(step.advance)
		got, closed := drain(run.Updates())
		if len(got) != len(step.want) {
			t.Fatalf("step %d at %v: got %d updates %+v, want %v", i, sched.Now(), len(got), got, step.want)
		}
		for j, u := range got {
			if u.RunID != run.ID() {
				t.Errorf("step %d: RunID = %d, want %d", i, u.RunID, run.ID())
			}
			if u.State.ActiveIndex != step.want[j] || u.State.Total != 2 {
				t.Errorf("step %d: state = %+v, want active %d of 2", i, u.State, step.want[j])
			}
			if u.AutoHide != step.autoHide {
				t.Errorf("step %d: AutoHide = %v, want %v", i, u.AutoHide, step.autoHide)
			}
		}
		if closed != step.closed {
			t.Errorf("step %d: closed = %v, want %v", i, closed, step.closed)
		}
	}

	if sched.Now() != 3600*time.Millisecond {
		t.Errorf("auto-hide at %v, want 3.6s", sched.Now())
	}
	if !run.Done() {
		t.Error("run should be done after auto-hide")
	}
	if snap := sim.Current(); snap.Active {
		t.Errorf("Current() after auto-hide = %+v, want inactive", snap)
	}
}

func TestSimulator_ZeroStagesHidesAfterSettle(t *testing.T) {
	sim, sched := newTestSimulator()
	run := sim.Start(nil)

	got, closed := drain(run.Updates())
	if len(got) != 1 || got[0].State != (State{}) || closed {
		t.Fatalf("initial updates = %+v closed=%v", got, closed)
	}

	sched.Advance(DefaultSettleDelay)
	got, closed = drain(run.Updates())
	if len(got) != 1 || !got[0].AutoHide || !closed {
		t.Errorf("after settle: updates = %+v closed=%v", got, closed)
	}
}

func TestSimulator_RestartDropsStaleUpdates(t *testing.T) {
	sim, sched := newTestSimulator()
	first := sim.Start([]any{"a", "b", "c"})
	sched.Advance(800 * time.Millisecond)

	second := sim.Start([]any{"x"})

	stale, closed := drain(first.Updates())
	if len(stale) != 0 {
		t.Errorf("superseded run delivered %d buffered updates", len(stale))
	}
	if !closed {
		t.Error("superseded run channel should be closed")
	}
	if !first.Done() {
		t.Error("superseded run should be done")
	}

	sched.Advance(10 * time.Second)

	got, closed := drain(second.Updates())
	var indices []int
	for _, u := range got {
		if u.RunID != second.ID() {
			t.Errorf("update from run %d leaked into run %d", u.RunID, second.ID())
		}
		indices = append(indices, u.State.ActiveIndex)
	}
	if len(indices) != 3 || indices[0] != 0 || indices[1] != 1 || indices[2] != 1 {
		t.Errorf("second run indices = %v, want [0 1 1]", indices)
	}
	if !closed {
		t.Error("second run should have auto-hidden")
	}
	if sched.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", sched.Pending())
	}
}

func TestSimulator_Reset(t *testing.T) {
	sim, sched := newTestSimulator()
	run := sim.Start([]any{"a", "b"})

	sim.Reset()
	if !run.Done() {
		t.Error("Reset should cancel the live run")
	}
	if sim.Live() != nil {
		t.Error("Live() should be nil after Reset")
	}
	if sched.Pending() != 0 {
		t.Errorf("pending timers after Reset = %d, want 0", sched.Pending())
	}

	sched.Advance(time.Minute)
	if got, _ := drain(run.Updates()); len(got) != 0 {
		t.Errorf("cancelled run emitted %+v", got)
	}

	// Reset with nothing live is a no-op.
	sim.Reset()
}

func TestRun_CancelIdempotent(t *testing.T) {
	sim, _ := newTestSimulator()
	run := sim.Start([]any{"a"})
	run.Cancel()
	run.Cancel()
	if !run.Done() {
		t.Error("run should be done")
	}
}

func TestSimulator_CurrentSnapshot(t *testing.T) {
	sim, sched := newTestSimulator()
	if snap := sim.Current(); snap.Active || snap.RunID != 0 {
		t.Errorf("idle Current() = %+v", snap)
	}

	run := sim.Start([]any{"Fetch", map[string]any{"stage": "Score", "detail": "bands"}})
	sched.Advance(800 * time.Millisecond)

	snap := sim.Current()
	if !snap.Active || snap.RunID != run.ID() {
		t.Errorf("Current() = %+v", snap)
	}
	if snap.State != (State{ActiveIndex: 1, Total: 2}) {
		t.Errorf("state = %+v", snap.State)
	}
	if len(snap.Stages) != 2 || snap.Stages[1].Detail != "bands" {
		t.Errorf("stages = %+v", snap.Stages)
	}
	if run.State() != snap.State {
		t.Errorf("run.State() = %+v, want %+v", run.State(), snap.State)
	}
}

func TestSimulator_CustomCadence(t *testing.T) {
	sched := NewManualScheduler()
	sim := New(Config{StepInterval: 100 * time.Millisecond, SettleDelay: 50 * time.Millisecond, Scheduler: sched})
	run := sim.Start([]any{"a"})

	sched.Advance(150 * time.Millisecond)
	got, closed := drain(run.Updates())
	if len(got) != 3 || !closed {
		t.Errorf("updates = %+v closed=%v, want initial, step, hide", got, closed)
	}
}

func TestSimulator_SystemScheduler(t *testing.T) {
	sim := New(Config{StepInterval: time.Millisecond, SettleDelay: time.Millisecond})
	run := sim.Start([]any{"a", "b"})

	deadline := time.After(5 * time.Second)
	var last Update
	for {
		select {
		case u, ok := <-run.Updates():
			if !ok {
				if !last.AutoHide || last.State.ActiveIndex != 2 {
					t.Errorf("last update = %+v, want auto-hide at 2", last)
				}
				return
			}
			last = u
		case <-deadline:
			t.Fatal("run did not auto-hide")
		}
	}
}
