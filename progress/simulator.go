package progress

import (
	"sync"
	"time"
)

// Default simulation cadence.
const (
	DefaultStepInterval = 800 * time.Millisecond
	DefaultSettleDelay  = 2 * time.Second
)

// Config configures a Simulator. Zero values take the defaults.
type Config struct {
	// StepInterval separates consecutive stage transitions.
	StepInterval time.Duration
	// SettleDelay is how long the completed state is shown before auto-hide.
	SettleDelay time.Duration
	// Scheduler runs the transitions (default SystemScheduler).
	Scheduler Scheduler
}

// Update is one progress emission of a run.
type Update struct {
	RunID uint64
	State State
	// AutoHide is set on the final update, SettleDelay after completion.
	AutoHide bool
}

// Simulator owns the progress state of at most one live run.
// Starting a run cancels the previous one; a cancelled run never emits again.
type Simulator struct {
	mu      sync.Mutex
	cfg     Config
	lastID  uint64
	current *Run
}

// Run is the handle of one simulation. Updates are delivered on a buffered
// channel that is closed after auto-hide or cancellation.
type Run struct {
	id      uint64
	sim     *Simulator
	stages  []Stage
	state   State
	updates chan Update
	timers  []Timer
	done    bool // guarded by sim.mu
}

// Snapshot is the live run as seen by presentation code.
type Snapshot struct {
	RunID  uint64  `json:"run_id"`
	Active bool    `json:"active"`
	State  State   `json:"state"`
	Stages []Stage `json:"stages"`
}

// New creates a Simulator.
func New(cfg Config) *Simulator {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultStepInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler
	}
	return &Simulator{cfg: cfg}
}

// Start cancels any live run and starts a new one over the raw stage
// entries. ActiveIndex 0 is emitted before Start returns.
func (s *Simulator) Start(raw []any) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.cancelLocked(s.current)
	}

	stages := NormalizeStages(raw)
	s.lastID++
	r := &Run{
		id:     s.lastID,
		sim:    s,
		stages: stages,
		state:  State{ActiveIndex: 0, Total: len(stages)},
		// initial + one per stage + auto-hide: emission never blocks
		updates: make(chan Update, len(stages)+2),
	}
	s.current = r

	r.emitLocked(false)
	if r.state.Complete() {
		r.timers = append(r.timers, s.cfg.Scheduler.AfterFunc(s.cfg.SettleDelay, r.hide))
		return r
	}
	for i := 1; i <= len(stages); i++ {
		r.timers = append(r.timers, s.cfg.Scheduler.AfterFunc(time.Duration(i)*s.cfg.StepInterval, r.advance))
	}
	return r
}

// Reset cancels the live run, if any.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.cancelLocked(s.current)
	}
}

// Current returns the live run's state. Active is false when no run is live.
func (s *Simulator) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Snapshot{}
	}
	return s.current.snapshotLocked()
}

// Live returns the live run handle, or nil.
func (s *Simulator) Live() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Simulator) cancelLocked(r *Run) {
	if r.done {
		return
	}
	for _, t := range r.timers {
		t.Stop()
	}
	// Buffered updates of a superseded run are never observed.
	for drained := false; !drained; {
		select {
		case <-r.updates:
		default:
			drained = true
		}
	}
	r.finishLocked()
}

// ID returns the run identifier carried by its updates.
func (r *Run) ID() uint64 { return r.id }

// Updates returns the run's update channel.
func (r *Run) Updates() <-chan Update { return r.updates }

// Stages returns the normalized stages of the run.
func (r *Run) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// State returns the current progress state.
func (r *Run) State() State {
	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()
	return r.state
}

// Done reports whether the run was cancelled or has auto-hidden.
func (r *Run) Done() bool {
	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()
	return r.done
}

// Cancel stops the run. Safe to call more than once.
func (r *Run) Cancel() {
	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()
	r.sim.cancelLocked(r)
}

func (r *Run) advance() {
	s := r.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done || r.state.Complete() {
		return
	}
	r.state.ActiveIndex++
	r.emitLocked(false)
	if r.state.Complete() {
		r.timers = append(r.timers, s.cfg.Scheduler.AfterFunc(s.cfg.SettleDelay, r.hide))
	}
}

func (r *Run) hide() {
	s := r.sim
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.done {
		return
	}
	r.emitLocked(true)
	r.finishLocked()
}

func (r *Run) emitLocked(autoHide bool) {
	select {
	case r.updates <- Update{RunID: r.id, State: r.state, AutoHide: autoHide}:
	default:
	}
}

func (r *Run) finishLocked() {
	r.done = true
	close(r.updates)
	if r.sim.current == r {
		r.sim.current = nil
	}
}

func (r *Run) snapshotLocked() Snapshot {
	return Snapshot{
		RunID:  r.id,
		Active: !r.done,
		State:  r.state,
		Stages: r.Stages(),
	}
}
