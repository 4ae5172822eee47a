package progress

import (
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing. Reports false if it already
	// fired or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on Go runtime timers.
var SystemScheduler Scheduler = systemScheduler{}

// ManualScheduler is a Scheduler driven by Advance, for tests.
// Callbacks run synchronously on the goroutine calling Advance, in due
// order (ties in scheduling order).
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewManualScheduler creates a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc implements Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now + d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Now returns the virtual time elapsed since creation.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing every timer that
// becomes due, including timers scheduled by callbacks along the way.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.fn()
	}
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
