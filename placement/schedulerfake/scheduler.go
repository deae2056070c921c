// Package schedulerfake provides a placement.Scheduler advanced by hand.
package schedulerfake

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-storefront/placement"
)

var _ placement.Scheduler = (*Scheduler)(nil)

type Scheduler struct {
	mu     sync.Mutex
	timers []*Timer
	fired  int
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Every(interval time.Duration, fn func()) placement.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Timer{scheduler: s, interval: interval, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance fires every running timer once per tick, n times over. Callbacks
// run without the scheduler lock held and may stop timers. It returns the
// number of callbacks fired.
func (s *Scheduler) Advance(n int) int {
	fired := 0
	for i := 0; i < n; i++ {
		for _, t := range s.running() {
			if t.Stopped() {
				continue
			}
			t.fn()
			fired++
		}
	}
	s.mu.Lock()
	s.fired += fired
	s.mu.Unlock()
	return fired
}

// Active is the number of timers not yet stopped.
func (s *Scheduler) Active() int {
	return len(s.running())
}

// Created is the number of timers ever scheduled.
func (s *Scheduler) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Fired is the total number of callbacks run by Advance.
func (s *Scheduler) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

func (s *Scheduler) running() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Timer
	for _, t := range s.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

type Timer struct {
	scheduler *Scheduler
	interval  time.Duration
	fn        func()
	stopped   bool
}

func (t *Timer) Stop() {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	t.stopped = true
}

func (t *Timer) Stopped() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()
	return t.stopped
}

func (t *Timer) Interval() time.Duration {
	return t.interval
}
