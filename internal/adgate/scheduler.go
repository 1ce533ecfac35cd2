package adgate

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn every d until the returned stop function is called.
// stop must not block waiting for a running fn.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// TickerScheduler is the wall-clock Scheduler
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler fires its timers only when Tick is called
type ManualScheduler struct {
	mu     sync.Mutex
	nextID int
	timers map[int]func()
}

// NewManualScheduler creates a scheduler with no timers
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{timers: make(map[int]func())}
}

func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.timers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, id)
	}
}

// Tick fires every active timer n times, in registration order
func (s *ManualScheduler) Tick(n int) {
	for i := 0; i < n; i++ {
		for _, fn := range s.snapshot() {
			fn()
		}
	}
}

// Active returns the number of running timers
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *ManualScheduler) snapshot() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(), len(ids))
	for i, id := range ids {
		fns[i] = s.timers[id]
	}
	return fns
}
