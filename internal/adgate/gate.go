// Package adgate implements the timed advertisement sequence that has to be
// traversed before a pending message is generated.
package adgate

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrGateClosed is returned when advancing a gate that is not open
	ErrGateClosed = errors.New("ad gate is not open")
	// ErrNotReady is returned when advancing before the step countdown ends
	ErrNotReady = errors.New("ad step countdown still running")
)

// Config holds the gate timing
type Config struct {
	Steps       int
	StepSeconds int
	// TickInterval is the length of one countdown second
	TickInterval time.Duration
}

// DefaultConfig returns three steps of five seconds
func DefaultConfig() Config {
	return Config{Steps: 3, StepSeconds: 5, TickInterval: time.Second}
}

// State is a snapshot of the gate
type State struct {
	Open             bool `json:"open"`
	CurrentStep      int  `json:"currentStep"`
	TotalSteps       int  `json:"totalSteps"`
	RemainingSeconds int  `json:"remainingSeconds"`
	CanProceed       bool `json:"canProceed"`
}

// EventType names a gate transition
type EventType string

const (
	EventArmed     EventType = "armed"
	EventTick      EventType = "tick"
	EventUnlocked  EventType = "unlocked"
	EventAdvanced  EventType = "advanced"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
)

// Event is delivered to observers after each transition. Observers run
// outside the gate lock, so events can arrive out of order; Seq increases
// with every transition and a consumer drops anything older than the last
// Seq it has seen. Activation names the arming the event belongs to.
type Event struct {
	Type       EventType `json:"type"`
	State      State     `json:"state"`
	Activation uint64    `json:"activation"`
	Seq        uint64    `json:"seq"`
}

// Observer receives gate events. It is called without the gate lock held.
type Observer func(Event)

// Payload is the pending message held while the gate is open
type Payload struct {
	Content string
	// SessionID is the session the message was aimed at when it was sent
	SessionID string
}

// Completion is the result of advancing past the last step
type Completion struct {
	Done       bool
	Payload    Payload
	Activation uint64
}

// Gate is the ad-gate state machine. It is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	sched   Scheduler
	state   State
	payload Payload
	// epoch identifies the running countdown; ticks from older ones are ignored
	epoch      uint64
	activation uint64
	seq        uint64
	stopTimer  func()

	observers map[int]Observer
	nextObsID int
}

// New creates a closed gate
func New(cfg Config, sched Scheduler) *Gate {
	if cfg.Steps < 1 {
		cfg.Steps = 1
	}
	if cfg.StepSeconds < 0 {
		cfg.StepSeconds = 0
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if sched == nil {
		sched = TickerScheduler{}
	}

	return &Gate{
		cfg:       cfg,
		sched:     sched,
		state:     State{TotalSteps: cfg.Steps},
		observers: make(map[int]Observer),
	}
}

// Observe registers fn and returns a function removing it
func (g *Gate) Observe(fn Observer) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextObsID
	g.nextObsID++
	g.observers[id] = fn

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.observers, id)
	}
}

// State returns a snapshot
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Activation returns the number of the latest arming, zero if never armed
func (g *Gate) Activation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activation
}

// Arm opens the gate at the first step holding payload. Arming an open gate
// restarts it with the new payload.
func (g *Gate) Arm(payload Payload) State {
	g.mu.Lock()
	g.resetLocked()
	g.activation++
	g.payload = payload
	g.state.Open = true
	g.enterStepLocked(1)
	ev := g.eventLocked(EventArmed)
	obs := g.observersLocked()
	g.mu.Unlock()

	notify(obs, ev)
	return ev.State
}

// Advance moves to the next step once the countdown is over. Advancing past
// the last step closes the gate and hands back the payload.
func (g *Gate) Advance() (Completion, error) {
	g.mu.Lock()

	if !g.state.Open {
		g.mu.Unlock()
		return Completion{}, ErrGateClosed
	}
	if !g.state.CanProceed {
		g.mu.Unlock()
		return Completion{}, ErrNotReady
	}

	var (
		ev   Event
		done Completion
	)
	if g.state.CurrentStep < g.cfg.Steps {
		g.stopLocked()
		g.enterStepLocked(g.state.CurrentStep + 1)
		ev = g.eventLocked(EventAdvanced)
	} else {
		done = Completion{Done: true, Payload: g.payload, Activation: g.activation}
		g.resetLocked()
		ev = g.eventLocked(EventCompleted)
	}
	obs := g.observersLocked()
	g.mu.Unlock()

	notify(obs, ev)
	return done, nil
}

// Cancel closes an open gate and drops its payload. It reports whether the
// gate was open.
func (g *Gate) Cancel() bool {
	g.mu.Lock()
	if !g.state.Open {
		g.mu.Unlock()
		return false
	}
	g.resetLocked()
	ev := g.eventLocked(EventCancelled)
	obs := g.observersLocked()
	g.mu.Unlock()

	notify(obs, ev)
	return true
}

// Close tears the gate down. It is safe to call more than once.
func (g *Gate) Close() {
	g.Cancel()
}

func (g *Gate) tick(epoch uint64) {
	g.mu.Lock()
	if epoch != g.epoch || !g.state.Open || g.state.RemainingSeconds == 0 {
		g.mu.Unlock()
		return
	}

	g.state.RemainingSeconds--
	events := []Event{g.eventLocked(EventTick)}
	if g.state.RemainingSeconds == 0 {
		g.state.CanProceed = true
		g.stopLocked()
		events = append(events, g.eventLocked(EventUnlocked))
	}
	obs := g.observersLocked()
	g.mu.Unlock()

	for _, ev := range events {
		notify(obs, ev)
	}
}

// enterStepLocked starts the countdown for step n
func (g *Gate) enterStepLocked(n int) {
	g.epoch++
	g.state.CurrentStep = n
	g.state.TotalSteps = g.cfg.Steps
	g.state.RemainingSeconds = g.cfg.StepSeconds
	g.state.CanProceed = g.cfg.StepSeconds == 0

	if g.state.CanProceed {
		return
	}

	epoch := g.epoch
	g.stopTimer = g.sched.Every(g.cfg.TickInterval, func() { g.tick(epoch) })
}

func (g *Gate) resetLocked() {
	g.stopLocked()
	g.epoch++
	g.payload = Payload{}
	g.state = State{TotalSteps: g.cfg.Steps}
}

func (g *Gate) eventLocked(t EventType) Event {
	g.seq++
	return Event{Type: t, State: g.state, Activation: g.activation, Seq: g.seq}
}

func (g *Gate) stopLocked() {
	if g.stopTimer != nil {
		g.stopTimer()
		g.stopTimer = nil
	}
}

func (g *Gate) observersLocked() []Observer {
	if len(g.observers) == 0 {
		return nil
	}
	out := make([]Observer, 0, len(g.observers))
	for _, fn := range g.observers {
		out = append(out, fn)
	}
	return out
}

func notify(obs []Observer, ev Event) {
	for _, fn := range obs {
		fn(ev)
	}
}
