// Package chat ties a profile's sessions, usage record and ad gate together
// and runs generation turns.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"oficiogen/backend/internal/adgate"
	"oficiogen/backend/internal/generation"
	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/session"
	"oficiogen/backend/internal/store"
	"oficiogen/backend/internal/usage"
	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/observability"
)

var (
	// ErrEmptyMessage is returned for blank content
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrGenerationInProgress is returned while a turn is running
	ErrGenerationInProgress = errors.New("a generation is already in progress")
)

// Event types published to workspace observers
const (
	EventGenerationStarted   = "generation.started"
	EventGenerationCompleted = "generation.completed"
)

// Event is a workspace notification. Gate events carry the gate snapshot
// with its activation and sequence number, generation events carry the turn.
type Event struct {
	Type       string        `json:"type"`
	ProfileID  string        `json:"profileId"`
	Gate       *adgate.State `json:"gate,omitempty"`
	Activation uint64        `json:"activation,omitempty"`
	GateSeq    uint64        `json:"gateSeq,omitempty"`
	Turn       *Turn         `json:"turn,omitempty"`
}

// Turn is the outcome of a completed ad gate
type Turn struct {
	Session          models.ChatSession      `json:"session"`
	UserMessage      models.Message          `json:"userMessage"`
	AssistantMessage *models.Message         `json:"assistantMessage,omitempty"`
	Subscription     models.UserSubscription `json:"subscription"`
	Outcome          string                  `json:"outcome,omitempty"`
}

// AdvanceResult is returned by Advance. Turn is set once the last step is passed.
type AdvanceResult struct {
	Gate adgate.State `json:"gate"`
	Turn *Turn        `json:"turn,omitempty"`
}

// Deps are shared by every workspace
type Deps struct {
	Store     *store.Store
	Generator generation.Generator
	Gate      adgate.Config
	Scheduler adgate.Scheduler
	Policy    usage.Policy
	Metrics   *observability.Metrics
	Log       *logger.Logger
	Now       func() time.Time
	NewID     func() string
	// Observer, when set, is subscribed to every new workspace
	Observer func(Event)
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = observability.NopMetrics()
	}
	if d.Log == nil {
		d.Log = logger.GetGlobal()
	}
	if d.Gate.Steps == 0 {
		d.Gate = adgate.DefaultConfig()
	}
	return d
}

// Workspace is one profile's live state
type Workspace struct {
	profileID string
	sessions  *session.Manager
	usage     *usage.Tracker
	gate      *adgate.Gate
	generator generation.Generator
	metrics   *observability.Metrics
	log       *logger.Logger
	now       func() time.Time

	generating atomic.Bool

	mu          sync.Mutex
	observers   map[int]func(Event)
	nextObsID   int
	stopGateObs func()

	// gateMu orders forwarded gate events; lastGateSeq is the newest one sent
	gateMu      sync.Mutex
	lastGateSeq uint64
}

// NewWorkspace loads the profile's sessions and builds its gate
func NewWorkspace(ctx context.Context, profileID string, deps Deps) *Workspace {
	deps = deps.withDefaults()

	w := &Workspace{
		profileID: profileID,
		sessions: session.NewManager(ctx, session.Options{
			Store: deps.Store,
			Key:   store.ChatsKey(profileID),
			Now:   deps.Now,
			NewID: deps.NewID,
		}),
		usage: usage.NewTracker(usage.Options{
			Store:  deps.Store,
			Key:    store.SubscriptionKey(profileID),
			Now:    deps.Now,
			Policy: deps.Policy,
		}),
		gate:      adgate.New(deps.Gate, deps.Scheduler),
		generator: deps.Generator,
		metrics:   deps.Metrics,
		log:       deps.Log.WithProfileID(profileID),
		now:       deps.Now,
		observers: make(map[int]func(Event)),
	}

	w.stopGateObs = w.gate.Observe(w.forwardGateEvent)
	if deps.Observer != nil {
		w.Observe(deps.Observer)
	}

	return w
}

// ProfileID returns the owning profile
func (w *Workspace) ProfileID() string { return w.profileID }

// Observe registers fn for workspace events and returns a function removing it
func (w *Workspace) Observe(fn func(Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextObsID
	w.nextObsID++
	w.observers[id] = fn

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.observers, id)
	}
}

// Send arms the ad gate with content aimed at the current session. The
// target travels with the payload, so a concurrent re-arm replaces both.
func (w *Workspace) Send(ctx context.Context, content string) (adgate.State, error) {
	if strings.TrimSpace(content) == "" {
		return w.gate.State(), ErrEmptyMessage
	}
	if w.generating.Load() {
		return w.gate.State(), ErrGenerationInProgress
	}
	if err := w.usage.Check(ctx); err != nil {
		return w.gate.State(), err
	}

	w.metrics.GateArmed(ctx)
	return w.gate.Arm(adgate.Payload{Content: content, SessionID: w.sessions.CurrentID()}), nil
}

// Advance moves the gate forward. Passing the last step runs the generation turn.
func (w *Workspace) Advance(ctx context.Context) (AdvanceResult, error) {
	c, err := w.gate.Advance()
	if err != nil {
		return AdvanceResult{Gate: w.gate.State()}, err
	}
	if !c.Done {
		return AdvanceResult{Gate: w.gate.State()}, nil
	}

	w.metrics.GateCompleted(ctx)

	turn, err := w.runTurn(context.WithoutCancel(ctx), c.Payload.SessionID, c.Payload.Content)
	return AdvanceResult{Gate: w.gate.State(), Turn: turn}, err
}

// runTurn appends the user message, calls the generator and appends the reply.
// The generating flag is released on every path.
func (w *Workspace) runTurn(ctx context.Context, sessionID, content string) (*Turn, error) {
	if !w.generating.CompareAndSwap(false, true) {
		return nil, ErrGenerationInProgress
	}
	defer w.generating.Store(false)

	if err := w.usage.Check(ctx); err != nil {
		return nil, err
	}

	sess, userMsg, err := w.sessions.AppendUserMessage(ctx, sessionID, content)
	if err != nil {
		return nil, err
	}

	w.publish(Event{Type: EventGenerationStarted, ProfileID: w.profileID, Turn: &Turn{Session: sess, UserMessage: userMsg}})
	turn := &Turn{Session: sess, UserMessage: userMsg}

	start := w.now()
	text, genErr := w.generator.Generate(ctx, content)
	elapsed := w.now().Sub(start)

	turn.Outcome = generation.Outcome(text, genErr)
	w.metrics.Generation(ctx, turn.Outcome, elapsed)
	if genErr != nil {
		w.log.LogError(genErr, "Generation failed", "session_id", sessionID, "outcome", turn.Outcome)
	}

	sess, botMsg, err := w.sessions.AppendAssistantMessage(ctx, sessionID, generation.ReplyText(text, genErr))
	if err != nil {
		w.log.Warn("Session removed during generation", "session_id", sessionID)
		return nil, err
	}
	turn.Session = sess
	turn.AssistantMessage = &botMsg

	if turn.Outcome == observability.OutcomeSuccess {
		turn.Subscription = w.usage.Increment(ctx)
	} else {
		turn.Subscription = w.usage.Load(ctx)
	}

	completed := *turn
	w.publish(Event{Type: EventGenerationCompleted, ProfileID: w.profileID, Turn: &completed})
	return turn, nil
}

// CancelGate closes the gate and drops the pending message
func (w *Workspace) CancelGate(ctx context.Context) adgate.State {
	if w.gate.Cancel() {
		w.metrics.GateCancelled(ctx)
	}
	return w.gate.State()
}

// GateState returns the gate snapshot
func (w *Workspace) GateState() adgate.State { return w.gate.State() }

// IsGenerating reports whether a turn is running
func (w *Workspace) IsGenerating() bool { return w.generating.Load() }

// Sessions returns the collection and the current session id
func (w *Workspace) Sessions() ([]models.ChatSession, string) {
	return w.sessions.List(), w.sessions.CurrentID()
}

// CurrentSession returns the current session
func (w *Workspace) CurrentSession() models.ChatSession { return w.sessions.Current() }

// GetSession returns one session
func (w *Workspace) GetSession(id string) (models.ChatSession, error) { return w.sessions.Get(id) }

// CreateSession starts a new current session
func (w *Workspace) CreateSession(ctx context.Context) models.ChatSession {
	return w.sessions.Create(ctx)
}

// SelectSession switches the current session
func (w *Workspace) SelectSession(id string) (models.ChatSession, error) {
	return w.sessions.Select(id)
}

// DeleteSession removes a session
func (w *Workspace) DeleteSession(ctx context.Context, id string) error {
	return w.sessions.Delete(ctx, id)
}

// Subscription returns the usage record, applying the weekly reset
func (w *Workspace) Subscription(ctx context.Context) models.UserSubscription {
	return w.usage.Load(ctx)
}

// UpgradeToPro switches the plan
func (w *Workspace) UpgradeToPro(ctx context.Context) models.UserSubscription {
	return w.usage.UpgradeToPro(ctx)
}

// Close tears the gate down and detaches observers
func (w *Workspace) Close(ctx context.Context) {
	if w.gate.State().Open {
		w.metrics.GateCancelled(ctx)
	}
	w.gate.Close()
	w.stopGateObs()

	w.mu.Lock()
	w.observers = make(map[int]func(Event))
	w.mu.Unlock()
}

// forwardGateEvent republishes a gate event, dropping any that arrive after a
// newer one was already sent
func (w *Workspace) forwardGateEvent(ev adgate.Event) {
	w.gateMu.Lock()
	defer w.gateMu.Unlock()

	if ev.Seq <= w.lastGateSeq {
		return
	}
	w.lastGateSeq = ev.Seq

	st := ev.State
	w.publish(Event{
		Type:       "gate." + string(ev.Type),
		ProfileID:  w.profileID,
		Gate:       &st,
		Activation: ev.Activation,
		GateSeq:    ev.Seq,
	})
}

func (w *Workspace) publish(ev Event) {
	w.mu.Lock()
	obs := make([]func(Event), 0, len(w.observers))
	for _, fn := range w.observers {
		obs = append(obs, fn)
	}
	w.mu.Unlock()

	for _, fn := range obs {
		fn(ev)
	}
}
