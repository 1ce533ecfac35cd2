package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oficiogen/backend/internal/adgate"
	"oficiogen/backend/internal/generation"
	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/session"
	"oficiogen/backend/internal/store"
	"oficiogen/backend/internal/usage"
	"oficiogen/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	block, entered := g.block, g.entered
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return g.reply, g.err
}

func (g *stubGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type harness struct {
	ws    *Workspace
	sched *adgate.ManualScheduler
	gen   *stubGenerator
	store *store.Store
}

func newHarness(t *testing.T, policy usage.Policy) *harness {
	t.Helper()
	sched := adgate.NewManualScheduler()
	gen := &stubGenerator{reply: "OFÍCIO Nº 1"}
	s := store.New(store.NewMemory(), store.WithLogger(logger.Discard()))

	ws := NewWorkspace(context.Background(), "profile-1", Deps{
		Store:     s,
		Generator: gen,
		Gate:      adgate.DefaultConfig(),
		Scheduler: sched,
		Policy:    policy,
		Log:       logger.Discard(),
	})
	t.Cleanup(func() { ws.Close(context.Background()) })

	return &harness{ws: ws, sched: sched, gen: gen, store: s}
}

// complete waits out and advances every step of an armed gate
func (h *harness) complete(t *testing.T) (AdvanceResult, error) {
	t.Helper()
	var (
		res AdvanceResult
		err error
	)
	for step := 1; step <= 3; step++ {
		h.sched.Tick(5)
		res, err = h.ws.Advance(context.Background())
		if step < 3 {
			require.NoError(t, err)
			require.Nil(t, res.Turn)
		}
	}
	return res, err
}

func TestSendRejectsBlankContent(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.ws.Send(context.Background(), "   \n")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.False(t, h.ws.GateState().Open)
}

func TestSendArmsGateWithoutTouchingSession(t *testing.T) {
	h := newHarness(t, nil)

	st, err := h.ws.Send(context.Background(), "Ofício de convite")
	require.NoError(t, err)

	assert.True(t, st.Open)
	assert.Equal(t, 1, st.CurrentStep)
	assert.Empty(t, h.ws.CurrentSession().Messages)
	assert.Empty(t, h.gen.calls())
}

func TestFullTurn(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "Ofício de convite para reunião do conselho")
	require.NoError(t, err)

	res, err := h.complete(t)
	require.NoError(t, err)
	require.NotNil(t, res.Turn)

	turn := res.Turn
	assert.False(t, res.Gate.Open)
	assert.Equal(t, []string{"Ofício de convite para reunião do conselho"}, h.gen.calls())
	assert.Equal(t, "Ofício de convite para reunião...", turn.Session.Title)
	require.Len(t, turn.Session.Messages, 2)
	assert.Equal(t, models.RoleUser, turn.Session.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, turn.Session.Messages[1].Role)
	assert.Equal(t, "OFÍCIO Nº 1", turn.AssistantMessage.Content)
	assert.Equal(t, 1, turn.Subscription.GenerationsCount)
	assert.Equal(t, "success", turn.Outcome)
	assert.False(t, h.ws.IsGenerating())
}

func TestFailedGenerationStillReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"network", errors.New("connection reset"), generation.GenericErrorText},
		{"credential", generation.ErrMissingCredential, generation.ConfigErrorText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.gen.err = tt.err
			ctx := context.Background()

			_, err := h.ws.Send(ctx, "pedido")
			require.NoError(t, err)
			res, err := h.complete(t)
			require.NoError(t, err)

			assert.Equal(t, tt.want, res.Turn.AssistantMessage.Content)
			assert.Equal(t, 0, res.Turn.Subscription.GenerationsCount)
			assert.Equal(t, 0, h.ws.Subscription(ctx).GenerationsCount)
			assert.False(t, h.ws.IsGenerating())
		})
	}
}

func TestEmptyReplyUsesFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.gen.reply = ""

	_, err := h.ws.Send(context.Background(), "pedido")
	require.NoError(t, err)
	res, err := h.complete(t)
	require.NoError(t, err)

	assert.Equal(t, generation.EmptyReplyText, res.Turn.AssistantMessage.Content)
	assert.Equal(t, 0, res.Turn.Subscription.GenerationsCount)
}

func TestSendWhileGeneratingIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.gen.block = make(chan struct{})
	h.gen.entered = make(chan struct{}, 1)
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "primeiro")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for step := 1; step <= 3; step++ {
			h.sched.Tick(5)
			if _, err := h.ws.Advance(ctx); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	<-h.gen.entered
	assert.True(t, h.ws.IsGenerating())

	_, err = h.ws.Send(ctx, "segundo")
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	close(h.gen.block)
	require.NoError(t, <-done)
	assert.False(t, h.ws.IsGenerating())
}

func TestQuotaPolicyBlocksSend(t *testing.T) {
	h := newHarness(t, usage.FreeWeeklyCap{Limit: 1})
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "primeiro")
	require.NoError(t, err)
	_, err = h.complete(t)
	require.NoError(t, err)

	_, err = h.ws.Send(ctx, "segundo")
	assert.ErrorIs(t, err, usage.ErrQuotaExceeded)
	assert.False(t, h.ws.GateState().Open)

	h.ws.UpgradeToPro(ctx)
	_, err = h.ws.Send(ctx, "segundo")
	assert.NoError(t, err)
}

func TestTurnTargetsSessionCurrentAtSend(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	original := h.ws.CurrentSession().ID

	_, err := h.ws.Send(ctx, "pedido")
	require.NoError(t, err)
	other := h.ws.CreateSession(ctx)

	res, err := h.complete(t)
	require.NoError(t, err)

	assert.Equal(t, original, res.Turn.Session.ID)
	s, err := h.ws.GetSession(other.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
}

func TestRearmReplacesContentAndTargetTogether(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.ws.CurrentSession().ID

	_, err := h.ws.Send(ctx, "primeiro")
	require.NoError(t, err)
	second := h.ws.CreateSession(ctx)
	_, err = h.ws.Send(ctx, "segundo")
	require.NoError(t, err)

	res, err := h.complete(t)
	require.NoError(t, err)

	assert.Equal(t, second.ID, res.Turn.Session.ID)
	assert.Equal(t, "segundo", res.Turn.UserMessage.Content)
	assert.Equal(t, []string{"segundo"}, h.gen.calls())

	s, err := h.ws.GetSession(first)
	require.NoError(t, err)
	assert.Empty(t, s.Messages)
}

func TestStaleGateEventIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	var (
		mu     sync.Mutex
		events []Event
	)
	h.ws.Observe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	h.ws.forwardGateEvent(adgate.Event{Type: adgate.EventArmed, State: adgate.State{Open: true, CurrentStep: 1}, Activation: 2, Seq: 7})
	h.ws.forwardGateEvent(adgate.Event{Type: adgate.EventTick, State: adgate.State{Open: true, CurrentStep: 3}, Activation: 1, Seq: 6})
	h.ws.forwardGateEvent(adgate.Event{Type: adgate.EventTick, State: adgate.State{Open: true, CurrentStep: 1}, Activation: 2, Seq: 8})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, "gate.armed", events[0].Type)
	assert.Equal(t, uint64(2), events[0].Activation)
	assert.Equal(t, uint64(7), events[0].GateSeq)
	assert.Equal(t, "gate.tick", events[1].Type)
	assert.Equal(t, uint64(8), events[1].GateSeq)
}

func TestPublishedGateEventsAreOrdered(t *testing.T) {
	h := newHarness(t, nil)
	var (
		mu   sync.Mutex
		seqs []uint64
	)
	h.ws.Observe(func(ev Event) {
		if ev.GateSeq == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seqs = append(seqs, ev.GateSeq)
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.ws.Send(ctx, "pedido")
		}()
		go func() {
			defer wg.Done()
			h.sched.Tick(1)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seqs)
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
}

func TestTurnTargetDeleted(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	original := h.ws.CurrentSession().ID

	_, err := h.ws.Send(ctx, "pedido")
	require.NoError(t, err)
	require.NoError(t, h.ws.DeleteSession(ctx, original))

	_, err = h.complete(t)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	assert.Empty(t, h.gen.calls())
	assert.False(t, h.ws.IsGenerating())
}

func TestCancelDropsPendingMessage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "P")
	require.NoError(t, err)
	h.sched.Tick(5)
	_, err = h.ws.Advance(ctx)
	require.NoError(t, err)

	st := h.ws.CancelGate(ctx)
	assert.False(t, st.Open)

	_, err = h.ws.Advance(ctx)
	assert.ErrorIs(t, err, adgate.ErrGateClosed)

	_, err = h.ws.Send(ctx, "Q")
	require.NoError(t, err)
	_, err = h.complete(t)
	require.NoError(t, err)

	assert.Equal(t, []string{"Q"}, h.gen.calls())
}

func TestPrematureAdvance(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "P")
	require.NoError(t, err)
	h.sched.Tick(3)

	res, err := h.ws.Advance(ctx)
	assert.ErrorIs(t, err, adgate.ErrNotReady)
	assert.Equal(t, 2, res.Gate.RemainingSeconds)
	assert.Equal(t, 1, res.Gate.CurrentStep)
}

func TestEventsArePublished(t *testing.T) {
	h := newHarness(t, nil)
	var (
		mu    sync.Mutex
		types []string
	)
	h.ws.Observe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type)
	})

	_, err := h.ws.Send(context.Background(), "P")
	require.NoError(t, err)
	_, err = h.complete(t)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "gate.armed", types[0])
	assert.Contains(t, types, "gate.unlocked")
	assert.Equal(t, []string{"gate.completed", EventGenerationStarted, EventGenerationCompleted}, types[len(types)-3:])
}

func TestWorkspaceStateSurvivesReload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.ws.Send(ctx, "pedido")
	require.NoError(t, err)
	_, err = h.complete(t)
	require.NoError(t, err)

	reloaded := NewWorkspace(ctx, "profile-1", Deps{
		Store:     h.store,
		Generator: h.gen,
		Scheduler: adgate.NewManualScheduler(),
		Log:       logger.Discard(),
	})
	defer reloaded.Close(ctx)

	sessions, current := reloaded.Sessions()
	want, wantCurrent := h.ws.Sessions()
	assert.Equal(t, want, sessions)
	assert.Equal(t, wantCurrent, current)
	assert.Equal(t, 1, reloaded.Subscription(ctx).GenerationsCount)
}

func TestRegistry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reg := NewRegistry(Deps{
		Store:     store.New(store.NewMemory(), store.WithLogger(logger.Discard())),
		Generator: &stubGenerator{reply: "x"},
		Scheduler: adgate.NewManualScheduler(),
		Log:       logger.Discard(),
		Now:       func() time.Time { return now },
	}, time.Minute)
	ctx := context.Background()

	a := reg.Get(ctx, "a")
	assert.Same(t, a, reg.Get(ctx, "a"))
	reg.Get(ctx, "b")
	assert.Equal(t, 2, reg.Len())

	_, err := a.Send(ctx, "pedido")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	reg.Get(ctx, "b")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, reg.EvictIdle(ctx))
	_, ok := reg.Peek("a")
	assert.False(t, ok)
	assert.False(t, a.GateState().Open)

	reg.Close(ctx)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryHoldPreventsEviction(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reg := NewRegistry(Deps{
		Store:     store.New(store.NewMemory(), store.WithLogger(logger.Discard())),
		Generator: &stubGenerator{reply: "x"},
		Scheduler: adgate.NewManualScheduler(),
		Log:       logger.Discard(),
		Now:       func() time.Time { return now },
	}, time.Minute)
	ctx := context.Background()

	release := reg.Hold("a")
	a := reg.Get(ctx, "a")
	_, err := a.Send(ctx, "pedido")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	assert.Equal(t, 0, reg.EvictIdle(ctx))
	assert.Same(t, a, reg.Get(ctx, "a"))
	assert.True(t, a.GateState().Open)

	release()
	release()
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, reg.EvictIdle(ctx))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, reg.EvictIdle(ctx))

	b := reg.Get(ctx, "a")
	assert.NotSame(t, a, b)
	assert.False(t, b.GateState().Open)
	_, err = b.Send(ctx, "outro")
	assert.NoError(t, err)
}
