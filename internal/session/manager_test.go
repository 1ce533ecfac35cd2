package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"
	"oficiogen/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "oficiogen_chats:test"

type fixture struct {
	mem   *store.Memory
	store *store.Store
	clock time.Time
	seq   int
}

func newFixture() *fixture {
	mem := store.NewMemory()
	return &fixture{
		mem:   mem,
		store: store.New(mem, store.WithLogger(logger.Discard())),
		clock: time.UnixMilli(1_700_000_000_000),
	}
}

func (f *fixture) manager() *Manager {
	return NewManager(context.Background(), Options{
		Store: f.store,
		Key:   testKey,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Millisecond)
			return f.clock
		},
		NewID: func() string {
			f.seq++
			return fmt.Sprintf("id-%03d", f.seq)
		},
	})
}

func ids(sessions []models.ChatSession) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func TestNewManagerCreatesInitialSession(t *testing.T) {
	f := newFixture()
	m := f.manager()

	sessions := m.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, models.DefaultSessionTitle, sessions[0].Title)
	assert.Empty(t, sessions[0].Messages)
	assert.Equal(t, sessions[0].ID, m.CurrentID())
	assert.Equal(t, 1, f.mem.Count())
}

func TestCreateOrdersNewestFirst(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()

	initial := m.CurrentID()
	a := m.Create(ctx)
	b := m.Create(ctx)
	c := m.Create(ctx)

	assert.Equal(t, []string{c.ID, b.ID, a.ID, initial}, ids(m.List()))
	assert.Equal(t, c.ID, m.CurrentID())
}

func TestAppendUserMessageDerivesTitleOnce(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()
	id := m.CurrentID()

	first := "Preciso de um ofício para a secretaria"
	s, msg, err := m.AppendUserMessage(ctx, id, first)
	require.NoError(t, err)
	assert.Equal(t, "Preciso de um ofício para a se...", s.Title)
	assert.Equal(t, models.RoleUser, msg.Role)
	assert.Equal(t, msg.Timestamp, s.UpdatedAt)

	s, _, err = m.AppendAssistantMessage(ctx, id, "Resposta")
	require.NoError(t, err)
	s, _, err = m.AppendUserMessage(ctx, id, "Outro pedido")
	require.NoError(t, err)

	assert.Equal(t, "Preciso de um ofício para a se...", s.Title)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser},
		[]models.Role{s.Messages[0].Role, s.Messages[1].Role, s.Messages[2].Role})
}

func TestAppendDoesNotTouchOtherSessions(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()

	other := m.CurrentID()
	target := m.Create(ctx)
	before, err := m.Get(other)
	require.NoError(t, err)

	_, _, err = m.AppendUserMessage(ctx, target.ID, "Olá")
	require.NoError(t, err)

	after, err := m.Get(other)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAppendUnknownSession(t *testing.T) {
	m := newFixture().manager()

	_, _, err := m.AppendUserMessage(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteCurrentMovesToHead(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()

	initial := m.CurrentID()
	a := m.Create(ctx)
	b := m.Create(ctx)
	c := m.Create(ctx)

	require.NoError(t, m.Delete(ctx, c.ID))

	assert.Equal(t, []string{b.ID, a.ID, initial}, ids(m.List()))
	assert.Equal(t, b.ID, m.CurrentID())
}

func TestDeleteNonCurrentKeepsPointer(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()

	a := m.Create(ctx)
	b := m.Create(ctx)

	require.NoError(t, m.Delete(ctx, a.ID))
	assert.Equal(t, b.ID, m.CurrentID())
}

func TestDeleteLastCreatesFreshSession(t *testing.T) {
	f := newFixture()
	m := f.manager()
	ctx := context.Background()
	only := m.CurrentID()

	require.NoError(t, m.Delete(ctx, only))

	sessions := m.List()
	require.Len(t, sessions, 1)
	assert.NotEqual(t, only, sessions[0].ID)
	assert.Empty(t, sessions[0].Messages)
	assert.Equal(t, sessions[0].ID, m.CurrentID())

	persisted, ok := store.Load[[]models.ChatSession](ctx, f.store, testKey)
	require.True(t, ok)
	assert.Equal(t, ids(sessions), ids(persisted))
}

func TestDeleteFlushesImmediately(t *testing.T) {
	f := newFixture()
	m := f.manager()
	ctx := context.Background()
	a := m.Create(ctx)

	require.NoError(t, m.Delete(ctx, a.ID))

	persisted, ok := store.Load[[]models.ChatSession](ctx, f.store, testKey)
	require.True(t, ok)
	assert.NotContains(t, ids(persisted), a.ID)
}

func TestDeleteUnknown(t *testing.T) {
	m := newFixture().manager()
	assert.ErrorIs(t, m.Delete(context.Background(), "nope"), ErrSessionNotFound)
}

func TestSelect(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()
	first := m.CurrentID()
	m.Create(ctx)

	s, err := m.Select(first)
	require.NoError(t, err)
	assert.Equal(t, first, s.ID)
	assert.Equal(t, first, m.CurrentID())

	_, err = m.Select("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, first, m.CurrentID())
}

func TestPersistenceRoundTrip(t *testing.T) {
	f := newFixture()
	m := f.manager()
	ctx := context.Background()

	s := m.Create(ctx)
	_, _, err := m.AppendUserMessage(ctx, s.ID, "Ofício de convite")
	require.NoError(t, err)
	_, _, err = m.AppendAssistantMessage(ctx, s.ID, "Prezado senhor...")
	require.NoError(t, err)

	reloaded := f.manager()

	assert.Equal(t, m.List(), reloaded.List())
	assert.Equal(t, s.ID, reloaded.CurrentID())
}

func TestMalformedStorageDegradesToFreshSession(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.mem.Set(context.Background(), testKey, "definitely not json"))

	m := f.manager()

	sessions := m.List()
	require.Len(t, sessions, 1)
	assert.Equal(t, models.DefaultSessionTitle, sessions[0].Title)
}

func TestLoadNormalizesRecords(t *testing.T) {
	f := newFixture()
	raw := `[{"id":"a","title":"","messages":null,"createdAt":1,"updatedAt":1},{"title":"orphan"}]`
	require.NoError(t, f.mem.Set(context.Background(), testKey, raw))

	sessions := f.manager().List()

	require.Len(t, sessions, 1)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, models.DefaultSessionTitle, sessions[0].Title)
	assert.NotNil(t, sessions[0].Messages)
}

func TestNewIDUniqueUnderRapidCreation(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestListReturnsCopies(t *testing.T) {
	m := newFixture().manager()
	ctx := context.Background()
	id := m.CurrentID()
	_, _, err := m.AppendUserMessage(ctx, id, "a")
	require.NoError(t, err)

	list := m.List()
	list[0].Messages[0].Content = "mutated"

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "a", s.Messages[0].Content)
}

func TestMutationsPersistDespiteCancelledContext(t *testing.T) {
	backend, err := store.OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	s := store.New(backend, store.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = s.Close() })

	open := func() *Manager {
		return NewManager(context.Background(), Options{Store: s, Key: testKey})
	}

	m := open()
	a := m.Current()
	b := m.Create(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Delete(ctx, a.ID))
	_, _, err = m.AppendUserMessage(ctx, b.ID, "ofício de convite")
	require.NoError(t, err)

	reopened := open()
	list := reopened.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
	require.Len(t, list[0].Messages, 1)
	assert.Equal(t, "ofício de convite", list[0].Messages[0].Content)
}
