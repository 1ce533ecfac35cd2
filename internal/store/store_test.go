package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"oficiogen/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type brokenBackend struct {
	Memory
	err   error
	panic bool
}

func (b *brokenBackend) Get(context.Context, string) (string, error) {
	if b.panic {
		panic("disk on fire")
	}
	return "", b.err
}

func (b *brokenBackend) Set(context.Context, string, string) error {
	if b.panic {
		panic("disk on fire")
	}
	return b.err
}

func newTestStore(b Backend, failures *[]string) *Store {
	return New(b,
		WithLogger(logger.Discard()),
		WithTimeout(time.Second),
		WithFailureHook(func(_ context.Context, op string) { *failures = append(*failures, op) }),
	)
}

func TestStoreRoundTrip(t *testing.T) {
	var failures []string
	s := newTestStore(NewMemory(), &failures)
	ctx := context.Background()

	s.Save(ctx, "k", record{Name: "a", Count: 2})

	got, ok := Load[record](ctx, s, "k")
	require.True(t, ok)
	assert.Equal(t, record{Name: "a", Count: 2}, got)
	assert.Empty(t, failures)
}

func TestStoreLoadMissing(t *testing.T) {
	var failures []string
	s := newTestStore(NewMemory(), &failures)

	got, ok := Load[[]record](context.Background(), s, "missing")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Empty(t, failures)
}

func TestStoreLoadMalformed(t *testing.T) {
	var failures []string
	mem := NewMemory()
	require.NoError(t, mem.Set(context.Background(), "k", "{not json"))
	s := newTestStore(mem, &failures)

	got, ok := Load[record](context.Background(), s, "k")
	assert.False(t, ok)
	assert.Equal(t, record{}, got)
	assert.Equal(t, []string{"decode"}, failures)
}

func TestStoreSwallowsBackendErrors(t *testing.T) {
	var failures []string
	s := newTestStore(&brokenBackend{err: errors.New("quota exceeded")}, &failures)
	ctx := context.Background()

	assert.NotPanics(t, func() { s.Save(ctx, "k", record{Name: "a"}) })
	_, ok := Load[record](ctx, s, "k")

	assert.False(t, ok)
	assert.Equal(t, []string{"save", "load"}, failures)
}

func TestStoreSwallowsBackendPanics(t *testing.T) {
	var failures []string
	s := newTestStore(&brokenBackend{panic: true}, &failures)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		s.Save(ctx, "k", record{Name: "a"})
		_, _ = Load[record](ctx, s, "k")
	})
	assert.Equal(t, []string{"save", "load"}, failures)
}

func TestStoreSwallowsEncodeErrors(t *testing.T) {
	var failures []string
	s := newTestStore(NewMemory(), &failures)

	s.Save(context.Background(), "k", make(chan int))

	assert.Equal(t, []string{"save"}, failures)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "oficiogen_chats:p1", ChatsKey("p1"))
	assert.Equal(t, "oficiogen_subscription:p1", SubscriptionKey("p1"))
}

// exerciseBackend checks the Backend contract shared by every implementation
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	key := "oficiogen_test:" + t.Name()

	require.NoError(t, b.Ping(ctx))

	_, err := b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, key, `{"v":1}`))
	require.NoError(t, b.Set(ctx, key, `{"v":2}`))

	v, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, v)

	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestSQLiteBackend(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "oficiogen.db"))
	require.NoError(t, err)
	defer b.Close()

	exerciseBackend(t, b)
}

func TestSQLiteBackendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oficiogen.db")
	ctx := context.Background()

	b, err := OpenSQLite(path)
	require.NoError(t, err)
	New(b).Save(ctx, ChatsKey("p"), []record{{Name: "x"}})
	require.NoError(t, b.Close())

	b, err = OpenSQLite(path)
	require.NoError(t, err)
	defer b.Close()

	got, ok := Load[[]record](ctx, New(b), ChatsKey("p"))
	require.True(t, ok)
	assert.Equal(t, []record{{Name: "x"}}, got)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}

	b := NewRedis(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer b.Close()

	exerciseBackend(t, b)
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	b, err := NewPostgres(db)
	require.NoError(t, err)
	defer b.Close()

	exerciseBackend(t, b)
}
