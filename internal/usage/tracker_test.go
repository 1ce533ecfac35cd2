package usage

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

const testKey = "oficiogen_subscription:test"

var day = 24 * time.Hour

func newTracker(t *testing.T, now time.Time, policy Policy) (*Tracker, *store.Store, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	s := store.New(mem, store.WithLogger(logger.Discard()))
	return NewTracker(Options{
		Store:  s,
		Key:    testKey,
		Now:    func() time.Time { return now },
		Policy: policy,
	}), s, mem
}

func seed(t *testing.T, s *store.Store, sub models.UserSubscription) {
	t.Helper()
	s.Save(context.Background(), testKey, sub)
}

func TestLoadDefaultIsNotPersisted(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, _, mem := newTracker(t, now, nil)

	sub := tr.Load(context.Background())

	assert.Equal(t, models.DefaultSubscription(now), sub)
	assert.Equal(t, 0, mem.Count())
}

func TestLoadResetsAfterAWeek(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, _ := newTracker(t, now, nil)
	seed(t, s, models.UserSubscription{Plan: models.PlanPro, GenerationsCount: 12, LastResetTimestamp: now.Add(-8 * day).UnixMilli()})

	sub := tr.Load(context.Background())

	assert.Equal(t, 0, sub.GenerationsCount)
	assert.Equal(t, now.UnixMilli(), sub.LastResetTimestamp)
	assert.Equal(t, models.PlanPro, sub.Plan)

	persisted, ok := store.Load[models.UserSubscription](context.Background(), s, testKey)
	require.True(t, ok)
	assert.Equal(t, sub, persisted)
}

func TestLoadWithinTheWeekIsUnchanged(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, _ := newTracker(t, now, nil)
	seeded := models.UserSubscription{Plan: models.PlanFree, GenerationsCount: 4, LastResetTimestamp: now.Add(-6 * day).UnixMilli()}
	seed(t, s, seeded)

	assert.Equal(t, seeded, tr.Load(context.Background()))
}

func TestLoadExactlyOneWeekIsUnchanged(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, _ := newTracker(t, now, nil)
	seeded := models.UserSubscription{Plan: models.PlanFree, GenerationsCount: 4, LastResetTimestamp: now.UnixMilli() - models.WeekMillis}
	seed(t, s, seeded)

	assert.Equal(t, seeded, tr.Load(context.Background()))
}

func TestIncrementAndUpgrade(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, _ := newTracker(t, now, nil)
	ctx := context.Background()

	tr.Increment(ctx)
	sub := tr.Increment(ctx)
	assert.Equal(t, 2, sub.GenerationsCount)
	assert.Equal(t, models.PlanFree, sub.Plan)

	sub = tr.UpgradeToPro(ctx)
	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Equal(t, 2, sub.GenerationsCount)

	persisted, ok := store.Load[models.UserSubscription](ctx, s, testKey)
	require.True(t, ok)
	assert.Equal(t, sub, persisted)
}

func TestMalformedRecordDegradesToDefault(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, _, mem := newTracker(t, now, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, testKey, "[1,2"))
	assert.Equal(t, models.DefaultSubscription(now), tr.Load(ctx))

	require.NoError(t, mem.Set(ctx, testKey, `{"plan":"enterprise","generationsCount":3,"lastResetTimestamp":5}`))
	assert.Equal(t, models.DefaultSubscription(now), tr.Load(ctx))
}

func TestLoadWithoutResetTimestampKeepsPlan(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, mem := newTracker(t, now, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, testKey, `{"plan":"pro","generationsCount":4,"lastResetTimestamp":0}`))
	sub := tr.Load(ctx)

	assert.Equal(t, models.UserSubscription{Plan: models.PlanPro, GenerationsCount: 0, LastResetTimestamp: now.UnixMilli()}, sub)

	persisted, ok := store.Load[models.UserSubscription](ctx, s, testKey)
	require.True(t, ok)
	assert.Equal(t, sub, persisted)
}

func TestLoadMissingTimestampFieldKeepsPlan(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, _, mem := newTracker(t, now, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, testKey, `{"plan":"pro","generationsCount":2}`))
	sub := tr.Load(ctx)

	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Equal(t, 0, sub.GenerationsCount)
}

func TestLoadClampsNegativeCount(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, _, mem := newTracker(t, now, nil)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, testKey, fmt.Sprintf(`{"plan":"pro","generationsCount":-3,"lastResetTimestamp":%d}`, now.Add(-day).UnixMilli())))
	sub := tr.Load(ctx)

	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Equal(t, 0, sub.GenerationsCount)
	assert.Equal(t, now.Add(-day).UnixMilli(), sub.LastResetTimestamp)
}

func TestWritesSurviveCancelledContext(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	backend, err := store.OpenSQLite(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	s := store.New(backend, store.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = s.Close() })
	tr := NewTracker(Options{Store: s, Key: testKey, Now: func() time.Time { return now }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr.Increment(ctx)
	tr.UpgradeToPro(ctx)

	persisted, ok := store.Load[models.UserSubscription](context.Background(), s, testKey)
	require.True(t, ok)
	assert.Equal(t, models.PlanPro, persisted.Plan)
	assert.Equal(t, 1, persisted.GenerationsCount)
}

func TestCheckPolicies(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ctx := context.Background()

	unlimited, s, _ := newTracker(t, now, PolicyFor(0))
	seed(t, s, models.UserSubscription{Plan: models.PlanFree, GenerationsCount: 1000, LastResetTimestamp: now.UnixMilli()})
	assert.NoError(t, unlimited.Check(ctx))

	capped, s, _ := newTracker(t, now, PolicyFor(2))
	seed(t, s, models.UserSubscription{Plan: models.PlanFree, GenerationsCount: 1, LastResetTimestamp: now.UnixMilli()})
	assert.NoError(t, capped.Check(ctx))

	capped.Increment(ctx)
	assert.ErrorIs(t, capped.Check(ctx), ErrQuotaExceeded)

	capped.UpgradeToPro(ctx)
	assert.NoError(t, capped.Check(ctx))
}

func TestCheckAfterResetAllowsAgain(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tr, s, _ := newTracker(t, now, FreeWeeklyCap{Limit: 1})
	seed(t, s, models.UserSubscription{Plan: models.PlanFree, GenerationsCount: 1, LastResetTimestamp: now.Add(-8 * day).UnixMilli()})

	assert.NoError(t, tr.Check(context.Background()))
}
