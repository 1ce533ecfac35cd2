// Package usage tracks a profile's plan and weekly generation count.
package usage

import (
	"context"
	"sync"
	"time"

	"oficiogen/backend/internal/models"
	"oficiogen/backend/internal/store"
)

// Options configures a Tracker
type Options struct {
	Store  *store.Store
	Key    string
	Now    func() time.Time
	Policy Policy
}

// Tracker reads and updates one subscription record. The weekly reset is
// applied lazily on every read.
type Tracker struct {
	mu     sync.Mutex
	store  *store.Store
	key    string
	now    func() time.Time
	policy Policy
}

// NewTracker creates a Tracker
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		store:  opts.Store,
		key:    opts.Key,
		now:    opts.Now,
		policy: opts.Policy,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.policy == nil {
		t.policy = Unlimited{}
	}
	return t
}

// Load returns the current record, persisting it when the weekly reset fires
func (t *Tracker) Load(ctx context.Context) models.UserSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.loadLocked(ctx)
}

// Increment counts one generation. The read-modify-write ignores caller
// cancellation.
func (t *Tracker) Increment(ctx context.Context) models.UserSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	sub := t.loadLocked(ctx)
	sub.GenerationsCount++
	t.saveLocked(ctx, sub)
	return sub
}

// UpgradeToPro switches the plan to pro
func (t *Tracker) UpgradeToPro(ctx context.Context) models.UserSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	sub := t.loadLocked(ctx)
	sub.Plan = models.PlanPro
	t.saveLocked(ctx, sub)
	return sub
}

// Check evaluates the quota policy against the current record
func (t *Tracker) Check(ctx context.Context) error {
	return t.policy.Allow(t.Load(ctx))
}

func (t *Tracker) loadLocked(ctx context.Context) models.UserSubscription {
	now := t.now()

	sub, ok := store.Load[models.UserSubscription](ctx, t.store, t.key)
	if !ok || !sub.Plan.Known() {
		return models.DefaultSubscription(now)
	}

	if sub.GenerationsCount < 0 {
		sub.GenerationsCount = 0
	}
	if sub.PeriodExpired(now) {
		sub.GenerationsCount = 0
		sub.LastResetTimestamp = now.UnixMilli()
		t.saveLocked(ctx, sub)
	}
	return sub
}

// saveLocked persists sub. The write outlives the caller's context.
func (t *Tracker) saveLocked(ctx context.Context, sub models.UserSubscription) {
	t.store.Save(context.WithoutCancel(ctx), t.key, sub)
}
