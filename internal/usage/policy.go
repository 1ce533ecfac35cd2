package usage

import (
	"errors"

	"oficiogen/backend/internal/models"
)

// ErrQuotaExceeded is returned when a policy refuses another generation
var ErrQuotaExceeded = errors.New("weekly generation quota exceeded")

// Policy decides whether a subscription may generate again
type Policy interface {
	Allow(sub models.UserSubscription) error
}

// Unlimited tracks usage without enforcing it
type Unlimited struct{}

func (Unlimited) Allow(models.UserSubscription) error { return nil }

// FreeWeeklyCap limits free profiles to Limit generations per week
type FreeWeeklyCap struct {
	Limit int
}

func (p FreeWeeklyCap) Allow(sub models.UserSubscription) error {
	if sub.Plan == models.PlanFree && sub.GenerationsCount >= p.Limit {
		return ErrQuotaExceeded
	}
	return nil
}

// PolicyFor maps a configured weekly limit to a policy. Zero or less means unlimited.
func PolicyFor(freeWeeklyLimit int) Policy {
	if freeWeeklyLimit <= 0 {
		return Unlimited{}
	}
	return FreeWeeklyCap{Limit: freeWeeklyLimit}
}
