package models

import "time"

// WeekMillis is the length of a quota period
const WeekMillis int64 = 7 * 24 * 60 * 60 * 1000

// Plan is a subscription tier
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// UserSubscription tracks the plan and the generations of the current week
type UserSubscription struct {
	Plan               Plan  `json:"plan"`
	GenerationsCount   int   `json:"generationsCount"`
	LastResetTimestamp int64 `json:"lastResetTimestamp"`
}

// DefaultSubscription is the record of a profile that never generated
func DefaultSubscription(now time.Time) UserSubscription {
	return UserSubscription{
		Plan:               PlanFree,
		GenerationsCount:   0,
		LastResetTimestamp: now.UnixMilli(),
	}
}

// Known reports whether p is a plan this service sells
func (p Plan) Known() bool {
	return p == PlanFree || p == PlanPro
}

// PeriodExpired reports whether more than a week passed since the last reset.
// A record without a reset timestamp is always expired.
func (s UserSubscription) PeriodExpired(now time.Time) bool {
	if s.LastResetTimestamp <= 0 {
		return true
	}
	return now.UnixMilli()-s.LastResetTimestamp > WeekMillis
}
