// Package usage tracks per-user action counters and enforces tier quotas.
// One counter exists per (user, action, period); a new period starts a fresh
// counter at zero.
package usage

import (
	"context"
	"fmt"
	"time"
)

// Action kinds metered by the ledger.
const (
	ActionRegistrations = "registrations" // monthly
	ActionSaves         = "saves"         // monthly
	ActionSearches      = "searches"      // daily
)

// Unlimited is the sentinel limit meaning "never deny".
const Unlimited = -1

// Ledger persists monotonically increasing counters per (user, action, period).
type Ledger interface {
	// Count returns the current counter value, zero if no row exists.
	Count(ctx context.Context, userID, action, period string) (int, error)
	// Record upserts the counter: insert 1 if absent, else add 1.
	Record(ctx context.Context, userID, action, period string) error
	// Reserve atomically increments the counter only if the resulting count
	// stays at or below limit. It reports whether the unit was reserved.
	// A limit of Unlimited always reserves.
	Reserve(ctx context.Context, userID, action, period string, limit int) (bool, error)
	// Release undoes one prior Reserve on the same counter row. Used to
	// compensate when the gated action fails after reservation.
	Release(ctx context.Context, userID, action, period string) error
	// DeleteUser removes all counters owned by the user.
	DeleteUser(ctx context.Context, userID string) error
}

// MonthKey returns the UTC calendar-month period key, e.g. "2026-09".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayKey returns the UTC calendar-day period key, e.g. "2026-09-01".
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// PeriodFor computes the period key for an action at time t. Registrations
// and saves accumulate per month, searches per day.
func PeriodFor(action string, t time.Time) string {
	if action == ActionSearches {
		return DayKey(t)
	}
	return MonthKey(t)
}

// Meter combines a Ledger with an immutable tier-limit table.
type Meter struct {
	ledger Ledger
	limits Limits
	now    func() time.Time
}

// NewMeter constructs a Meter. limits is captured as-is and must not be
// mutated afterwards.
func NewMeter(ledger Ledger, limits Limits) *Meter {
	return &Meter{ledger: ledger, limits: limits, now: time.Now}
}

// WithClock overrides the wall clock, for tests.
func (m *Meter) WithClock(now func() time.Time) *Meter {
	m.now = now
	return m
}

// Allow reports whether one more action is permitted for the user's tier in
// the current period. It never mutates the counter; on denial the returned
// message names the numeric limit.
func (m *Meter) Allow(ctx context.Context, userID, tier, action string) (bool, string, error) {
	limit := m.limits.For(tier, action)
	if limit == Unlimited {
		return true, "", nil
	}
	period := PeriodFor(action, m.now())
	count, err := m.ledger.Count(ctx, userID, action, period)
	if err != nil {
		return false, "", err
	}
	if count >= limit {
		return false, denialMessage(action, limit), nil
	}
	return true, "", nil
}

// Record increments the current-period counter after the gated action
// succeeded.
func (m *Meter) Record(ctx context.Context, userID, action string) error {
	period := PeriodFor(action, m.now())
	return m.ledger.Record(ctx, userID, action, period)
}

// Reserve atomically claims one unit of the user's quota for the current
// period. It returns the configured limit alongside the decision so callers
// can surface it on denial.
func (m *Meter) Reserve(ctx context.Context, userID, tier, action string) (bool, int, error) {
	limit := m.limits.For(tier, action)
	period := PeriodFor(action, m.now())
	ok, err := m.ledger.Reserve(ctx, userID, action, period, limit)
	return ok, limit, err
}

// Release returns one previously reserved unit for the current period.
func (m *Meter) Release(ctx context.Context, userID, action string) error {
	period := PeriodFor(action, m.now())
	return m.ledger.Release(ctx, userID, action, period)
}

// Reset drops every counter the user has, across all periods. Invoked only
// during account deletion.
func (m *Meter) Reset(ctx context.Context, userID string) error {
	return m.ledger.DeleteUser(ctx, userID)
}

// ActionUsage is one line of a user's current usage snapshot.
type ActionUsage struct {
	Action string `json:"action"`
	Period string `json:"period"`
	Used   int    `json:"used"`
	Limit  int    `json:"limit"` // -1 means unlimited
}

// Snapshot reports current-period usage against the tier's limits for every
// action the tier configures.
func (m *Meter) Snapshot(ctx context.Context, userID, tier string) ([]ActionUsage, error) {
	now := m.now()
	var out []ActionUsage
	for _, action := range []string{ActionRegistrations, ActionSaves, ActionSearches} {
		limit, ok := m.limits.Lookup(tier, action)
		if !ok {
			continue
		}
		period := PeriodFor(action, now)
		count, err := m.ledger.Count(ctx, userID, action, period)
		if err != nil {
			return nil, err
		}
		out = append(out, ActionUsage{Action: action, Period: period, Used: count, Limit: limit})
	}
	return out, nil
}

func denialMessage(action string, limit int) string {
	if action == ActionSearches {
		return fmt.Sprintf("daily limit reached (%d)", limit)
	}
	return fmt.Sprintf("monthly limit reached (%d)", limit)
}
