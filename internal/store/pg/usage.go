package pg

import (
	"context"
	"database/sql"
	"errors"

	"death2data.org/internal/usage"
)

// UsageLedger implements usage.Ledger over the usage_counters table.
type UsageLedger struct {
	db *sql.DB
}

var _ usage.Ledger = (*UsageLedger)(nil)

// NewUsageLedger constructs the counter repository.
func NewUsageLedger(db *sql.DB) *UsageLedger {
	return &UsageLedger{db: db}
}

func (l *UsageLedger) Count(ctx context.Context, userID, action, period string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		select count from usage_counters
		where user_id = $1 and action = $2 and period = $3
	`, userID, action, period).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (l *UsageLedger) Record(ctx context.Context, userID, action, period string) error {
	_, err := l.db.ExecContext(ctx, `
		insert into usage_counters(user_id, action, period, count)
		values ($1,$2,$3,1)
		on conflict (user_id, action, period) do update
		set count = usage_counters.count + 1
	`, userID, action, period)
	return err
}

// Reserve is the atomic check-and-reserve: the conditional upsert increments
// the counter only while it stays below the limit, so two concurrent
// registrations near the boundary can never both pass.
func (l *UsageLedger) Reserve(ctx context.Context, userID, action, period string, limit int) (bool, error) {
	if limit == usage.Unlimited {
		return true, l.Record(ctx, userID, action, period)
	}
	if limit <= 0 {
		return false, nil
	}
	var n int
	err := l.db.QueryRowContext(ctx, `
		insert into usage_counters(user_id, action, period, count)
		values ($1,$2,$3,1)
		on conflict (user_id, action, period) do update
		set count = usage_counters.count + 1
		where usage_counters.count < $4
		returning count
	`, userID, action, period, limit).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *UsageLedger) Release(ctx context.Context, userID, action, period string) error {
	_, err := l.db.ExecContext(ctx, `
		update usage_counters
		set count = greatest(count - 1, 0)
		where user_id = $1 and action = $2 and period = $3
	`, userID, action, period)
	return err
}

func (l *UsageLedger) DeleteUser(ctx context.Context, userID string) error {
	_, err := l.db.ExecContext(ctx, `delete from usage_counters where user_id = $1`, userID)
	return err
}
