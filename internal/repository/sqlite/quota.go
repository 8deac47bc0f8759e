package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

// compile-time check that *DB implements repository.QuotaRepository
var _ repository.QuotaRepository = (*DB)(nil)

// GetQuota returns the user's counter. A user who never used the feature
// gets a zero Quota, not an error.
func (db *DB) GetQuota(ctx context.Context, userID string) (model.Quota, error) {
	q := model.Quota{UserID: userID}
	err := db.conn.QueryRowContext(ctx,
		`SELECT daily_count, last_day FROM user_limits WHERE user_id = ?`, userID,
	).Scan(&q.Count, &q.LastDay)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("sqlite: getting quota for %s: %w", userID, err)
	}
	return q, nil
}

// ConsumeQuota takes one unit of today's limit in a single statement.
//
// The counter resets implicitly: when last_day differs from day the new
// count is 1. The WHERE guard refuses the update once the limit is reached,
// in which case RETURNING yields no row and we report ok=false.
func (db *DB) ConsumeQuota(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	var used int
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO user_limits (user_id, daily_count, last_day)
		 VALUES (?, 1, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
			daily_count = CASE WHEN user_limits.last_day = excluded.last_day
			                   THEN user_limits.daily_count + 1 ELSE 1 END,
			last_day    = excluded.last_day
		 WHERE user_limits.last_day <> excluded.last_day OR user_limits.daily_count < ?
		 RETURNING daily_count`,
		userID, day, limit,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return limit, false, nil
		}
		return 0, false, fmt.Errorf("sqlite: consuming quota for %s: %w", userID, err)
	}
	return used, true, nil
}

// RefundQuota gives back a unit taken today, e.g. when the provider failed.
func (db *DB) RefundQuota(ctx context.Context, userID, day string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE user_limits SET daily_count = daily_count - 1
		 WHERE user_id = ? AND last_day = ? AND daily_count > 0`,
		userID, day,
	)
	if err != nil {
		return fmt.Errorf("sqlite: refunding quota for %s: %w", userID, err)
	}
	return nil
}
