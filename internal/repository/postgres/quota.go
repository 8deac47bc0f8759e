package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

var _ repository.QuotaRepository = (*DB)(nil)

func (db *DB) GetQuota(ctx context.Context, userID string) (model.Quota, error) {
	q := model.Quota{UserID: userID}
	err := db.pool.QueryRow(ctx,
		`SELECT daily_count, last_day FROM user_limits WHERE user_id = $1`, userID,
	).Scan(&q.Count, &q.LastDay)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return q, fmt.Errorf("postgres: getting quota for %s: %w", userID, err)
	}
	return q, nil
}

func (db *DB) ConsumeQuota(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	var used int
	err := db.pool.QueryRow(ctx,
		`INSERT INTO user_limits (user_id, daily_count, last_day)
		 VALUES ($1, 1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET
			daily_count = CASE WHEN user_limits.last_day = EXCLUDED.last_day
			                   THEN user_limits.daily_count + 1 ELSE 1 END,
			last_day    = EXCLUDED.last_day
		 WHERE user_limits.last_day <> EXCLUDED.last_day OR user_limits.daily_count < $3
		 RETURNING daily_count`,
		userID, day, limit,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return limit, false, nil
		}
		return 0, false, fmt.Errorf("postgres: consuming quota for %s: %w", userID, err)
	}
	return used, true, nil
}

func (db *DB) RefundQuota(ctx context.Context, userID, day string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE user_limits SET daily_count = daily_count - 1
		 WHERE user_id = $1 AND last_day = $2 AND daily_count > 0`,
		userID, day,
	)
	if err != nil {
		return fmt.Errorf("postgres: refunding quota for %s: %w", userID, err)
	}
	return nil
}
