package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"
	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

var _ repository.DailyRecordRepository = (*DB)(nil)

const recordColumns = `id, user_id, day, mood, gender, outfit, confirmed, locked_until,
	image, image_mime_type, image_generated, image_attempted, image_attempted_at, image_error,
	created_at, updated_at`

func (db *DB) Get(ctx context.Context, userID, day string) (*model.DailyRecord, error) {
	var (
		r           model.DailyRecord
		lockedUntil *int64
		attemptedAt *int64
		imageError  *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM daily_records WHERE user_id = $1 AND day = $2`,
		userID, day,
	).Scan(
		&r.ID, &r.UserID, &r.Day, &r.Mood, &r.Gender, &r.Outfit, &r.Confirmed, &lockedUntil,
		&r.Image, &r.ImageMimeType, &r.ImageGenerated, &r.ImageAttempted, &attemptedAt, &imageError,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("daily record", day)
		}
		return nil, fmt.Errorf("postgres: getting record %s/%s: %w", userID, day, err)
	}
	r.LockedUntil = fromMillis(lockedUntil)
	r.ImageAttemptedAt = fromMillis(attemptedAt)
	if imageError != nil {
		r.ImageError = *imageError
	}
	return &r, nil
}

func fromMillis(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(*v).UTC()
	return &t
}

func (db *DB) ListRange(ctx context.Context, userID, from, to string) ([]model.DailyRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, day, mood, gender, outfit, confirmed, image_generated
		 FROM daily_records
		 WHERE user_id = $1 AND day >= $2 AND day < $3
		 ORDER BY day ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing records for %s: %w", userID, err)
	}
	defer rows.Close()

	records := []model.DailyRecord{}
	for rows.Next() {
		var r model.DailyRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Day, &r.Mood, &r.Gender, &r.Outfit,
			&r.Confirmed, &r.ImageGenerated); err != nil {
			return nil, fmt.Errorf("postgres: scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating records: %w", err)
	}
	return records, nil
}

func (db *DB) UpsertInitial(ctx context.Context, f repository.DayFields) error {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood       = EXCLUDED.mood,
			gender     = EXCLUDED.gender,
			outfit     = CASE WHEN daily_records.outfit = '' THEN EXCLUDED.outfit ELSE daily_records.outfit END,
			updated_at = now()
		 WHERE NOT daily_records.confirmed`,
		xid.New().String(), f.UserID, f.Day, f.Mood, f.Gender, f.Outfit,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("record for today already exists")
		}
		return fmt.Errorf("postgres: upserting record %s/%s: %w", f.UserID, f.Day, err)
	}
	return expectOneRow(tag, "day is already confirmed")
}

func (db *DB) Finalize(ctx context.Context, f repository.DayFields) error {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit, confirmed, locked_until)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, NULL)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood         = EXCLUDED.mood,
			gender       = EXCLUDED.gender,
			outfit       = EXCLUDED.outfit,
			confirmed    = TRUE,
			locked_until = NULL,
			updated_at   = now()
		 WHERE NOT daily_records.confirmed`,
		xid.New().String(), f.UserID, f.Day, f.Mood, f.Gender, f.Outfit,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("already saved today")
		}
		return fmt.Errorf("postgres: finalizing record %s/%s: %w", f.UserID, f.Day, err)
	}
	return expectOneRow(tag, "already saved today")
}

func (db *DB) SetGenerationLock(ctx context.Context, u repository.LockUpdate) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit, locked_until)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood         = EXCLUDED.mood,
			gender       = EXCLUDED.gender,
			outfit       = EXCLUDED.outfit,
			locked_until = EXCLUDED.locked_until,
			updated_at   = now()
		 WHERE NOT daily_records.confirmed
		   AND (daily_records.locked_until IS NULL OR daily_records.locked_until <= $8)`,
		xid.New().String(), u.UserID, u.Day, u.Mood, u.Gender, u.Outfit,
		u.LockedUntil.UnixMilli(), u.Now.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: setting generation lock %s/%s: %w", u.UserID, u.Day, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) RecordImageAttempt(ctx context.Context, c repository.ImageClaim) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO daily_records (id, user_id, day, gender, outfit, image_attempted, image_attempted_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			image_attempted    = TRUE,
			image_attempted_at = EXCLUDED.image_attempted_at,
			image_error        = NULL,
			gender             = CASE WHEN daily_records.confirmed THEN daily_records.gender ELSE EXCLUDED.gender END,
			outfit             = CASE WHEN daily_records.confirmed OR daily_records.outfit <> '' THEN daily_records.outfit ELSE EXCLUDED.outfit END,
			updated_at         = now()
		 WHERE NOT daily_records.image_generated
		   AND (NOT daily_records.image_attempted
		        OR (daily_records.image_error IS NULL AND daily_records.image_attempted_at < $7))`,
		xid.New().String(), c.UserID, c.Day, c.Gender, c.OutfitFallback,
		c.Now.UnixMilli(), c.StaleBefore.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: recording image attempt %s/%s: %w", c.UserID, c.Day, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) RecordImageSuccess(ctx context.Context, userID, day string, image []byte, mimeType string) error {
	if len(image) == 0 {
		return fmt.Errorf("postgres: refusing to store empty image for %s/%s", userID, day)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE daily_records
		 SET image = $1, image_mime_type = $2, image_generated = TRUE, image_attempted = TRUE,
		     image_error = NULL, updated_at = now()
		 WHERE user_id = $3 AND day = $4`,
		image, mimeType, userID, day,
	)
	if err != nil {
		return fmt.Errorf("postgres: recording image success %s/%s: %w", userID, day, err)
	}
	return expectRecord(tag, day)
}

func (db *DB) RecordImageFailure(ctx context.Context, userID, day, summary string) error {
	if summary == "" {
		summary = "unknown error"
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE daily_records
		 SET image_error = $1, image_generated = FALSE, image_attempted = TRUE, updated_at = now()
		 WHERE user_id = $2 AND day = $3`,
		summary, userID, day,
	)
	if err != nil {
		return fmt.Errorf("postgres: recording image failure %s/%s: %w", userID, day, err)
	}
	return expectRecord(tag, day)
}

func expectOneRow(tag pgconn.CommandTag, conflictMessage string) error {
	if tag.RowsAffected() == 0 {
		return apperror.Conflict(conflictMessage)
	}
	return nil
}

func expectRecord(tag pgconn.CommandTag, day string) error {
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("daily record", day)
	}
	return nil
}
