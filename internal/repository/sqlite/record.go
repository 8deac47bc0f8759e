package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

// compile-time check that *DB implements repository.DailyRecordRepository
var _ repository.DailyRecordRepository = (*DB)(nil)

const recordColumns = `id, user_id, day, mood, gender, outfit, confirmed, locked_until,
	image, image_mime_type, image_generated, image_attempted, image_attempted_at, image_error,
	created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.DailyRecord, error) {
	var (
		r           model.DailyRecord
		lockedUntil sql.NullInt64
		attemptedAt sql.NullInt64
		imageError  sql.NullString
	)
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.Day,
		&r.Mood,
		&r.Gender,
		&r.Outfit,
		&r.Confirmed,
		&lockedUntil,
		&r.Image,
		&r.ImageMimeType,
		&r.ImageGenerated,
		&r.ImageAttempted,
		&attemptedAt,
		&imageError,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.LockedUntil = fromMillis(lockedUntil)
	r.ImageAttemptedAt = fromMillis(attemptedAt)
	r.ImageError = imageError.String
	return &r, nil
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

// Get retrieves the record for one user and day.
// Returns apperror.ErrNotFound if the day has no record yet.
func (db *DB) Get(ctx context.Context, userID, day string) (*model.DailyRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM daily_records WHERE user_id = ? AND day = ?`,
		userID, day,
	)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("daily record", day)
		}
		return nil, fmt.Errorf("sqlite: getting record %s/%s: %w", userID, day, err)
	}
	return r, nil
}

// ListRange returns the user's records for from <= day < to, oldest first.
//
// The image blob is NOT selected: a month view only needs to know whether
// each day has an image, and a month of PNGs would be megabytes per request.
func (db *DB) ListRange(ctx context.Context, userID, from, to string) ([]model.DailyRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, day, mood, gender, outfit, confirmed, image_generated
		 FROM daily_records
		 WHERE user_id = ? AND day >= ? AND day < ?
		 ORDER BY day ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing records for %s: %w", userID, err)
	}
	// ALWAYS close rows: an unclosed *sql.Rows holds our only connection.
	defer rows.Close()

	records := []model.DailyRecord{}
	for rows.Next() {
		var r model.DailyRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Day, &r.Mood, &r.Gender, &r.Outfit,
			&r.Confirmed, &r.ImageGenerated); err != nil {
			return nil, fmt.Errorf("sqlite: scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating records: %w", err)
	}
	return records, nil
}

// UpsertInitial creates the day's record or refreshes mood and gender.
//
// MERGE RULES:
//   - an existing non-empty outfit is preserved (the request's outfit only
//     fills an empty one)
//   - image bookkeeping is left alone, so a tripped breaker stays tripped
//   - a confirmed day is never touched → apperror.ErrConflict
func (db *DB) UpsertInitial(ctx context.Context, f repository.DayFields) error {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood       = excluded.mood,
			gender     = excluded.gender,
			outfit     = CASE WHEN daily_records.outfit = '' THEN excluded.outfit ELSE daily_records.outfit END,
			updated_at = excluded.updated_at
		 WHERE NOT daily_records.confirmed`,
		xid.New().String(), f.UserID, f.Day, f.Mood, f.Gender, f.Outfit, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("record for today already exists")
		}
		return fmt.Errorf("sqlite: upserting record %s/%s: %w", f.UserID, f.Day, err)
	}
	return expectOneRow(res, "day is already confirmed")
}

// Finalize confirms the day with the given fields.
//
// The guard `WHERE NOT daily_records.confirmed` makes the second confirm for
// the same day a no-op with zero changed rows, which we report as a conflict
// ("already saved today") rather than silently overwriting a closed day.
func (db *DB) Finalize(ctx context.Context, f repository.DayFields) error {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit, confirmed, locked_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, NULL, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood         = excluded.mood,
			gender       = excluded.gender,
			outfit       = excluded.outfit,
			confirmed    = 1,
			locked_until = NULL,
			updated_at   = excluded.updated_at
		 WHERE NOT daily_records.confirmed`,
		xid.New().String(), f.UserID, f.Day, f.Mood, f.Gender, f.Outfit, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("already saved today")
		}
		return fmt.Errorf("sqlite: finalizing record %s/%s: %w", f.UserID, f.Day, err)
	}
	return expectOneRow(res, "already saved today")
}

// SetGenerationLock stores a freshly generated outfit and its cooldown.
//
// The write applies only while the day is open AND the previous lock has
// expired at u.Now. Two requests that both generated text race here; the
// first one sets a lock in the future, so the second one's guard fails and it
// gets applied=false. confirmed is never written.
func (db *DB) SetGenerationLock(ctx context.Context, u repository.LockUpdate) (bool, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO daily_records (id, user_id, day, mood, gender, outfit, locked_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			mood         = excluded.mood,
			gender       = excluded.gender,
			outfit       = excluded.outfit,
			locked_until = excluded.locked_until,
			updated_at   = excluded.updated_at
		 WHERE NOT daily_records.confirmed
		   AND (daily_records.locked_until IS NULL OR daily_records.locked_until <= ?)`,
		xid.New().String(), u.UserID, u.Day, u.Mood, u.Gender, u.Outfit,
		u.LockedUntil.UnixMilli(), now, now,
		u.Now.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: setting generation lock %s/%s: %w", u.UserID, u.Day, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordImageAttempt claims today's image generation.
//
// CLAIM RULES (the row moves to "attempted" only from one of these):
//   - no image attempt yet today
//   - an attempt that is older than c.StaleBefore and never recorded an
//     outcome (the process that claimed it died mid-call)
//
// A day with a stored image, a stored failure, or a fresh in-flight attempt
// is left untouched and the caller gets claimed=false. gender and the outfit
// fallback are only written while the day is not confirmed.
func (db *DB) RecordImageAttempt(ctx context.Context, c repository.ImageClaim) (bool, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO daily_records (id, user_id, day, gender, outfit, image_attempted, image_attempted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			image_attempted    = 1,
			image_attempted_at = excluded.image_attempted_at,
			image_error        = NULL,
			gender             = CASE WHEN daily_records.confirmed THEN daily_records.gender ELSE excluded.gender END,
			outfit             = CASE WHEN daily_records.confirmed OR daily_records.outfit <> '' THEN daily_records.outfit ELSE excluded.outfit END,
			updated_at         = excluded.updated_at
		 WHERE NOT daily_records.image_generated
		   AND (NOT daily_records.image_attempted
		        OR (daily_records.image_error IS NULL AND daily_records.image_attempted_at < ?))`,
		xid.New().String(), c.UserID, c.Day, c.Gender, c.OutfitFallback,
		c.Now.UnixMilli(), now, now,
		c.StaleBefore.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: recording image attempt %s/%s: %w", c.UserID, c.Day, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n == 1, nil
}

// RecordImageSuccess caches the generated image for the rest of the day.
func (db *DB) RecordImageSuccess(ctx context.Context, userID, day string, image []byte, mimeType string) error {
	if len(image) == 0 {
		return fmt.Errorf("sqlite: refusing to store empty image for %s/%s", userID, day)
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE daily_records
		 SET image = ?, image_mime_type = ?, image_generated = 1, image_attempted = 1,
		     image_error = NULL, updated_at = ?
		 WHERE user_id = ? AND day = ?`,
		image, mimeType, time.Now().UTC(), userID, day,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording image success %s/%s: %w", userID, day, err)
	}
	return expectRecord(res, day)
}

// RecordImageFailure stores why today's attempt failed. From now until the
// next business day every image request for this record fails fast.
func (db *DB) RecordImageFailure(ctx context.Context, userID, day, summary string) error {
	if summary == "" {
		summary = "unknown error"
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE daily_records
		 SET image_error = ?, image_generated = 0, image_attempted = 1, updated_at = ?
		 WHERE user_id = ? AND day = ?`,
		summary, time.Now().UTC(), userID, day,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording image failure %s/%s: %w", userID, day, err)
	}
	return expectRecord(res, day)
}

// expectOneRow turns "the guard rejected the upsert" into a conflict.
func expectOneRow(res sql.Result, conflictMessage string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict(conflictMessage)
	}
	return nil
}

// expectRecord turns "UPDATE matched nothing" into a not-found.
func expectRecord(res sql.Result, day string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("daily record", day)
	}
	return nil
}
