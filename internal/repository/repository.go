// Package repository declares the persistence contracts the services depend on.
//
// Two implementations live in sub-packages: sqlite (embedded, default) and
// postgres (pgx). Both implement every write as an upsert keyed by
// (user_id, day) on top of a UNIQUE constraint; none of them keeps any
// in-memory state between calls, so correctness under concurrent requests
// comes from the database alone.
package repository

import (
	"context"
	"time"

	"github.com/sakif/outfit-calendar/internal/model"
)

// DayFields are the user-editable fields of a day record.
type DayFields struct {
	UserID string
	Day    string
	Mood   string
	Gender string
	Outfit string
}

// LockUpdate carries a freshly generated outfit and its cooldown.
// Now is the instant the lock condition is evaluated against: the write only
// applies when the previous lock (if any) has expired at Now.
type LockUpdate struct {
	DayFields
	LockedUntil time.Time
	Now         time.Time
}

// ImageClaim marks the start of an image generation attempt.
// An attempt older than StaleBefore that never recorded an outcome may be
// claimed again.
type ImageClaim struct {
	UserID         string
	Day            string
	Gender         string
	OutfitFallback string
	Now            time.Time
	StaleBefore    time.Time
}

type DailyRecordRepository interface {
	// Get returns apperror.ErrNotFound when no record exists for the day.
	Get(ctx context.Context, userID, day string) (*model.DailyRecord, error)
	// ListRange returns the user's records with from <= day < to, oldest first.
	ListRange(ctx context.Context, userID, from, to string) ([]model.DailyRecord, error)

	// UpsertInitial creates the day or refreshes mood/gender, keeping an
	// existing non-empty outfit. Conflict when the day is confirmed.
	UpsertInitial(ctx context.Context, f DayFields) error
	// Finalize writes the fields and sets confirmed. Conflict when the day
	// was already confirmed.
	Finalize(ctx context.Context, f DayFields) error
	// SetGenerationLock stores generated text and the new lock. Reports
	// applied=false if the day is confirmed or still locked at u.Now.
	SetGenerationLock(ctx context.Context, u LockUpdate) (applied bool, err error)

	// RecordImageAttempt reports claimed=true for exactly one caller per
	// attempt; everyone else must wait for that caller's outcome.
	RecordImageAttempt(ctx context.Context, c ImageClaim) (claimed bool, err error)
	RecordImageSuccess(ctx context.Context, userID, day string, image []byte, mimeType string) error
	RecordImageFailure(ctx context.Context, userID, day, summary string) error
}

type QuotaRepository interface {
	GetQuota(ctx context.Context, userID string) (model.Quota, error)
	// ConsumeQuota atomically takes one unit for day. ok=false means the
	// limit was already reached and nothing was taken.
	ConsumeQuota(ctx context.Context, userID, day string, limit int) (used int, ok bool, err error)
	// RefundQuota gives back one unit taken on day. No-op on other days.
	RefundQuota(ctx context.Context, userID, day string) error
}
