// Package model defines the data structures used throughout the application.
package model

import "time"

// DailyRecord is one user's calendar entry for one business day.
//
// IDENTITY:
// A record is identified by (UserID, Day). The store enforces this with a
// UNIQUE constraint, so concurrent first writes for the same day can never
// produce two rows. ID is a surrogate xid kept for logs and joins.
//
// LIFECYCLE FLAGS:
//   - Confirmed      → the user finalised the day; mood/gender/outfit are frozen.
//   - LockedUntil    → while now < LockedUntil the generated outfit is returned as-is.
//   - ImageAttempted → an image generation has been started today.
//   - ImageGenerated → an image was produced and Image holds its bytes.
//   - ImageError     → the attempt failed; the daily breaker is tripped.
type DailyRecord struct {
	ID        string `json:"-"`
	UserID    string `json:"-"`
	Day       string `json:"date"` // YYYY-MM-DD in the service timezone
	Mood      string `json:"mood"`
	Gender    string `json:"gender"`
	Outfit    string `json:"outfit"`
	Confirmed bool   `json:"confirmed"`

	LockedUntil *time.Time `json:"-"`

	Image            []byte     `json:"-"`
	ImageMimeType    string     `json:"-"`
	ImageGenerated   bool       `json:"imageGenerated"`
	ImageAttempted   bool       `json:"-"`
	ImageAttemptedAt *time.Time `json:"-"`
	ImageError       string     `json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// IsLocked reports whether the generation cooldown is still running at now.
func (r *DailyRecord) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// BreakerTripped reports whether today's image attempt has failed.
func (r *DailyRecord) BreakerTripped() bool {
	return r.ImageAttempted && !r.ImageGenerated && r.ImageError != ""
}
