// Package service contains the business rules of the outfit calendar.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, runs the per-day state machines
//	Repository (data layer)  → conditional upserts against one table
//
// WHERE DOES CORRECTNESS COME FROM?
// Services keep no state between requests. Every "only once per day" rule
// (one lock window, one image attempt, one confirmation) is decided by the
// store in a single conditional statement that reports whether it applied.
// The service reads the row first only to answer cheaply; when the write
// does not apply it re-reads and reports what the winner left behind.
//
// THE GATE BEFORE THE STORE:
// Input is checked before any repository call: identity present, required
// fields non-empty, and the client's date equal to the server's business
// day. A forged or stale date never reaches the database.
package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/daykey"
)

// Field limits. Mood and gender are short labels picked in the client;
// outfit text is a model answer of a few lines.
const (
	MaxMoodLength   = 100
	MaxGenderLength = 32
	MaxOutfitLength = 4000

	// MaxErrorSummary bounds the provider error stored for the image breaker.
	MaxErrorSummary = 1000
)

// requireUser fails when the request carries no identity.
func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperror.Unauthenticated("authentication required")
	}
	return nil
}

// requireToday fails unless date is exactly the resolver's business day.
func requireToday(days *daykey.Resolver, date string) error {
	if date == "" {
		return apperror.ValidationFailed("date", "date is required")
	}
	if !days.IsToday(date) {
		return apperror.ValidationFailed("date",
			fmt.Sprintf("only today (%s) can be changed", days.Today()))
	}
	return nil
}

// requireText trims value and checks it is present and not too long.
func requireText(field, value string, maxLen int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return "", apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be %d characters or less", field, maxLen))
	}
	return value, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
