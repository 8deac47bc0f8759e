package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

// CalendarService reads a user's month and writes today's entry by hand
// (draft save and final confirmation).
type CalendarService struct {
	repo   repository.DailyRecordRepository
	days   *daykey.Resolver
	logger *slog.Logger
}

func NewCalendarService(repo repository.DailyRecordRepository, days *daykey.Resolver, logger *slog.Logger) *CalendarService {
	return &CalendarService{
		repo:   repo,
		days:   days,
		logger: logger,
	}
}

// Month returns the user's records for a calendar month (month is 1-12),
// oldest first. Days without a record are simply absent.
func (s *CalendarService) Month(ctx context.Context, userID string, year, month int) ([]model.DailyRecord, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	from, to, err := daykey.MonthRange(year, month)
	if err != nil {
		return nil, apperror.ValidationFailed("month", "year and month must form a valid calendar month")
	}

	records, err := s.repo.ListRange(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("failed to list calendar month",
			slog.String("user_id", userID),
			slog.String("from", from),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing month: %w", err)
	}
	return records, nil
}

// Confirm closes today's entry. After this the day is immutable: outfit
// generation and further confirmations get a Conflict.
func (s *CalendarService) Confirm(ctx context.Context, userID, date, mood, gender, outfit string) error {
	f, err := s.dayFields(userID, date, mood, gender)
	if err != nil {
		return err
	}
	if f.Outfit, err = requireText("outfit", outfit, MaxOutfitLength); err != nil {
		return err
	}

	if err := s.repo.Finalize(ctx, f); err != nil {
		return err
	}

	s.logger.Info("day confirmed",
		slog.String("user_id", userID),
		slog.String("day", f.Day),
	)
	return nil
}

// SaveDraft stores today's mood and gender (and an optional outfit) without
// confirming. An outfit already on the record is kept.
func (s *CalendarService) SaveDraft(ctx context.Context, userID, date, mood, gender, outfit string) error {
	f, err := s.dayFields(userID, date, mood, gender)
	if err != nil {
		return err
	}
	f.Outfit = strings.TrimSpace(outfit)
	if len([]rune(f.Outfit)) > MaxOutfitLength {
		return apperror.ValidationFailed("outfit",
			fmt.Sprintf("outfit must be %d characters or less", MaxOutfitLength))
	}

	return s.repo.UpsertInitial(ctx, f)
}

// Today returns the server's business day with display labels.
func (s *CalendarService) Today() daykey.Labels {
	return s.days.Labels()
}

// dayFields runs the shared gates: identity, today's date, mood, gender.
func (s *CalendarService) dayFields(userID, date, mood, gender string) (repository.DayFields, error) {
	f := repository.DayFields{UserID: userID, Day: date}
	if err := requireUser(userID); err != nil {
		return f, err
	}
	if err := requireToday(s.days, date); err != nil {
		return f, err
	}
	var err error
	if f.Mood, err = requireText("mood", mood, MaxMoodLength); err != nil {
		return f, err
	}
	if f.Gender, err = requireText("gender", gender, MaxGenderLength); err != nil {
		return f, err
	}
	return f, nil
}
