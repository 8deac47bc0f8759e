package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
	"github.com/sakif/outfit-calendar/internal/retry"
)

// OutfitConfig tunes the text state machine.
type OutfitConfig struct {
	LockDuration time.Duration // cooldown after each generation
	Retry        retry.Policy  // applied around every text provider call
}

// OutfitResult is what a client sees after asking for today's outfit.
type OutfitResult struct {
	Outfit      string
	LockedUntil time.Time
	Cached      bool // true when the stored text was returned without generating
}

// OutfitService hands out the day's outfit suggestion.
//
// STATE MACHINE (per user and day):
//
//	Absent    → generate, store with lock      → Locked
//	Locked    → return stored text unchanged   → Locked
//	Unlocked  → regenerate, overwrite, re-lock → Locked
//	Confirmed → Conflict, nothing changes
//
// The lock is a cooldown against rapid re-rolls. Whether a generated text
// may be written is decided by SetGenerationLock in one statement, so two
// racing requests cannot both move the lock.
type OutfitService struct {
	repo   repository.DailyRecordRepository
	text   generator.TextGenerator
	days   *daykey.Resolver
	cfg    OutfitConfig
	logger *slog.Logger
}

func NewOutfitService(repo repository.DailyRecordRepository, text generator.TextGenerator,
	days *daykey.Resolver, cfg OutfitConfig, logger *slog.Logger) *OutfitService {
	return &OutfitService{
		repo:   repo,
		text:   text,
		days:   days,
		cfg:    cfg,
		logger: logger,
	}
}

// Request returns today's outfit text for userID, generating it when the
// day has no text yet or the previous lock has run out.
func (s *OutfitService) Request(ctx context.Context, userID, date, mood, gender string) (*OutfitResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireToday(s.days, date); err != nil {
		return nil, err
	}
	mood, err := requireText("mood", mood, MaxMoodLength)
	if err != nil {
		return nil, err
	}
	gender, err = requireText("gender", gender, MaxGenderLength)
	if err != nil {
		return nil, err
	}

	rec, err := s.current(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if res, err := s.fromRecord(rec); res != nil || err != nil {
		return res, err
	}

	outfit, err := s.generate(ctx, mood, gender)
	if err != nil {
		s.logger.Warn("outfit generation failed",
			slog.String("user_id", userID),
			slog.String("day", date),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("outfit generation failed, please try again later", err)
	}

	// Generation with retries can run past midnight; yesterday is closed.
	if err := requireToday(s.days, date); err != nil {
		return nil, err
	}

	now := s.days.Now()
	lockedUntil := now.Add(s.cfg.LockDuration)
	applied, err := s.repo.SetGenerationLock(ctx, repository.LockUpdate{
		DayFields:   repository.DayFields{UserID: userID, Day: date, Mood: mood, Gender: gender, Outfit: outfit},
		LockedUntil: lockedUntil,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		// Someone confirmed the day or locked it while we were generating.
		// Their state wins; ours is discarded.
		rec, err := s.current(ctx, userID, date)
		if err != nil {
			return nil, err
		}
		if res, err := s.fromRecord(rec); res != nil || err != nil {
			return res, err
		}
		return nil, apperror.Conflict("outfit was updated concurrently, please retry")
	}

	s.logger.Info("outfit generated",
		slog.String("user_id", userID),
		slog.String("day", date),
		slog.Time("locked_until", lockedUntil),
	)
	return &OutfitResult{Outfit: outfit, LockedUntil: lockedUntil}, nil
}

// current loads today's record, nil when there is none yet.
func (s *OutfitService) current(ctx context.Context, userID, day string) (*model.DailyRecord, error) {
	rec, err := s.repo.Get(ctx, userID, day)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// fromRecord answers without generating when the record allows it:
// a Conflict for a confirmed day, the stored text while the lock holds.
// (nil, nil) means a new generation is due.
func (s *OutfitService) fromRecord(rec *model.DailyRecord) (*OutfitResult, error) {
	if rec == nil {
		return nil, nil
	}
	if rec.Confirmed {
		return nil, apperror.Conflict("today's outfit is already confirmed")
	}
	if rec.IsLocked(s.days.Now()) && rec.Outfit != "" {
		return &OutfitResult{Outfit: rec.Outfit, LockedUntil: *rec.LockedUntil, Cached: true}, nil
	}
	return nil, nil
}

func (s *OutfitService) generate(ctx context.Context, mood, gender string) (string, error) {
	prompt := generator.OutfitPrompt(mood, gender)

	var outfit string
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		text, err := s.text.GenerateText(ctx, prompt)
		if err != nil {
			return err
		}
		outfit = truncate(text, MaxOutfitLength)
		return nil
	})
	return outfit, err
}
