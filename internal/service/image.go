package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/imaging"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
)

// ImageConfig tunes the image flow.
type ImageConfig struct {
	// WaitTimeout bounds how long a request that lost the claim waits for
	// the winner's result; WaitInterval is the polling period.
	WaitTimeout  time.Duration
	WaitInterval time.Duration

	// StaleAfter lets a new request take over an attempt that never
	// recorded an outcome (the process died mid-call).
	StaleAfter time.Duration

	// PixelSize > 1 turns on pixel-art post-processing.
	PixelSize int
}

// ImageResult is the picture for the day.
type ImageResult struct {
	Data     []byte
	MimeType string
	Cached   bool
}

// ImageService produces at most one outfit picture per user and day.
//
// THE DAILY CIRCUIT BREAKER:
// Image providers are slow, costly and sometimes down. Each day gets exactly
// one provider call. Success is cached and served for the rest of the day;
// failure is remembered and every later request that day is refused at once
// with the stored reason. The next business day is a new key, so the
// breaker resets by itself.
//
//	NoAttempt     → claim, call provider → CachedSuccess | FailedToday
//	CachedSuccess → stored bytes, Cached=true
//	FailedToday   → BreakerTripped, provider not called
//
// Claiming is RecordImageAttempt: a conditional upsert only one caller can
// win. Losers poll the row until the winner's outcome appears.
type ImageService struct {
	repo   repository.DailyRecordRepository
	images generator.ImageGenerator
	days   *daykey.Resolver
	cfg    ImageConfig
	logger *slog.Logger
}

func NewImageService(repo repository.DailyRecordRepository, images generator.ImageGenerator,
	days *daykey.Resolver, cfg ImageConfig, logger *slog.Logger) *ImageService {
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = 500 * time.Millisecond
	}
	return &ImageService{
		repo:   repo,
		images: images,
		days:   days,
		cfg:    cfg,
		logger: logger,
	}
}

// Request returns today's outfit picture, generating it on the first call.
func (s *ImageService) Request(ctx context.Context, userID, date, outfit, gender string) (*ImageResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireToday(s.days, date); err != nil {
		return nil, err
	}
	outfit, err := requireText("outfit", outfit, MaxOutfitLength)
	if err != nil {
		return nil, err
	}
	gender, err = requireText("gender", gender, MaxGenderLength)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Get(ctx, userID, date)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if res, err := settled(rec); res != nil || err != nil {
			return res, err
		}
	}

	if err := requireToday(s.days, date); err != nil {
		return nil, err
	}
	now := s.days.Now()
	claimed, err := s.repo.RecordImageAttempt(ctx, repository.ImageClaim{
		UserID:         userID,
		Day:            date,
		Gender:         gender,
		OutfitFallback: outfit,
		Now:            now,
		StaleBefore:    now.Add(-s.cfg.StaleAfter),
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.await(ctx, userID, date)
	}

	return s.generate(ctx, userID, date, outfit, gender)
}

// generate runs the single provider call of the day and records its outcome.
func (s *ImageService) generate(ctx context.Context, userID, day, outfit, gender string) (*ImageResult, error) {
	img, err := s.images.GenerateImage(ctx, generator.ImagePrompt(outfit, gender), gender)
	if err == nil && (img == nil || len(img.Data) == 0) {
		err = generator.ErrEmptyResponse
	}

	// The outcome must be stored even if the client has gone away,
	// otherwise waiting requests would hang until the stale window.
	store := context.WithoutCancel(ctx)

	if err != nil {
		// A call cut short by our own deadline or a disconnect still counts
		// as today's attempt: the provider may have been hanging, and
		// reopening the claim would call it again within the same day.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}

		summary := truncate(err.Error(), MaxErrorSummary)
		if recErr := s.repo.RecordImageFailure(store, userID, day, summary); recErr != nil {
			s.logger.Error("failed to record image failure",
				slog.String("user_id", userID),
				slog.String("day", day),
				slog.String("error", recErr.Error()),
			)
		}
		s.logger.Warn("image generation failed, breaker tripped for today",
			slog.String("user_id", userID),
			slog.String("day", day),
			slog.String("error", summary),
		)
		return nil, apperror.Upstream("image generation failed, it can be retried tomorrow", err)
	}

	data, mimeType := img.Data, img.MimeType
	if s.cfg.PixelSize > 1 {
		if px, perr := imaging.Pixelate(data, s.cfg.PixelSize); perr != nil {
			s.logger.Warn("pixelation skipped", slog.String("error", perr.Error()))
		} else {
			data, mimeType = px, "image/png"
		}
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	if err := s.repo.RecordImageSuccess(store, userID, day, data, mimeType); err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	s.logger.Info("outfit image generated",
		slog.String("user_id", userID),
		slog.String("day", day),
		slog.Int("bytes", len(data)),
	)
	return &ImageResult{Data: data, MimeType: mimeType}, nil
}

// await polls the record until the claim winner stores an outcome.
func (s *ImageService) await(ctx context.Context, userID, day string) (*ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.WaitInterval)
	defer ticker.Stop()

	for {
		rec, err := s.repo.Get(ctx, userID, day)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			if ctx.Err() != nil {
				break
			}
			return nil, err
		}
		if rec != nil {
			if res, err := settled(rec); res != nil || err != nil {
				return res, err
			}
		}

		select {
		case <-ctx.Done():
			return nil, apperror.Conflict("image generation is already in progress, try again shortly")
		case <-ticker.C:
		}
	}
	return nil, apperror.Conflict("image generation is already in progress, try again shortly")
}

// settled returns the day's final image state: cached bytes or a tripped
// breaker. (nil, nil) means no outcome yet.
func settled(rec *model.DailyRecord) (*ImageResult, error) {
	if rec.ImageGenerated && len(rec.Image) > 0 {
		mimeType := rec.ImageMimeType
		if mimeType == "" {
			mimeType = http.DetectContentType(rec.Image)
		}
		return &ImageResult{Data: rec.Image, MimeType: mimeType, Cached: true}, nil
	}
	if rec.BreakerTripped() {
		return nil, apperror.BreakerTripped(rec.ImageError)
	}
	return nil, nil
}
