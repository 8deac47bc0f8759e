package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/repository"
	"github.com/sakif/outfit-calendar/internal/retry"
)

// MaxPhotoBytes caps an uploaded photo after base64 decoding.
const MaxPhotoBytes = 8 << 20

// AnalysisConfig tunes photo analysis.
type AnalysisConfig struct {
	DailyLimit int
	Retry      retry.Policy
}

// AnalysisResult is the stylist's verdict plus what is left of today's quota.
type AnalysisResult struct {
	Text      string
	Remaining int
}

// AnalysisService describes the outfit on a user's photo, limited to
// DailyLimit successful analyses per business day.
//
// QUOTA ACCOUNTING:
// A unit is reserved with ConsumeQuota before the provider is called, in
// one statement that also refuses once the limit is reached, so parallel
// uploads cannot overshoot. If the provider fails the unit is refunded.
type AnalysisService struct {
	quotas   repository.QuotaRepository
	analyzer generator.PhotoAnalyzer
	days     *daykey.Resolver
	cfg      AnalysisConfig
	logger   *slog.Logger
}

func NewAnalysisService(quotas repository.QuotaRepository, analyzer generator.PhotoAnalyzer,
	days *daykey.Resolver, cfg AnalysisConfig, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		quotas:   quotas,
		analyzer: analyzer,
		days:     days,
		cfg:      cfg,
		logger:   logger,
	}
}

// Limit returns the configured number of analyses per day.
func (s *AnalysisService) Limit() int {
	return s.cfg.DailyLimit
}

// Remaining returns how many analyses the user has left today.
func (s *AnalysisService) Remaining(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	q, err := s.quotas.GetQuota(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("reading quota: %w", err)
	}
	return q.Remaining(s.cfg.DailyLimit, s.days.Today()), nil
}

// Analyze decodes a base64 photo (a data: URL prefix is accepted) and asks
// the multimodal model to assess the outfit on it.
func (s *AnalysisService) Analyze(ctx context.Context, userID, imageData, mimeType string) (*AnalysisResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	photo, mimeType, err := decodePhoto(imageData, mimeType)
	if err != nil {
		return nil, err
	}

	day := s.days.Today()
	used, ok, err := s.quotas.ConsumeQuota(ctx, userID, day, s.cfg.DailyLimit)
	if err != nil {
		return nil, fmt.Errorf("consuming quota: %w", err)
	}
	if !ok {
		return nil, apperror.QuotaExhausted(s.cfg.DailyLimit)
	}

	var text string
	err = retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		text, err = s.analyzer.AnalyzePhoto(ctx, photo, mimeType)
		return err
	})
	if err != nil {
		if rerr := s.quotas.RefundQuota(context.WithoutCancel(ctx), userID, day); rerr != nil {
			s.logger.Error("failed to refund analysis quota",
				slog.String("user_id", userID),
				slog.String("error", rerr.Error()),
			)
		}
		s.logger.Warn("photo analysis failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("photo analysis failed, please try again later", err)
	}

	s.logger.Info("photo analysed",
		slog.String("user_id", userID),
		slog.Int("used_today", used),
	)
	return &AnalysisResult{Text: text, Remaining: max(0, s.cfg.DailyLimit-used)}, nil
}

func decodePhoto(data, mimeType string) ([]byte, string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, "", apperror.ValidationFailed("imageData", "imageData is required")
	}

	// data:image/png;base64,AAAA...
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", apperror.ValidationFailed("imageData", "imageData must be base64 encoded")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}

	if base64.StdEncoding.DecodedLen(len(data)) > MaxPhotoBytes+3 {
		return nil, "", apperror.ValidationFailed("imageData", "photo is too large")
	}
	photo, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", apperror.ValidationFailed("imageData", "imageData must be base64 encoded")
	}
	if len(photo) > MaxPhotoBytes {
		return nil, "", apperror.ValidationFailed("imageData", "photo is too large")
	}

	if mimeType == "" {
		mimeType = http.DetectContentType(photo)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", apperror.ValidationFailed("mimeType", "only images can be analysed")
	}
	return photo, mimeType, nil
}
