package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/sakif/outfit-calendar/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

func newImageService(t *testing.T, repo repository.DailyRecordRepository, images *fakeImages, cfg ImageConfig) (*ImageService, *testClock) {
	t.Helper()
	clock, days := newClock(t)
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	if cfg.WaitInterval == 0 {
		cfg.WaitInterval = 5 * time.Millisecond
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	return NewImageService(repo, images, days, cfg, quietLogger()), clock
}

func TestImageRequest_CachedAfterSuccess(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: pngBytes}
	svc, _ := newImageService(t, db, images, ImageConfig{})
	ctx := context.Background()

	first, err := svc.Request(ctx, "vk:1", today, "синяя рубашка", "male")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, first.Data)
	assert.Equal(t, "image/png", first.MimeType)
	assert.False(t, first.Cached)

	second, err := svc.Request(ctx, "vk:1", today, "синяя рубашка", "male")
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), images.calls.Load())

	rec, err := db.Get(ctx, "vk:1", today)
	require.NoError(t, err)
	assert.True(t, rec.ImageGenerated)
	assert.Equal(t, "синяя рубашка", rec.Outfit, "empty outfit is filled from the request")
}

func TestImageRequest_BreakerScenario(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{err: errors.New("provider exploded")}
	svc, clock := newImageService(t, db, images, ImageConfig{})
	ctx := context.Background()

	_, err := svc.Request(ctx, "vk:1", today, "синяя рубашка", "male")
	assert.ErrorIs(t, err, apperror.ErrUpstream)

	rec, err := db.Get(ctx, "vk:1", today)
	require.NoError(t, err)
	assert.Equal(t, "provider exploded", rec.ImageError)
	assert.False(t, rec.ImageGenerated)

	_, err = svc.Request(ctx, "vk:1", today, "синяя рубашка", "male")
	assert.ErrorIs(t, err, apperror.ErrBreakerTripped)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "provider exploded")
	assert.Equal(t, int32(1), images.calls.Load(), "breaker must not call the provider")

	// Still tripped hours later, same business day.
	clock.Advance(10 * time.Hour)
	_, err = svc.Request(ctx, "vk:1", today, "синяя рубашка", "male")
	assert.ErrorIs(t, err, apperror.ErrBreakerTripped)

	// Next business day is a new key.
	clock.Advance(4 * time.Hour) // 2024-06-02 00:00 Zurich
	images.err = nil
	images.data = pngBytes
	res, err := svc.Request(ctx, "vk:1", "2024-06-02", "синяя рубашка", "male")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, res.Data)
	assert.Equal(t, int32(2), images.calls.Load())
}

func TestImageRequest_FailureSummaryIsTruncated(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{err: errors.New(strings.Repeat("ошибка ", 500))}
	svc, _ := newImageService(t, db, images, ImageConfig{})

	_, err := svc.Request(context.Background(), "vk:1", today, "shirt", "male")
	require.Error(t, err)

	rec, err := db.Get(context.Background(), "vk:1", today)
	require.NoError(t, err)
	assert.Equal(t, MaxErrorSummary, len([]rune(rec.ImageError)))
}

func TestImageRequest_EmptyProviderAnswerTripsBreaker(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: nil}
	svc, _ := newImageService(t, db, images, ImageConfig{})
	ctx := context.Background()

	_, err := svc.Request(ctx, "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrUpstream)

	_, err = svc.Request(ctx, "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrBreakerTripped)
	assert.Equal(t, int32(1), images.calls.Load())
}

func TestImageRequest_ValidationBeforeStore(t *testing.T) {
	images := &fakeImages{data: pngBytes}
	svc, _ := newImageService(t, forbiddenRepo{t}, images, ImageConfig{})

	_, err := svc.Request(context.Background(), "vk:1", "2024-05-31", "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Request(context.Background(), "vk:1", today, "", "male")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = svc.Request(context.Background(), "vk:1", today, "shirt", " ")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, int32(0), images.calls.Load())
}

func TestImageRequest_ConfirmedDayStillGetsImage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Finalize(ctx, repository.DayFields{
		UserID: "vk:1", Day: today, Mood: "calm", Gender: "female", Outfit: "платье",
	}))
	svc, _ := newImageService(t, db, &fakeImages{data: pngBytes}, ImageConfig{})

	_, err := svc.Request(ctx, "vk:1", today, "платье", "female")
	require.NoError(t, err)

	rec, err := db.Get(ctx, "vk:1", today)
	require.NoError(t, err)
	assert.True(t, rec.Confirmed)
	assert.Equal(t, "платье", rec.Outfit)
	assert.True(t, rec.ImageGenerated)
}

func TestImageRequest_ConcurrentFirstRequests(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: pngBytes, delay: 50 * time.Millisecond}
	svc, _ := newImageService(t, db, images, ImageConfig{})

	const n = 8
	results := make([]*ImageResult, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := svc.Request(context.Background(), "vk:1", today, "синяя рубашка", "male")
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), images.calls.Load(), "exactly one provider call")
	fresh := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, pngBytes, res.Data)
		if !res.Cached {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "only the claim winner is not cached")
}

func TestImageRequest_ConcurrentFailureTripsEveryone(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{err: errors.New("503"), delay: 30 * time.Millisecond}
	svc, _ := newImageService(t, db, images, ImageConfig{})

	const n = 5
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, errs[i] = svc.Request(context.Background(), "vk:1", today, "shirt", "male")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	upstream, tripped := 0, 0
	for _, err := range errs {
		switch {
		case errors.Is(err, apperror.ErrUpstream):
			upstream++
		case errors.Is(err, apperror.ErrBreakerTripped):
			tripped++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, upstream)
	assert.Equal(t, n-1, tripped)
	assert.Equal(t, int32(1), images.calls.Load())
}

func TestImageRequest_WaiterTimesOut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc, _ := newImageService(t, db, &fakeImages{data: pngBytes}, ImageConfig{WaitTimeout: 30 * time.Millisecond})

	// Another process holds a fresh claim and never finishes.
	claimed, err := db.RecordImageAttempt(ctx, repository.ImageClaim{
		UserID: "vk:1", Day: today, Gender: "male", Now: start, StaleBefore: start.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = svc.Request(ctx, "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestImageRequest_StaleClaimIsTakenOver(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	images := &fakeImages{data: pngBytes}
	svc, clock := newImageService(t, db, images, ImageConfig{StaleAfter: time.Minute})

	_, err := db.RecordImageAttempt(ctx, repository.ImageClaim{
		UserID: "vk:1", Day: today, Gender: "male", Now: start, StaleBefore: start.Add(-time.Minute),
	})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	res, err := svc.Request(ctx, "vk:1", today, "shirt", "male")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(1), images.calls.Load())
}

func TestImageRequest_InterruptedCallTripsBreaker(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: pngBytes, delay: time.Second}
	svc, _ := newImageService(t, db, images, ImageConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Request(ctx, "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rec, err := db.Get(context.Background(), "vk:1", today)
	require.NoError(t, err)
	assert.True(t, rec.BreakerTripped())
	assert.Contains(t, rec.ImageError, "deadline exceeded")
}

func TestImageRequest_HungProviderIsCalledOncePerDay(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: pngBytes, delay: time.Hour}
	svc, clock := newImageService(t, db, images, ImageConfig{StaleAfter: 2 * time.Minute})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := svc.Request(ctx, "vk:1", today, "shirt", "male")
		cancel()
		require.Error(t, err)
		if i > 0 {
			assert.ErrorIs(t, err, apperror.ErrBreakerTripped)
		}
		clock.Advance(3 * time.Minute)
	}

	assert.Equal(t, int32(1), images.calls.Load())
}

func TestImageRequest_DisconnectTripsBreaker(t *testing.T) {
	db := newTestDB(t)
	images := &fakeImages{data: pngBytes, delay: time.Second}
	svc, _ := newImageService(t, db, images, ImageConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := svc.Request(ctx, "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrUpstream)

	_, err = svc.Request(context.Background(), "vk:1", today, "shirt", "male")
	assert.ErrorIs(t, err, apperror.ErrBreakerTripped)
	assert.Equal(t, int32(1), images.calls.Load())
}

func TestImageRequest_Pixelate(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	db := newTestDB(t)
	svc, _ := newImageService(t, db, &fakeImages{data: buf.Bytes()}, ImageConfig{PixelSize: 4})

	res, err := svc.Request(context.Background(), "vk:1", today, "shirt", "male")
	require.NoError(t, err)
	assert.Equal(t, "image/png", res.MimeType)
	assert.NotEqual(t, buf.Bytes(), res.Data)

	out, err := png.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	assert.Equal(t, out.At(0, 0), out.At(3, 3))
}
