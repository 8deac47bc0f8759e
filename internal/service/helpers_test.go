package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/outfit-calendar/internal/daykey"
	"github.com/sakif/outfit-calendar/internal/generator"
	"github.com/sakif/outfit-calendar/internal/model"
	"github.com/sakif/outfit-calendar/internal/repository"
	"github.com/sakif/outfit-calendar/internal/repository/sqlite"
	"github.com/sakif/outfit-calendar/internal/retry"
)

// 10:00 in Zurich on 2024-06-01.
var start = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

const today = "2024-06-01"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by the resolver and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock(t *testing.T) (*testClock, *daykey.Resolver) {
	t.Helper()
	clock := &testClock{now: start}
	days, err := daykey.New("Europe/Zurich", daykey.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("daykey.New: %v", err)
	}
	return clock, days
}

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var fastRetry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, Retryable: generator.Retryable}

// =========================================================================
// FAKE GENERATORS
// =========================================================================

// fakeText returns the queued answers in order; the last one repeats.
type fakeText struct {
	mu      sync.Mutex
	answers []string
	errs    []error // consumed before answers, one per call
	calls   atomic.Int32
}

func (f *fakeText) GenerateText(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	if len(f.answers) == 0 {
		return "", errors.New("no answer queued")
	}
	a := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return a, nil
}

func (f *fakeText) AnalyzePhoto(ctx context.Context, _ []byte, _ string) (string, error) {
	return f.GenerateText(ctx, "")
}

// fakeImages returns data (or err) after delay.
type fakeImages struct {
	data  []byte
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeImages) GenerateImage(ctx context.Context, _, _ string) (*generator.Image, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &generator.Image{Data: f.data, MimeType: "image/png"}, nil
}

// forbiddenRepo fails the test on any call; used to prove validation runs
// before the store is touched.
type forbiddenRepo struct{ t *testing.T }

var errForbidden = errors.New("store must not be called")

func (r forbiddenRepo) fail(op string) error {
	r.t.Errorf("unexpected store call: %s", op)
	return errForbidden
}

func (r forbiddenRepo) Get(context.Context, string, string) (*model.DailyRecord, error) {
	return nil, r.fail("Get")
}
func (r forbiddenRepo) ListRange(context.Context, string, string, string) ([]model.DailyRecord, error) {
	return nil, r.fail("ListRange")
}
func (r forbiddenRepo) UpsertInitial(context.Context, repository.DayFields) error {
	return r.fail("UpsertInitial")
}
func (r forbiddenRepo) Finalize(context.Context, repository.DayFields) error {
	return r.fail("Finalize")
}
func (r forbiddenRepo) SetGenerationLock(context.Context, repository.LockUpdate) (bool, error) {
	return false, r.fail("SetGenerationLock")
}
func (r forbiddenRepo) RecordImageAttempt(context.Context, repository.ImageClaim) (bool, error) {
	return false, r.fail("RecordImageAttempt")
}
func (r forbiddenRepo) RecordImageSuccess(context.Context, string, string, []byte, string) error {
	return r.fail("RecordImageSuccess")
}
func (r forbiddenRepo) RecordImageFailure(context.Context, string, string, string) error {
	return r.fail("RecordImageFailure")
}
func (r forbiddenRepo) GetQuota(context.Context, string) (model.Quota, error) {
	return model.Quota{}, r.fail("GetQuota")
}
func (r forbiddenRepo) ConsumeQuota(context.Context, string, string, int) (int, bool, error) {
	return 0, false, r.fail("ConsumeQuota")
}
func (r forbiddenRepo) RefundQuota(context.Context, string, string) error {
	return r.fail("RefundQuota")
}
