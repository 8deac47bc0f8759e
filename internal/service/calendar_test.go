package service

import (
	"context"
	"strings"
	"testing"

	"github.com/sakif/outfit-calendar/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm_OncePerDay(t *testing.T) {
	db := newTestDB(t)
	_, days := newClock(t)
	svc := NewCalendarService(db, days, quietLogger())
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, "vk:1", today, "calm", "female", "— Верх: A"))

	err := svc.Confirm(ctx, "vk:1", today, "happy", "male", "— Верх: B")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	rec, err := db.Get(ctx, "vk:1", today)
	require.NoError(t, err)
	assert.Equal(t, "— Верх: A", rec.Outfit)
	assert.Equal(t, "calm", rec.Mood)
}

func TestConfirm_Validation(t *testing.T) {
	_, days := newClock(t)
	svc := NewCalendarService(forbiddenRepo{t}, days, quietLogger())

	tests := []struct {
		name                       string
		date, mood, gender, outfit string
	}{
		{"past day", "2024-05-31", "calm", "female", "x"},
		{"future day", "2024-06-02", "calm", "female", "x"},
		{"missing outfit", today, "calm", "female", ""},
		{"missing mood", today, "", "female", "x"},
		{"long gender", today, "calm", strings.Repeat("g", MaxGenderLength+1), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Confirm(context.Background(), "vk:1", tt.date, tt.mood, tt.gender, tt.outfit)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}

	err := svc.Confirm(context.Background(), "", today, "calm", "female", "x")
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestSaveDraft(t *testing.T) {
	db := newTestDB(t)
	_, days := newClock(t)
	svc := NewCalendarService(db, days, quietLogger())
	ctx := context.Background()

	require.NoError(t, svc.SaveDraft(ctx, "vk:1", today, "calm", "female", ""))
	require.NoError(t, svc.SaveDraft(ctx, "vk:1", today, "sad", "female", "  пальто "))

	rec, err := db.Get(ctx, "vk:1", today)
	require.NoError(t, err)
	assert.Equal(t, "sad", rec.Mood)
	assert.Equal(t, "пальто", rec.Outfit)
	assert.False(t, rec.Confirmed)

	require.NoError(t, svc.Confirm(ctx, "vk:1", today, "sad", "female", "пальто"))
	err = svc.SaveDraft(ctx, "vk:1", today, "happy", "female", "")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestMonth(t *testing.T) {
	db := newTestDB(t)
	_, days := newClock(t)
	svc := NewCalendarService(db, days, quietLogger())
	ctx := context.Background()

	require.NoError(t, svc.Confirm(ctx, "vk:1", today, "calm", "female", "x"))

	records, err := svc.Month(ctx, "vk:1", 2024, 6)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, today, records[0].Day)
	assert.True(t, records[0].Confirmed)

	records, err = svc.Month(ctx, "vk:1", 2024, 7)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, err = svc.Month(ctx, "vk:1", 2024, 13)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestToday(t *testing.T) {
	_, days := newClock(t)
	svc := NewCalendarService(forbiddenRepo{t}, days, quietLogger())

	labels := svc.Today()
	assert.Equal(t, today, labels.TodayYMD)
	assert.Equal(t, 5, labels.Month)
	assert.Equal(t, "ИЮНЬ", labels.MonthLabel)
	assert.Equal(t, "Сегодня: 01.06.2024", labels.TodayLabel)
}
