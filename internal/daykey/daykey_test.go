package daykey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestToday_UsesCivilTimezoneNotUTC(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{
			// 23:30 UTC on May 31 is already 01:30 on June 1 in Zurich (CEST).
			name: "after local midnight, before UTC midnight",
			now:  time.Date(2024, 5, 31, 23, 30, 0, 0, time.UTC),
			want: "2024-06-01",
		},
		{
			name: "mid-day",
			now:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			want: "2024-06-01",
		},
		{
			// Winter time: UTC+1. 22:59 UTC on Dec 31 is 23:59 local.
			name: "new year's eve in winter time",
			now:  time.Date(2024, 12, 31, 22, 59, 0, 0, time.UTC),
			want: "2024-12-31",
		},
		{
			name: "new year in winter time",
			now:  time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
			want: "2025-01-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New("Europe/Zurich", WithClock(fixedClock(tt.now)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Today())
		})
	}
}

func TestNew_DefaultsAndErrors(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, r.Location().String())

	_, err = New("Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestIsToday_IsExactMatch(t *testing.T) {
	r, err := New("Europe/Zurich", WithClock(fixedClock(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	assert.True(t, r.IsToday("2024-06-01"))
	assert.False(t, r.IsToday("2024-6-1"))
	assert.False(t, r.IsToday("2024-05-31"))
	assert.False(t, r.IsToday("2024-06-02"))
	assert.False(t, r.IsToday(" 2024-06-01"))
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		name     string
		year     int
		month    int
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{name: "june", year: 2024, month: 6, wantFrom: "2024-06-01", wantTo: "2024-07-01"},
		{name: "december rolls the year", year: 2024, month: 12, wantFrom: "2024-12-01", wantTo: "2025-01-01"},
		{name: "month zero", year: 2024, month: 0, wantErr: true},
		{name: "month thirteen", year: 2024, month: 13, wantErr: true},
		{name: "year zero", year: 0, month: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := MonthRange(tt.year, tt.month)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

func TestLabels(t *testing.T) {
	r, err := New("Europe/Zurich", WithClock(fixedClock(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC))))
	require.NoError(t, err)

	l := r.Labels()
	assert.Equal(t, "2026-10-17", l.TodayYMD)
	assert.Equal(t, 2026, l.Year)
	assert.Equal(t, 9, l.Month)
	assert.Equal(t, "ОКТЯБРЬ", l.MonthLabel)
	assert.Equal(t, "2026", l.YearLabel)
	assert.Equal(t, "Сегодня: 17.10.2026", l.TodayLabel)
}
