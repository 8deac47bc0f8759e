// Package daykey computes the service's "business day".
//
// WHY NOT time.Now().Format("2006-01-02")?
// That formats in the server's local timezone (often UTC in containers). The
// calendar is defined in ONE fixed civil timezone for the whole service, so a
// user in Zurich writing at 00:30 local time is on the new day even though
// UTC still says yesterday. Clients never get to say what "today" is either:
// every same-day check compares the client's date against Resolver.Today().
package daykey

import (
	"fmt"
	"strings"
	"time"

	// Embeds the IANA timezone database so LoadLocation works in
	// minimal containers that ship without /usr/share/zoneinfo.
	_ "time/tzdata"
)

// Layout is the canonical day key format.
const Layout = "2006-01-02"

// DefaultTimezone is the civil timezone the calendar lives in.
const DefaultTimezone = "Europe/Zurich"

// Resolver turns the current instant into a day key.
// It is safe for concurrent use; it holds no mutable state.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithClock replaces time.Now. Tests use it to move through lock windows
// and across midnight deterministically.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// New creates a Resolver for the named IANA timezone.
func New(timezone string, opts ...Option) (*Resolver, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("daykey: loading timezone %q: %w", timezone, err)
	}
	r := &Resolver{loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Now returns the current instant. All lock-window arithmetic goes through
// here so one injected clock drives both the day key and the lock expiry.
func (r *Resolver) Now() time.Time {
	return r.now()
}

// Location returns the resolver's civil timezone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Today returns the current business day as YYYY-MM-DD.
func (r *Resolver) Today() string {
	return r.now().In(r.loc).Format(Layout)
}

// IsToday reports whether day is exactly the current business day.
// No trimming or reformatting: "2024-6-1" is not "2024-06-01".
func (r *Resolver) IsToday(day string) bool {
	return day == r.Today()
}

// MonthRange returns the half-open day key range [from, to) covering the
// given month. Day keys compare lexicographically, so the store can filter
// with day >= from AND day < to.
func MonthRange(year, month int) (from, to string, err error) {
	if month < 1 || month > 12 {
		return "", "", fmt.Errorf("daykey: month %d out of range", month)
	}
	if year < 1970 || year > 9999 {
		return "", "", fmt.Errorf("daykey: year %d out of range", year)
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return start.Format(Layout), end.Format(Layout), nil
}

// Labels is the "server time" payload the mobile client renders in its header.
type Labels struct {
	TodayYMD   string `json:"todayYMD"`
	Year       int    `json:"year"`
	Month      int    `json:"month"` // 0-11, as the client's date widgets expect
	MonthLabel string `json:"monthLabel"`
	YearLabel  string `json:"yearLabel"`
	TodayLabel string `json:"todayLabel"`
}

var monthNamesRU = [...]string{
	"январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// Labels returns the current day formatted for the Russian-language client.
func (r *Resolver) Labels() Labels {
	local := r.now().In(r.loc)
	return Labels{
		TodayYMD:   local.Format(Layout),
		Year:       local.Year(),
		Month:      int(local.Month()) - 1,
		MonthLabel: strings.ToUpper(monthNamesRU[local.Month()-1]),
		YearLabel:  local.Format("2006"),
		TodayLabel: "Сегодня: " + local.Format("02.01.2006"),
	}
}
