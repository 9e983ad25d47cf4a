package timecalc

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Tiliavir/tracktime/internal/model"
)

// ClockLayout is the wall-clock format used in day records.
const ClockLayout = "15:04"

// FormatDuration formats minutes as a human-readable string like "1h 40m" or "45m".
func FormatDuration(minutes int) string {
	sign := ""
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	h := minutes / 60
	m := minutes % 60
	if h > 0 {
		return fmt.Sprintf("%s%dh %dm", sign, h, m)
	}
	return fmt.Sprintf("%s%dm", sign, m)
}

// FormatHoursMinutes formats minutes as H:MM.
func FormatHoursMinutes(minutes int) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// OnDay returns the wall-clock time of clock (seconds dropped) on day.
func OnDay(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
}

// ParseClock parses "now", "HH:MM" or "HHMM" into a time on day. "now" uses
// the wall clock of now, truncated to the minute.
func ParseClock(s string, day, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return OnDay(day, now), nil
	}
	for _, layout := range []string{"15:04", "1504"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return OnDay(day, parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time %q", s)
}

var (
	dayOnlyRe  = regexp.MustCompile(`^\d{1,2}$`)
	monthDayRe = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})$`)
	fullDateRe = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	yearMonRe  = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})$`)
)

// ParseDate parses a date relative to now. Accepted forms: "today",
// "yesterday", weekday names (the most recent such day, today included), "DD",
// "MM-DD", "YYYY-MM-DD" and "YYYY/MM/DD".
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	today := StartOfDay(now)
	switch s {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if m := fullDateRe.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), now.Location())
	}
	if m := monthDayRe.FindStringSubmatch(s); m != nil {
		return buildDate(now.Year(), atoi(m[1]), atoi(m[2]), now.Location())
	}
	if dayOnlyRe.MatchString(s) {
		return buildDate(now.Year(), int(now.Month()), atoi(s), now.Location())
	}

	for i := 0; i < 7; i++ {
		d := today.AddDate(0, 0, -i)
		name := strings.ToLower(d.Weekday().String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", s)
}

// ParsePeriod parses a month relative to now. Accepted forms: "" or
// "this month", "last month", "01", "1", "Jan", "January", "2019-01".
func ParsePeriod(s string, now time.Time) (model.Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "this month", "thismonth":
		return model.PeriodOf(now), nil
	case "last month", "lastmonth":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return model.PeriodOf(first.AddDate(0, -1, 0)), nil
	}

	if m := yearMonRe.FindStringSubmatch(s); m != nil {
		month := atoi(m[2])
		if month < 1 || month > 12 {
			return model.Period{}, fmt.Errorf("invalid month %q", s)
		}
		return model.Period{Year: atoi(m[1]), Month: time.Month(month)}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return model.Period{}, fmt.Errorf("invalid month %q: must be between 1 and 12", s)
		}
		return model.Period{Year: now.Year(), Month: time.Month(n)}, nil
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if s == name || s == name[:3] {
			return model.Period{Year: now.Year(), Month: m}, nil
		}
	}
	return model.Period{}, fmt.Errorf(
		"invalid month %q: use a month name (December), an abbreviation (Dec), a year with month (2019-01) or a month number (01)", s)
}

func buildDate(year, month, day int, loc *time.Location) (time.Time, error) {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %04d-%02d-%02d", year, month, day)
	}
	return d, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
