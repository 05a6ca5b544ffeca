package models

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Date is a calendar date stored as the number of days since 1970-01-01.
// It carries no time zone, so the same day maps to the same key on every
// device.
type Date int64

// DateOf takes the wall-clock year, month and day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	secs := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return Date(days)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC()
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

// AddDays returns d shifted by n days.
func (d Date) AddDays(n int) Date { return d + Date(n) }
