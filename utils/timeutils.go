package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseGTFSTime parses an H:MM:SS or HH:MM:SS clock value into seconds since
// the service-day anchor. Hours may exceed 23 for trips running past midnight.
func ParseGTFSTime(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	return h*3600 + m*60 + sec, nil
}

// FormatGTFSTime is the inverse of ParseGTFSTime.
func FormatGTFSTime(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

// Date is a civil calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a GTFS YYYYMMDD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid GTFS date %q", s)
	}
	return Date{t.Year(), t.Month(), t.Day()}, nil
}

// DateOf returns the civil date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{y, m, d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) utc() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

func (d Date) Before(o Date) bool { return d.utc().Before(o.utc()) }

func (d Date) After(o Date) bool { return d.utc().After(o.utc()) }

func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }

// AddDays returns the date n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date {
	t := d.utc().AddDate(0, 0, n)
	return Date{t.Year(), t.Month(), t.Day()}
}

// ServiceDayAnchor returns the instant GTFS stop times of date d are measured
// from: noon minus twelve hours in loc. This equals local midnight except on
// days with a daylight-saving transition.
func ServiceDayAnchor(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, loc).Add(-12 * time.Hour)
}
