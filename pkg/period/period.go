// Package period provides calendar-date helpers for statistics buckets and ranking windows.
//
// Dates are represented as time.Time values at midnight UTC carrying the civil date
// (year, month, day) as observed in a configured location. This keeps date arithmetic
// free of DST effects and makes dates directly comparable and usable as SQL DATE args.
package period

import (
	"fmt"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD layout used in keys, SQL and APIs
const DateLayout = "2006-01-02"

// Date truncates t to its civil date in loc and returns it as midnight UTC
func Date(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the civil date of now in loc
func Today(now time.Time, loc *time.Location) time.Time {
	return Date(now, loc)
}

// Yesterday returns the civil date before now in loc
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return Today(now, loc).AddDate(0, 0, -1)
}

// Format renders a date as YYYY-MM-DD
func Format(date time.Time) string {
	return date.Format(DateLayout)
}

// Parse parses a YYYY-MM-DD string into a date
func Parse(s string) (time.Time, error) {
	date, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return date, nil
}

// Range is a closed date range [Start, End]
type Range struct {
	Start time.Time
	End   time.Time
}

// String renders the range as "start..end"
func (r Range) String() string {
	return Format(r.Start) + ".." + Format(r.End)
}

// Days returns the number of days covered by the range
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Single returns the one-day range [date, date]
func Single(date time.Time) Range {
	return Range{Start: date, End: date}
}

// WeekEnding returns the seven-day range that ends on end
func WeekEnding(end time.Time) Range {
	return Range{Start: end.AddDate(0, 0, -6), End: end}
}

// MonthToDate returns the range from the first of end's month through end
func MonthToDate(end time.Time) Range {
	return Range{Start: FirstOfMonth(end), End: end}
}

// FirstOfMonth returns the first day of date's month
func FirstOfMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MondayOf returns the ISO week Monday on or before date
func MondayOf(date time.Time) time.Time {
	// time.Weekday has Sunday = 0; ISO weeks start on Monday
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

// IsWeekStart reports whether date is a Monday
func IsWeekStart(date time.Time) bool {
	return date.Weekday() == time.Monday
}

// IsMonthStart reports whether date is the first day of a month
func IsMonthStart(date time.Time) bool {
	return date.Day() == 1
}

// PreviousWeek returns the last fully completed Monday–Sunday week before today's week
func PreviousWeek(today time.Time) Range {
	end := MondayOf(today).AddDate(0, 0, -1)
	return WeekEnding(end)
}

// PreviousMonth returns the last fully completed calendar month before today's month
func PreviousMonth(today time.Time) Range {
	end := FirstOfMonth(today).AddDate(0, 0, -1)
	return Range{Start: FirstOfMonth(end), End: end}
}
