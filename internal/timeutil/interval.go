package timeutil

import "time"

// MinutesPerDay is the clamp ceiling for a single calendar day.
const MinutesPerDay = 24 * 60

// DayBoundsUTC returns the half-open interval [00:00, next day 00:00) of the
// UTC calendar day containing t.
func DayBoundsUTC(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// DateUTC truncates t to UTC midnight. Daily compliance rows are keyed by
// this value.
func DateUTC(t time.Time) time.Time {
	start, _ := DayBoundsUTC(t)
	return start
}

// OverlapMinutes returns the length, in whole minutes, of the intersection of
// the half-open intervals [aStart, aEnd) and [bStart, bEnd). Empty or
// inverted intervals yield 0.
func OverlapMinutes(aStart, aEnd, bStart, bEnd time.Time) int {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// ClampDayMinutes bounds a minute total to [0, MinutesPerDay].
func ClampDayMinutes(m int) int {
	if m < 0 {
		return 0
	}
	if m > MinutesPerDay {
		return MinutesPerDay
	}
	return m
}
