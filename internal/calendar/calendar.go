// Package calendar computes send-slot placement and stage trigger times.
// All wall-clock arithmetic is UTC; sends go out on Tuesdays and Thursdays
// at 09:15:00.
package calendar

import (
	"errors"
	"time"
)

// Send time-of-day, UTC.
const (
	SendHour   = 9
	SendMinute = 15
)

// ErrClockInvalid is returned when the input instant is not usable.
var ErrClockInvalid = errors.New("calendar: invalid instant")

// Clock supplies the current time. Production uses SystemClock; tests
// inject a fixed or stepping fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NextEligibleSlot returns the earliest instant >= from whose UTC weekday is
// Tuesday or Thursday and whose time-of-day is 09:15:00. When from falls on
// an eligible day at or before that day's 09:15:00 boundary, the boundary
// itself is returned.
func NextEligibleSlot(from time.Time) (time.Time, error) {
	if from.IsZero() {
		return time.Time{}, ErrClockInvalid
	}
	t := from.UTC()

	boundary := time.Date(t.Year(), t.Month(), t.Day(), SendHour, SendMinute, 0, 0, time.UTC)
	if eligibleWeekday(t.Weekday()) && !t.After(boundary) {
		return boundary, nil
	}

	day := boundary.AddDate(0, 0, 1)
	for !eligibleWeekday(day.Weekday()) {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

func eligibleWeekday(wd time.Weekday) bool {
	return wd == time.Tuesday || wd == time.Thursday
}
