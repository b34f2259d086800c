// Package slot holds the time rules of the booking engine: hour-aligned slots and the
// cancellation window.
package slot

import "time"

// CancellationNotice is how long before a slot starts cancellation stops being allowed.
const CancellationNotice = 2 * time.Hour

// Clock supplies the current time to the engine.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
func SystemClock() Clock { return systemClock{} }

// HourStart truncates t to the start of its containing hour in t's location.
// Minutes, seconds and nanoseconds are discarded, never rounded.
func HourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// IsHourAligned reports whether t is the start of an hour.
func IsHourAligned(t time.Time) bool {
	return t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// CancelDeadline is the last instant (exclusive) at which an appointment at date may be canceled.
func CancelDeadline(date time.Time) time.Time {
	return date.Add(-CancellationNotice)
}

// Cancelable reports whether now is strictly before the cancellation deadline of date.
func Cancelable(date, now time.Time) bool {
	return now.Before(CancelDeadline(date))
}

// Past reports whether the slot at date has already started.
func Past(date, now time.Time) bool {
	return date.Before(now)
}
