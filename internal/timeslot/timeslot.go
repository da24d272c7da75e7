// Package timeslot converts between minute offsets since midnight, UTC
// offsets and human readable time labels.
package timeslot

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// MinutesPerDay is the length of a wall-clock day in minutes.
const MinutesPerDay = 24 * 60

// ErrInvalidArgument is returned for inputs the arithmetic cannot give a meaningful answer for.
var ErrInvalidArgument = errors.New("invalid argument")

// Normalize folds any integer minute value into [0, MinutesPerDay).
func Normalize(minutes int) int {
	return (minutes%MinutesPerDay + MinutesPerDay) % MinutesPerDay
}

// MinutesToTimeString formats minutes (taken modulo one day) as 24h "HH:MM".
func MinutesToTimeString(minutes int) string {
	m := Normalize(minutes)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// MinutesToClockLabel formats minutes (taken modulo one day) as a 12h label, e.g. "9:30 AM".
func MinutesToClockLabel(minutes int) string {
	m := Normalize(minutes)
	hour, minute := m/60, m%60
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, minute, suffix)
}

// ConvertToLocal translates a provider-local slot into the viewer's frame.
// Offsets are signed minutes east of UTC. The result is always in [0, MinutesPerDay).
func ConvertToLocal(slotMinutes, viewerOffsetMinutes, providerOffsetMinutes int) int {
	return ((slotMinutes+(viewerOffsetMinutes-providerOffsetMinutes))%MinutesPerDay + MinutesPerDay) % MinutesPerDay
}

// DayShift reports on which viewer day a provider-local slot lands relative to
// the provider's day: -1 for the previous day, 0 for the same day, +1 for the next.
func DayShift(slotMinutes, viewerOffsetMinutes, providerOffsetMinutes int) int {
	shifted := slotMinutes + viewerOffsetMinutes - providerOffsetMinutes
	switch {
	case shifted < 0:
		return -1 - (-shifted-1)/MinutesPerDay
	case shifted >= MinutesPerDay:
		return shifted / MinutesPerDay
	default:
		return 0
	}
}

// ConvertSlotsToLocal applies ConvertToLocal to every slot, preserving order.
func ConvertSlotsToLocal(slots []int, viewerOffsetMinutes, providerOffsetMinutes int) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = ConvertToLocal(s, viewerOffsetMinutes, providerOffsetMinutes)
	}
	return out
}

// GenerateTimeSlots returns the minute marks start, start+step, ... below end.
// The sequence is restartable; ranging over it twice yields the same marks.
// It is a rendering skeleton only and never a source of bookable times.
func GenerateTimeSlots(startMinutes, endMinutes, stepMinutes int) (iter.Seq[int], error) {
	if stepMinutes <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %d", ErrInvalidArgument, stepMinutes)
	}
	if startMinutes < 0 || endMinutes > MinutesPerDay {
		return nil, fmt.Errorf("%w: range [%d, %d) outside a day", ErrInvalidArgument, startMinutes, endMinutes)
	}
	if endMinutes < startMinutes {
		return nil, fmt.Errorf("%w: end %d before start %d", ErrInvalidArgument, endMinutes, startMinutes)
	}
	return func(yield func(int) bool) {
		for m := startMinutes; m < endMinutes; m += stepMinutes {
			if !yield(m) {
				return
			}
		}
	}, nil
}

// OffsetMinutes returns the UTC offset of loc in minutes on the given calendar
// date. Noon is used so DST switches, which happen at night, do not matter.
func OffsetMinutes(loc *time.Location, year int, month time.Month, day int) int {
	if loc == nil {
		loc = time.UTC
	}
	_, offset := time.Date(year, month, day, 12, 0, 0, 0, loc).Zone()
	return offset / 60
}

// LoadLocation resolves an IANA zone name, falling back to fallback (or UTC)
// when the name is empty or unknown.
func LoadLocation(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}

// FormatDuration renders a duration in minutes, e.g. "1 h 30 min".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
