package timeslot

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToLocal(t *testing.T) {
	tests := []struct {
		name     string
		slot     int
		viewer   int
		provider int
		want     int
	}{
		{"same zone", 570, 60, 60, 570},
		{"viewer one hour ahead", 600, 60, 0, 660},
		{"provider UTC+9 viewer UTC-8 midnight wraps back", 0, -480, 540, 1380},
		{"provider UTC+9 viewer UTC-8 afternoon", 900, -480, 540, 1320},
		{"provider UTC-8 viewer UTC+9 wraps forward", 1380, 540, -480, 1380 + 1020 - 1440},
		{"half hour zone", 600, 330, 0, 930},
		{"negative slot input", -30, 0, 0, 1410},
		{"slot beyond a day", 1500, 0, 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToLocal(tt.slot, tt.viewer, tt.provider)
			if got != tt.want {
				t.Errorf("ConvertToLocal(%d, %d, %d) = %d, want %d", tt.slot, tt.viewer, tt.provider, got, tt.want)
			}
		})
	}
}

func TestConvertToLocalAlwaysInDay(t *testing.T) {
	offsets := []int{-720, -600, -480, -210, 0, 60, 330, 345, 540, 780, 840}
	for m := -3000; m <= 3000; m += 37 {
		for _, p := range offsets {
			for _, v := range offsets {
				got := ConvertToLocal(m, v, p)
				if got < 0 || got >= MinutesPerDay {
					t.Fatalf("ConvertToLocal(%d, %d, %d) = %d outside [0, %d)", m, v, p, got, MinutesPerDay)
				}
			}
		}
	}
}

func TestConvertToLocalSwappedOffsetsRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m += 15 {
		there := ConvertToLocal(m, -480, 540)
		back := ConvertToLocal(there, 540, -480)
		assert.Equal(t, m, back)
	}
}

func TestDayShift(t *testing.T) {
	assert.Equal(t, -1, DayShift(0, -480, 540))
	assert.Equal(t, 0, DayShift(600, 60, 0))
	assert.Equal(t, 1, DayShift(1380, 540, -480))
	assert.Equal(t, -1, DayShift(0, -1440, 0))
	assert.Equal(t, 0, DayShift(1439, 0, 0))
}

func TestConvertSlotsToLocal(t *testing.T) {
	got := ConvertSlotsToLocal([]int{0, 600, 1410}, 60, 0)
	assert.Equal(t, []int{60, 660, 30}, got)
	assert.Empty(t, ConvertSlotsToLocal(nil, 0, 0))
}

func TestMinutesToTimeString(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "00:00"},
		{570, "09:30"},
		{660, "11:00"},
		{1439, "23:59"},
		{1440, "00:00"},
		{1500, "01:00"},
		{-60, "23:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinutesToTimeString(tt.in), "minutes %d", tt.in)
	}
}

func TestMinutesToClockLabel(t *testing.T) {
	assert.Equal(t, "12:00 AM", MinutesToClockLabel(0))
	assert.Equal(t, "9:30 AM", MinutesToClockLabel(570))
	assert.Equal(t, "12:15 PM", MinutesToClockLabel(735))
	assert.Equal(t, "11:00 PM", MinutesToClockLabel(1380))
}

func TestGenerateTimeSlots(t *testing.T) {
	seq, err := GenerateTimeSlots(540, 720, 60)
	require.NoError(t, err)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, []int{540, 600, 660}, first)
	assert.Equal(t, first, second, "sequence must be restartable")

	empty, err := GenerateTimeSlots(600, 600, 30)
	require.NoError(t, err)
	assert.Empty(t, slices.Collect(empty))

	var early []int
	for m := range seq {
		early = append(early, m)
		break
	}
	assert.Equal(t, []int{540}, early)
}

func TestGenerateTimeSlotsInvalid(t *testing.T) {
	tests := []struct {
		name             string
		start, end, step int
	}{
		{"zero step", 0, 60, 0},
		{"negative step", 0, 60, -15},
		{"negative start", -10, 60, 15},
		{"end beyond day", 0, 1500, 15},
		{"inverted", 600, 300, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateTimeSlots(tt.start, tt.end, tt.step)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestOffsetMinutes(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, -300, OffsetMinutes(ny, 2026, time.January, 15))
	assert.Equal(t, -240, OffsetMinutes(ny, 2026, time.July, 15))
	assert.Equal(t, 0, OffsetMinutes(nil, 2026, time.July, 15))
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation("", nil))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone", nil))
	assert.Equal(t, "Asia/Tokyo", LoadLocation("Asia/Tokyo", nil).String())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30 min", FormatDuration(30))
	assert.Equal(t, "1 h", FormatDuration(60))
	assert.Equal(t, "1 h 30 min", FormatDuration(90))
}
