// Package calendar decides which calendar dates a visitor may pick.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout emitted on selection.
const DateLayout = "2006-01-02"

// ErrInvalidWindow is returned for notice windows that cannot contain any date.
var ErrInvalidWindow = errors.New("invalid notice window")

// NoticeWindow bounds bookable dates to [today+MinNoticeDays, today+MaxNoticeDays].
type NoticeWindow struct {
	MinNoticeDays int `json:"min_notice_days" yaml:"min_notice_days"`
	MaxNoticeDays int `json:"max_notice_days" yaml:"max_notice_days"`
}

// Validate checks the window is non-negative and not inverted.
func (w NoticeWindow) Validate() error {
	if w.MinNoticeDays < 0 {
		return fmt.Errorf("%w: min_notice_days %d is negative", ErrInvalidWindow, w.MinNoticeDays)
	}
	if w.MaxNoticeDays < w.MinNoticeDays {
		return fmt.Errorf("%w: max_notice_days %d before min_notice_days %d", ErrInvalidWindow, w.MaxNoticeDays, w.MinNoticeDays)
	}
	return nil
}

// Date returns the civil date y-m-d as midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TodayAt returns the civil date of now in a zone offset minutes east of UTC.
func TodayAt(now time.Time, offsetMinutes int) time.Time {
	local := now.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	return Date(local.Year(), local.Month(), local.Day())
}

// ParseDate parses a YYYY-MM-DD string into a civil date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Cell is one position in the month grid. Day is zero for padding cells.
type Cell struct {
	Day        int
	Date       string
	Selectable bool
	Selected   bool
	Today      bool
}

// Calendar is a month view constrained by a notice window. It is owned by a
// single booking session and is not safe for concurrent use.
type Calendar struct {
	window   NoticeWindow
	today    time.Time
	year     int
	month    time.Month
	selected string
	weekdays func(time.Weekday) bool
	onSelect func(date string)
}

// New creates a calendar showing the month of the first bookable date.
// onSelect, when set, receives every accepted selection.
func New(window NoticeWindow, today time.Time, onSelect func(date string)) *Calendar {
	c := &Calendar{
		window:   window,
		today:    Date(today.Year(), today.Month(), today.Day()),
		onSelect: onSelect,
	}
	first := c.First()
	c.year, c.month = first.Year(), first.Month()
	return c
}

// SetWeekdayFilter restricts selection to weekdays accepted by f; nil accepts every day.
func (c *Calendar) SetWeekdayFilter(f func(time.Weekday) bool) {
	c.weekdays = f
	if c.selected != "" {
		if d, err := ParseDate(c.selected); err != nil || !c.IsSelectable(d) {
			c.selected = ""
		}
	}
}

// Refresh moves "today" forward and drops a selection that has fallen out of the window.
// It reports whether the selection was dropped.
func (c *Calendar) Refresh(today time.Time) bool {
	c.today = Date(today.Year(), today.Month(), today.Day())
	if c.selected == "" {
		return false
	}
	d, err := ParseDate(c.selected)
	if err == nil && c.IsSelectable(d) {
		return false
	}
	c.selected = ""
	return true
}

// Window returns the notice window.
func (c *Calendar) Window() NoticeWindow {
	return c.window
}

// Today returns the calendar's current civil date.
func (c *Calendar) Today() time.Time {
	return c.today
}

// First returns the earliest bookable date.
func (c *Calendar) First() time.Time {
	return c.today.AddDate(0, 0, c.window.MinNoticeDays)
}

// Last returns the latest bookable date.
func (c *Calendar) Last() time.Time {
	return c.today.AddDate(0, 0, c.window.MaxNoticeDays)
}

// IsSelectable reports whether d lies inside the notice window and passes the weekday filter.
func (c *Calendar) IsSelectable(d time.Time) bool {
	d = Date(d.Year(), d.Month(), d.Day())
	if d.Before(c.First()) || d.After(c.Last()) {
		return false
	}
	if c.weekdays != nil && !c.weekdays(d.Weekday()) {
		return false
	}
	return true
}

// Select accepts an ISO date. Out-of-window or malformed dates are ignored and
// no selection is emitted. It reports whether the date was accepted.
func (c *Calendar) Select(date string) bool {
	d, err := ParseDate(date)
	if err != nil {
		return false
	}
	return c.SelectDate(d)
}

// SelectDate is Select for a time value; only the calendar date is used.
func (c *Calendar) SelectDate(d time.Time) bool {
	if !c.IsSelectable(d) {
		return false
	}
	c.selected = d.Format(DateLayout)
	if c.onSelect != nil {
		c.onSelect(c.selected)
	}
	return true
}

// Selected returns the selected date or "".
func (c *Calendar) Selected() string {
	return c.selected
}

// ClearSelection forgets the selected date.
func (c *Calendar) ClearSelection() {
	c.selected = ""
}

// Month returns the displayed month.
func (c *Calendar) Month() (int, time.Month) {
	return c.year, c.month
}

// PrevMonth shows the previous month. The selection is untouched.
func (c *Calendar) PrevMonth() {
	d := Date(c.year, c.month, 1).AddDate(0, -1, 0)
	c.year, c.month = d.Year(), d.Month()
}

// NextMonth shows the next month. The selection is untouched.
func (c *Calendar) NextMonth() {
	d := Date(c.year, c.month, 1).AddDate(0, 1, 0)
	c.year, c.month = d.Year(), d.Month()
}

// CanPrevMonth reports whether the previous month contains bookable dates.
func (c *Calendar) CanPrevMonth() bool {
	return Date(c.year, c.month, 1).After(c.First())
}

// CanNextMonth reports whether the next month contains bookable dates.
func (c *Calendar) CanNextMonth() bool {
	return !Date(c.year, c.month, 1).AddDate(0, 1, 0).After(c.Last())
}

// Grid returns the displayed month as Monday-first weeks.
func (c *Calendar) Grid() [][]Cell {
	first := Date(c.year, c.month, 1)
	offset := int(first.Weekday())
	if offset == 0 {
		offset = 7
	}
	offset-- // Monday-first
	days := DaysIn(c.month, c.year)

	var weeks [][]Cell
	week := make([]Cell, 0, 7)
	for i := 0; i < offset; i++ {
		week = append(week, Cell{})
	}
	for day := 1; day <= days; day++ {
		d := Date(c.year, c.month, day)
		date := d.Format(DateLayout)
		week = append(week, Cell{
			Day:        day,
			Date:       date,
			Selectable: c.IsSelectable(d),
			Selected:   date == c.selected,
			Today:      d.Equal(c.today),
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = make([]Cell, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, Cell{})
		}
		weeks = append(weeks, week)
	}
	return weeks
}

// DaysIn returns the number of days in the month.
func DaysIn(m time.Month, year int) int {
	switch m {
	case time.February:
		if (year%4 == 0 && year%100 != 0) || year%400 == 0 {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}
