package model

import (
	"errors"
	"fmt"
	"time"
)

// RecurrenceKind enumerates the supported repeat patterns. The set is
// closed on purpose: expansion logic can handle every kind exhaustively
// instead of interpreting open-ended rule strings.
type RecurrenceKind string

const (
	RecurNone    RecurrenceKind = "none"
	RecurDaily   RecurrenceKind = "daily"
	RecurWeekly  RecurrenceKind = "weekly"
	RecurMonthly RecurrenceKind = "monthly"
	RecurCustom  RecurrenceKind = "custom"
)

// Recurrence describes how an event repeats.
//
// Only the fields relevant to the Kind are meaningful:
//   - RecurWeekly:  Weekdays (non-empty set of weekdays)
//   - RecurMonthly: MonthDay (1..31)
//   - RecurCustom:  IntervalDays (>= 1, step in days)
//
// Until, when set, is an inclusive terminal date for any repeating kind.
type Recurrence struct {
	Kind         RecurrenceKind `json:"kind"`
	Weekdays     []time.Weekday `json:"weekdays,omitempty"`
	MonthDay     int            `json:"month_day,omitempty"`
	IntervalDays int            `json:"interval_days,omitempty"`
	Until        *time.Time     `json:"until,omitempty"`
}

// Validate checks the rule for structural validity.
func (r Recurrence) Validate() error {
	switch r.Kind {
	case "", RecurNone, RecurDaily:
		return nil
	case RecurWeekly:
		if len(r.Weekdays) == 0 {
			return errors.New("weekly recurrence requires at least one weekday")
		}
		for _, wd := range r.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("weekly recurrence has invalid weekday %d", wd)
			}
		}
		return nil
	case RecurMonthly:
		if r.MonthDay < 1 || r.MonthDay > 31 {
			return fmt.Errorf("monthly recurrence day %d out of range 1..31", r.MonthDay)
		}
		return nil
	case RecurCustom:
		if r.IntervalDays < 1 {
			return fmt.Errorf("custom recurrence interval %d must be >= 1 day", r.IntervalDays)
		}
		return nil
	default:
		return fmt.Errorf("unknown recurrence kind %q", r.Kind)
	}
}

// Repeats reports whether the rule produces more than the base occurrence.
func (r Recurrence) Repeats() bool {
	return r.Kind != "" && r.Kind != RecurNone
}

// Event is a stored task or calendar event. Events are owned by the
// store and mutated only through it; everything else consumes copies.
type Event struct {
	// ID is a stable identifier (UUID), unchanged across edits.
	ID string `json:"id"`

	Title string `json:"title"`

	// Start is the first (or only) occurrence's start time.
	Start time.Time `json:"start"`

	// End, when set, is an explicit end time. For repeating events it
	// fixes the per-occurrence duration relative to Start.
	End *time.Time `json:"end,omitempty"`

	// DurationMinutes is an alternative to End; ignored when End is set.
	DurationMinutes int `json:"duration_minutes,omitempty"`

	Recurrence Recurrence `json:"recurrence"`

	// Category is a color/importance tag slot.
	Category int `json:"category"`

	Completed bool `json:"completed"`

	Created time.Time `json:"created"`
}

// EffectiveEnd resolves the event's end time from End or DurationMinutes.
// An event with neither is treated as instantaneous.
func (e Event) EffectiveEnd() time.Time {
	if e.End != nil {
		return *e.End
	}
	if e.DurationMinutes > 0 {
		return e.Start.Add(time.Duration(e.DurationMinutes) * time.Minute)
	}
	return e.Start
}

// Validate checks the event for structural validity.
func (e Event) Validate() error {
	if e.Title == "" {
		return errors.New("event title is empty")
	}
	if e.Start.IsZero() {
		return errors.New("event start is unset")
	}
	if e.End != nil && e.End.Before(e.Start) {
		return errors.New("event end precedes start")
	}
	if e.DurationMinutes < 0 {
		return errors.New("event duration is negative")
	}
	return e.Recurrence.Validate()
}

// Occurrence is a single dated instance of an Event, produced by
// recurrence expansion. Never persisted.
type Occurrence struct {
	EventID string

	// Date is the calendar date this occurrence is shown on, normalized
	// to midnight in the display location. Multi-day events produce one
	// Occurrence per spanned date, all sharing Start/End.
	Date time.Time

	Title string

	Start time.Time
	End   time.Time

	Category  int
	Completed bool
}

// Day truncates t to its calendar date (midnight) in t's own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Viewport is the currently visible date range: a normalized anchor
// date, a window length in days, and a scroll offset in days.
type Viewport struct {
	Anchor     time.Time
	WindowDays int
	Offset     int
}

// Normalize clamps the window to at least one day and truncates the
// anchor to a calendar date.
func (v Viewport) Normalize() Viewport {
	if v.WindowDays < 1 {
		v.WindowDays = 1
	}
	v.Anchor = Day(v.Anchor)
	return v
}

// Window returns the effective visible range [start, end) after
// applying the scroll offset. End is exclusive.
func (v Viewport) Window() (start, end time.Time) {
	n := v.Normalize()
	start = n.Anchor.AddDate(0, 0, n.Offset)
	end = start.AddDate(0, 0, n.WindowDays)
	return start, end
}
