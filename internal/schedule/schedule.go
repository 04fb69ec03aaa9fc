package schedule

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
)

const (
	// DefaultMarginDays is the look-ahead/behind margin kept around the
	// visible window so small scrolls reuse the existing index.
	DefaultMarginDays = 7

	// HistoryHorizonDays bounds backward expansion of open-ended
	// recurring events when scrolling into the past.
	HistoryHorizonDays = 365

	defaultMaxOccurrencesPerEvent = 5000
)

// Options controls how recurrence expansion is performed.
type Options struct {
	// Location is the display timezone all occurrences are normalized
	// into. If nil, time.Local is used.
	Location *time.Location

	// MarginDays extends the expansion bounds on both sides of the
	// viewport window. Negative means DefaultMarginDays.
	MarginDays int

	// MaxOccurrencesPerEvent is a safety cap against pathological
	// expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// Recompute expands the given events into an Index covering the
// viewport window plus margin. Expansion is lazy: recurring events are
// only stepped within the bounds, so open-ended rules always yield a
// finite result. The result is deterministic for identical inputs.
func Recompute(events []model.Event, vp model.Viewport, opts Options) (*Index, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MarginDays < 0 {
		opts.MarginDays = DefaultMarginDays
	}
	if opts.MaxOccurrencesPerEvent <= 0 {
		opts.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	winStart, winEnd := vp.Window()
	if !winEnd.After(winStart) {
		return nil, errors.New("schedule: empty viewport window")
	}

	// Bounds are half-open: [boundsStart, boundsEnd).
	boundsStart := winStart.AddDate(0, 0, -opts.MarginDays).In(opts.Location)
	boundsEnd := winEnd.AddDate(0, 0, opts.MarginDays).In(opts.Location)
	boundsStart = model.Day(boundsStart)
	boundsEnd = model.Day(boundsEnd)

	idx := newIndex(winStart.In(opts.Location), winEnd.In(opts.Location), boundsStart, boundsEnd)

	for _, ev := range events {
		starts, truncated := expandEvent(ev, boundsStart, boundsEnd, opts)
		if truncated {
			appLog.Error("schedule: truncated occurrences for event",
				errors.New("max occurrences reached"),
				"id", ev.ID, "cap", opts.MaxOccurrencesPerEvent)
		}
		for _, occStart := range starts {
			idx.add(ev, occStart, opts.Location)
		}
	}

	idx.sortDays()
	return idx, nil
}

// expandEvent produces the occurrence start times of a single event
// within [boundsStart, boundsEnd), and whether the per-event cap was
// hit. Starts are returned in the display location.
func expandEvent(ev model.Event, boundsStart, boundsEnd time.Time, opts Options) ([]time.Time, bool) {
	start := ev.Start.In(opts.Location)
	dur := ev.EffectiveEnd().Sub(ev.Start)

	// Occurrences starting before boundsStart can still span into the
	// bounds; widen the query by the event duration.
	queryStart := boundsStart.Add(-dur)

	if !ev.Recurrence.Repeats() {
		if start.Before(queryStart) || !start.Before(boundsEnd) {
			return nil, false
		}
		return []time.Time{start}, false
	}

	// Cheap pre-checks before building the rule.
	if !start.Before(boundsEnd) {
		return nil, false
	}
	if u := ev.Recurrence.Until; u != nil && u.In(opts.Location).Before(queryStart) {
		return nil, false
	}

	r, err := compileRule(ev.Recurrence, start)
	if err != nil {
		// Rules are validated at the store boundary; a rule that still
		// fails to compile is skipped, never aborts the recompute.
		appLog.Error("schedule: failed to compile recurrence", err, "id", ev.ID)
		return nil, false
	}

	// Between is inclusive on both ends; the exclusive bounds end is
	// handled by querying up to the last instant inside the bounds.
	occs := r.Between(queryStart, boundsEnd.Add(-time.Nanosecond), true)

	hitCap := false
	if len(occs) > opts.MaxOccurrencesPerEvent {
		occs = occs[:opts.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]time.Time, 0, len(occs))
	for _, t := range occs {
		out = append(out, t.In(opts.Location))
	}
	return out, hitCap
}

// compileRule translates the closed recurrence variant into an rrule.
// The mapping is exhaustive over RecurrenceKind; Validate has already
// rejected structurally invalid rules.
func compileRule(rec model.Recurrence, dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{Dtstart: dtstart}

	switch rec.Kind {
	case model.RecurDaily:
		opt.Freq = rrule.DAILY
	case model.RecurWeekly:
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = make([]rrule.Weekday, 0, len(rec.Weekdays))
		for _, wd := range rec.Weekdays {
			opt.Byweekday = append(opt.Byweekday, rruleWeekday(wd))
		}
	case model.RecurMonthly:
		// Months without the requested day are skipped, which is the
		// rrule semantic for BYMONTHDAY.
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{rec.MonthDay}
	case model.RecurCustom:
		opt.Freq = rrule.DAILY
		opt.Interval = rec.IntervalDays
	default:
		return nil, errors.New("recurrence does not repeat")
	}

	if rec.Until != nil {
		opt.Until = *rec.Until
	}

	return rrule.NewRRule(opt)
}

func rruleWeekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

// sortDays enforces the per-date ordering invariant: start time first,
// ties broken by event ID.
func (idx *Index) sortDays() {
	for _, key := range idx.dates {
		occs := idx.days[key]
		sort.SliceStable(occs, func(i, j int) bool {
			if !occs[i].Start.Equal(occs[j].Start) {
				return occs[i].Start.Before(occs[j].Start)
			}
			return occs[i].EventID < occs[j].EventID
		})
	}
	sort.Slice(idx.dates, func(i, j int) bool { return idx.dates[i].Before(idx.dates[j]) })
}
