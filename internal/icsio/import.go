package icsio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
	"taskdeck/internal/store"
)

// maxImportCount caps COUNT-based rules we are willing to materialize a
// terminal date for.
const maxImportCount = 10000

// Result summarizes one import run.
type Result struct {
	Events  []model.Event
	Skipped int
}

// ImportFile parses the iCalendar file at path into store Events.
func ImportFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, &store.IOError{Op: "import", Path: path, Err: err}
	}
	defer f.Close()
	return Import(f)
}

// Import parses an iCalendar payload into store Events. VEVENTs whose
// recurrence cannot be expressed as one of the closed rule variants are
// skipped with a logged validation error; a single bad component never
// aborts the import.
func Import(r io.Reader) (Result, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, ve := range cal.Events() {
		ev, perr := convertVEvent(ve)
		if perr != nil {
			appLog.Error("ics import: skipping component", perr)
			res.Skipped++
			continue
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("ics import completed", "events", len(res.Events), "skipped", res.Skipped)
	return res, nil
}

func convertVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event

	uid := ""
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		uid = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if out.Title == "" {
		return out, &store.ValidationError{ID: uid, Err: errors.New("missing SUMMARY")}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, &store.ValidationError{ID: uid, Err: fmt.Errorf("bad DTSTART: %w", err)}
	}
	out.Start = start

	if end, eerr := ve.GetEndAt(); eerr == nil && end.After(start) {
		out.End = &end
	}

	// All-day DTSTART (VALUE=DATE or no time part) becomes a midnight
	// start spanning the whole day.
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		allDay := !strings.Contains(dtStart.Value, "T")
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				allDay = true
			}
		}
		if allDay {
			day := model.Day(start)
			out.Start = day
			if out.End == nil || !out.End.After(day) {
				end := day.Add(24 * time.Hour)
				out.End = &end
			}
		}
	}

	rec, err := convertRRule(ve, out.Start)
	if err != nil {
		return out, &store.ValidationError{ID: uid, Err: err}
	}
	out.Recurrence = rec

	if err := out.Validate(); err != nil {
		return out, &store.ValidationError{ID: uid, Err: err}
	}
	return out, nil
}

// convertRRule maps a VEVENT's RRULE onto the closed recurrence
// variants. Rules outside the mappable subset (yearly, positional
// weekdays, multiple month days, and so on) are rejected.
func convertRRule(ve *ical.VEvent, dtstart time.Time) (model.Recurrence, error) {
	prop := ve.GetProperty(ical.ComponentPropertyRrule)
	if prop == nil || prop.Value == "" {
		return model.Recurrence{Kind: model.RecurNone}, nil
	}

	opt, err := rrule.StrToROption(prop.Value)
	if err != nil {
		return model.Recurrence{}, fmt.Errorf("unparseable RRULE %q: %w", prop.Value, err)
	}
	if len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Bymonth) > 0 {
		return model.Recurrence{}, fmt.Errorf("unsupported RRULE %q", prop.Value)
	}

	var rec model.Recurrence
	switch opt.Freq {
	case rrule.DAILY:
		if opt.Interval > 1 {
			rec = model.Recurrence{Kind: model.RecurCustom, IntervalDays: opt.Interval}
		} else {
			rec = model.Recurrence{Kind: model.RecurDaily}
		}
	case rrule.WEEKLY:
		if opt.Interval > 1 {
			return model.Recurrence{}, fmt.Errorf("unsupported weekly interval in %q", prop.Value)
		}
		days := make([]time.Weekday, 0, len(opt.Byweekday))
		for _, wd := range opt.Byweekday {
			if wd.N() != 0 {
				return model.Recurrence{}, fmt.Errorf("unsupported positional weekday in %q", prop.Value)
			}
			days = append(days, goWeekday(wd))
		}
		if len(days) == 0 {
			days = []time.Weekday{dtstart.Weekday()}
		}
		rec = model.Recurrence{Kind: model.RecurWeekly, Weekdays: days}
	case rrule.MONTHLY:
		if opt.Interval > 1 {
			return model.Recurrence{}, fmt.Errorf("unsupported monthly interval in %q", prop.Value)
		}
		day := dtstart.Day()
		if len(opt.Bymonthday) == 1 {
			day = opt.Bymonthday[0]
		} else if len(opt.Bymonthday) > 1 {
			return model.Recurrence{}, fmt.Errorf("unsupported multiple month days in %q", prop.Value)
		}
		rec = model.Recurrence{Kind: model.RecurMonthly, MonthDay: day}
	default:
		return model.Recurrence{}, fmt.Errorf("unsupported RRULE frequency in %q", prop.Value)
	}

	if !opt.Until.IsZero() {
		until := opt.Until
		rec.Until = &until
	} else if opt.Count > 0 {
		until, err := countToUntil(opt, dtstart)
		if err != nil {
			return model.Recurrence{}, err
		}
		rec.Until = &until
	}

	return rec, nil
}

// countToUntil materializes a COUNT-terminated rule's last occurrence
// so the closed variant can carry it as an inclusive terminal date.
func countToUntil(opt *rrule.ROption, dtstart time.Time) (time.Time, error) {
	if opt.Count > maxImportCount {
		return time.Time{}, fmt.Errorf("COUNT %d exceeds import limit", opt.Count)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, err
	}
	all := r.All()
	if len(all) == 0 {
		return time.Time{}, errors.New("COUNT rule yields no occurrences")
	}
	return all[len(all)-1], nil
}

func goWeekday(wd rrule.Weekday) time.Weekday {
	switch wd.Day() {
	case 0:
		return time.Monday
	case 1:
		return time.Tuesday
	case 2:
		return time.Wednesday
	case 3:
		return time.Thursday
	case 4:
		return time.Friday
	case 5:
		return time.Saturday
	default:
		return time.Sunday
	}
}
