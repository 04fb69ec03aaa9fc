package schedule

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"

	"taskdeck/internal/model"
)

// Index is the derived schedule: a mapping from calendar date to the
// ordered occurrences on that date, covering the viewport window plus
// margin. It is a cache, never the system of record.
type Index struct {
	winStart, winEnd       time.Time
	boundsStart, boundsEnd time.Time

	days  map[time.Time][]model.Occurrence
	dates []time.Time
}

func newIndex(winStart, winEnd, boundsStart, boundsEnd time.Time) *Index {
	return &Index{
		winStart:    winStart,
		winEnd:      winEnd,
		boundsStart: boundsStart,
		boundsEnd:   boundsEnd,
		days:        make(map[time.Time][]model.Occurrence),
	}
}

// add materializes one occurrence start into per-date entries, one for
// every date the occurrence spans, clipped to the index bounds. The end
// is half-open: an occurrence ending exactly at midnight does not
// occupy the following date.
func (idx *Index) add(ev model.Event, occStart time.Time, loc *time.Location) {
	dur := ev.EffectiveEnd().Sub(ev.Start)
	occEnd := occStart.Add(dur)

	lastInstant := occEnd
	if occEnd.After(occStart) {
		lastInstant = occEnd.Add(-time.Nanosecond)
	}

	first := model.Day(occStart.In(loc))
	last := model.Day(lastInstant.In(loc))

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if day.Before(idx.boundsStart) || !day.Before(idx.boundsEnd) {
			continue
		}
		if _, ok := idx.days[day]; !ok {
			idx.dates = append(idx.dates, day)
		}
		idx.days[day] = append(idx.days[day], model.Occurrence{
			EventID:   ev.ID,
			Date:      day,
			Title:     ev.Title,
			Start:     occStart,
			End:       occEnd,
			Category:  ev.Category,
			Completed: ev.Completed,
		})
	}
}

// On returns the ordered occurrences for the given date (any time of
// day), or nil when the date is empty or outside the index bounds.
func (idx *Index) On(date time.Time) []model.Occurrence {
	return idx.days[model.Day(date)]
}

// Dates returns the non-empty dates of the index in ascending order.
func (idx *Index) Dates() []time.Time {
	out := make([]time.Time, len(idx.dates))
	copy(out, idx.dates)
	return out
}

// Window returns the visible half-open range [start, end) the index was
// computed for, excluding margin.
func (idx *Index) Window() (start, end time.Time) {
	return idx.winStart, idx.winEnd
}

// Bounds returns the full half-open range covered by the index,
// including margin.
func (idx *Index) Bounds() (start, end time.Time) {
	return idx.boundsStart, idx.boundsEnd
}

// Len returns the total number of occurrence entries in the index.
func (idx *Index) Len() int {
	n := 0
	for _, occs := range idx.days {
		n += len(occs)
	}
	return n
}

// Fingerprint returns a stable digest of the index contents. Identical
// (events, viewport) inputs always produce the same fingerprint, which
// is how determinism is asserted in tests and how the redraw scheduler
// can skip frames for no-op recomputes.
func (idx *Index) Fingerprint() string {
	h := sha256.New()
	writeTime(h, idx.winStart)
	writeTime(h, idx.winEnd)
	for _, day := range idx.dates {
		writeTime(h, day)
		for _, occ := range idx.days[day] {
			io.WriteString(h, occ.EventID)
			io.WriteString(h, "\x00")
			io.WriteString(h, occ.Title)
			io.WriteString(h, "\x00")
			writeTime(h, occ.Start)
			writeTime(h, occ.End)
			binary.Write(h, binary.BigEndian, int64(occ.Category))
			if occ.Completed {
				io.WriteString(h, "1")
			} else {
				io.WriteString(h, "0")
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeTime(w io.Writer, t time.Time) {
	binary.Write(w, binary.BigEndian, t.UnixNano())
}
