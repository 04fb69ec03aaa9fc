package render

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"taskdeck/internal/config"
	"taskdeck/internal/model"
	"taskdeck/internal/schedule"
	"taskdeck/internal/weather"
)

// Line is one rendered occurrence entry within a day cell.
type Line struct {
	EventID   string
	Title     string
	TimeLabel string
	ColorSlot int
	Completed bool
	Highlight bool
	// Continued marks dates a multi-day occurrence spans beyond its
	// first day.
	Continued bool
}

// DayCell is one calendar date of the frame.
type DayCell struct {
	Date  time.Time
	Today bool
	Lines []Line
}

// WeatherCell is one entry of the forecast strip.
type WeatherCell struct {
	Date    time.Time
	Symbol  string
	MinTemp float64
	MaxTemp float64
}

// Frame is one complete drawable description of the calendar surface.
// It is plain data; presenting it is somebody else's job.
type Frame struct {
	RenderedAt time.Time

	Days []DayCell

	Weather      []WeatherCell
	WeatherStale bool

	// BackgroundPath is the resolved background image path, empty when
	// no background is configured.
	BackgroundPath string
	TintPercent    int
	WeekStart      time.Weekday
}

// Render produces one frame from precomputed inputs. It performs no
// I/O, mutates nothing, and is deterministic for identical inputs.
func Render(idx *schedule.Index, vp model.Viewport, snap weather.Snapshot, cfg *config.Config, now time.Time) *Frame {
	start, end := vp.Window()
	today := model.Day(now)

	f := &Frame{
		RenderedAt:   now,
		WeatherStale: snap.Stale,
		TintPercent:  cfg.BackgroundTintPercent,
		WeekStart:    weekStart(cfg.WeekStart),
	}
	if cfg.Background != "" {
		f.BackgroundPath = filepath.Join(cfg.ImagesDir, cfg.Background)
	}

	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		cell := DayCell{Date: day, Today: day.Equal(today)}
		for _, occ := range idx.On(day) {
			cell.Lines = append(cell.Lines, Line{
				EventID:   occ.EventID,
				Title:     occ.Title,
				TimeLabel: timeLabel(occ, day),
				ColorSlot: colorSlot(occ),
				Completed: occ.Completed,
				Highlight: highlighted(occ.Category, cfg.HighlightCategories),
				Continued: day.After(model.Day(occ.Start)),
			})
		}
		f.Days = append(f.Days, cell)
	}

	limit := 1
	if cfg.ThreeDayWeather {
		limit = 3
	}
	for _, d := range snap.Days {
		if len(f.Weather) >= limit {
			break
		}
		f.Weather = append(f.Weather, WeatherCell{
			Date:    d.Date,
			Symbol:  d.SymbolCode,
			MinTemp: d.MinTemp,
			MaxTemp: d.MaxTemp,
		})
	}

	return f
}

// timeLabel formats the occurrence's start for display: "all day" for
// date-spanning entries, the clock time otherwise.
func timeLabel(occ model.Occurrence, day time.Time) string {
	if day.After(model.Day(occ.Start)) {
		return "all day"
	}
	if occ.Start.Equal(model.Day(occ.Start)) && occ.End.Sub(occ.Start) >= 24*time.Hour {
		return "all day"
	}
	return occ.Start.Format("15:04")
}

// colorSlot maps an occurrence to its colorscheme slot. Category tags
// map directly; anything out of range falls back to slot 0.
func colorSlot(occ model.Occurrence) int {
	if occ.Category < 0 || occ.Category > 5 {
		return 0
	}
	return occ.Category
}

func highlighted(category int, highlight []int) bool {
	for _, h := range highlight {
		if h == category {
			return true
		}
	}
	return false
}

func weekStart(name string) time.Weekday {
	if name == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// WriteText dumps the frame as plain text, used by the -once/-dump CLI
// path and by tests.
func (f *Frame) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "frame rendered %s\n", f.RenderedAt.Format(time.RFC3339)); err != nil {
		return err
	}

	if len(f.Weather) > 0 {
		stale := ""
		if f.WeatherStale {
			stale = " (stale)"
		}
		fmt.Fprintf(w, "weather%s:", stale)
		for _, wc := range f.Weather {
			fmt.Fprintf(w, "  %s %s %.0f..%.0f", wc.Date.Format("01-02"), wc.Symbol, wc.MinTemp, wc.MaxTemp)
		}
		fmt.Fprintln(w)
	} else if f.WeatherStale {
		fmt.Fprintln(w, "weather: unavailable (stale)")
	}

	for _, cell := range f.Days {
		marker := " "
		if cell.Today {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s %s\n", marker, cell.Date.Format("2006-01-02"), cell.Date.Format("Mon"))
		for _, line := range cell.Lines {
			done := " "
			if line.Completed {
				done = "x"
			}
			fmt.Fprintf(w, "    [%s] %-7s %s\n", done, line.TimeLabel, line.Title)
		}
	}
	return nil
}
