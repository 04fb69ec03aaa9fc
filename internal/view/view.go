package view

import (
	"sync"
	"time"

	"taskdeck/internal/bus"
	"taskdeck/internal/model"
	"taskdeck/internal/schedule"
)

// Controller tracks which date range is currently visible and raises a
// dirty signal when, and only when, the effective window changes.
// Scrolling is symmetric: forward is unbounded, backward is clamped at
// the history horizon so open-ended recurring events never force
// unbounded backward expansion.
type Controller struct {
	mu sync.Mutex
	vp model.Viewport

	bus *bus.Bus

	// historyDays is the maximum days the window start may travel
	// before the anchor.
	historyDays int
}

// NewController creates a controller anchored at the given date.
func NewController(anchor time.Time, windowDays int, b *bus.Bus) *Controller {
	vp := model.Viewport{Anchor: anchor, WindowDays: windowDays}.Normalize()
	return &Controller{
		vp:          vp,
		bus:         b,
		historyDays: schedule.HistoryHorizonDays,
	}
}

// CurrentWindow returns a copy of the current viewport.
func (c *Controller) CurrentWindow() model.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// Scroll shifts the visible window by deltaDays (negative scrolls into
// the past) and reports whether the effective window changed. No-op
// scrolls raise no signal and trigger no redraw work.
func (c *Controller) Scroll(deltaDays int) bool {
	c.mu.Lock()
	offset := c.vp.Offset + deltaDays
	if offset < -c.historyDays {
		offset = -c.historyDays
	}
	changed := offset != c.vp.Offset
	c.vp.Offset = offset
	c.mu.Unlock()

	if changed {
		c.signal("scroll")
	}
	return changed
}

// JumpTo re-anchors the viewport at the given date (normalized to a
// calendar date) and resets the scroll offset.
func (c *Controller) JumpTo(date time.Time) bool {
	c.mu.Lock()
	next := model.Viewport{
		Anchor:     date,
		WindowDays: c.vp.WindowDays,
	}.Normalize()
	changed := !next.Anchor.Equal(c.vp.Anchor) || c.vp.Offset != 0
	c.vp = next
	c.mu.Unlock()

	if changed {
		c.signal("jump")
	}
	return changed
}

// SetWindow changes the window length in days (minimum one day).
func (c *Controller) SetWindow(days int) bool {
	c.mu.Lock()
	if days < 1 {
		days = 1
	}
	changed := days != c.vp.WindowDays
	c.vp.WindowDays = days
	c.mu.Unlock()

	if changed {
		c.signal("resize")
	}
	return changed
}

func (c *Controller) signal(kind string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Signal{Source: bus.SourceViewport, Kind: kind})
}
