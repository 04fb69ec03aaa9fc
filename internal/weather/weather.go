package weather

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"taskdeck/internal/bus"
	"taskdeck/internal/clock"
	appLog "taskdeck/internal/log"
)

// HourForecast is one hourly forecast point.
type HourForecast struct {
	Time time.Time
	Temp float64
	Code int
	Day  bool
}

// DayForecast is the per-day reduction shown on the calendar surface.
type DayForecast struct {
	Date       time.Time
	SymbolCode string
	MinTemp    float64
	MaxTemp    float64
}

// Snapshot is the best-known forecast data. Once a snapshot exists it
// is only ever replaced by a newer successful fetch, never discarded;
// past its deadline it is served with Stale set.
type Snapshot struct {
	FetchedAt  time.Time
	StaleAfter time.Time
	Days       []DayForecast
	Hours      []HourForecast

	// Stale is computed at read time by CurrentSnapshot.
	Stale bool
}

const defaultMaxRetries = 3

// Cache periodically refreshes forecast data in the background and
// serves the last good snapshot without ever blocking the caller.
type Cache struct {
	fetcher  *Fetcher
	bus      *bus.Bus
	schedule cron.Schedule
	clk      clock.Clock

	maxRetries uint64

	mu      sync.RWMutex
	snap    Snapshot
	hasData bool

	// gen identifies the newest refresh; an older in-flight refresh
	// whose generation no longer matches discards its result.
	gen atomic.Uint64
}

// NewCache creates a Cache refreshing on the given cron schedule.
func NewCache(fetcher *Fetcher, sched cron.Schedule, b *bus.Bus, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Cache{
		fetcher:    fetcher,
		bus:        b,
		schedule:   sched,
		clk:        clk,
		maxRetries: defaultMaxRetries,
	}
}

// SetMaxRetries bounds the per-refresh backoff retries.
func (c *Cache) SetMaxRetries(n uint64) { c.maxRetries = n }

// CurrentSnapshot returns the best-known snapshot. It never blocks and
// never fails; before the first successful fetch it returns an empty,
// stale snapshot.
func (c *Cache) CurrentSnapshot() Snapshot {
	c.mu.RLock()
	snap := c.snap
	hasData := c.hasData
	c.mu.RUnlock()

	now := c.clk.Now()
	snap.Stale = !hasData || now.After(snap.StaleAfter)
	return snap
}

// NextRefresh returns the next scheduled refresh time after now. Used
// by the redraw scheduler to arm its weather wake.
func (c *Cache) NextRefresh(now time.Time) time.Time {
	return c.schedule.Next(now)
}

// Refresh performs one fetch with bounded exponential backoff. On
// success the snapshot is swapped and a dirty signal published; on
// exhausted retries the existing snapshot is kept untouched. A refresh
// that was superseded by a newer one discards its result.
func (c *Cache) Refresh(ctx context.Context) {
	gen := c.gen.Add(1)

	var hours []HourForecast
	var days []DayForecast

	op := func() error {
		var err error
		hours, days, err = c.fetcher.Fetch(ctx)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		appLog.Error("weather refresh failed, keeping previous snapshot", err)
		return
	}

	if c.gen.Load() != gen {
		appLog.Debug("weather refresh superseded, discarding result")
		return
	}

	now := c.clk.Now()
	c.mu.Lock()
	c.snap = Snapshot{
		FetchedAt:  now,
		StaleAfter: c.schedule.Next(now),
		Days:       days,
		Hours:      hours,
	}
	c.hasData = true
	c.mu.Unlock()

	appLog.Info("weather refreshed", "days", len(days), "hours", len(hours))
	if c.bus != nil {
		c.bus.Publish(bus.Signal{Source: bus.SourceWeather, Kind: "refresh"})
	}
}

// Run refreshes immediately and then on every schedule tick until the
// context is canceled. Intended to run on its own goroutine; results
// reach the render path only through the snapshot swap and the dirty
// signal.
func (c *Cache) Run(ctx context.Context) {
	c.Refresh(ctx)

	for {
		next := c.schedule.Next(c.clk.Now())
		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.Refresh(ctx)
		}
	}
}
