package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/bus"
	"taskdeck/internal/clock"
)

func forecastJSON(temp float64) string {
	return fmt.Sprintf(`{
		"hourly": {
			"time": ["2024-03-10T06:00", "2024-03-10T12:00", "2024-03-10T18:00", "2024-03-11T12:00"],
			"temperature_2m": [%.1f, %.1f, %.1f, %.1f],
			"weather_code": [3, 0, 61, 0],
			"is_day": [1, 1, 0, 1]
		}
	}`, temp-2, temp, temp-1, temp+1)
}

func testSchedule(t *testing.T) cron.Schedule {
	t.Helper()
	sched, err := cron.ParseStandard("*/10 * * * *")
	require.NoError(t, err)
	return sched
}

func newTestCache(t *testing.T, url string, clk clock.Clock) (*Cache, *int) {
	t.Helper()
	signals := bus.New()
	count := 0
	signals.Subscribe(func(bus.Signal) { count++ })

	fetcher := NewFetcher(52.52, 13.41, true)
	fetcher.SetBaseURL(url)

	cache := NewCache(fetcher, testSchedule(t), signals, clk)
	cache.SetMaxRetries(0)
	return cache, &count
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "52.5200", r.URL.Query().Get("latitude"))
		assert.Equal(t, "3", r.URL.Query().Get("forecast_days"))
		fmt.Fprint(w, forecastJSON(10))
	}))
	defer srv.Close()

	mock := clock.NewMock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	cache, signalCount := newTestCache(t, srv.URL, mock)

	cache.Refresh(context.Background())

	snap := cache.CurrentSnapshot()
	assert.False(t, snap.Stale)
	assert.Equal(t, mock.Now(), snap.FetchedAt)
	assert.Equal(t, 1, *signalCount)

	require.Len(t, snap.Days, 2)
	assert.Equal(t, 8.0, snap.Days[0].MinTemp)
	assert.Equal(t, 10.0, snap.Days[0].MaxTemp)
	// The midday hour (code 0, day) picks the clear-sky symbol.
	assert.Equal(t, "clearsky_day", snap.Days[0].SymbolCode)
	assert.Len(t, snap.Hours, 4)
}

func TestCurrentSnapshotBeforeFirstFetch(t *testing.T) {
	cache, _ := newTestCache(t, "http://127.0.0.1:0", clock.SystemClock{})

	snap := cache.CurrentSnapshot()
	assert.True(t, snap.Stale)
	assert.Empty(t, snap.Days)
}

func TestFailureKeepsPreviousSnapshot(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, forecastJSON(10))
	}))
	defer srv.Close()

	mock := clock.NewMock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	cache, signalCount := newTestCache(t, srv.URL, mock)

	cache.Refresh(context.Background())
	require.Equal(t, 1, *signalCount)
	good := cache.CurrentSnapshot()
	require.False(t, good.Stale)

	// Provider becomes permanently unreachable.
	fail.Store(true)
	cache.Refresh(context.Background())

	// No new signal, old data still served.
	assert.Equal(t, 1, *signalCount)
	snap := cache.CurrentSnapshot()
	assert.Equal(t, good.FetchedAt, snap.FetchedAt)
	assert.Equal(t, good.Days, snap.Days)

	// Past the deadline the same snapshot is served, flagged stale.
	mock.Advance(time.Hour)
	snap = cache.CurrentSnapshot()
	assert.True(t, snap.Stale)
	assert.Equal(t, good.Days, snap.Days)
}

func TestSupersededRefreshDiscardsResult(t *testing.T) {
	var requests atomic.Int32
	firstStarted := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n == 1 {
			close(firstStarted)
			<-release
			fmt.Fprint(w, forecastJSON(1))
			return
		}
		fmt.Fprint(w, forecastJSON(20))
	}))
	defer srv.Close()

	mock := clock.NewMock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	cache, signalCount := newTestCache(t, srv.URL, mock)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cache.Refresh(context.Background())
	}()

	<-firstStarted
	// A newer refresh starts and completes while the first is stuck.
	cache.Refresh(context.Background())
	require.Len(t, cache.CurrentSnapshot().Days, 2)
	newest := cache.CurrentSnapshot().Days[0].MaxTemp

	close(release)
	wg.Wait()

	// The older refresh finished last but its result was discarded.
	assert.Equal(t, newest, cache.CurrentSnapshot().Days[0].MaxTemp)
	assert.Equal(t, 20.0, newest)
	assert.Equal(t, 1, *signalCount)
}

func TestSymbolForCode(t *testing.T) {
	assert.Equal(t, "clearsky_day", SymbolForCode(0, true))
	assert.Equal(t, "clearsky_night", SymbolForCode(0, false))
	assert.Equal(t, "cloudy", SymbolForCode(3, true))
	assert.Equal(t, "fog", SymbolForCode(45, false))
	assert.Equal(t, "heavyrain", SymbolForCode(65, true))
	assert.Equal(t, "rainshowers_night", SymbolForCode(81, false))
	assert.Equal(t, "heavyrainandthunder", SymbolForCode(99, true))
	// Unknown codes degrade to a neutral symbol.
	assert.Equal(t, "cloudy", SymbolForCode(1234, true))
}

func TestNextRefreshFollowsSchedule(t *testing.T) {
	cache, _ := newTestCache(t, "http://127.0.0.1:0", clock.SystemClock{})

	now := time.Date(2024, 3, 10, 12, 3, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 10, 0, 0, time.UTC), cache.NextRefresh(now))
}
