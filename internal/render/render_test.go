package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/config"
	"taskdeck/internal/model"
	"taskdeck/internal/schedule"
	"taskdeck/internal/weather"
)

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func fixtureIndex(t *testing.T) (*schedule.Index, model.Viewport) {
	t.Helper()

	events := []model.Event{
		{ID: "e1", Title: "stand-up", Start: utc(2024, 1, 1, 9, 0),
			Recurrence: model.Recurrence{Kind: model.RecurDaily}, Category: 2},
		{ID: "e2", Title: "dentist", Start: utc(2024, 3, 12, 14, 30), Category: 5},
	}
	vp := model.Viewport{Anchor: utc(2024, 3, 10, 0, 0), WindowDays: 7}

	idx, err := schedule.Recompute(events, vp, schedule.Options{Location: time.UTC, MarginDays: 0})
	require.NoError(t, err)
	return idx, vp
}

func fixtureSnapshot(stale bool) weather.Snapshot {
	return weather.Snapshot{
		FetchedAt: utc(2024, 3, 10, 6, 0),
		Days: []weather.DayForecast{
			{Date: utc(2024, 3, 10, 0, 0), SymbolCode: "clearsky_day", MinTemp: 2, MaxTemp: 11},
			{Date: utc(2024, 3, 11, 0, 0), SymbolCode: "rain", MinTemp: 4, MaxTemp: 9},
			{Date: utc(2024, 3, 12, 0, 0), SymbolCode: "cloudy", MinTemp: 3, MaxTemp: 8},
		},
		Stale: stale,
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ThreeDayWeather = true
	cfg.HighlightCategories = []int{5}
	cfg.Background = "alps.png"
	cfg.Normalize()
	return cfg
}

func TestRenderFrameContents(t *testing.T) {
	idx, vp := fixtureIndex(t)
	now := utc(2024, 3, 12, 10, 0)

	frame := Render(idx, vp, fixtureSnapshot(false), testConfig(), now)

	require.Len(t, frame.Days, 7)
	assert.Equal(t, utc(2024, 3, 10, 0, 0), frame.Days[0].Date)
	assert.False(t, frame.Days[0].Today)
	assert.True(t, frame.Days[2].Today)

	// Every day carries the daily event; the 12th also has the dentist.
	require.Len(t, frame.Days[2].Lines, 2)
	assert.Equal(t, "stand-up", frame.Days[2].Lines[0].Title)
	assert.Equal(t, "09:00", frame.Days[2].Lines[0].TimeLabel)
	assert.Equal(t, 2, frame.Days[2].Lines[0].ColorSlot)
	assert.Equal(t, "dentist", frame.Days[2].Lines[1].Title)
	assert.True(t, frame.Days[2].Lines[1].Highlight)

	require.Len(t, frame.Weather, 3)
	assert.Equal(t, "clearsky_day", frame.Weather[0].Symbol)
	assert.False(t, frame.WeatherStale)

	assert.Equal(t, "images/alps.png", frame.BackgroundPath)
	assert.Equal(t, time.Monday, frame.WeekStart)
}

func TestRenderIsDeterministic(t *testing.T) {
	idx, vp := fixtureIndex(t)
	now := utc(2024, 3, 12, 10, 0)
	cfg := testConfig()
	snap := fixtureSnapshot(false)

	f1 := Render(idx, vp, snap, cfg, now)
	f2 := Render(idx, vp, snap, cfg, now)
	assert.Equal(t, f1, f2)
}

func TestRenderStaleWeather(t *testing.T) {
	idx, vp := fixtureIndex(t)
	frame := Render(idx, vp, fixtureSnapshot(true), testConfig(), utc(2024, 3, 12, 10, 0))

	assert.True(t, frame.WeatherStale)
	// Stale data is still shown, only flagged.
	assert.Len(t, frame.Weather, 3)

	var buf bytes.Buffer
	require.NoError(t, frame.WriteText(&buf))
	assert.Contains(t, buf.String(), "(stale)")
}

func TestRenderSingleDayWeatherLimit(t *testing.T) {
	idx, vp := fixtureIndex(t)
	cfg := testConfig()
	cfg.ThreeDayWeather = false

	frame := Render(idx, vp, fixtureSnapshot(false), cfg, utc(2024, 3, 12, 10, 0))
	assert.Len(t, frame.Weather, 1)
}

func TestRenderMultiDayContinuation(t *testing.T) {
	end := utc(2024, 3, 13, 12, 0)
	events := []model.Event{
		{ID: "trip", Title: "trip", Start: utc(2024, 3, 11, 22, 0), End: &end},
	}
	vp := model.Viewport{Anchor: utc(2024, 3, 10, 0, 0), WindowDays: 7}
	idx, err := schedule.Recompute(events, vp, schedule.Options{Location: time.UTC, MarginDays: 0})
	require.NoError(t, err)

	frame := Render(idx, vp, weather.Snapshot{Stale: true}, testConfig(), utc(2024, 3, 10, 8, 0))

	require.Len(t, frame.Days[1].Lines, 1)
	assert.False(t, frame.Days[1].Lines[0].Continued)
	assert.Equal(t, "22:00", frame.Days[1].Lines[0].TimeLabel)

	require.Len(t, frame.Days[2].Lines, 1)
	assert.True(t, frame.Days[2].Lines[0].Continued)
	assert.Equal(t, "all day", frame.Days[2].Lines[0].TimeLabel)
}

func TestWriteText(t *testing.T) {
	idx, vp := fixtureIndex(t)
	frame := Render(idx, vp, fixtureSnapshot(false), testConfig(), utc(2024, 3, 12, 10, 0))

	var buf bytes.Buffer
	require.NoError(t, frame.WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "* 2024-03-12")
	assert.Contains(t, out, "stand-up")
	assert.Contains(t, out, "dentist")
	assert.Contains(t, out, "clearsky_day")
}
