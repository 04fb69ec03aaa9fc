package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	appLog "taskdeck/internal/log"
)

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// NetworkError reports a failed weather fetch. It is absorbed inside
// the cache; the renderer only ever observes staleness.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("weather fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Fetcher retrieves forecast data from the open-meteo endpoint for a
// fixed coordinate pair. The wire format is treated as opaque beyond
// the fields the cache needs.
type Fetcher struct {
	client  *http.Client
	baseURL string

	lat, lon     float64
	forecastDays int
}

// NewFetcher creates a Fetcher for the given coordinates.
func NewFetcher(lat, lon float64, threeDay bool) *Fetcher {
	days := 1
	if threeDay {
		days = 3
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:      defaultBaseURL,
		lat:          lat,
		lon:          lon,
		forecastDays: days,
	}
}

// SetBaseURL overrides the provider endpoint (tests, proxies).
func (f *Fetcher) SetBaseURL(u string) { f.baseURL = u }

// SetCoordinates updates the fetch coordinates; takes effect on the
// next fetch.
func (f *Fetcher) SetCoordinates(lat, lon float64) {
	f.lat, f.lon = lat, lon
}

// apiResponse mirrors the subset of the provider response we consume.
type apiResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature2M []float64 `json:"temperature_2m"`
		WeatherCode   []int     `json:"weather_code"`
		IsDay         []int     `json:"is_day"`
	} `json:"hourly"`
}

// Fetch performs one forecast request and folds the hourly series into
// per-day entries.
func (f *Fetcher) Fetch(ctx context.Context) ([]HourForecast, []DayForecast, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", f.lat))
	q.Set("longitude", fmt.Sprintf("%.4f", f.lon))
	q.Set("hourly", "temperature_2m,weather_code,is_day")
	q.Set("timezone", "auto")
	q.Set("forecast_days", fmt.Sprintf("%d", f.forecastDays))
	full := f.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, nil, &NetworkError{URL: f.baseURL, Err: err}
	}
	req.Header.Set("User-Agent", "taskdeck-weather")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &NetworkError{URL: f.baseURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &NetworkError{URL: f.baseURL, Err: fmt.Errorf("status %s", resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &NetworkError{URL: f.baseURL, Err: err}
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, &NetworkError{URL: f.baseURL, Err: err}
	}

	hours := make([]HourForecast, 0, len(parsed.Hourly.Time))
	for i, ts := range parsed.Hourly.Time {
		// Provider local time, e.g. "2024-03-10T14:00".
		t, perr := time.ParseInLocation("2006-01-02T15:04", ts, time.Local)
		if perr != nil {
			appLog.Debug("weather: skipping unparseable hour", "value", ts)
			continue
		}
		h := HourForecast{Time: t}
		if i < len(parsed.Hourly.Temperature2M) {
			h.Temp = parsed.Hourly.Temperature2M[i]
		}
		if i < len(parsed.Hourly.WeatherCode) {
			h.Code = parsed.Hourly.WeatherCode[i]
		}
		if i < len(parsed.Hourly.IsDay) {
			h.Day = parsed.Hourly.IsDay[i] != 0
		}
		hours = append(hours, h)
	}

	return hours, foldDays(hours), nil
}

// foldDays reduces the hourly series to one entry per date with the
// temperature range and a representative midday symbol.
func foldDays(hours []HourForecast) []DayForecast {
	type agg struct {
		min, max float64
		code     int
		codeDay  bool
		codeHour int
		seen     bool
	}
	byDate := make(map[string]*agg)
	var order []string

	for _, h := range hours {
		key := h.Time.Format("2006-01-02")
		a, ok := byDate[key]
		if !ok {
			a = &agg{codeHour: -1}
			byDate[key] = a
			order = append(order, key)
		}
		if !a.seen || h.Temp < a.min {
			a.min = h.Temp
		}
		if !a.seen || h.Temp > a.max {
			a.max = h.Temp
		}
		a.seen = true

		// Prefer the hour closest to midday as the day's symbol.
		dist := h.Time.Hour() - 12
		if dist < 0 {
			dist = -dist
		}
		best := a.codeHour
		if best < 0 || dist < best {
			a.codeHour = dist
			a.code = h.Code
			a.codeDay = h.Day
		}
	}

	sort.Strings(order)
	out := make([]DayForecast, 0, len(order))
	for _, key := range order {
		a := byDate[key]
		date, _ := time.ParseInLocation("2006-01-02", key, time.Local)
		out = append(out, DayForecast{
			Date:       date,
			SymbolCode: SymbolForCode(a.code, a.codeDay),
			MinTemp:    a.min,
			MaxTemp:    a.max,
		})
	}
	return out
}
