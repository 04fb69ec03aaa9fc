package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration. It doubles as the
// Settings value handed to the renderer and weather cache; nothing reads
// configuration from ambient state.
type Config struct {
	// DataDir is the directory holding event records and the archive.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// ImagesDir is the directory of user-supplied background images.
	ImagesDir string `yaml:"images_dir" json:"images_dir"`

	// Background is the filename (within ImagesDir) of the active
	// background image. Empty means no background.
	Background string `yaml:"background" json:"background"`

	// BackgroundTintPercent darkens the background image, 0..100.
	BackgroundTintPercent int `yaml:"background_tint_percent" json:"background_tint_percent"`

	// Timezone is the IANA timezone used as the display zone. Empty
	// means the system local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of
	// the week. Supported values: "monday" (default), "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// WindowDays is the default visible window length in days.
	WindowDays int `yaml:"window_days" json:"window_days"`

	// Coordinates is the [latitude, longitude] pair for weather fetches.
	Coordinates [2]float64 `yaml:"coordinates" json:"coordinates"`

	// WeatherRefresh is a cron-style schedule string (e.g. "*/10 * * * *")
	// controlling periodic weather refresh.
	WeatherRefresh string `yaml:"weather_refresh" json:"weather_refresh"`

	// ThreeDayWeather toggles the three-day forecast strip (vs. today only).
	ThreeDayWeather bool `yaml:"three_day_weather" json:"three_day_weather"`

	// ColorschemeID selects the active colorscheme slot.
	ColorschemeID int `yaml:"colorscheme_id" json:"colorscheme_id"`

	// HighlightCategories lists category tags rendered highlighted.
	HighlightCategories []int `yaml:"highlight_categories" json:"highlight_categories"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:               "taskdeck_data",
		ImagesDir:             "images",
		Background:            "",
		BackgroundTintPercent: 0,
		Timezone:              "",
		WeekStart:             "monday",
		WindowDays:            28,
		Coordinates:           [2]float64{0, 0},
		WeatherRefresh:        "*/10 * * * *",
		ThreeDayWeather:       true,
		ColorschemeID:         0,
		HighlightCategories:   []int{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.DataDir == "" {
		c.DataDir = "taskdeck_data"
	}
	if c.ImagesDir == "" {
		c.ImagesDir = "images"
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	case "":
		c.WeekStart = "monday"
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.WindowDays < 1 {
		c.WindowDays = 28
	}
	if c.BackgroundTintPercent < 0 {
		c.BackgroundTintPercent = 0
	}
	if c.BackgroundTintPercent > 100 {
		c.BackgroundTintPercent = 100
	}
	if c.WeatherRefresh == "" {
		c.WeatherRefresh = "*/10 * * * *"
	}
	if _, err := cron.ParseStandard(c.WeatherRefresh); err != nil {
		c.WeatherRefresh = "*/10 * * * *"
	}
	if c.HighlightCategories == nil {
		c.HighlightCategories = []int{}
	}
}

// RefreshSchedule parses the weather refresh cron expression. Normalize
// guarantees the stored string is parseable.
func (c *Config) RefreshSchedule() (cron.Schedule, error) {
	return cron.ParseStandard(c.WeatherRefresh)
}

// EnsureDirs makes sure the data and images directories exist, creating
// them when absent. A directory that can neither be found nor created is
// a fatal startup condition and is reported with its path.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.ImagesDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("required directory %q is not usable: %w", dir, err)
		}
	}
	return nil
}

// BackgroundOptions lists the image filenames available in ImagesDir,
// sorted. A missing or unreadable directory yields an empty list rather
// than an error; background images are optional.
func (c *Config) BackgroundOptions() []string {
	entries, err := os.ReadDir(c.ImagesDir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".taskdeck-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Location resolves the configured display timezone, falling back to the
// system local zone when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
