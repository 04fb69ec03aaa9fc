package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskdeck/internal/bus"
	"taskdeck/internal/config"
	"taskdeck/internal/icsio"
	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
	"taskdeck/internal/redraw"
	"taskdeck/internal/render"
	"taskdeck/internal/schedule"
	"taskdeck/internal/store"
	"taskdeck/internal/view"
	"taskdeck/internal/weather"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	dataDir    string
	importPath string
	once       bool
	dump       bool
	debug      bool
}

func main() {
	appLog.Info("taskdeck starting", "version", "0.1.0-dev")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI -data-dir overrides the config file location if provided.
	if flags.dataDir != "" {
		conf.DataDir = flags.dataDir
	}

	if err := conf.EnsureDirs(); err != nil {
		appLog.Error("startup directory check failed", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"data_dir", conf.DataDir,
		"images_dir", conf.ImagesDir,
		"timezone", conf.Timezone,
		"window_days", conf.WindowDays,
		"weather_refresh", conf.WeatherRefresh,
		"three_day_weather", conf.ThreeDayWeather,
		"backgrounds", len(conf.BackgroundOptions()),
		"once", flags.once,
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	signals := bus.New()

	st, err := store.Open(conf.DataDir, signals)
	if err != nil {
		appLog.Error("failed to open event store", err, "data_dir", conf.DataDir)
		os.Exit(1)
	}

	if flags.importPath != "" {
		if err := runImport(ctx, st, flags.importPath); err != nil {
			appLog.Error("ics import failed", err, "path", flags.importPath)
			os.Exit(1)
		}
		return
	}

	loc := conf.Location()
	now := time.Now().In(loc)

	viewport := view.NewController(now, conf.WindowDays, signals)

	refreshSched, err := conf.RefreshSchedule()
	if err != nil {
		appLog.Error("invalid weather refresh schedule", err, "schedule", conf.WeatherRefresh)
		os.Exit(1)
	}
	fetcher := weather.NewFetcher(conf.Coordinates[0], conf.Coordinates[1], conf.ThreeDayWeather)
	cache := weather.NewCache(fetcher, refreshSched, signals, nil)

	frames := newFramePipeline(st, viewport, cache, conf, loc, flags.dump)

	if flags.once {
		// Single-shot: one weather attempt, one recompute+render, exit.
		fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
		cache.Refresh(fetchCtx)
		fetchCancel()

		frames.renderPass(redraw.Batch{ModelDirty: true, WeatherDirty: true, Signals: 1})
		return
	}

	scheduler := redraw.New(frames.renderPass, redraw.Options{
		Location:    loc,
		WeatherNext: cache.NextRefresh,
		OnRollover: func(now time.Time) {
			viewport.JumpTo(now)
		},
	})
	unsubscribe := scheduler.Attach(signals)
	defer unsubscribe()

	go cache.Run(ctx)

	// First frame: mark the model dirty so the loop renders immediately.
	signals.Publish(bus.Signal{Source: bus.SourceViewport, Kind: "startup"})

	// The scheduler loop owns all render-path state until shutdown.
	scheduler.Run(ctx)

	appLog.Info("taskdeck exiting")
}

// framePipeline holds the render-path state owned by the scheduler
// goroutine: the cached event list and the current schedule index.
type framePipeline struct {
	store    *store.Store
	viewport *view.Controller
	cache    *weather.Cache
	conf     *config.Config
	loc      *time.Location
	dump     bool

	events []model.Event
	index  *schedule.Index
	loaded bool
}

func newFramePipeline(st *store.Store, vc *view.Controller, cache *weather.Cache, conf *config.Config, loc *time.Location, dump bool) *framePipeline {
	return &framePipeline{
		store:    st,
		viewport: vc,
		cache:    cache,
		conf:     conf,
		loc:      loc,
		dump:     dump,
	}
}

// renderPass runs one coalesced redraw: reload + recompute when the
// model changed, then produce a frame from current state.
func (p *framePipeline) renderPass(batch redraw.Batch) {
	if batch.ModelDirty || !p.loaded {
		events, err := p.store.LoadAll(context.Background())
		if err != nil {
			// Mid-run load failure: warn and keep rendering the last
			// known events; the next mutation retries the load.
			appLog.Error("event reload failed, rendering previous state", err)
		} else {
			p.events = events
			p.loaded = true
		}

		idx, err := schedule.Recompute(p.events, p.viewport.CurrentWindow(), schedule.Options{
			Location:   p.loc,
			MarginDays: schedule.DefaultMarginDays,
		})
		if err != nil {
			appLog.Error("schedule recompute failed", err)
			return
		}
		p.index = idx
	}

	if p.index == nil {
		return
	}

	vp := p.viewport.CurrentWindow()
	frame := render.Render(p.index, vp, p.cache.CurrentSnapshot(), p.conf, time.Now().In(p.loc))

	if p.dump {
		if err := frame.WriteText(os.Stdout); err != nil {
			appLog.Error("frame dump failed", err)
		}
	}

	appLog.Debug("frame produced",
		"days", len(frame.Days),
		"weather_cells", len(frame.Weather),
		"weather_stale", frame.WeatherStale,
		"model_dirty", batch.ModelDirty,
		"rollover", batch.Rollover,
	)
}

func runImport(ctx context.Context, st *store.Store, path string) error {
	res, err := icsio.ImportFile(path)
	if err != nil {
		return err
	}

	created := 0
	for _, ev := range res.Events {
		if _, err := st.Create(ctx, ev); err != nil {
			appLog.Error("skipping unimportable event", err, "title", ev.Title)
			continue
		}
		created++
	}

	fmt.Printf("imported %d event(s), skipped %d\n", created, res.Skipped)
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "taskdeck_data/userconfig.yaml", "Path to config file")
	flag.StringVar(&cfg.dataDir, "data-dir", "", "Event data directory (overrides config if set)")
	flag.StringVar(&cfg.importPath, "import", "", "Import events from an .ics file and exit")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+recompute+render cycle and exit")
	flag.BoolVar(&cfg.dump, "dump", false, "Dump rendered frames as text to stdout")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
