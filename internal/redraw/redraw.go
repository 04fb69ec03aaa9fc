package redraw

import (
	"context"
	"time"

	"taskdeck/internal/bus"
	"taskdeck/internal/clock"
	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
)

// State is the scheduler's coordination state.
type State int

const (
	// StateIdle: no pending redraw, the loop is parked on its signal
	// channel and at most one armed timer. No polling happens here.
	StateIdle State = iota
	// StateDirty: at least one signal or timer wake is pending.
	StateDirty
	// StateRendering: a frame is in progress; further signals fold into
	// the next batch.
	StateRendering
)

// Batch describes one coalesced redraw pass: which kinds of dirt
// accumulated since the previous frame.
type Batch struct {
	// ModelDirty is set when the event store or the viewport changed;
	// the render callback must recompute the schedule index.
	ModelDirty bool
	// WeatherDirty is set when a fresh weather snapshot arrived or the
	// weather-refresh deadline passed (staleness display update).
	WeatherDirty bool
	// Rollover is set when the wall-clock date advanced.
	Rollover bool
	// Signals counts the raw signals folded into this batch.
	Signals int
}

func (b Batch) any() bool {
	return b.ModelDirty || b.WeatherDirty || b.Rollover || b.Signals > 0
}

// RenderFunc produces one frame. It runs on the scheduler goroutine,
// which is the sole owner of render-path state.
type RenderFunc func(batch Batch)

// Options configures a Scheduler.
type Options struct {
	// Location is the timezone whose midnight defines day rollover.
	// Nil means time.Local.
	Location *time.Location

	// WeatherNext, when non-nil, returns the next weather-refresh
	// deadline after now; the scheduler arms a wake for it so the
	// staleness display updates even when the fetch fails silently.
	WeatherNext func(now time.Time) time.Time

	// Heartbeat, when positive, guarantees a redraw at least this
	// often (e.g. for a visible clock). Zero disables it.
	Heartbeat time.Duration

	// Debounce is how long a wake collects further signals before the
	// render pass starts. Rapid successive edits fold into one frame.
	Debounce time.Duration

	// OnRollover, when non-nil, runs before the render pass of a batch
	// containing a day rollover (e.g. to re-anchor the viewport on the
	// new date). Signals it raises fold into the same batch.
	OnRollover func(now time.Time)

	Clock clock.Clock
}

// Scheduler is the redraw coordination core: an Idle/Dirty/Rendering
// state machine that sleeps until a dirty signal arrives or an armed
// timer (day rollover, weather deadline, heartbeat) fires, then runs
// exactly one render pass per coalesced batch.
type Scheduler struct {
	render RenderFunc
	loc    *time.Location
	clk    clock.Clock

	weatherNext func(time.Time) time.Time
	heartbeat   time.Duration
	debounce    time.Duration
	onRollover  func(time.Time)

	signals chan bus.Signal

	// Loop-owned state; only touched by the scheduler goroutine (or by
	// a test driving the machine synchronously).
	state        State
	pending      Batch
	nextRollover time.Time
	nextWeather  time.Time
	renderCount  int
}

// New creates a Scheduler that will call render for every batch.
func New(render RenderFunc, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.SystemClock{}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	s := &Scheduler{
		render:      render,
		loc:         opts.Location,
		clk:         opts.Clock,
		weatherNext: opts.WeatherNext,
		heartbeat:   opts.Heartbeat,
		debounce:    opts.Debounce,
		onRollover:  opts.OnRollover,
		signals:     make(chan bus.Signal, 64),
	}
	now := s.clk.Now().In(s.loc)
	s.nextRollover = model.Day(now).AddDate(0, 0, 1)
	if s.weatherNext != nil {
		s.nextWeather = s.weatherNext(now)
	}
	return s
}

// Enqueue delivers a dirty signal to the scheduler. Safe from any
// goroutine and never blocks the publisher; if the queue is full the
// signal is dropped, which is harmless because a full queue already
// guarantees a pending render pass that will read current state.
func (s *Scheduler) Enqueue(sig bus.Signal) {
	select {
	case s.signals <- sig:
	default:
	}
}

// Attach subscribes the scheduler to a signal bus and returns the
// unsubscribe function.
func (s *Scheduler) Attach(b *bus.Bus) func() {
	return b.Subscribe(s.Enqueue)
}

// State returns the current coordination state.
func (s *Scheduler) State() State { return s.state }

// RenderCount returns the number of completed render passes.
func (s *Scheduler) RenderCount() int { return s.renderCount }

// NextWake returns the earliest armed wake time after now. The day
// rollover is always armed (a redraw per calendar-day rollover is
// guaranteed even under zero interaction), so there is always a wake;
// between wakes the loop is fully parked.
func (s *Scheduler) NextWake(now time.Time) time.Time {
	now = now.In(s.loc)

	wake := s.nextRollover
	if s.weatherNext != nil && s.nextWeather.Before(wake) {
		wake = s.nextWeather
	}
	if s.heartbeat > 0 {
		if hb := now.Add(s.heartbeat); hb.Before(wake) {
			wake = hb
		}
	}
	return wake
}

// noteSignal folds a single dirty signal into the pending batch.
func (s *Scheduler) noteSignal(sig bus.Signal) {
	if s.state == StateIdle {
		s.state = StateDirty
	}
	s.pending.Signals++
	switch sig.Source {
	case bus.SourceStore, bus.SourceViewport:
		s.pending.ModelDirty = true
	case bus.SourceWeather:
		s.pending.WeatherDirty = true
	}
}

// noteWake folds an elapsed timer into the pending batch. Deadlines are
// checked against the current wall clock rather than an elapsed-time
// counter, so a sleep/resume gap cannot skip a rollover: whatever date
// it is now, the next rollover is recomputed from it.
func (s *Scheduler) noteWake(now time.Time) {
	now = now.In(s.loc)

	woke := false
	if !now.Before(s.nextRollover) {
		s.pending.Rollover = true
		s.pending.ModelDirty = true
		woke = true
	}
	s.nextRollover = model.Day(now).AddDate(0, 0, 1)

	if s.weatherNext != nil {
		if !now.Before(s.nextWeather) {
			s.pending.WeatherDirty = true
			woke = true
		}
		s.nextWeather = s.weatherNext(now)
	}

	if s.heartbeat > 0 && !woke {
		// Pure heartbeat wake: redraw with nothing else dirty.
		s.pending.Signals++
	}

	if s.state == StateIdle && s.pending.any() {
		s.state = StateDirty
	}
}

// flush runs one render pass if anything is pending, returning whether
// a frame was produced. At most one render happens per call regardless
// of how many signals were folded in.
func (s *Scheduler) flush() bool {
	if !s.pending.any() {
		s.state = StateIdle
		return false
	}

	batch := s.pending
	s.pending = Batch{}
	s.state = StateRendering

	s.render(batch)

	s.renderCount++
	s.state = StateIdle
	return true
}

// drainQueued folds every already-queued signal into the pending batch
// without blocking.
func (s *Scheduler) drainQueued() {
	for {
		select {
		case sig := <-s.signals:
			s.noteSignal(sig)
		default:
			return
		}
	}
}

// Run owns the redraw loop until the context is canceled. While idle it
// is parked in select with no periodic polling; it wakes for a signal
// or the single armed timer, debounces briefly to coalesce bursts, then
// renders once and re-arms.
func (s *Scheduler) Run(ctx context.Context) {
	appLog.Info("redraw scheduler started")

	for {
		now := s.clk.Now()
		wake := s.NextWake(now)
		d := wake.Sub(now)
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)

		select {
		case <-ctx.Done():
			timer.Stop()
			appLog.Info("redraw scheduler stopped", "renders", s.renderCount)
			return
		case sig := <-s.signals:
			s.noteSignal(sig)
		case <-timer.C:
			s.noteWake(s.clk.Now())
		}
		timer.Stop()

		// Debounce: keep folding signals for a short window so rapid
		// successive edits produce a single frame.
		if s.debounce > 0 {
			deadline := time.NewTimer(s.debounce)
		debounce:
			for {
				select {
				case sig := <-s.signals:
					s.noteSignal(sig)
				case <-deadline.C:
					break debounce
				case <-ctx.Done():
					deadline.Stop()
					return
				}
			}
		}
		s.drainQueued()

		// A rollover re-anchor happens inside the same batch so the
		// resulting viewport signal does not cost a second frame.
		if s.pending.Rollover && s.onRollover != nil {
			s.onRollover(s.clk.Now())
			s.drainQueued()
		}

		s.flush()
	}
}
