package bus

import (
	"fmt"
	"sync"
	"time"

	appLog "taskdeck/internal/log"
)

// Source identifies which component raised a dirty signal.
type Source string

const (
	SourceStore    Source = "store"
	SourceViewport Source = "viewport"
	SourceWeather  Source = "weather"
	SourceTimer    Source = "timer"
)

// Signal is a dirty notification: some model state changed and a redraw
// may be required. Signals carry no payload beyond their origin; the
// redraw scheduler re-reads whatever it needs from the components.
type Signal struct {
	Source Source
	Kind   string
	At     time.Time
}

// Bus is a concurrency-safe synchronous dispatcher for dirty signals.
// Handlers run sequentially during Publish; they are expected to do no
// more than hand the signal off (the redraw scheduler enqueues it onto
// its own channel), so publishing from a mutation path stays cheap.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]func(Signal)
	nextID uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]func(Signal))}
}

// Subscribe registers a handler for all signals. It returns an
// unsubscribe function that removes the handler when called.
func (b *Bus) Subscribe(h func(Signal)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers the signal to every subscriber. Panics in handlers
// are recovered and logged so a broken subscriber cannot take down a
// mutation path.
func (b *Bus) Publish(sig Signal) {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}

	b.mu.RLock()
	handlers := make([]func(Signal), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					appLog.Error("signal handler panic",
						fmt.Errorf("panic: %v", r),
						"source", string(sig.Source), "kind", sig.Kind)
				}
			}()
			h(sig)
		}()
	}
}
