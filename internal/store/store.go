package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/bus"
	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
)

const recordExt = ".json"

// Store is the durable event repository: one JSON record file per event
// inside a data directory. It is the sole owner of Event records; every
// mutation persists atomically before returning and raises a dirty
// signal afterwards.
type Store struct {
	dir string
	bus *bus.Bus

	// mu serializes mutations so the backing directory never sees two
	// concurrent writers.
	mu sync.Mutex
}

// Open opens (creating if necessary) the store at dir. A directory that
// can neither be found nor created yields an IOError, which callers
// should treat as fatal at startup.
func Open(dir string, b *bus.Bus) (*Store, error) {
	if dir == "" {
		return nil, &IOError{Op: "open", Path: dir, Err: os.ErrInvalid}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &IOError{Op: "open", Path: dir, Err: err}
	}
	return &Store{dir: dir, bus: b}, nil
}

// Dir returns the backing directory path.
func (s *Store) Dir() string { return s.dir }

// Create validates ev, assigns an ID when absent, persists the record
// and publishes a dirty signal. The stored event is returned.
func (s *Store) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, &ValidationError{ID: ev.ID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Created.IsZero() {
		ev.Created = time.Now()
	}

	if err := s.writeRecord(ev); err != nil {
		return model.Event{}, err
	}

	appLog.Debug("event created", "id", ev.ID, "title", ev.Title)
	s.signal("create")
	return ev, nil
}

// Patch describes a partial update to an event. Nil fields are left
// unchanged; ClearEnd removes an explicit end time.
type Patch struct {
	Title           *string
	Start           *time.Time
	End             *time.Time
	ClearEnd        bool
	DurationMinutes *int
	Recurrence      *model.Recurrence
	Category        *int
	Completed       *bool
}

func (p Patch) apply(ev model.Event) model.Event {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.ClearEnd {
		ev.End = nil
	} else if p.End != nil {
		end := *p.End
		ev.End = &end
	}
	if p.DurationMinutes != nil {
		ev.DurationMinutes = *p.DurationMinutes
	}
	if p.Recurrence != nil {
		ev.Recurrence = *p.Recurrence
	}
	if p.Category != nil {
		ev.Category = *p.Category
	}
	if p.Completed != nil {
		ev.Completed = *p.Completed
	}
	return ev
}

// Update applies patch to the event with the given ID, validates the
// result, rewrites the record atomically and publishes a dirty signal.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.readRecord(id)
	if err != nil {
		return model.Event{}, err
	}

	updated := patch.apply(ev)
	updated.ID = ev.ID // identity is stable across edits

	if err := updated.Validate(); err != nil {
		return model.Event{}, &ValidationError{ID: id, Err: err}
	}

	if err := s.writeRecord(updated); err != nil {
		return model.Event{}, err
	}

	appLog.Debug("event updated", "id", id)
	s.signal("update")
	return updated, nil
}

// Delete removes the record file for the given ID and publishes a dirty
// signal.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.recordPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return &IOError{Op: "delete", Path: path, Err: err}
	}

	appLog.Debug("event deleted", "id", id)
	s.signal("delete")
	return nil
}

// Get returns a single event by ID.
func (s *Store) Get(ctx context.Context, id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(id)
}

// LoadAll reads every record in the store. Individually malformed
// records are skipped and logged; only an unreadable directory fails
// the whole load.
func (s *Store) LoadAll(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &IOError{Op: "load", Path: s.dir, Err: err}
	}

	events := make([]model.Event, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}

		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			appLog.Error("skipping unreadable event record", err, "path", path)
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			appLog.Error("skipping malformed event record", err, "path", path)
			continue
		}
		if err := ev.Validate(); err != nil {
			appLog.Error("skipping invalid event record",
				&ValidationError{ID: ev.ID, Err: err}, "path", path)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

// recordPath maps an event ID to its record file, rejecting IDs that
// would escape the data directory.
func (s *Store) recordPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id != filepath.Base(id) {
		return "", &ValidationError{ID: id, Err: os.ErrInvalid}
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

func (s *Store) readRecord(id string) (model.Event, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return model.Event{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, &IOError{Op: "read", Path: path, Err: err}
	}
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Event{}, &ValidationError{ID: id, Err: err}
	}
	return ev, nil
}

// writeRecord persists one event atomically: temp file in the same
// directory, fsync, then rename over the final path. A concurrent
// reader only ever observes the previous or the new complete record.
func (s *Store) writeRecord(ev model.Event) error {
	path, err := s.recordPath(ev.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(&ev, "", "  ")
	if err != nil {
		return &ValidationError{ID: ev.ID, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".taskdeck-event-*.tmp")
	if err != nil {
		return &IOError{Op: "write", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func (s *Store) signal(kind string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Signal{Source: bus.SourceStore, Kind: kind})
}
