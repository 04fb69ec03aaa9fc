package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	appLog "taskdeck/internal/log"
	"taskdeck/internal/model"
)

const archiveFile = "archived.jsonl"

// ArchivedEvent is a completed event moved out of the live store, with
// the time it was archived.
type ArchivedEvent struct {
	model.Event
	ArchivedAt time.Time `json:"archived_at"`
}

// Complete marks the event with the given ID as done: the record is
// appended to the archive log, removed from the live store, and a dirty
// signal is published. The archive append happens first so a crash
// between the two steps duplicates rather than loses the event.
func (s *Store) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.readRecord(id)
	if err != nil {
		return err
	}
	ev.Completed = true

	if err := s.appendArchive(ArchivedEvent{Event: ev, ArchivedAt: time.Now()}); err != nil {
		return err
	}

	path, err := s.recordPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "complete", Path: path, Err: err}
	}

	appLog.Debug("event archived", "id", id, "title", ev.Title)
	s.signal("complete")
	return nil
}

// ReadArchive returns a newest-first page of archived events. Malformed
// lines are skipped; a missing archive file is an empty archive.
func (s *Store) ReadArchive(ctx context.Context, offset, limit int) ([]ArchivedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, archiveFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "archive read", Path: path, Err: err}
	}
	defer f.Close()

	var all []ArchivedEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec ArchivedEvent
		if err := json.Unmarshal(line, &rec); err != nil {
			appLog.Error("skipping malformed archive line", err, "path", path)
			continue
		}
		all = append(all, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &IOError{Op: "archive read", Path: path, Err: err}
	}

	// Newest entries are at the end of the log; page from the tail.
	out := make([]ArchivedEvent, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Store) appendArchive(rec ArchivedEvent) error {
	path := filepath.Join(s.dir, archiveFile)

	data, err := json.Marshal(&rec)
	if err != nil {
		return &ValidationError{ID: rec.ID, Err: err}
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return &IOError{Op: "archive append", Path: path, Err: err}
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return &IOError{Op: "archive append", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &IOError{Op: "archive append", Path: path, Err: err}
	}
	return nil
}
