package scheduler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// journalRecord is one append-only line in the task journal. A record
// with Op "add" carries a full Task; a record with Op "remove" is a
// tombstone carrying only the task's ID.
type journalRecord struct {
	Op   string `json:"op"` // "add" or "remove"
	ID   string `json:"id"`
	Task *Task  `json:"task,omitempty"`
}

// Store is the scheduler's persistence layer: tasks are written
// line-per-record to an append-only journal, and the authoritative
// in-memory table is rebuilt by scanning that journal at load time.
// Removal is a tombstone record, not an in-place edit.
type Store struct {
	path string

	mu    sync.Mutex
	tasks map[string]Task
	file  *os.File
}

// NewStore opens (creating if necessary) the journal at
// <journalDir>/tasks.jsonl, replays it to build the in-memory task table,
// and keeps the file open for subsequent appends.
func NewStore(journalDir string) (*Store, error) {
	if err := os.MkdirAll(journalDir, 0o755); err != nil {
		return nil, fmt.Errorf("scheduler store: %w", err)
	}
	path := filepath.Join(journalDir, "tasks.jsonl")

	s := &Store{path: path, tasks: make(map[string]Task)}
	if err := s.replay(); err != nil {
		return nil, fmt.Errorf("scheduler store: replay: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("scheduler store: %w", err)
	}
	s.file = f
	return s, nil
}

// replay scans the journal from the start, applying add and remove
// records in order, to rebuild the in-memory task table. Missing file is
// not an error (handled by O_CREATE on the subsequent open).
func (s *Store) replay() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // tolerate a partially-written trailing line
		}
		switch rec.Op {
		case "add":
			if rec.Task != nil {
				s.tasks[rec.Task.ID] = *rec.Task
			}
		case "remove":
			delete(s.tasks, rec.ID)
		}
	}
	return scanner.Err()
}

// Add appends an "add" record and updates the in-memory table.
func (s *Store) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendRecord(journalRecord{Op: "add", ID: task.ID, Task: &task}); err != nil {
		return err
	}
	s.tasks[task.ID] = task
	return nil
}

// Remove appends a "remove" tombstone and deletes the task from the
// in-memory table. It is not an error to remove an unknown id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendRecord(journalRecord{Op: "remove", ID: id}); err != nil {
		return err
	}
	delete(s.tasks, id)
	return nil
}

// appendRecord serializes rec as one JSON line and writes it. Called with
// s.mu held.
func (s *Store) appendRecord(rec journalRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.file.Write(data)
	return err
}

// Get returns the task with the given id, if present.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// List returns every currently-live task, in no particular order.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// Size returns the number of currently-live tasks.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close releases the underlying journal file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
