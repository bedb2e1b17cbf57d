// Package state keeps named progress counters in memory and snapshots them
// to a JSON file with write-behind persistence.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/kioku-dev/kioku/internal/atomicfile"
)

// Store holds one counter namespace. The in-memory map is authoritative;
// the snapshot file trails it and is rewritten by Flush. All methods are
// safe for concurrent use and the critical sections never perform I/O.
type Store struct {
	path string

	mu     sync.Mutex
	counts map[string]int64
	dirty  bool

	// flushMu is held across snapshot and write in Flush, so snapshot
	// writes reach the file in the order they were taken.
	flushMu sync.Mutex

	writeFile func(string, []byte, os.FileMode) error
}

// New creates a store backed by the snapshot file at path and loads the
// snapshot if one exists.
func New(path string) *Store {
	s := &Store{
		path:      path,
		counts:    map[string]int64{},
		writeFile: atomicfile.WriteFile,
	}
	s.Load()
	return s
}

// Get returns the counter for key, 0 if the key has never been incremented.
func (s *Store) Get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Increment adds one to the counter for key and returns the new value.
// Concurrent increments never lose updates.
func (s *Store) Increment(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	s.dirty = true
	return s.counts[key]
}

// Set overwrites the counter for key. It is not routed over HTTP; externally
// counters only ever move forward through Increment.
func (s *Store) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key] = value
	s.dirty = true
}

// Load replaces the in-memory counters with the snapshot file's contents.
// A missing file yields an empty mapping; an unreadable or malformed file
// yields an empty mapping with a logged warning. Load never fails.
func (s *Store) Load() {
	counts := map[string]int64{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("Failed to read state snapshot, starting empty", "path", s.path, "err", err)
	default:
		if err := json.Unmarshal(data, &counts); err != nil {
			slog.Warn("State snapshot is malformed, starting empty", "path", s.path, "err", err)
			counts = map[string]int64{}
		}
	}
	s.mu.Lock()
	s.counts = counts
	s.dirty = false
	s.mu.Unlock()
}

// Flush writes the counters to the snapshot file if anything changed since
// the last flush. The dirty flag is cleared before the write so the critical
// section stays O(1); a failed write re-marks the store dirty, so the next
// flush retries even if no mutation happens in between. Concurrent Flush
// calls serialize, so an older snapshot can never land after a newer one.
func (s *Store) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]int64, len(s.counts))
	for k, v := range s.counts {
		snapshot[k] = v
	}
	s.dirty = false
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		s.markDirty()
		return fmt.Errorf("failed to encode state snapshot: %w", err)
	}
	if err := s.writeFile(s.path, data, 0o644); err != nil {
		s.markDirty()
		return fmt.Errorf("failed to write state snapshot: %w", err)
	}
	return nil
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}
