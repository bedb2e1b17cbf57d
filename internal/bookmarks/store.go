// Package bookmarks stores per-episode bookmark lists in one JSON document.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/kioku-dev/kioku/internal/atomicfile"
)

// Store persists bookmark lists for all episodes in a single JSON document
// keyed by episode name. Records are opaque JSON values whose order is
// preserved. There is no in-memory copy: every call reads or rewrites the
// document, so concurrent Replace calls resolve to the last writer for the
// whole document. The atomic write keeps the document well-formed either way.
type Store struct {
	path string
}

// New creates a store backed by the document at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the bookmark list for episode. A missing document, malformed
// document, or unknown episode yields an empty list; Get never fails.
func (s *Store) Get(episode string) []json.RawMessage {
	items := s.read()[episode]
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

// Replace overwrites the bookmark list for episode and rewrites the whole
// document atomically. Other episodes' lists are preserved.
func (s *Store) Replace(episode string, items []json.RawMessage) error {
	doc := s.read()
	if items == nil {
		items = []json.RawMessage{}
	}
	doc[episode] = items
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bookmarks: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bookmarks: %w", err)
	}
	return nil
}

func (s *Store) read() map[string][]json.RawMessage {
	doc := map[string][]json.RawMessage{}
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("Failed to read bookmarks, treating as empty", "path", s.path, "err", err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			slog.Warn("Bookmarks document is malformed, treating as empty", "path", s.path, "err", err)
			doc = map[string][]json.RawMessage{}
		}
	}
	return doc
}

// Path returns the document file path.
func (s *Store) Path() string {
	return s.path
}
