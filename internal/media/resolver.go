// Package media resolves audio files through a bounded in-memory cache, a
// read-only SQLite database, and filesystem fallback directories.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Source identifies the tier that resolved a file.
type Source int

const (
	SourceCache Source = iota
	SourceDatabase
	SourceFilesystem
)

// Result is a resolved media file. Name is the filename the bytes were
// actually found under; it may differ from the requested name by extension.
type Result struct {
	Name   string
	Data   []byte
	Source Source
}

type cachedBlob struct {
	name string
	data []byte
}

// Resolver resolves media files tier by tier: cache, database, filesystem.
// Database hits are cached under the requested name so repeated requests
// never touch the database again; filesystem hits are not cached. Lookups
// are safe for concurrent use.
type Resolver struct {
	db    *DB // nil when the media database is absent
	cache *lru.Cache[string, cachedBlob]
	dirs  []string
	exts  []string
}

// NewResolver creates a resolver over db (which may be nil), the fallback
// directories in precedence order, the extension substitution order, and a
// bounded cache of cacheSize entries.
func NewResolver(db *DB, dirs, exts []string, cacheSize int) (*Resolver, error) {
	cache, err := lru.New[string, cachedBlob](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create media cache: %w", err)
	}
	return &Resolver{db: db, cache: cache, dirs: dirs, exts: exts}, nil
}

// Resolve looks filename up tier by tier. A database read failure is logged
// and treated as a database miss, so a file that also exists in a fallback
// directory stays servable while the database is locked or being replaced.
// A miss at every tier returns ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, filename string) (Result, error) {
	if b, ok := r.cache.Get(filename); ok {
		return Result{Name: b.name, Data: b.data, Source: SourceCache}, nil
	}
	if r.db != nil {
		name, data, err := r.dbLookup(ctx, filename)
		switch {
		case err == nil:
			r.cache.Add(filename, cachedBlob{name: name, data: data})
			return Result{Name: name, Data: data, Source: SourceDatabase}, nil
		case !errors.Is(err, ErrNotFound):
			slog.WarnContext(ctx, "Media database unreadable, serving from directories", "filename", filename, "err", err)
		}
	}
	return r.fsLookup(filename)
}

// ResolveEpisode resolves an episode-scoped file keyed by (episode,
// fileType, filename). There is no extension substitution and no filesystem
// tier for episode files.
func (r *Resolver) ResolveEpisode(ctx context.Context, episode, fileType, filename string) (Result, error) {
	key := episode + "/" + fileType + "/" + filename
	if b, ok := r.cache.Get(key); ok {
		return Result{Name: b.name, Data: b.data, Source: SourceCache}, nil
	}
	if r.db == nil {
		return Result{}, ErrNotFound
	}
	data, err := r.db.EpisodeBlob(ctx, episode, fileType, filename)
	if err != nil {
		return Result{}, err
	}
	r.cache.Add(key, cachedBlob{name: filename, data: data})
	return Result{Name: filename, Data: data, Source: SourceDatabase}, nil
}

func (r *Resolver) dbLookup(ctx context.Context, filename string) (string, []byte, error) {
	data, err := r.db.Blob(ctx, filename)
	if err == nil {
		return filename, data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", nil, err
	}
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	return r.db.BlobByStem(ctx, stem, r.exts)
}

func (r *Resolver) fsLookup(filename string) (Result, error) {
	for _, dir := range r.dirs {
		data, err := os.ReadFile(filepath.Join(dir, filename))
		if err == nil {
			return Result{Name: filename, Data: data, Source: SourceFilesystem}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return Result{}, fmt.Errorf("failed to read media file: %w", err)
		}
	}
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, ext := range r.exts {
		name := stem + ext
		for _, dir := range r.dirs {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err == nil {
				return Result{Name: name, Data: data, Source: SourceFilesystem}, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return Result{}, fmt.Errorf("failed to read media file: %w", err)
			}
		}
	}
	return Result{}, ErrNotFound
}
