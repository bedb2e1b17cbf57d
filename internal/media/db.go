package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no tier holds the requested file. It is a
// normal outcome of resolution, not a failure.
var ErrNotFound = errors.New("media not found")

// DB reads clip blobs from the pre-built media database. The database is
// produced offline and opened read-only; the server never writes to it.
//
// Schema:
//
//	media(filename TEXT PRIMARY KEY, data BLOB)
//	kaiwa_media(episode TEXT, file_type TEXT, filename TEXT, data BLOB)
type DB struct {
	sqlDB *sql.DB
}

// OpenDB opens the media database read-only.
func OpenDB(path string) (*DB, error) {
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?mode=ro&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open media db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping media db: %w", err)
	}
	return &DB{sqlDB: sqlDB}, nil
}

// Blob returns the stored bytes for an exact filename match.
func (d *DB) Blob(ctx context.Context, filename string) ([]byte, error) {
	var data []byte
	err := d.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM media WHERE filename = ?`, filename).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	return data, nil
}

// BlobByStem returns the first row matching stem+ext in the given extension
// order, along with the filename it matched.
func (d *DB) BlobByStem(ctx context.Context, stem string, exts []string) (string, []byte, error) {
	for _, ext := range exts {
		name := stem + ext
		data, err := d.Blob(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return name, data, nil
	}
	return "", nil, ErrNotFound
}

// EpisodeBlob returns the bytes stored under the (episode, fileType,
// filename) triple. There is no extension substitution for episode files.
func (d *DB) EpisodeBlob(ctx context.Context, episode, fileType, filename string) ([]byte, error) {
	var data []byte
	err := d.sqlDB.QueryRowContext(ctx,
		`SELECT data FROM kaiwa_media WHERE episode = ? AND file_type = ? AND filename = ?`,
		episode, fileType, filename).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query kaiwa media: %w", err)
	}
	return data, nil
}

// Close closes the SQLite handle.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}
