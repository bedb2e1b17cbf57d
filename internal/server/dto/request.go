// Package dto defines the API request and response types.
//
// Request types bind path parameters through `path:"..."` struct tags,
// populated by the handler wrapper in the server package. Every request
// type implements Validatable. Response types carry plain JSON tags; the
// error envelope lives in errors.go.
package dto

import (
	"encoding/json"

	apierrors "github.com/kioku-dev/kioku/internal/errors"
)

// --- State ---

// GetStateRequest addresses one review counter by key.
type GetStateRequest struct {
	Key string `path:"key"`
}

// Validate validates the get state request fields.
func (r *GetStateRequest) Validate() error {
	if r.Key == "" {
		return apierrors.MissingField("key")
	}
	return nil
}

// IncrementStateRequest advances one review counter by key.
type IncrementStateRequest struct {
	Key string `path:"key"`
}

// Validate validates the increment state request fields.
func (r *IncrementStateRequest) Validate() error {
	if r.Key == "" {
		return apierrors.MissingField("key")
	}
	return nil
}

// --- Bookmarks ---

// GetBookmarksRequest addresses the bookmark list of one episode.
type GetBookmarksRequest struct {
	Episode string `path:"episode"`
}

// Validate validates the get bookmarks request fields.
func (r *GetBookmarksRequest) Validate() error {
	if r.Episode == "" {
		return apierrors.MissingField("episode")
	}
	return nil
}

// ReplaceBookmarksRequest replaces the bookmark list of one episode.
// Bookmark records are opaque to the server and stored as given.
type ReplaceBookmarksRequest struct {
	Episode   string            `path:"episode"`
	Bookmarks []json.RawMessage `json:"bookmarks"`
}

// Validate validates the replace bookmarks request fields. An empty or
// absent list is valid and clears the episode's bookmarks.
func (r *ReplaceBookmarksRequest) Validate() error {
	if r.Episode == "" {
		return apierrors.MissingField("episode")
	}
	return nil
}

// --- Sync ---

// SyncRequest asks for an immediate flush and remote push.
type SyncRequest struct{}

// Validate is a no-op for SyncRequest.
func (r *SyncRequest) Validate() error {
	return nil
}

// --- Health ---

// HealthRequest is a request for the health check (empty).
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}
