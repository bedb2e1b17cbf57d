package dto

import "encoding/json"

// StateResponse carries the current value of one review counter.
type StateResponse struct {
	Index int64 `json:"index"`
}

// BookmarksResponse carries the bookmark list of one episode.
type BookmarksResponse struct {
	Bookmarks []json.RawMessage `json:"bookmarks"`
}

// StatusResponse is a simple status acknowledgement.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ReplaceBookmarksResponse is a response from replacing a bookmark list.
type ReplaceBookmarksResponse = StatusResponse

// SyncResponse is a response from a forced cloud sync.
type SyncResponse = StatusResponse

// HealthResponse is the response for the health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
