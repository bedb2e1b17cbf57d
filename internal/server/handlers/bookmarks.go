package handlers

import (
	"context"

	"github.com/kioku-dev/kioku/internal/bookmarks"
	apierrors "github.com/kioku-dev/kioku/internal/errors"
	"github.com/kioku-dev/kioku/internal/server/dto"
)

// BookmarkHandler handles per-episode bookmark requests.
type BookmarkHandler struct {
	store *bookmarks.Store
}

// NewBookmarkHandler creates a new bookmark handler.
func NewBookmarkHandler(store *bookmarks.Store) *BookmarkHandler {
	return &BookmarkHandler{
		store: store,
	}
}

// Get returns the bookmark list of an episode. Unknown episodes read as
// an empty list.
func (h *BookmarkHandler) Get(ctx context.Context, req *dto.GetBookmarksRequest) (*dto.BookmarksResponse, error) {
	return &dto.BookmarksResponse{Bookmarks: h.store.Get(req.Episode)}, nil
}

// Replace swaps the entire bookmark list of an episode for the one in the
// request body.
func (h *BookmarkHandler) Replace(ctx context.Context, req *dto.ReplaceBookmarksRequest) (*dto.ReplaceBookmarksResponse, error) {
	if err := h.store.Replace(req.Episode, req.Bookmarks); err != nil {
		return nil, apierrors.StorageError("Failed to save bookmarks", err)
	}
	return &dto.ReplaceBookmarksResponse{Status: "ok"}, nil
}
