package handlers

import (
	"context"
	"errors"

	apierrors "github.com/kioku-dev/kioku/internal/errors"
	"github.com/kioku-dev/kioku/internal/server/dto"
	"github.com/kioku-dev/kioku/internal/syncsvc"
)

// SyncHandler handles forced cloud sync requests.
type SyncHandler struct {
	svc *syncsvc.Service
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(svc *syncsvc.Service) *SyncHandler {
	return &SyncHandler{
		svc: svc,
	}
}

// Sync flushes all stores and pushes their snapshots to the remote now
// instead of waiting for the next scheduled push. A push already in flight
// is reported as busy, not an error.
func (h *SyncHandler) Sync(ctx context.Context, req *dto.SyncRequest) (*dto.SyncResponse, error) {
	err := h.svc.Sync(ctx)
	switch {
	case err == nil:
		return &dto.SyncResponse{Status: "ok", Message: "state pushed to cloud"}, nil
	case errors.Is(err, syncsvc.ErrSyncInProgress):
		return &dto.SyncResponse{Status: "busy", Message: "sync already in progress"}, nil
	case errors.Is(err, syncsvc.ErrNoRemote):
		return &dto.SyncResponse{Status: "disabled", Message: "no remote configured"}, nil
	default:
		return nil, apierrors.RemoteSyncFailed(err)
	}
}
