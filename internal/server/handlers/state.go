// Package handlers provides HTTP request handlers for the REST API.
//
// Each handler type wraps one of the core stores, validates inputs, and
// returns standardized responses. JSON endpoints go through the server
// package's generic wrapper; media endpoints are raw http.HandlerFuncs
// because they write bytes, not JSON.
package handlers

import (
	"context"

	"github.com/kioku-dev/kioku/internal/server/dto"
	"github.com/kioku-dev/kioku/internal/state"
)

// StateHandler handles review counter requests for one counter store.
// The router instantiates it twice, once per deck namespace.
type StateHandler struct {
	store *state.Store
}

// NewStateHandler creates a new state handler backed by the given store.
func NewStateHandler(store *state.Store) *StateHandler {
	return &StateHandler{
		store: store,
	}
}

// Get returns the current value of a counter. Unknown keys read as zero.
func (h *StateHandler) Get(ctx context.Context, req *dto.GetStateRequest) (*dto.StateResponse, error) {
	return &dto.StateResponse{Index: h.store.Get(req.Key)}, nil
}

// Increment advances a counter by one and returns the new value.
func (h *StateHandler) Increment(ctx context.Context, req *dto.IncrementStateRequest) (*dto.StateResponse, error) {
	return &dto.StateResponse{Index: h.store.Increment(req.Key)}, nil
}
