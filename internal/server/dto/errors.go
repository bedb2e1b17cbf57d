package dto

import apierrors "github.com/kioku-dev/kioku/internal/errors"

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    apierrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}
