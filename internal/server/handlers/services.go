// Defines shared service dependencies for handlers.

package handlers

import (
	"github.com/kioku-dev/kioku/internal/bookmarks"
	"github.com/kioku-dev/kioku/internal/media"
	"github.com/kioku-dev/kioku/internal/state"
	"github.com/kioku-dev/kioku/internal/syncsvc"
)

// Services holds all service dependencies for handlers.
type Services struct {
	State     *state.Store // review counters (anki deck)
	WKState   *state.Store // review counters (wanikani deck)
	Bookmarks *bookmarks.Store
	Media     *media.Resolver
	Sync      *syncsvc.Service
}
