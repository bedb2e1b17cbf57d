// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/kioku-dev/kioku/internal/server/handlers"
	"github.com/kioku-dev/kioku/internal/server/ratelimit"
)

// Config holds router-level configuration.
type Config struct {
	Version string             // reported by /api/health
	Limiter *ratelimit.Limiter // per-client quota; nil disables limiting
}

// NewRouter creates and configures the HTTP router. The returned handler
// carries the middleware chain: access log, then CORS, then rate limiting,
// so preflight requests never consume quota. The caller owns the limiter
// and closes it when the server stops.
func NewRouter(svc *handlers.Services, cfg *Config) http.Handler {
	mux := &http.ServeMux{}

	sh := handlers.NewStateHandler(svc.State)
	wkh := handlers.NewStateHandler(svc.WKState)
	bh := handlers.NewBookmarkHandler(svc.Bookmarks)
	mh := handlers.NewMediaHandler(svc.Media)
	syh := handlers.NewSyncHandler(svc.Sync)
	hh := handlers.NewHealthHandler(cfg.Version)

	// Health check
	mux.Handle("GET /api/health", Wrap(hh.Health))

	// Review counters, one namespace per deck
	mux.Handle("GET /state/{key}", Wrap(sh.Get))
	mux.Handle("POST /state/{key}/next", Wrap(sh.Increment))
	mux.Handle("GET /wk/state/{key}", Wrap(wkh.Get))
	mux.Handle("POST /wk/state/{key}/next", Wrap(wkh.Increment))

	// Episode bookmarks
	mux.Handle("GET /kaiwa/bookmarks/{episode}", Wrap(bh.Get))
	mux.Handle("POST /kaiwa/bookmarks/{episode}", Wrap(bh.Replace))

	// Media serving (raw byte responses)
	mux.HandleFunc("GET /media/{filename}", mh.ServeClip)
	mux.HandleFunc("GET /kaiwa/audio/{episode}/{filename}", mh.ServeEpisodeAudio)
	mux.HandleFunc("GET /kaiwa/episode/{episode}/{filename}", mh.ServeEpisodeFile)

	// Forced cloud sync
	mux.Handle("POST /kaiwa/sync-cloud", Wrap(syh.Sync))

	return accessLog(corsAllowAll(rateLimitByIP(cfg.Limiter, mux)))
}
