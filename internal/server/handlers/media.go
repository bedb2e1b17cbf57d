package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	apierrors "github.com/kioku-dev/kioku/internal/errors"
	"github.com/kioku-dev/kioku/internal/media"
)

// Audio types missing from the standard MIME table on most systems.
func init() {
	for ext, typ := range map[string]string{
		".opus": "audio/opus",
		".oga":  "audio/ogg",
		".aac":  "audio/aac",
		".flac": "audio/flac",
		".wav":  "audio/wav",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// MediaHandler serves audio clips and episode files from the resolver.
// These are raw handlers: they write bytes with media headers, not JSON.
type MediaHandler struct {
	resolver *media.Resolver
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(resolver *media.Resolver) *MediaHandler {
	return &MediaHandler{
		resolver: resolver,
	}
}

// ServeClip handles GET /media/{filename}: cache, then database with
// extension substitution, then the media directories.
func (h *MediaHandler) ServeClip(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if !validName(filename) {
		writeErrorResponse(w, apierrors.MediaNotFound(filename))
		return
	}

	res, err := h.resolver.Resolve(r.Context(), filename)
	if err != nil {
		h.writeResolveError(w, filename, err)
		return
	}
	h.serve(w, res)
}

// ServeEpisodeAudio handles GET /kaiwa/audio/{episode}/{filename}.
func (h *MediaHandler) ServeEpisodeAudio(w http.ResponseWriter, r *http.Request) {
	h.serveEpisode(w, r, "audio")
}

// ServeEpisodeFile handles GET /kaiwa/episode/{episode}/{filename}.
func (h *MediaHandler) ServeEpisodeFile(w http.ResponseWriter, r *http.Request) {
	h.serveEpisode(w, r, "episode")
}

// serveEpisode resolves an episode-segmented file. Exact lookup only: no
// extension substitution and no filesystem fallback.
func (h *MediaHandler) serveEpisode(w http.ResponseWriter, r *http.Request, fileType string) {
	episode := r.PathValue("episode")
	filename := r.PathValue("filename")
	if !validName(episode) || !validName(filename) {
		writeErrorResponse(w, apierrors.MediaNotFound(filename))
		return
	}

	res, err := h.resolver.ResolveEpisode(r.Context(), episode, fileType, filename)
	if err != nil {
		h.writeResolveError(w, filename, err)
		return
	}
	h.serve(w, res)
}

// serve writes the resolved blob. Database and cache results are immutable
// by contract, so they get a far-future cache header; filesystem results
// may still be replaced by the bulk import and are served without it.
func (h *MediaHandler) serve(w http.ResponseWriter, res media.Result) {
	mimeType := mime.TypeByExtension(filepath.Ext(res.Name))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	if res.Source != media.SourceFilesystem {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	if _, err := w.Write(res.Data); err != nil {
		slog.Error("Failed to write media response", "err", err)
	}
}

// writeResolveError maps a resolver error to the JSON error envelope. A
// miss is a normal outcome and is not logged.
func (h *MediaHandler) writeResolveError(w http.ResponseWriter, filename string, err error) {
	if errors.Is(err, media.ErrNotFound) {
		writeErrorResponse(w, apierrors.MediaNotFound(filename))
		return
	}
	slog.Error("Failed to resolve media", "filename", filename, "err", err)
	writeErrorResponse(w, apierrors.InternalWithError("Failed to resolve media", err))
}

// validName rejects empty names and names with path separators, which can
// reach a handler through percent-encoded slashes in the URL.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\")
}
