package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kioku-dev/kioku/internal/media"
	"github.com/kioku-dev/kioku/internal/server/dto"
)

// newTestResolver builds a resolver over a freshly written read-only
// database containing the given rows.
func newTestResolver(t *testing.T, clips map[string][]byte, episodes map[[3]string][]byte) *media.Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media.db")
	rw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open rw db: %v", err)
	}
	if _, err := rw.Exec(`CREATE TABLE media (filename TEXT PRIMARY KEY, data BLOB)`); err != nil {
		t.Fatalf("create media table: %v", err)
	}
	if _, err := rw.Exec(`CREATE TABLE kaiwa_media (episode TEXT, file_type TEXT, filename TEXT, data BLOB)`); err != nil {
		t.Fatalf("create kaiwa_media table: %v", err)
	}
	for name, data := range clips {
		if _, err := rw.Exec(`INSERT INTO media (filename, data) VALUES (?, ?)`, name, data); err != nil {
			t.Fatalf("insert clip: %v", err)
		}
	}
	for key, data := range episodes {
		if _, err := rw.Exec(`INSERT INTO kaiwa_media (episode, file_type, filename, data) VALUES (?, ?, ?, ?)`,
			key[0], key[1], key[2], data); err != nil {
			t.Fatalf("insert episode row: %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("close rw db: %v", err)
	}

	db, err := media.OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	resolver, err := media.NewResolver(db, nil, []string{".opus", ".ogg", ".mp3", ".wav"}, 16)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return resolver
}

func serveClip(h *MediaHandler, filename string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/media/x", http.NoBody)
	req.SetPathValue("filename", filename)
	rec := httptest.NewRecorder()
	h.ServeClip(rec, req)
	return rec
}

func TestServeClipFromDatabase(t *testing.T) {
	h := NewMediaHandler(newTestResolver(t, map[string][]byte{"foo.opus": []byte("opus-bytes")}, nil))

	rec := serveClip(h, "foo.opus")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "opus-bytes" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "opus-bytes")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/opus" {
		t.Errorf("Content-Type = %q, want %q", ct, "audio/opus")
	}
	if cl := rec.Header().Get("Content-Length"); cl != "10" {
		t.Errorf("Content-Length = %q, want %q", cl, "10")
	}
	// Database blobs are immutable and cacheable forever.
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000, immutable" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestServeClipSubstitutedName(t *testing.T) {
	h := NewMediaHandler(newTestResolver(t, map[string][]byte{"foo.opus": []byte("opus-bytes")}, nil))

	// The .mp3 request resolves to foo.opus; the Content-Type follows the
	// resolved name, not the requested one.
	rec := serveClip(h, "foo.mp3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/opus" {
		t.Errorf("Content-Type = %q, want %q", ct, "audio/opus")
	}
}

func TestServeClipNotFound(t *testing.T) {
	h := NewMediaHandler(newTestResolver(t, nil, nil))

	rec := serveClip(h, "absent.opus")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var errResp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("Unmarshal error body: %v", err)
	}
	if errResp.Error.Code != "MEDIA_NOT_FOUND" {
		t.Errorf("error code = %q, want %q", errResp.Error.Code, "MEDIA_NOT_FOUND")
	}
}

func TestServeClipRejectsPathSeparators(t *testing.T) {
	h := NewMediaHandler(newTestResolver(t, nil, nil))

	// A percent-encoded slash survives into the path value.
	for _, name := range []string{"../state.json", "a/b.opus", `a\b.opus`, "..", ""} {
		rec := serveClip(h, name)
		if rec.Code != http.StatusNotFound {
			t.Errorf("name %q: status = %d, want %d", name, rec.Code, http.StatusNotFound)
		}
	}
}

func TestServeEpisodeMedia(t *testing.T) {
	episodes := map[[3]string][]byte{
		{"ep-01", "audio", "clip.opus"}:    []byte("audio-bytes"),
		{"ep-01", "episode", "full.opus"}:  []byte("episode-bytes"),
		{"ep-01", "episode", "notes.json"}: []byte(`{"title":"x"}`),
	}
	h := NewMediaHandler(newTestResolver(t, nil, episodes))

	serveEpisode := func(handler http.HandlerFunc, episode, filename string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/kaiwa/x", http.NoBody)
		req.SetPathValue("episode", episode)
		req.SetPathValue("filename", filename)
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec
	}

	rec := serveEpisode(h.ServeEpisodeAudio, "ep-01", "clip.opus")
	if rec.Code != http.StatusOK {
		t.Fatalf("audio status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "audio-bytes" {
		t.Errorf("audio body = %q", rec.Body.String())
	}

	rec = serveEpisode(h.ServeEpisodeFile, "ep-01", "full.opus")
	if rec.Code != http.StatusOK {
		t.Fatalf("episode status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "episode-bytes" {
		t.Errorf("episode body = %q", rec.Body.String())
	}

	// Non-audio episode files get their own Content-Type.
	rec = serveEpisode(h.ServeEpisodeFile, "ep-01", "notes.json")
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("json Content-Type = %q", ct)
	}

	// The file types are separate namespaces: an audio row is not visible
	// through the episode route.
	rec = serveEpisode(h.ServeEpisodeFile, "ep-01", "clip.opus")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-type status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// No extension substitution on episode lookups.
	rec = serveEpisode(h.ServeEpisodeAudio, "ep-01", "clip.mp3")
	if rec.Code != http.StatusNotFound {
		t.Errorf("substituted episode status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
