package syncsvc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kioku-dev/kioku/internal/state"
)

type fakeRemote struct {
	mu      sync.Mutex
	blobs   map[string][]byte // gistID -> content
	pushes  int
	pullErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{blobs: map[string][]byte{}}
}

func (f *fakeRemote) Pull(ctx context.Context, gistID, filename string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	content, ok := f.blobs[gistID]
	if !ok {
		return nil, errors.New("gist not found")
	}
	return content, nil
}

func (f *fakeRemote) Push(ctx context.Context, gistID, filename string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[gistID] = append([]byte(nil), content...)
	f.pushes++
	return nil
}

func (f *fakeRemote) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func (f *fakeRemote) blob(gistID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.blobs[gistID])
}

func TestPullAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path)
	remote := newFakeRemote()
	remote.blobs["gist-1"] = []byte(`{"reviewed": 9}`)

	svc := New(remote, []Target{{
		Name:   "state",
		Path:   path,
		GistID: "gist-1",
		Store:  store,
		Reload: store.Load,
	}}, time.Hour, time.Hour)
	svc.PullAll(context.Background())

	if got := store.Get("reviewed"); got != 9 {
		t.Errorf("reviewed = %d, want 9 after pull", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if string(data) != `{"reviewed": 9}` {
		t.Errorf("snapshot = %s", data)
	}
}

func TestPullAllFailureKeepsLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path)
	store.Increment("reviewed")
	remote := newFakeRemote()
	remote.pullErr = errors.New("network down")

	svc := New(remote, []Target{{
		Name:   "state",
		Path:   path,
		GistID: "gist-1",
		Store:  store,
		Reload: store.Load,
	}}, time.Hour, time.Hour)
	svc.PullAll(context.Background())

	if got := store.Get("reviewed"); got != 1 {
		t.Errorf("reviewed = %d, want the local value 1", got)
	}
}

func TestSync(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	store := state.New(statePath)
	store.Increment("reviewed")
	remote := newFakeRemote()

	svc := New(remote, []Target{
		{Name: "state", Path: statePath, GistID: "gist-1", Store: store},
		// No gist ID: flushed but never pushed.
		{Name: "local-only", Path: filepath.Join(dir, "other.json")},
		// Snapshot never written: skipped without error.
		{Name: "unwritten", Path: filepath.Join(dir, "unwritten.json"), GistID: "gist-2"},
	}, time.Hour, time.Hour)

	if err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := remote.pushCount(); got != 1 {
		t.Errorf("pushes = %d, want 1", got)
	}
	if blob := remote.blob("gist-1"); !strings.Contains(blob, `"reviewed": 1`) {
		t.Errorf("pushed blob = %s", blob)
	}
}

func TestSyncBusy(t *testing.T) {
	svc := New(newFakeRemote(), nil, time.Hour, time.Hour)
	if !svc.tryAcquire() {
		t.Fatal("tryAcquire failed")
	}
	defer svc.release()

	if err := svc.Sync(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("err = %v, want ErrSyncInProgress", err)
	}
}

func TestSyncWithoutRemote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path)
	store.Increment("reviewed")

	svc := New(nil, []Target{{Name: "state", Path: path, Store: store}}, time.Hour, time.Hour)
	if err := svc.Sync(context.Background()); !errors.Is(err, ErrNoRemote) {
		t.Errorf("err = %v, want ErrNoRemote", err)
	}
	// The local flush still happened.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot missing after flush: %v", err)
	}
}

func TestStopFlushesAndPushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path)
	remote := newFakeRemote()
	// Hour-long tickers: only the shutdown drain does any work.
	svc := New(remote, []Target{{
		Name:   "state",
		Path:   path,
		GistID: "gist-1",
		Store:  store,
	}}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	store.Increment("reviewed")
	svc.Stop(time.Second)

	if got := remote.pushCount(); got != 1 {
		t.Errorf("pushes = %d, want 1 final push", got)
	}
	if blob := remote.blob("gist-1"); !strings.Contains(blob, `"reviewed": 1`) {
		t.Errorf("pushed blob = %s", blob)
	}
}

func TestLoopsTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := state.New(path)
	remote := newFakeRemote()
	svc := New(remote, []Target{{
		Name:   "state",
		Path:   path,
		GistID: "gist-1",
		Store:  store,
	}}, 10*time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	store.Increment("reviewed")

	deadline := time.Now().Add(2 * time.Second)
	for remote.pushCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	svc.Stop(time.Second)

	if remote.pushCount() == 0 {
		t.Fatal("push loop never pushed")
	}
	if blob := remote.blob("gist-1"); !strings.Contains(blob, `"reviewed": 1`) {
		t.Errorf("pushed blob = %s", blob)
	}
}
