// Provides background replication for snapshot files: periodic local
// flushes, periodic remote pushes, a startup pull, and a final drain on
// shutdown.

package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kioku-dev/kioku/internal/atomicfile"
)

// Flusher writes pending in-memory changes to a snapshot file.
type Flusher interface {
	Flush() error
}

// Remote holds one named blob per dataset, fetched and replaced whole.
// Last writer wins; there is no merge.
type Remote interface {
	Pull(ctx context.Context, gistID, filename string) ([]byte, error)
	Push(ctx context.Context, gistID, filename string, content []byte) error
}

// Target is one replicated dataset.
type Target struct {
	Name   string  // log label
	Path   string  // local snapshot file
	GistID string  // empty disables remote replication for this target
	Store  Flusher // nil for stores with no in-memory buffer
	Reload func()  // called after a startup pull rewrites Path; may be nil
}

var (
	// ErrSyncInProgress is returned by Sync when a push is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNoRemote is returned by Sync when no remote is configured.
	ErrNoRemote = errors.New("no remote configured")
)

// Service runs the replication loops. Flushing and pushing are scheduled by
// two independent tickers so a slow remote push never delays local
// snapshots. All snapshot and network I/O happens on the Service's own
// goroutines (or inside an explicit Sync call), never on a request handler.
type Service struct {
	remote     Remote // nil disables pull/push
	targets    []Target
	flushEvery time.Duration
	pushEvery  time.Duration

	mu     sync.Mutex
	active bool // a remote push is in flight

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the service. remote may be nil, in which case only the local
// flush loop does any work.
func New(remote Remote, targets []Target, flushEvery, pushEvery time.Duration) *Service {
	return &Service{
		remote:     remote,
		targets:    targets,
		flushEvery: flushEvery,
		pushEvery:  pushEvery,
	}
}

// PullAll fetches every replicated target once, rewrites its local snapshot,
// and reloads the owning store. Any failure is logged and treated as no
// prior remote state. Meant to run at startup, before serving requests.
func (s *Service) PullAll(ctx context.Context) {
	if s.remote == nil {
		return
	}
	for _, t := range s.targets {
		if t.GistID == "" {
			continue
		}
		content, err := s.remote.Pull(ctx, t.GistID, filepath.Base(t.Path))
		if err != nil {
			slog.Warn("Startup pull failed, keeping local state", "target", t.Name, "err", err)
			continue
		}
		if err := atomicfile.WriteFile(t.Path, content, 0o644); err != nil {
			slog.Warn("Failed to write pulled snapshot", "target", t.Name, "err", err)
			continue
		}
		if t.Reload != nil {
			t.Reload()
		}
		slog.Info("Pulled remote snapshot", "target", t.Name, "bytes", len(content))
	}
}

// Start launches the flush and push loops. Both stop when ctx is cancelled;
// cancellation is checked between ticks, an in-progress tick is not
// interrupted. Call Stop to wait for them and drain.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.flushLoop(ctx)
	go s.pushLoop(ctx)
}

// Stop cancels the loops, waits up to grace for the current tick to finish,
// then performs one final flush and one final push attempt bounded by grace.
// Best effort: failures are logged, not returned.
func (s *Service) Stop(grace time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	if !waitTimeout(&s.wg, grace) {
		slog.Warn("Replication loops did not stop in time")
	}
	s.flushAll()
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	s.pushAll(ctx)
}

// Sync flushes every store and pushes every replicated target once. It is
// the backing for the user-initiated sync endpoint and reports the outcome
// instead of merely logging it.
func (s *Service) Sync(ctx context.Context) error {
	s.flushAll()
	if s.remote == nil {
		return ErrNoRemote
	}
	if !s.tryAcquire() {
		return ErrSyncInProgress
	}
	defer s.release()

	var errs []error
	for _, t := range s.targets {
		if t.GistID == "" {
			continue
		}
		if err := s.pushTarget(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) flushLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushAll()
		}
	}
}

func (s *Service) pushLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.remote == nil {
		return
	}
	ticker := time.NewTicker(s.pushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushAll(ctx)
		}
	}
}

func (s *Service) flushAll() {
	for _, t := range s.targets {
		if t.Store == nil {
			continue
		}
		if err := t.Store.Flush(); err != nil {
			slog.Error("Snapshot flush failed", "target", t.Name, "err", err)
		}
	}
}

func (s *Service) pushAll(ctx context.Context) {
	if s.remote == nil || !s.tryAcquire() {
		return
	}
	defer s.release()
	for _, t := range s.targets {
		if t.GistID == "" {
			continue
		}
		if err := s.pushTarget(ctx, t); err != nil {
			slog.Error("Remote push failed", "target", t.Name, "err", err)
		}
	}
}

// pushTarget uploads the target's current on-disk snapshot verbatim. A
// snapshot that has never been written is skipped.
func (s *Service) pushTarget(ctx context.Context, t Target) error {
	content, err := os.ReadFile(t.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	return s.remote.Push(ctx, t.GistID, filepath.Base(t.Path), content)
}

func (s *Service) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
