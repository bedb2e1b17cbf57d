// Package main is the entry point for the kioku server.
//
// kioku is a LAN-local study server that serves audio clips for
// spaced-repetition decks, tracks per-deck review counters, and keeps
// per-episode bookmarks. Snapshots replicate to GitHub gists in the
// background. Configuration is read from CLI flags, a .env file (for the
// GitHub token), and server_config.json (for media, state, and sync
// settings).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kioku-dev/kioku/internal/bookmarks"
	"github.com/kioku-dev/kioku/internal/config"
	"github.com/kioku-dev/kioku/internal/gist"
	"github.com/kioku-dev/kioku/internal/media"
	"github.com/kioku-dev/kioku/internal/server"
	"github.com/kioku-dev/kioku/internal/server/handlers"
	"github.com/kioku-dev/kioku/internal/server/ratelimit"
	"github.com/kioku-dev/kioku/internal/state"
	"github.com/kioku-dev/kioku/internal/syncsvc"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "kioku: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Drop time when running under systemd.
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case uint64:
				skip = t == 0
			case int64:
				skip = t == 0
			case float64:
				skip = t == 0
			case time.Time:
				skip = t.IsZero()
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	// Run onboarding if no .env file exists and stdin is a TTY
	envPath := filepath.Join(*dataDir, ".env")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if isatty.IsTerminal(os.Stdin.Fd()) {
			if err := runOnboarding(*dataDir); err != nil {
				return fmt.Errorf("onboarding failed: %w", err)
			}
		}
	}

	// Load .env for the GitHub token and bootstrap settings
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}

	// Load server_config.json for media, state, and sync settings (creates with defaults if missing)
	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load server_config.json: %w", err)
	}

	// Override with .env file values if not explicitly set via flags
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}

	// The token is a secret, so it never travels through a flag.
	token := env["GITHUB_TOKEN"]
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	// Normalize addr: ":8080" becomes "localhost:8080"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	// The clip database is optional: without it the resolver serves from the
	// configured directories only.
	var mediaDB *media.DB
	if _, err := os.Stat(serverCfg.Media.DBPath); os.IsNotExist(err) {
		slog.InfoContext(ctx, "Media database not found, serving from directories only", "path", serverCfg.Media.DBPath)
	} else {
		mediaDB, err = media.OpenDB(serverCfg.Media.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open media database: %w", err)
		}
		defer func() { _ = mediaDB.Close() }()
		slog.InfoContext(ctx, "Media database opened", "path", serverCfg.Media.DBPath)
	}

	resolver, err := media.NewResolver(mediaDB, serverCfg.Media.Dirs, serverCfg.Media.Extensions, serverCfg.Media.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to initialize media resolver: %w", err)
	}

	stateStore := state.New(serverCfg.State.StateFile)
	wkStateStore := state.New(serverCfg.State.WKStateFile)
	bookmarkStore := bookmarks.New(serverCfg.State.BookmarksFile)

	var remote syncsvc.Remote
	if token != "" {
		remote = gist.NewClient(serverCfg.Sync.GitHubAPIURL, token, serverCfg.Sync.HTTPTimeout())
		slog.InfoContext(ctx, "Gist replication enabled", "api", serverCfg.Sync.GitHubAPIURL)
	} else {
		slog.InfoContext(ctx, "GITHUB_TOKEN not set, gist replication disabled")
	}

	targets := []syncsvc.Target{
		{Name: "state", Path: stateStore.Path(), GistID: serverCfg.Sync.StateGistID, Store: stateStore, Reload: stateStore.Load},
		{Name: "wk-state", Path: wkStateStore.Path(), GistID: serverCfg.Sync.WKStateGistID, Store: wkStateStore, Reload: wkStateStore.Load},
		{Name: "bookmarks", Path: bookmarkStore.Path(), GistID: serverCfg.Sync.BookmarksGistID},
	}
	syncService := syncsvc.New(remote, targets, serverCfg.Sync.FlushInterval(), serverCfg.Sync.PushInterval())

	// Adopt remote snapshots before the first request can observe local state.
	syncService.PullAll(ctx)
	syncService.Start(ctx)

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	svc := &handlers.Services{
		State:     stateStore,
		WKState:   wkStateStore,
		Bookmarks: bookmarkStore,
		Media:     resolver,
		Sync:      syncService,
	}

	buildVersion, _, _, _ := getBuildInfo()
	limiter := ratelimit.NewPerMinute(serverCfg.RateLimits.RequestsPerMin)
	defer limiter.Close()
	cfg := &server.Config{
		Version: buildVersion,
		Limiter: limiter,
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	// Wait for either context cancellation or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		// Graceful shutdown
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		// Drain pending counters and push a final snapshot before exit.
		syncService.Stop(10 * time.Second)
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("kioku %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(dataDir string) (map[string]string, error) {
	env := make(map[string]string)
	path := filepath.Join(dataDir, ".env")
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}

		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}

		env[key] = val
	}
	return env, nil
}

func saveDotEnv(dataDir string, env map[string]string) error {
	path := filepath.Join(dataDir, ".env")
	var lines []string
	for k, v := range env {
		if v != "" {
			lines = append(lines, fmt.Sprintf("%s=%s", k, v))
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

func runOnboarding(dataDir string) error {
	fmt.Println("Welcome to kioku! Let's set up your configuration.")
	fmt.Println("This wizard will help you configure GitHub gist replication.")
	fmt.Println("")

	reader := bufio.NewReader(os.Stdin)
	env := make(map[string]string)

	fmt.Println("\n--- GitHub Gist Sync ---")
	fmt.Println("kioku can replicate review counters and bookmarks to GitHub gists so")
	fmt.Println("progress survives this machine. Create a token with the gist scope at")
	fmt.Println("https://github.com/settings/tokens and one gist per snapshot file.")
	fmt.Println("Gist IDs go in server_config.json; the token stays in .env.")
	fmt.Print("GitHub token (optional): ")
	val, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read GitHub token: %w", err)
	}
	env["GITHUB_TOKEN"] = strings.TrimSpace(val)

	fmt.Println("")
	if err := saveDotEnv(dataDir, env); err != nil {
		return fmt.Errorf("failed to save .env file: %w", err)
	}

	fmt.Printf("Configuration saved to %s/.env\n", dataDir)
	fmt.Println("You can edit this file later to change your settings.")
	fmt.Println("")

	return nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
