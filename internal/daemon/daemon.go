// Package daemon runs the vault watcher: a long-lived process that
// observes agent-owned directories, checks every create and write
// against the content rules, records the decision in the audit ledger
// and reverts writes that violate policy.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/intercept"
	"github.com/wardgate/wardgate/internal/rules"
)

// debounceDefault coalesces editor write-then-rename sequences into a
// single processed event per path.
const debounceDefault = 500 * time.Millisecond

// defaultActor is stamped into decision records. The watcher cannot tell
// writers apart, so every observed write is attributed to one actor.
const defaultActor = "agent"

// Config holds watcher configuration. WatchPaths is required; everything
// else has a default. Empty Extensions means every file is monitored.
type Config struct {
	WatchPaths []string      // directories to watch recursively
	Extensions []string      // monitored file extensions, e.g. ".md"
	Ignore     []string      // path fragments to skip, e.g. ".git"
	Actor      string        // actor stamped into decision records
	Debounce   time.Duration // quiet period before a batch is processed
	StateDir   string        // holds the PID lock; empty disables locking
	Logger     *slog.Logger
}

// Daemon is the vault watcher.
type Daemon struct {
	cfg     Config
	checker *rules.Checker
	ledger  *audit.Ledger
	tracker *intercept.Tracker
	log     *slog.Logger

	exts map[string]bool

	mu       sync.Mutex
	ready    map[string]bool
	suppress map[string]string // path -> hash expected after our own revert
}

// New creates a watcher with validated configuration.
func New(cfg Config, checker *rules.Checker, ledger *audit.Ledger) (*Daemon, error) {
	if len(cfg.WatchPaths) == 0 {
		return nil, fmt.Errorf("daemon: at least one watch path is required")
	}
	if checker == nil || ledger == nil {
		return nil, fmt.Errorf("daemon: checker and ledger are required")
	}
	if cfg.Actor == "" {
		cfg.Actor = defaultActor
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = debounceDefault
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}

	return &Daemon{
		cfg:      cfg,
		checker:  checker,
		ledger:   ledger,
		tracker:  intercept.NewTracker(),
		log:      cfg.Logger.With("component", "watcher"),
		exts:     exts,
		ready:    make(map[string]bool),
		suppress: make(map[string]string),
	}, nil
}

// Run starts the watcher. Blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	roots := make([]string, 0, len(d.cfg.WatchPaths))
	for _, p := range d.cfg.WatchPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("daemon: resolve %s: %w", p, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return fmt.Errorf("daemon: create watch directory: %w", err)
		}
		roots = append(roots, abs)
	}

	if d.cfg.StateDir != "" {
		pidPath := filepath.Join(d.cfg.StateDir, "daemon.pid")
		if err := acquirePIDLock(pidPath); err != nil {
			return fmt.Errorf("daemon: acquire PID lock: %w", err)
		}
		defer func() { _ = os.Remove(pidPath) }()
	}

	return d.watch(ctx, roots)
}

// acquirePIDLock writes the current PID to the file, evicting a stale
// lock left behind by a dead process.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("another watcher is running (PID %d)", pid)
				}
			}
		}
		// Stale PID file.
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600)
}
