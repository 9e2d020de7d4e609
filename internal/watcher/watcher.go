// Package watcher implements a single-threaded fsnotify event loop over
// the managed set, auto-staging changes to already-tracked files and
// conditionally auto-adding new ones.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/manageset"
	"github.com/hometree/hometree/internal/pathutil"
	"github.com/hometree/hometree/internal/secrets"
	"github.com/hometree/hometree/internal/telemetry"
)

// StageFunc stages a path into the repository index; supplied by the
// caller so the watcher never depends on a concrete store.Repo directly
// during tests.
type StageFunc func(ctx context.Context, relPath string) error

// Watcher debounces filesystem events under the managed set and stages
// them, or auto-adds new files when the configuration allows it.
type Watcher struct {
	HomeRoot   string
	Classifier *manageset.Classifier
	Cfg        config.WatchConfig
	Secrets    *secrets.Engine
	Stage      StageFunc

	fsw *fsnotify.Watcher

	mu        sync.Mutex
	pending   map[pathutil.RP]struct{}
	debounce  *time.Timer
	pauseUntil time.Time
	pauseReason string

	flush     chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// New constructs a Watcher. Call Start to begin watching.
func New(homeRoot string, classifier *manageset.Classifier, cfg config.WatchConfig, secretsEngine *secrets.Engine, stage StageFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		HomeRoot:   homeRoot,
		Classifier: classifier,
		Cfg:        cfg,
		Secrets:    secretsEngine,
		Stage:      stage,
		fsw:        fsw,
		pending:    map[pathutil.RP]struct{}{},
		flush:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start registers watches on every concrete managed-root and extra-file
// directory — never a glob pattern, and never a recursive watch of the home
// directory (it gets a single non-recursive watch only when an extra file
// sits directly in it) — then runs the event loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.registerWatches(); err != nil {
		return err
	}
	defer w.fsw.Close()
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)

		case <-w.debounceChan():
			w.flushPending(ctx)

		case <-w.flush:
			w.flushPending(ctx)

		case <-ctx.Done():
			w.flushPending(ctx) // drain-then-final-flush on shutdown
			return nil
		}
	}
}

// debounceChan returns the current debounce timer's channel, or a nil
// channel (which blocks forever in a select) when no timer is armed.
func (w *Watcher) debounceChan() <-chan time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce == nil {
		return nil
	}
	return w.debounce.C
}

func (w *Watcher) registerWatches() error {
	for _, root := range w.Classifier.ManagedRootRPs() {
		dir := filepath.Join(w.HomeRoot, root.String())
		if err := w.addRecursive(dir); err != nil {
			slog.Warn("failed to watch managed root", "root", root.String(), "error", err)
		}
	}
	for _, extra := range w.Classifier.ExtraFileRPs() {
		dir := filepath.Dir(filepath.Join(w.HomeRoot, extra.String()))
		if err := w.fsw.Add(dir); err != nil {
			slog.Warn("failed to watch extra file's parent", "path", extra.String(), "error", err)
		}
	}
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return w.fsw.Add(filepath.Dir(dir))
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.addRecursive(filepath.Join(dir, e.Name())); err != nil {
				slog.Debug("failed to watch subdirectory", "dir", filepath.Join(dir, e.Name()), "error", err)
			}
		}
	}
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.isPaused() {
		slog.Debug("watcher paused, dropping event", "path", event.Name, "reason", w.pauseReason)
		return
	}

	rel, err := filepath.Rel(w.HomeRoot, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	rp, err := pathutil.New(rel)
	if err != nil {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Debug("failed to watch new subdirectory", "dir", event.Name, "error", err)
			}
		}
	}

	result := w.Classifier.Classify(rp, false)
	switch result.Class {
	case manageset.InRoot, manageset.ExtraFile:
		w.enqueue(rp)
	case manageset.SecretPlaintext:
		slog.Debug("watcher: change to secret plaintext", "path", rel, "reason", result.Reason)
		w.enqueueSecret(ctx, rp)
	case manageset.Ignored:
		slog.Debug("watcher: ignored", "path", rel, "reason", "ignored")
		telemetry.WatcherRejectedTotal.WithLabelValues("ignored").Inc()
	default:
		if w.Cfg.AutoAddNew && !w.Cfg.AutoStageTrackedOnly {
			if matchesAllowlist(rel, w.Cfg.AutoAddAllowPatterns) {
				w.enqueue(rp)
				return
			}
			slog.Debug("watcher: not auto-added, no allowlist match", "path", rel, "reason", "allowlist-miss")
			telemetry.WatcherRejectedTotal.WithLabelValues("allowlist-miss").Inc()
			return
		}
		slog.Debug("watcher: not managed", "path", rel, "reason", "not-managed")
		telemetry.WatcherRejectedTotal.WithLabelValues("not-managed").Inc()
	}
}

func matchesAllowlist(rel string, patterns []string) bool {
	rp, err := pathutil.New(rel)
	if err != nil {
		return false
	}
	for _, p := range patterns {
		if pathutil.MatchIgnore(p, rp) {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(rp pathutil.RP) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rp] = struct{}{}
	w.armDebounce()
}

// enqueueSecret re-encrypts a changed secret plaintext before staging its
// ciphertext sidecar, never the plaintext itself.
func (w *Watcher) enqueueSecret(ctx context.Context, plaintextRP pathutil.RP) {
	if w.Secrets == nil {
		slog.Warn("watcher: secret plaintext changed but no secrets engine configured", "path", plaintextRP.String())
		return
	}
	rules := w.Secrets.Cfg.Rules
	for _, rule := range rules {
		if rule.PlaintextPath != plaintextRP.String() {
			continue
		}
		if err := w.Secrets.Encrypt(rule); err != nil {
			slog.Warn("watcher: failed to re-encrypt secret", "path", plaintextRP.String(), "error", err)
			return
		}
		cipherRP, err := pathutil.New(rule.ResolvedCiphertextPath(w.Secrets.Cfg.SidecarSuffix))
		if err != nil {
			return
		}
		w.enqueue(cipherRP)
		return
	}
}

func (w *Watcher) armDebounce() {
	d := time.Duration(w.Cfg.DebounceMs) * time.Millisecond
	if d <= 0 {
		d = 300 * time.Millisecond
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.NewTimer(d)
}

func (w *Watcher) flushPending(ctx context.Context) {
	w.mu.Lock()
	if time.Now().Before(w.pauseUntil) && ctx.Err() == nil {
		// Paused: keep queued paths and check again after another debounce.
		if len(w.pending) > 0 {
			w.armDebounce()
		} else {
			w.debounce = nil
		}
		w.mu.Unlock()
		return
	}
	paths := make([]pathutil.RP, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[pathutil.RP]struct{}{}
	w.debounce = nil
	w.mu.Unlock()

	for _, p := range paths {
		if err := w.Stage(ctx, p.String()); err != nil {
			slog.Warn("watcher: failed to stage path", "path", p.String(), "error", err)
			telemetry.WatcherRejectedTotal.WithLabelValues("stage-failed").Inc()
			continue
		}
		telemetry.WatcherStagedTotal.Inc()
	}
}

// Flush requests an immediate flush of any pending staged paths, bypassing
// the debounce window.
func (w *Watcher) Flush() {
	select {
	case w.flush <- struct{}{}:
	default:
	}
}

// Pause inhibits staging for the given duration (0 defaults to 300s) with
// an operator-supplied reason tag.
func (w *Watcher) Pause(d time.Duration, reason string) {
	if d <= 0 {
		d = 300 * time.Second
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pauseUntil = time.Now().Add(d)
	w.pauseReason = reason
}

// Resume clears any active pause immediately.
func (w *Watcher) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pauseUntil = time.Time{}
	w.pauseReason = ""
}

func (w *Watcher) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Now().Before(w.pauseUntil)
}

// Reload atomically swaps in a new classifier and watch configuration,
// re-registering filesystem watches for the new managed roots.
func (w *Watcher) Reload(classifier *manageset.Classifier, cfg config.WatchConfig) error {
	w.mu.Lock()
	w.Classifier = classifier
	w.Cfg = cfg
	w.mu.Unlock()
	return w.registerWatches()
}

// Status summarizes the watcher's current state for the IPC status op.
type Status struct {
	Paused      bool      `json:"paused"`
	PauseReason string    `json:"pause_reason,omitempty"`
	PauseUntil  time.Time `json:"pause_until,omitempty"`
	PendingCount int      `json:"pending_count"`
}

func (w *Watcher) StatusSnapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Paused:       time.Now().Before(w.pauseUntil),
		PauseReason:  w.pauseReason,
		PauseUntil:   w.pauseUntil,
		PendingCount: len(w.pending),
	}
}
