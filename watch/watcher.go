// Package watch re-runs the conformance pipeline when files under the
// checked root change. Filesystem events are debounced and coalesced,
// and a run is triggered only when file content actually changed, so
// editor noise (chmod, touch, atomic-save renames to identical bytes)
// does not produce duplicate reports.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/conformity/report"
)

const (
	// reportChannelBuffer is the size of the report channel.
	reportChannelBuffer = 16

	// defaultDebounce is how long to wait for more changes before re-running.
	defaultDebounce = 500 * time.Millisecond
)

// relevantExts lists the file extensions whose changes affect a report.
var relevantExts = map[string]bool{
	".yml":  true,
	".yaml": true,
	".md":   true,
}

// defaultExcludes lists directory names never watched.
var defaultExcludes = []string{".git", ".hg", ".svn", "node_modules", ".venv", "venv", ".tox", ".cache"}

// RunFunc executes one full conformance check of the watched root.
type RunFunc func(ctx context.Context) (*report.Report, error)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long to wait for more changes before re-running.
	Debounce time.Duration

	// ExcludeDirs lists directory names to skip in addition to the defaults.
	ExcludeDirs []string

	// Logger receives watcher diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher watches a repository root and re-runs the check on changes.
type Watcher struct {
	root     string
	debounce time.Duration
	run      RunFunc
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	excludes map[string]bool

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	// Hash-based change detection
	hashMu sync.RWMutex
	hashes map[string]string

	// Output channel
	reports chan *report.Report

	// Metrics
	droppedReports atomic.Int64
}

// New creates a watcher for root. The run function is invoked after each
// debounced batch of effective changes.
func New(root string, run RunFunc, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	excludes := make(map[string]bool)
	for _, dir := range defaultExcludes {
		excludes[dir] = true
	}
	for _, dir := range opts.ExcludeDirs {
		excludes[dir] = true
	}

	return &Watcher{
		root:     root,
		debounce: debounce,
		run:      run,
		watcher:  fsw,
		logger:   logger,
		excludes: excludes,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		reports:  make(chan *report.Report, reportChannelBuffer),
	}, nil
}

// Reports returns the channel of completed reports. It is closed when
// the watcher stops.
func (w *Watcher) Reports() <-chan *report.Report {
	return w.reports
}

// Start begins watching the root for changes.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", w.root)
	}

	// Add watches recursively, seeding content hashes along the way
	if err := w.addWatchesRecursive(w.root); err != nil {
		return err
	}

	// Start the event processing goroutine
	go w.processEvents(ctx)

	w.logger.Info("Watcher started",
		"root", w.root,
		"debounce", w.debounce)

	return nil
}

// Stop stops the watcher.
// The reports channel is closed by processEvents when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// DroppedReports returns the number of reports dropped due to channel overflow.
func (w *Watcher) DroppedReports() int64 {
	return w.droppedReports.Load()
}

// addWatchesRecursive adds watches to all directories under root and
// records content hashes for files already present.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable subtrees are the scanner's problem to report
			if path == root {
				return err
			}
			w.logger.Warn("Skipping unreadable path", "path", path, "error", err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		base := filepath.Base(path)
		if info.IsDir() {
			if path != root && (w.excludes[base] || strings.HasPrefix(base, ".")) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("Failed to watch directory",
					"path", path,
					"error", err)
			} else {
				w.logger.Debug("Watching directory", "path", path)
			}
			return nil
		}

		if relevantExts[strings.ToLower(filepath.Ext(path))] && !strings.HasPrefix(base, ".") {
			if content, err := os.ReadFile(path); err == nil {
				rel, _ := filepath.Rel(w.root, path)
				w.setHash(rel, contentHash(content))
			}
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.reports) // Close reports channel when goroutine exits
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name
	base := filepath.Base(path)

	// Skip anything inside excluded directories
	relPath, _ := filepath.Rel(w.root, path)
	for excludeDir := range w.excludes {
		if strings.Contains(relPath, excludeDir+string(filepath.Separator)) || base == excludeDir {
			return
		}
	}
	if strings.HasPrefix(base, ".") {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Directory names are entities too, so a new directory both
			// gains a watch and marks the tree dirty
			w.handleNewDirectory(path)
			w.markPending(path, event.Op, relPath)
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// Could be a file or a directory; either way the tree changed
		w.markPending(path, event.Op, relPath)
		return
	}

	if !relevantExts[strings.ToLower(filepath.Ext(path))] {
		return
	}

	w.markPending(path, event.Op, relPath)
}

// markPending accumulates a change for the next flush.
func (w *Watcher) markPending(path string, op fsnotify.Op, relPath string) {
	w.pendingMu.Lock()
	w.pending[path] |= op
	w.pendingMu.Unlock()

	w.logger.Debug("Change detected",
		"path", relPath,
		"op", op.String())
}

// handleNewDirectory adds a watch to a newly created directory.
func (w *Watcher) handleNewDirectory(path string) {
	base := filepath.Base(path)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// flushPending re-runs the check if any accumulated change survives the
// content-hash filter.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	if !w.contentChanged(toProcess) {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	start := time.Now()
	rep, err := w.run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Check run failed", "error", err)
		return
	}

	w.logger.Info("Check completed",
		"duration", time.Since(start),
		"entities", rep.Counts.Entities,
		"violations", rep.Counts.Violations)
	w.sendReport(rep)
}

// contentChanged reports whether any pending path represents a real
// change. Hashes are updated as a side effect.
func (w *Watcher) contentChanged(toProcess map[string]fsnotify.Op) bool {
	changed := false
	for path, op := range toProcess {
		relPath, _ := filepath.Rel(w.root, path)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			w.dropHash(relPath)
			changed = true
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			w.dropHash(relPath)
			changed = true
			continue
		}
		if info.IsDir() {
			changed = true
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			w.logger.Warn("Failed to read file for hash check",
				"path", relPath,
				"error", err)
			changed = true
			continue
		}

		newHash := contentHash(content)
		oldHash, hadHash := w.getHash(relPath)
		if hadHash && oldHash == newHash {
			// Content unchanged, skip
			continue
		}
		w.setHash(relPath, newHash)
		changed = true
	}
	return changed
}

// sendReport sends a report to the output channel.
func (w *Watcher) sendReport(rep *report.Report) {
	select {
	case w.reports <- rep:
	default:
		dropped := w.droppedReports.Add(1)
		w.logger.Warn("Report channel full, dropping report",
			"run_id", rep.RunID,
			"total_dropped", dropped)
	}
}

func (w *Watcher) getHash(relPath string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[relPath]
	return hash, ok
}

func (w *Watcher) setHash(relPath, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[relPath] = hash
}

func (w *Watcher) dropHash(relPath string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, relPath)
}

// contentHash computes a SHA256 hash of the content.
func contentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
