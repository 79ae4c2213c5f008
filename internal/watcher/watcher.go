// Package watcher produces debounced, self-change-aware change
// notifications for the store and target roots the reconciler follows.
//
// This concern has no one-shot-CLI equivalent, so it is built fresh atop
// github.com/fsnotify/fsnotify, already an indirect dependency via go-git
// and the same filesystem-watching library reached for elsewhere in the
// ecosystem.
//
// Per the single-threaded cooperative model, there is no per-event
// goroutine fan-out: one dedicated goroutine drains the fsnotify event
// channel and arms debounce timers; a mutex guards the small amount of
// shared state (debounce timers, the self-change TTL map) those timers'
// callbacks touch from a different goroutine.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fulmenhq/confsync/pkg/logger"
)

// Scope identifies which of the four semantic event families a raw
// filesystem event belongs to.
type Scope string

const (
	ScopeStore         Scope = "store"
	ScopeServiceStore  Scope = "serviceStore"
	ScopeTarget        Scope = "target"
	ScopeServiceTarget Scope = "serviceTarget"
)

// DefaultDebounce is the quiescence window before a debounced event fires.
const DefaultDebounce = 300 * time.Millisecond

// DefaultSelfChangeTTL is how long a self-registered path is suppressed.
const DefaultSelfChangeTTL = 5 * time.Second

const selfChangeSweepInterval = 60 * time.Second

// Event is one debounced, semantic change notification.
type Event struct {
	Scope    Scope
	TargetID string // empty for ScopeStore/ScopeServiceStore
	RelPath  string // slash-separated, relative to the watched root
}

type watchedRoot struct {
	scope    Scope
	targetID string
	absRoot  string
}

// Watcher wraps a single fsnotify.Watcher across any number of registered
// roots, producing Event values on its output channel after debouncing.
type Watcher struct {
	fsw *fsnotify.Watcher

	debounce      time.Duration
	selfChangeTTL time.Duration

	mu             sync.Mutex
	roots          []watchedRoot
	debounceTimers map[string]*time.Timer
	selfChanges    map[string]time.Time

	events chan Event
	done   chan struct{}
	closed bool
}

// New creates a Watcher with the given debounce and self-change TTL. Zero
// values fall back to DefaultDebounce / DefaultSelfChangeTTL.
func New(debounce, selfChangeTTL time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if selfChangeTTL <= 0 {
		selfChangeTTL = DefaultSelfChangeTTL
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		fsw:            fsw,
		debounce:       debounce,
		selfChangeTTL:  selfChangeTTL,
		debounceTimers: make(map[string]*time.Timer),
		selfChanges:    make(map[string]time.Time),
		events:         make(chan Event, 64),
		done:           make(chan struct{}),
	}
	return w, nil
}

// Events returns the channel of debounced, semantic change events.
func (w *Watcher) Events() <-chan Event { return w.events }

// WatchStore registers the store root under ScopeStore.
func (w *Watcher) WatchStore(root string) error {
	return w.watchRoot(ScopeStore, "", root)
}

// WatchServiceStore registers the service half of the store under
// ScopeServiceStore.
func (w *Watcher) WatchServiceStore(root string) error {
	return w.watchRoot(ScopeServiceStore, "", root)
}

// WatchTarget registers a repo target's working directory.
func (w *Watcher) WatchTarget(targetID, root string) error {
	return w.watchRoot(ScopeTarget, targetID, root)
}

// WatchServiceTarget registers a service target's configuration directory.
func (w *Watcher) WatchServiceTarget(serviceID, root string) error {
	return w.watchRoot(ScopeServiceTarget, serviceID, root)
}

func (w *Watcher) watchRoot(scope Scope, targetID, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("watcher: resolve root: %w", err)
	}
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr == nil && info.Mode()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watcher: add watches under %s: %w", absRoot, err)
	}

	w.mu.Lock()
	w.roots = append(w.roots, watchedRoot{scope: scope, targetID: targetID, absRoot: absRoot})
	w.mu.Unlock()
	return nil
}

// MarkSelfChange registers absPath as a self-induced change, suppressed
// until the configured TTL elapses.
func (w *Watcher) MarkSelfChange(absPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selfChanges[filepath.Clean(absPath)] = time.Now().Add(w.selfChangeTTL)
}

// ClearStoreDebounceTimers discards all pending debounced timers whose key
// starts with "store:" or "serviceStore:". This is required after a pull,
// before clearing pull-mode state, so late debounced events do not
// reconcile against the new HEAD using stale pending timers.
func (w *Watcher) ClearStoreDebounceTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, timer := range w.debounceTimers {
		if strings.HasPrefix(key, string(ScopeStore)+":") || strings.HasPrefix(key, string(ScopeServiceStore)+":") {
			timer.Stop()
			delete(w.debounceTimers, key)
		}
	}
}

// Run drains the fsnotify event channel on the calling goroutine until
// stop is closed. Callers should invoke it as `go w.Run(stop)`.
func (w *Watcher) Run(stop <-chan struct{}) {
	sweep := time.NewTicker(selfChangeSweepInterval)
	defer sweep.Stop()
	for {
		select {
		case <-stop:
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", logger.Err(err))
		case <-sweep.C:
			w.sweepSelfChanges()
		}
	}
}

// Close stops the underlying fsnotify watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.debounceTimers {
		t.Stop()
	}
	w.debounceTimers = make(map[string]*time.Timer)
	close(w.done)
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) handleRaw(ev fsnotify.Event) {
	absPath := filepath.Clean(ev.Name)

	w.mu.Lock()
	if expiry, ok := w.selfChanges[absPath]; ok {
		if time.Now().Before(expiry) {
			w.mu.Unlock()
			return
		}
		delete(w.selfChanges, absPath)
	}

	root, rel, found := w.resolveRoot(absPath)
	if !found {
		w.mu.Unlock()
		return
	}

	key := debounceKey(root.scope, root.targetID, rel)
	if timer, ok := w.debounceTimers[key]; ok {
		timer.Stop()
	}
	w.debounceTimers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceTimers, key)
		w.mu.Unlock()
		select {
		case w.events <- Event{Scope: root.scope, TargetID: root.targetID, RelPath: rel}:
		case <-w.done:
		}
	})
	w.mu.Unlock()
}

func (w *Watcher) resolveRoot(absPath string) (watchedRoot, string, bool) {
	var best watchedRoot
	bestLen := -1
	for _, r := range w.roots {
		if absPath == r.absRoot || strings.HasPrefix(absPath, r.absRoot+string(os.PathSeparator)) {
			if len(r.absRoot) > bestLen {
				best = r
				bestLen = len(r.absRoot)
			}
		}
	}
	if bestLen == -1 {
		return watchedRoot{}, "", false
	}
	rel, err := filepath.Rel(best.absRoot, absPath)
	if err != nil {
		return watchedRoot{}, "", false
	}
	return best, filepath.ToSlash(rel), true
}

func (w *Watcher) sweepSelfChanges() {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for path, expiry := range w.selfChanges {
		if now.After(expiry) {
			delete(w.selfChanges, path)
		}
	}
}

func debounceKey(scope Scope, targetID, relPath string) string {
	if targetID == "" {
		return fmt.Sprintf("%s:%s", scope, relPath)
	}
	return fmt.Sprintf("%s:%s:%s", scope, targetID, relPath)
}
