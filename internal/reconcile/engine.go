// Package reconcile is the sync engine: the per-file reconciliation state
// machine, event-driven and polled, that drives the digest, pattern,
// store, scanner, watcher, settings, and conflict packages.
//
// The engine is a struct holding collaborator references with a Run entry
// point that gathers change context and dispatches to per-concern
// handlers, adapted from a one-shot "assess and report" flow into a
// long-running, event-driven reconciliation loop.
//
// Per the single-threaded cooperative model, reconciliation logic runs on
// one logical task: Engine.Run selects over watcher events and the poll
// timer in one loop, so two reconcile passes never interleave their
// writes to a given tracked file.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/conflict"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/settings"
	"github.com/fulmenhq/confsync/internal/store"
	"github.com/fulmenhq/confsync/internal/watcher"
	"github.com/fulmenhq/confsync/pkg/digest"
	"github.com/fulmenhq/confsync/pkg/logger"
	"github.com/fulmenhq/confsync/pkg/pattern"
	"github.com/fulmenhq/confsync/pkg/safeio"
)

// Config holds the recognized settings keys and their defaults (spec §6).
type Config struct {
	SyncIntervalMS   int
	WatchDebounceMS  int
	AutoSync         bool
	AutoCommitStore  bool
	SizeWarningMB    int
	SizeDangerMB     int
	SizeBlockedMB    int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		SyncIntervalMS:  5000,
		WatchDebounceMS: 300,
		AutoSync:        true,
		AutoCommitStore: true,
		SizeWarningMB:   20,
		SizeDangerMB:    50,
		SizeBlockedMB:   100,
	}
}

// Engine is the sync engine's per-instance state and collaborators.
type Engine struct {
	storeRoot string
	gateway   *store.Gateway
	targets   model.TargetTable
	files     model.TrackedFileTable
	conflicts *conflict.Store
	syncLog   model.SyncLogTable
	settings  *settings.Manager
	watch     *watcher.Watcher
	hub       *broadcast.Hub
	cfg       Config

	mu                 sync.Mutex
	baseCommitOverride string
	baseCommitSet      bool
	pullSyncInProgress bool
	pullCompletedAt    time.Time
	lastKnownHead      string
	blockedLogged      map[string]time.Time
	lastLogPrune       time.Time
}

// New assembles an Engine from its collaborators.
func New(
	storeRoot string,
	gateway *store.Gateway,
	targets model.TargetTable,
	files model.TrackedFileTable,
	conflicts *conflict.Store,
	syncLog model.SyncLogTable,
	settingsMgr *settings.Manager,
	watch *watcher.Watcher,
	hub *broadcast.Hub,
	cfg Config,
) *Engine {
	return &Engine{
		storeRoot:     storeRoot,
		gateway:       gateway,
		targets:       targets,
		files:         files,
		conflicts:     conflicts,
		syncLog:       syncLog,
		settings:      settingsMgr,
		watch:         watch,
		hub:           hub,
		cfg:           cfg,
		blockedLogged: make(map[string]time.Time),
	}
}

// postPullQuietWindow is how long after a pull completes that
// watcher-driven reconciliations are still skipped (§4.H.1).
const postPullQuietWindow = 2 * time.Second

// blockedLogRateLimit is how often sync_blocked is logged per target
// (§4.H.10).
const blockedLogRateLimit = 5 * time.Minute

// logPruneInterval bounds how often the polling loop prunes the sync log
// (§4.H.11).
const logPruneInterval = time.Hour

// syncLogRetention is the rolling window the sync log is pruned to (§3).
const syncLogRetention = 30 * 24 * time.Hour

func (e *Engine) storeMirrorPath(target model.Target, relPath string) string {
	return filepath.Join(e.storeRoot, target.StorePath, relPath)
}

func (e *Engine) targetPath(target model.Target, relPath string) string {
	return filepath.Join(target.LocalPath, relPath)
}

func statKind(path string) (exists bool, isSymlink bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, false
	}
	return true, info.Mode()&os.ModeSymlink != 0
}

func readContent(path string) (string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("reconcile: stat %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("reconcile: readlink %s: %w", path, err)
		}
		return target, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path resolved from tracked-file row under a managed root
	if err != nil {
		return "", fmt.Errorf("reconcile: read %s: %w", path, err)
	}
	return string(data), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reconcile: remove %s: %w", path, err)
	}
	return nil
}

func writeContent(path, content string, isSymlink bool) error {
	if isSymlink {
		_ = os.Remove(path)
		return os.Symlink(content, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reconcile: create parent dirs for %s: %w", path, err)
	}
	return safeio.WriteFilePreservePerms(path, []byte(content))
}

// markSelfChange registers an absolute path as a self-induced write so the
// watcher suppresses the resulting filesystem event.
func (e *Engine) markSelfChange(path string) {
	if e.watch != nil {
		e.watch.MarkSelfChange(path)
	}
}

func (e *Engine) digestOf(path string) (string, error) {
	return digest.OfFile(path)
}

func (e *Engine) logEvent(targetID, relPath, message string) {
	if e.syncLog == nil {
		return
	}
	_ = e.syncLog.Append(model.SyncLogEntry{
		TargetID: targetID,
		RelPath:  relPath,
		Message:  message,
	})
}

func (e *Engine) publish(name string, payload any) {
	if e.hub == nil {
		return
	}
	e.hub.Publish(name, payload)
}

// queueCommit queues a store commit, gated on the auto_commit_store
// setting (§6): when false, the reconciler still performs the write but
// leaves committing it to an explicit push/flush instead of queuing one
// for every reconcile write.
func (e *Engine) queueCommit(message string) {
	if !e.cfg.AutoCommitStore {
		return
	}
	e.gateway.QueueCommit(message)
}

// effectiveMatcher builds the pattern matcher for a target from the global
// projection plus that target's override bag. The exact override-merge
// algorithm (global enabled set, minus per-pattern overrides, plus local
// additions marked enabled) is this package's own judgment call on
// precedence ordering.
func (e *Engine) effectiveMatcher(target model.Target) *pattern.Matcher {
	proj := e.settings.Load()

	includeSet := map[string]bool{}
	for _, p := range proj.FilePatterns {
		if p.Enabled {
			includeSet[p.Pattern] = true
		}
	}
	ignoreSet := map[string]bool{}
	for _, p := range proj.IgnorePatterns {
		if p.Enabled {
			ignoreSet[p.Pattern] = true
		}
	}

	if target.Kind == model.TargetKindRepo {
		if ov, ok := proj.RepoOverrides[target.StorePath]; ok {
			applyOverride(includeSet, ov.FilePatternOverrides)
			applyOverride(includeSet, ov.FilePatternLocal)
			applyOverride(ignoreSet, ov.IgnorePatternOverrides)
			applyOverride(ignoreSet, ov.IgnorePatternLocal)
		}
	} else {
		if ov, ok := proj.ServiceOverrides[target.StorePath]; ok {
			applyOverride(includeSet, ov.PatternDefaults)
			applyOverride(includeSet, ov.PatternCustom)
			applyOverride(ignoreSet, ov.IgnoreOverrides)
			applyOverride(ignoreSet, ov.IgnoreCustom)
		}
	}

	return pattern.New(toSortedSlice(includeSet), toSortedSlice(ignoreSet))
}

func applyOverride(set map[string]bool, overrides map[string]string) {
	for pat, state := range overrides {
		switch state {
		case "enabled":
			set[pat] = true
		case "disabled":
			delete(set, pat)
		}
	}
}

func toSortedSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) logWarn(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}
