// Package app assembles the reconciler's collaborators into one running
// instance and gives the CLI a place to persist the small amount of
// state (targets, tracked files, pending conflicts) that otherwise lives
// only in the in-memory tables internal/model provides. The relational
// persistence layer those tables stand in for is explicitly out of
// scope; this package does not reintroduce it. It only snapshots enough
// of the in-memory tables to disk, under the store's own reserved
// private-state directory, so that two separate confsync invocations
// (e.g. "confsync link" followed later by "confsync run") see the same
// targets and tracked files instead of each starting from a blank slate.
package app

import (
	"fmt"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/conflict"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/reconcile"
	"github.com/fulmenhq/confsync/internal/settings"
	"github.com/fulmenhq/confsync/internal/store"
	"github.com/fulmenhq/confsync/internal/watcher"
)

// App holds one fully wired set of collaborators rooted at a single
// store directory.
type App struct {
	StoreRoot string
	Gateway   *store.Gateway
	Targets   model.TargetTable
	Files     model.TrackedFileTable
	Conflicts model.ConflictTable
	ConflictStore *conflict.Store
	SyncLog   model.SyncLogTable
	Settings  *settings.Manager
	Hub       *broadcast.Hub
	Watcher   *watcher.Watcher
	Engine    *reconcile.Engine
	Cfg       reconcile.Config
}

// Open opens an already-initialized store at storeRoot, restores any
// previously persisted targets/tracked-files/conflicts snapshot, and
// assembles the engine and its collaborators. Callers that want a watcher
// running (the "run" command) still need to register targets' roots and
// call Watcher.Run themselves; Open only constructs the Watcher.
func Open(storeRoot string, cfg reconcile.Config) (*App, error) {
	gateway, err := store.Open(storeRoot)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	targets := model.NewMemTargetTable()
	files := model.NewMemTrackedFileTable()
	conflicts := model.NewMemConflictTable()
	syncLog := model.NewMemSyncLogTable()

	snap, err := loadSnapshot(storeRoot)
	if err != nil {
		return nil, fmt.Errorf("app: load state snapshot: %w", err)
	}
	for _, t := range snap.Targets {
		if _, err := targets.Insert(t); err != nil {
			return nil, fmt.Errorf("app: restore target %s: %w", t.StorePath, err)
		}
	}
	for _, f := range snap.TrackedFiles {
		if _, err := files.Insert(f); err != nil {
			return nil, fmt.Errorf("app: restore tracked file %s: %w", f.RelPath, err)
		}
	}
	for _, c := range snap.Conflicts {
		if _, err := conflicts.Insert(c); err != nil {
			return nil, fmt.Errorf("app: restore conflict %s: %w", c.ID, err)
		}
	}

	settingsMgr, err := settings.NewManager(storeRoot, gateway)
	if err != nil {
		return nil, fmt.Errorf("app: new settings manager: %w", err)
	}

	hub := broadcast.NewHub()
	conflictStore := conflict.New(conflicts, hub)

	debounce := time.Duration(cfg.WatchDebounceMS) * time.Millisecond
	watch, err := watcher.New(debounce, watcher.DefaultSelfChangeTTL)
	if err != nil {
		return nil, fmt.Errorf("app: new watcher: %w", err)
	}

	engine := reconcile.New(storeRoot, gateway, targets, files, conflictStore, syncLog, settingsMgr, watch, hub, cfg)

	return &App{
		StoreRoot:     storeRoot,
		Gateway:       gateway,
		Targets:       targets,
		Files:         files,
		Conflicts:     conflicts,
		ConflictStore: conflictStore,
		SyncLog:       syncLog,
		Settings:      settingsMgr,
		Hub:           hub,
		Watcher:       watch,
		Engine:        engine,
		Cfg:           cfg,
	}, nil
}

// WatchTargets registers fsnotify watches for every active target's root
// (and the store itself), required before Watcher.Run is started.
func (a *App) WatchTargets() error {
	if err := a.Watcher.WatchStore(a.StoreRoot); err != nil {
		return fmt.Errorf("app: watch store: %w", err)
	}
	for _, t := range a.Targets.List() {
		if t.Status != model.TargetStatusActive {
			continue
		}
		var err error
		if t.Kind == model.TargetKindService {
			err = a.Watcher.WatchServiceTarget(t.ID, t.LocalPath)
		} else {
			err = a.Watcher.WatchTarget(t.ID, t.LocalPath)
		}
		if err != nil {
			return fmt.Errorf("app: watch target %s: %w", t.StorePath, err)
		}
	}
	return nil
}

// Save persists the current targets/tracked-files/pending-conflicts
// snapshot back to the store's private state directory. Callers should
// call this once before exiting whenever they may have mutated the
// tables (link, unlink, run, resolve).
func (a *App) Save() error {
	snap := snapshot{
		Targets: a.Targets.List(),
	}
	for _, t := range snap.Targets {
		snap.TrackedFiles = append(snap.TrackedFiles, a.Files.ListByTarget(t.ID)...)
	}
	snap.Conflicts = a.Conflicts.ListAll()
	return saveSnapshot(a.StoreRoot, snap)
}

// Close releases the watcher's OS resources. Safe to call even if the
// watcher was never started.
func (a *App) Close() error {
	return a.Watcher.Close()
}
