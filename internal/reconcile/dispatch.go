package reconcile

import (
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/watcher"
)

// Dispatch routes one debounced watcher event to the appropriate handler
// based on its scope (§4.H.1).
func (e *Engine) Dispatch(ev watcher.Event) {
	switch ev.Scope {
	case watcher.ScopeStore:
		e.handleStoreChange(ev.RelPath)
	case watcher.ScopeServiceStore:
		e.handleServiceStoreChange(ev.RelPath)
	case watcher.ScopeTarget:
		e.handleTargetChange(ev.TargetID, ev.RelPath)
	case watcher.ScopeServiceTarget:
		e.handleServiceTargetChange(ev.TargetID, ev.RelPath)
	}
}

func (e *Engine) inQuietWindow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pullSyncInProgress {
		return true
	}
	return !e.pullCompletedAt.IsZero() && time.Since(e.pullCompletedAt) < postPullQuietWindow
}

func (e *Engine) handleStoreChange(relPath string) {
	e.handleChange("", relPath, false)
}

func (e *Engine) handleServiceStoreChange(relPath string) {
	e.handleChange("", relPath, false)
}

func (e *Engine) handleTargetChange(targetID, relPath string) {
	e.handleChange(targetID, relPath, true)
}

func (e *Engine) handleServiceTargetChange(targetID, relPath string) {
	e.handleChange(targetID, relPath, true)
}

// handleChange implements the shared body of the four dispatch handlers.
// fromTarget is true when the raw event originated on the target side
// (used to resolve the owning target when the event carries no target ID
// of its own, i.e. store-side events).
func (e *Engine) handleChange(targetID, relPath string, fromTarget bool) {
	if !e.cfg.AutoSync {
		// §6: auto_sync=false inhibits event-driven reconciles only;
		// polling (ScanAndReconcileAll via the poll timer) still runs for
		// maintenance and is untouched by this guard.
		return
	}
	if e.inQuietWindow() {
		return
	}
	if e.checkForExternalHeadChange() {
		return
	}

	target, ok := e.resolveTarget(targetID, relPath, fromTarget)
	if !ok {
		return
	}

	// Store-side events carry a store-relative path rooted at the store
	// itself (e.g. "repos/r1/CLAUDE.md"); everything downstream keys off
	// the path relative to the target's own mirror/root (e.g.
	// "CLAUDE.md"), so strip the target's store-path prefix here.
	if !fromTarget {
		relPath = strings.TrimPrefix(strings.TrimPrefix(relPath, target.StorePath), "/")
	}

	matcher := e.effectiveMatcher(target)
	storePath := e.storeMirrorPath(target, relPath)
	targetPath := e.targetPath(target, relPath)
	storeExists, storeSymlink := statKind(storePath)
	targetExists, targetSymlink := statKind(targetPath)
	isDir := false
	if fromTarget {
		if targetExists {
			if info, err := os.Lstat(targetPath); err == nil {
				isDir = info.IsDir()
			}
		}
	} else if storeExists {
		if info, err := os.Lstat(storePath); err == nil {
			isDir = info.IsDir()
		}
	}
	if !matcher.Included(relPath, isDir) {
		return
	}

	tf, existed := e.files.GetByTargetAndPath(target.ID, relPath)
	if !existed {
		status := model.SyncStatusPendingToTarget
		if fromTarget {
			status = model.SyncStatusPendingToStore
		}
		kind := model.FileKindFile
		if (storeExists && storeSymlink) || (targetExists && targetSymlink) {
			kind = model.FileKindSymlink
		}
		created, err := e.files.Insert(model.TrackedFile{
			TargetID: target.ID,
			RelPath:  relPath,
			Kind:     kind,
			Status:   status,
		})
		if err != nil {
			return
		}
		tf = created
	}

	e.syncFile(target, tf, matcher)
}

func (e *Engine) resolveTarget(targetID, relPath string, fromTarget bool) (model.Target, bool) {
	if fromTarget && targetID != "" {
		return e.targets.Get(targetID)
	}
	// Store-side events carry a store-relative path of the form
	// "repos/<slug>/..." or "services/<slug>/...": resolve the owning
	// target by matching the longest store-path prefix.
	best, found := model.Target{}, false
	for _, t := range e.targets.List() {
		if hasPathPrefix(relPath, t.StorePath) && len(t.StorePath) > len(best.StorePath) {
			best, found = t, true
		}
	}
	return best, found
}

// hasPathPrefix reports whether relPath equals prefix or lies beneath it.
func hasPathPrefix(relPath, prefix string) bool {
	return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
}

// checkForExternalHeadChange compares the current HEAD identity to the
// last-known one; if different, it assumes an external VCS operation
// (e.g. a pull run outside the engine) occurred and schedules a post-pull
// pass using the previous HEAD as base (§4.H.7).
func (e *Engine) checkForExternalHeadChange() bool {
	e.mu.Lock()
	if e.pullSyncInProgress {
		e.mu.Unlock()
		return false
	}
	previous := e.lastKnownHead
	e.mu.Unlock()

	current, err := e.gateway.HeadIdentity()
	if err != nil || current == "" || current == previous {
		return false
	}

	e.mu.Lock()
	e.lastKnownHead = current
	e.mu.Unlock()

	e.syncAfterPull(previous)
	return true
}
