package reconcile

import (
	"strings"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/conflict"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/store"
)

// handleMergeConflicts implements §4.H.8: for each file EnsureStoreCommitted
// had to abort a merge on, resolve it to a (target, trackedFile) pair and
// open a conflict record, unless one is already pending.
func (e *Engine) handleMergeConflicts(conflicts []store.CommitQueueConflict) {
	for _, c := range conflicts {
		target, ok := e.resolveTargetByStorePath(c.Path)
		if !ok {
			continue
		}
		relPath := strings.TrimPrefix(strings.TrimPrefix(c.Path, target.StorePath), "/")
		tf, ok := e.files.GetByTargetAndPath(target.ID, relPath)
		if !ok {
			continue
		}
		if _, pending := e.conflicts.PendingForTrackedFile(tf.ID); pending {
			continue
		}

		storePath := e.storeMirrorPath(target, relPath)
		e.markSelfChange(storePath)

		created, err := e.conflicts.Create(conflict.CreateInput{
			TrackedFileID: tf.ID,
			Kind:          model.ConflictKindConflict,
			StoreContent:  c.Theirs,
			TargetContent: c.Ours,
			BaseContent:   c.Ours,
		})
		if err != nil {
			e.logWarn("reconcile: open merge conflict %s: %v", relPath, err)
			continue
		}
		tf.Status = model.SyncStatusConflict
		_ = e.files.Update(tf)
		e.publish(broadcast.EventSyncStatus, created)
	}
}

func (e *Engine) resolveTargetByStorePath(storeRelPath string) (model.Target, bool) {
	for _, t := range e.targets.List() {
		if hasPathPrefix(storeRelPath, t.StorePath) {
			return t, true
		}
	}
	return model.Target{}, false
}

// syncAfterPull implements §4.H.9, the most delicate routine in the engine:
// a full reconciliation pass against a fixed pre-pull baseline, careful to
// quiesce the watcher's store-side debounce timers before releasing
// pullSyncInProgress so that late-arriving debounced events from the pull
// itself cannot reconcile against the new HEAD and stomp the just-pulled
// content with the pre-pull target content.
func (e *Engine) syncAfterPull(prePullHead string) {
	e.mu.Lock()
	e.baseCommitOverride = prePullHead
	e.baseCommitSet = true
	e.pullSyncInProgress = true
	e.mu.Unlock()

	func() {
		defer func() {
			// clearStoreDebounceTimers MUST precede clearing
			// pullSyncInProgress: reversing the order lets a debounced
			// store event fire against the new HEAD as baseline and
			// re-overwrite the pulled content with stale target content.
			if e.watch != nil {
				e.watch.ClearStoreDebounceTimers()
			}
			e.mu.Lock()
			e.pullCompletedAt = time.Now().UTC()
			e.pullSyncInProgress = false
			e.baseCommitOverride = ""
			e.baseCommitSet = false
			e.mu.Unlock()
		}()

		for _, t := range e.targets.List() {
			if t.Status != model.TargetStatusActive {
				continue
			}
			matcher := e.effectiveMatcher(t)
			for _, tf := range e.files.ListByTarget(t.ID) {
				e.syncFile(t, tf, matcher)
			}
		}
	}()

	if err := e.gateway.Commit("Sync after pull"); err != nil {
		e.logWarn("reconcile: commit after pull: %v", err)
	}
	if head, err := e.gateway.HeadIdentity(); err == nil {
		e.mu.Lock()
		e.lastKnownHead = head
		e.mu.Unlock()
	}
}

// SyncAfterPull runs the same post-pull reconciliation pass the engine
// triggers automatically when it notices an external HEAD change
// (checkForExternalHeadChange), using prePullHead as the three-way-merge
// baseline. A CLI-driven pull calls this directly: a one-shot process has
// no long-running engine loop around to notice its own pull.
func (e *Engine) SyncAfterPull(prePullHead string) {
	e.syncAfterPull(prePullHead)
}

// EnterPullMode quiesces the reconciler for a manually-driven pull
// orchestration outside the core (§4.H.12).
func (e *Engine) EnterPullMode() {
	e.mu.Lock()
	e.pullSyncInProgress = true
	e.mu.Unlock()
}

// LeavePullMode releases the quiescence entered via EnterPullMode.
func (e *Engine) LeavePullMode() {
	if e.watch != nil {
		e.watch.ClearStoreDebounceTimers()
	}
	e.mu.Lock()
	e.pullCompletedAt = time.Now().UTC()
	e.pullSyncInProgress = false
	e.mu.Unlock()
}
