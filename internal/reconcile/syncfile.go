package reconcile

import (
	"fmt"
	"path"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/conflict"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/store"
	"github.com/fulmenhq/confsync/pkg/digest"
	"github.com/fulmenhq/confsync/pkg/logger"
	"github.com/fulmenhq/confsync/pkg/pattern"
)

// syncFile runs the per-file state machine for one tracked-file row
// (§4.H.2). matcher is unused directly here (ignore filtering already
// happened in the caller) but is threaded through for future per-kind
// pattern decisions.
func (e *Engine) syncFile(target model.Target, tf model.TrackedFile, _ *pattern.Matcher) {
	storePath := e.storeMirrorPath(target, tf.RelPath)
	targetPath := e.targetPath(target, tf.RelPath)

	storeExists, storeSymlink := statKind(storePath)
	targetExists, targetSymlink := statKind(targetPath)

	// Kind correction: the DB says "file" but disk disagrees.
	if tf.Kind == model.FileKindFile && (storeSymlink || targetSymlink) {
		tf.Kind = model.FileKindSymlink
		if err := e.files.Update(tf); err != nil {
			e.logWarn("reconcile: kind-correct %s: %v", tf.RelPath, err)
			return
		}
	}

	if tf.Kind == model.FileKindSymlink {
		e.syncSymlink(target, tf, storePath, targetPath, storeExists, targetExists)
		return
	}

	switch {
	case !storeExists && !targetExists:
		_ = e.files.Delete(tf.ID)
		return

	case storeExists && !targetExists:
		if tf.Status == model.SyncStatusSynced && tf.TargetDigest != "" {
			e.createDeleteConflict(target, tf, model.ConflictKindMissingInTarget, storePath)
			return
		}
		e.copyFile(target, tf, storePath, targetPath, true)
		return

	case !storeExists && targetExists:
		if tf.Status == model.SyncStatusSynced && tf.StoreDigest != "" {
			e.createDeleteConflict(target, tf, model.ConflictKindMissingInStore, targetPath)
			return
		}
		e.copyFile(target, tf, storePath, targetPath, false)
		return
	}

	e.syncRegularFile(target, tf, storePath, targetPath)
}

// copyFile copies the surviving side onto the missing side for a
// delete/not-yet-created pair (§4.H.2 existence table, T/F and F/T rows).
// storeToTarget selects the direction.
func (e *Engine) copyFile(target model.Target, tf model.TrackedFile, storePath, targetPath string, storeToTarget bool) {
	src, dst := targetPath, storePath
	if storeToTarget {
		src, dst = storePath, targetPath
	}
	content, err := readContent(src)
	if err != nil {
		e.logWarn("reconcile: read %s: %v", src, err)
		return
	}
	if err := writeContent(dst, content, tf.Kind == model.FileKindSymlink); err != nil {
		e.logWarn("reconcile: write %s: %v", dst, err)
		return
	}
	e.markSelfChange(dst)

	d := digest.OfString(content)
	tf.StoreDigest = d
	tf.TargetDigest = d
	tf.Status = model.SyncStatusSynced
	tf.LastReconciled = time.Now().UTC()
	if mt, err := digest.ModTime(storePath); err == nil {
		tf.StoreModTime = mt
	}
	if mt, err := digest.ModTime(targetPath); err == nil {
		tf.TargetModTime = mt
	}
	if err := e.files.Update(tf); err != nil {
		e.logWarn("reconcile: persist %s: %v", tf.RelPath, err)
		return
	}

	dir := "store to target"
	if !storeToTarget {
		dir = "target to store"
	}
	e.logEvent(target.ID, tf.RelPath, fmt.Sprintf("copied %s", dir))
	e.publish(broadcast.EventSyncStatus, tf)
	e.queueCommit(fmt.Sprintf("Sync %s", tf.RelPath))
}

// syncRegularFile implements steps 4-8 of §4.H.2 for the T/T case.
func (e *Engine) syncRegularFile(target model.Target, tf model.TrackedFile, storePath, targetPath string) {
	storeContent, err := readContent(storePath)
	if err != nil {
		e.logWarn("reconcile: read %s: %v", storePath, err)
		return
	}
	targetContent, err := readContent(targetPath)
	if err != nil {
		e.logWarn("reconcile: read %s: %v", targetPath, err)
		return
	}

	// Step 4: fast-path equality.
	if storeContent == targetContent {
		if e.inPullOverride() && store.ContainsConflictMarkers(storeContent) {
			e.handlePoisonedEquality(target, tf, storePath, targetPath, storeContent)
			return
		}
		e.settleEqual(target, tf, storePath, targetPath, storeContent)
		return
	}

	// Capture HEAD *before* the checkpoint commit below: that checkpoint
	// commits the store's current (possibly just-changed) content, so
	// reading the baseline after it would compare storeContent against
	// itself. The true common ancestor for this comparison is whatever
	// HEAD was prior to checkpointing.
	preCommitHead, _ := e.gateway.HeadIdentity()

	// Step 5: ensure store committed before comparing against a baseline.
	if conflicts, err := e.gateway.EnsureStoreCommitted(); err != nil {
		e.logWarn("reconcile: ensure store committed: %v", err)
		return
	} else if len(conflicts) > 0 {
		e.handleMergeConflicts(conflicts)
		return
	}
	if head, err := e.gateway.HeadIdentity(); err == nil {
		e.mu.Lock()
		e.lastKnownHead = head
		e.mu.Unlock()
	}

	// Step 6: baseline acquisition.
	base, haveBase := e.readBaseline(target, tf, preCommitHead)
	if !haveBase {
		e.syncHeuristic(target, tf, storePath, targetPath, storeContent, targetContent)
		return
	}

	storeChanged := storeContent != base
	targetChanged := targetContent != base

	switch {
	case storeChanged && !targetChanged:
		if store.ContainsConflictMarkers(storeContent) && e.inPullOverride() {
			e.revertPoisonedStore(target, tf, storePath, targetContent, storeContent)
			return
		}
		e.copyFile(target, tf, storePath, targetPath, true)
	case !storeChanged && targetChanged:
		e.copyFile(target, tf, storePath, targetPath, false)
	case !storeChanged && !targetChanged:
		// Both sides match base but differ from each other: unreachable
		// under the fast-path check above unless we mis-read; treat as
		// store-wins per the deterministic tie-break.
		e.copyFile(target, tf, storePath, targetPath, true)
	default:
		e.threeWayMerge(target, tf, storePath, targetPath, base, storeContent, targetContent)
	}
}

// readBaseline resolves the three-way baseline for a tracked file, honoring
// a post-pull baseCommitOverride (§4.H.2 step 6). preCommitHead is the
// gateway's HEAD identity captured before syncRegularFile's checkpoint
// commit (step 5); it is used as the non-override revision so the baseline
// reflects the state before this pass's own checkpoint, not after it.
func (e *Engine) readBaseline(target model.Target, tf model.TrackedFile, preCommitHead string) (string, bool) {
	e.mu.Lock()
	override := e.baseCommitOverride
	overrideSet := e.baseCommitSet
	e.mu.Unlock()

	revision := preCommitHead
	if overrideSet {
		revision = override
	}
	if revision == "" {
		revision = "HEAD"
	}
	rel := path.Join(target.StorePath, tf.RelPath)
	data, err := e.gateway.GetContentAtRevision(rel, revision)
	if err != nil || data == nil {
		return "", false
	}
	return string(data), true
}

// syncHeuristic handles first-ever sync for a tracked file with no VCS
// history (§4.H.2 step 6a).
func (e *Engine) syncHeuristic(target model.Target, tf model.TrackedFile, storePath, targetPath, storeContent, targetContent string) {
	storeDigest := digest.OfString(storeContent)
	targetDigest := digest.OfString(targetContent)
	storeChanged := tf.StoreDigest != "" && tf.StoreDigest != storeDigest
	targetChanged := tf.TargetDigest != "" && tf.TargetDigest != targetDigest

	switch {
	case storeChanged && !targetChanged:
		e.copyFile(target, tf, storePath, targetPath, true)
	case targetChanged && !storeChanged:
		e.copyFile(target, tf, storePath, targetPath, false)
	default:
		// Both sides changed (or neither did) with no VCS history to break
		// the tie: store wins silently, but log the decision so it stays
		// debuggable.
		logger.Debug("sync heuristic tie-break: store wins",
			logger.String("store_digest", storeDigest),
			logger.String("target_digest", targetDigest),
		)
		e.copyFile(target, tf, storePath, targetPath, true)
	}
}

// settleEqual implements step 4's non-poisoned path: both sides already
// match, so just refresh bookkeeping and clear any conflict that no longer
// applies.
func (e *Engine) settleEqual(target model.Target, tf model.TrackedFile, storePath, targetPath, content string) {
	d := digest.OfString(content)
	changed := tf.StoreDigest != d || tf.TargetDigest != d || tf.Status != model.SyncStatusSynced

	pending, hasPending := e.conflicts.PendingForTrackedFile(tf.ID)
	clearedConflict := false
	if hasPending {
		// §4.H.4: do not auto-clear if the remote side still differs from
		// current content while the local side matches it -- that means
		// the user resolved locally and still needs to review the remote.
		if pending.StoreContent != content && pending.TargetContent == content {
			tf.StoreDigest = d
			tf.TargetDigest = d
			if mt, err := digest.ModTime(storePath); err == nil {
				tf.StoreModTime = mt
			}
			if mt, err := digest.ModTime(targetPath); err == nil {
				tf.TargetModTime = mt
			}
			tf.Status = model.SyncStatusConflict
			_ = e.files.Update(tf)
			return
		}
		if _, err := e.conflicts.AutoClear(pending.ID); err == nil {
			clearedConflict = true
		}
	}

	tf.StoreDigest = d
	tf.TargetDigest = d
	if mt, err := digest.ModTime(storePath); err == nil {
		tf.StoreModTime = mt
	}
	if mt, err := digest.ModTime(targetPath); err == nil {
		tf.TargetModTime = mt
	}
	tf.Status = model.SyncStatusSynced
	tf.LastReconciled = time.Now().UTC()
	if err := e.files.Update(tf); err != nil {
		e.logWarn("reconcile: persist %s: %v", tf.RelPath, err)
		return
	}

	if changed || clearedConflict {
		e.publish(broadcast.EventSyncStatus, tf)
	}
}

// threeWayMerge implements step 7's "both changed" branch and step 8's
// outcome handling.
func (e *Engine) threeWayMerge(target model.Target, tf model.TrackedFile, storePath, targetPath, base, storeContent, targetContent string) {
	result, err := e.gateway.ThreeWayMerge(base, storeContent, targetContent)
	if err != nil {
		e.logWarn("reconcile: three-way merge %s: %v", tf.RelPath, err)
		return
	}
	if !result.HasConflicts {
		if err := writeContent(storePath, result.Content, false); err != nil {
			e.logWarn("reconcile: write merged store %s: %v", tf.RelPath, err)
			return
		}
		if err := writeContent(targetPath, result.Content, false); err != nil {
			e.logWarn("reconcile: write merged target %s: %v", tf.RelPath, err)
			return
		}
		e.markSelfChange(storePath)
		e.markSelfChange(targetPath)

		d := digest.OfString(result.Content)
		tf.StoreDigest = d
		tf.TargetDigest = d
		tf.Status = model.SyncStatusSynced
		tf.LastReconciled = time.Now().UTC()
		_ = e.files.Update(tf)
		e.logEvent(target.ID, tf.RelPath, "3-way merge succeeded")
		e.publish(broadcast.EventSyncStatus, tf)
		e.queueCommit(fmt.Sprintf("Sync %s", tf.RelPath))
		return
	}

	e.openOrRefreshConflict(tf, model.ConflictKindConflict, base, storeContent, targetContent, result.Content)
}

// openOrRefreshConflict opens a new conflict, or refreshes an existing
// pending one's snapshots, for a tracked file.
func (e *Engine) openOrRefreshConflict(tf model.TrackedFile, kind model.ConflictKind, base, storeContent, targetContent, merged string) {
	if existing, ok := e.conflicts.PendingForTrackedFile(tf.ID); ok {
		updated, err := e.conflicts.Update(existing.ID, storeContent, targetContent, merged)
		if err != nil {
			e.logWarn("reconcile: refresh conflict %s: %v", tf.RelPath, err)
			return
		}
		tf.Status = model.SyncStatusConflict
		_ = e.files.Update(tf)
		e.publish(broadcast.EventSyncStatus, updated)
		return
	}
	created, err := e.conflicts.Create(conflict.CreateInput{
		TrackedFileID: tf.ID,
		Kind:          kind,
		StoreContent:  storeContent,
		TargetContent: targetContent,
		BaseContent:   base,
		MergedContent: merged,
		StoreDigest:   digest.OfString(storeContent),
		TargetDigest:  digest.OfString(targetContent),
	})
	if err != nil {
		e.logWarn("reconcile: open conflict %s: %v", tf.RelPath, err)
		return
	}
	tf.Status = model.SyncStatusConflict
	_ = e.files.Update(tf)
	e.publish(broadcast.EventSyncStatus, created)
}

// handlePoisonedEquality implements §4.H.3's first bullet: both sides are
// byte-equal but the shared content itself is marker-laden. Both disk
// copies are reverted to the "ours" (HEAD) side, but the conflict record
// must still carry the "theirs" (incoming/remote) side as store_content so
// the user can review it -- ours is the base here, matching the
// §4.H.8 convention (openOrRefreshConflict's signature is
// (tf, kind, base, storeContent, targetContent, merged)).
func (e *Engine) handlePoisonedEquality(target model.Target, tf model.TrackedFile, storePath, targetPath, markedContent string) {
	ours, theirs := store.ParseConflictMarkers(markedContent)

	if err := writeContent(storePath, ours, false); err != nil {
		e.logWarn("reconcile: revert poisoned store %s: %v", tf.RelPath, err)
		return
	}
	if err := writeContent(targetPath, ours, false); err != nil {
		e.logWarn("reconcile: revert poisoned target %s: %v", tf.RelPath, err)
		return
	}
	e.markSelfChange(storePath)
	e.markSelfChange(targetPath)

	e.openOrRefreshConflict(tf, model.ConflictKindConflict, ours, theirs, ours, markedContent)
	e.logEvent(target.ID, tf.RelPath, "reverted poisoned pull content")
}

// revertPoisonedStore implements §4.H.3's second bullet: during a post-pull
// pass, "only store changed" turns out to mean the pulled store content
// itself is marker-laden. Same mapping as handlePoisonedEquality: ours is
// the base, theirs is store_content, ours is target_content.
func (e *Engine) revertPoisonedStore(target model.Target, tf model.TrackedFile, storePath, targetContent, markedContent string) {
	ours, theirs := store.ParseConflictMarkers(markedContent)
	if err := writeContent(storePath, ours, false); err != nil {
		e.logWarn("reconcile: revert poisoned store %s: %v", tf.RelPath, err)
		return
	}
	e.markSelfChange(storePath)
	_ = targetContent

	e.openOrRefreshConflict(tf, model.ConflictKindConflict, ours, theirs, ours, markedContent)
	e.logEvent(target.ID, tf.RelPath, "reverted poisoned pull content")
}

// syncSymlink implements §4.H.5: same existence table, but the "content" is
// the readlink target string and no three-way merge is attempted. Change
// direction is inferred from digest drift against the row's prior digests,
// with ties going to the store side.
func (e *Engine) syncSymlink(target model.Target, tf model.TrackedFile, storePath, targetPath string, storeExists, targetExists bool) {
	switch {
	case !storeExists && !targetExists:
		_ = e.files.Delete(tf.ID)
		return
	case storeExists && !targetExists:
		if tf.Status == model.SyncStatusSynced && tf.TargetDigest != "" {
			e.createDeleteConflict(target, tf, model.ConflictKindMissingInTarget, storePath)
			return
		}
		e.copyFile(target, tf, storePath, targetPath, true)
		return
	case !storeExists && targetExists:
		if tf.Status == model.SyncStatusSynced && tf.StoreDigest != "" {
			e.createDeleteConflict(target, tf, model.ConflictKindMissingInStore, targetPath)
			return
		}
		e.copyFile(target, tf, storePath, targetPath, false)
		return
	}

	storeContent, err := readContent(storePath)
	if err != nil {
		e.logWarn("reconcile: readlink %s: %v", storePath, err)
		return
	}
	targetContent, err := readContent(targetPath)
	if err != nil {
		e.logWarn("reconcile: readlink %s: %v", targetPath, err)
		return
	}
	if storeContent == targetContent {
		e.settleEqual(target, tf, storePath, targetPath, storeContent)
		return
	}

	storeDigest := digest.OfString(storeContent)
	targetDigest := digest.OfString(targetContent)
	storeChanged := tf.StoreDigest != "" && tf.StoreDigest != storeDigest
	targetChanged := tf.TargetDigest != "" && tf.TargetDigest != targetDigest

	switch {
	case targetChanged && !storeChanged:
		e.copyFile(target, tf, storePath, targetPath, false)
	default:
		e.copyFile(target, tf, storePath, targetPath, true)
	}
}

// createDeleteConflict implements §4.H.6: it never double-opens a pending
// conflict, and records the surviving side's content via the conflict
// store.
func (e *Engine) createDeleteConflict(target model.Target, tf model.TrackedFile, kind model.ConflictKind, survivorPath string) {
	if _, ok := e.conflicts.PendingForTrackedFile(tf.ID); ok {
		return
	}
	survivorContent, err := readContent(survivorPath)
	if err != nil {
		e.logWarn("reconcile: read surviving side %s: %v", tf.RelPath, err)
		return
	}

	storeContent, targetContent := "", ""
	if kind == model.ConflictKindMissingInTarget {
		storeContent = survivorContent
	} else {
		targetContent = survivorContent
	}

	created, err := e.conflicts.Create(conflict.CreateInput{
		TrackedFileID: tf.ID,
		Kind:          kind,
		StoreContent:  storeContent,
		TargetContent: targetContent,
	})
	if err != nil {
		e.logWarn("reconcile: open delete conflict %s: %v", tf.RelPath, err)
		return
	}
	tf.Status = model.SyncStatus(kind)
	_ = e.files.Update(tf)
	e.logEvent(target.ID, tf.RelPath, fmt.Sprintf("delete-vs-modify conflict: %s", kind))
	e.publish(broadcast.EventSyncStatus, created)
}

func (e *Engine) inPullOverride() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCommitSet
}
