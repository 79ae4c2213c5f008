package reconcile

import (
	"fmt"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/pkg/digest"
)

// ResolveConflict settles a pending conflict per the user's chosen
// resolution (§4.G) and applies it to disk: keep_store/keep_target copy
// the surviving or chosen side onto the other, merged_content writes the
// already-merged text to both sides, and delete_both removes the tracked
// file from both the store mirror and the target. This is the effecting
// half of §4.G's Resolve operation -- the conflict store only records the
// decision; the reconciler is the collaborator that owns writing to the
// store and target working trees (§5).
func (e *Engine) ResolveConflict(conflictID string, resolution model.Resolution) error {
	resolved, err := e.conflicts.Resolve(conflictID, resolution)
	if err != nil {
		return fmt.Errorf("reconcile: resolve conflict %s: %w", conflictID, err)
	}

	tf, ok := e.files.Get(resolved.TrackedFileID)
	if !ok {
		return fmt.Errorf("reconcile: tracked file %s not found for conflict %s", resolved.TrackedFileID, conflictID)
	}
	target, ok := e.targets.Get(tf.TargetID)
	if !ok {
		return fmt.Errorf("reconcile: target %s not found for tracked file %s", tf.TargetID, tf.ID)
	}

	storePath := e.storeMirrorPath(target, tf.RelPath)
	targetPath := e.targetPath(target, tf.RelPath)
	isSymlink := tf.Kind == model.FileKindSymlink

	switch resolution {
	case model.ResolutionKeepStore:
		if err := writeContent(targetPath, resolved.StoreContent, isSymlink); err != nil {
			return fmt.Errorf("reconcile: apply keep_store: %w", err)
		}
		e.markSelfChange(targetPath)
		e.settleResolved(target, tf, storePath, targetPath, resolved.StoreContent)

	case model.ResolutionKeepTarget:
		if err := writeContent(storePath, resolved.TargetContent, isSymlink); err != nil {
			return fmt.Errorf("reconcile: apply keep_target: %w", err)
		}
		e.markSelfChange(storePath)
		e.settleResolved(target, tf, storePath, targetPath, resolved.TargetContent)

	case model.ResolutionMergedContent:
		content := resolved.MergedContent
		if err := writeContent(storePath, content, isSymlink); err != nil {
			return fmt.Errorf("reconcile: apply merged_content to store: %w", err)
		}
		if err := writeContent(targetPath, content, isSymlink); err != nil {
			return fmt.Errorf("reconcile: apply merged_content to target: %w", err)
		}
		e.markSelfChange(storePath)
		e.markSelfChange(targetPath)
		e.settleResolved(target, tf, storePath, targetPath, content)

	case model.ResolutionDeleteBoth:
		_ = removeIfExists(storePath)
		_ = removeIfExists(targetPath)
		e.markSelfChange(storePath)
		e.markSelfChange(targetPath)
		_ = e.files.Delete(tf.ID)
		e.logEvent(target.ID, tf.RelPath, "conflict resolved: delete_both")
		e.publish(broadcast.EventConflictResolved, resolved)
		e.queueCommit(fmt.Sprintf("Resolve %s (delete)", tf.RelPath))
		return nil

	default:
		return fmt.Errorf("reconcile: unknown resolution %q", resolution)
	}

	e.logEvent(target.ID, tf.RelPath, fmt.Sprintf("conflict resolved: %s", resolution))
	e.queueCommit(fmt.Sprintf("Resolve %s (%s)", tf.RelPath, resolution))
	return nil
}

// settleResolved writes the resolved tracked-file row to synced, matching
// both digests to the content now on both sides.
func (e *Engine) settleResolved(target model.Target, tf model.TrackedFile, storePath, targetPath, content string) {
	d := digest.OfString(content)
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
	_ = e.files.Update(tf)
	e.publish(broadcast.EventSyncStatus, tf)
}
