package reconcile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/internal/scanner"
	"github.com/fulmenhq/confsync/internal/watcher"
	"github.com/fulmenhq/confsync/pkg/pattern"
)

const sizeAdmissionUnit = 1024 * 1024 // 1 MiB

// ScanAndReconcileAll implements the scan half of §4.H.10: for every active
// target, prune rows whose parent path now crosses a symlink, enforce the
// size-admission threshold, discover untracked files on both the target
// root and its store mirror, and reconcile every tracked file.
func (e *Engine) ScanAndReconcileAll() {
	for _, t := range e.targets.List() {
		if t.Status != model.TargetStatusActive {
			continue
		}
		e.pruneSymlinkCrossingRows(t)
		if !e.admitSize(t) {
			continue
		}
		matcher := e.effectiveMatcher(t)
		e.discoverUntracked(t, matcher)
		for _, tf := range e.files.ListByTarget(t.ID) {
			e.syncFile(t, tf, matcher)
		}
	}
}

func (e *Engine) pruneSymlinkCrossingRows(target model.Target) {
	for _, tf := range e.files.ListByTarget(target.ID) {
		storePath := e.storeMirrorPath(target, tf.RelPath)
		targetPath := e.targetPath(target, tf.RelPath)
		if parentCrossesSymlink(storePath) || parentCrossesSymlink(targetPath) {
			_ = e.files.Delete(tf.ID)
		}
	}
}

func parentCrossesSymlink(path string) bool {
	dir := filepath.Dir(path)
	for {
		info, err := os.Lstat(dir)
		if err != nil {
			return false
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// admitSize enforces the blocked-size threshold before reconciling a
// target, broadcasting sync_blocked at most once per 5 minutes per target.
func (e *Engine) admitSize(target model.Target) bool {
	limit := int64(e.cfg.SizeBlockedMB) * sizeAdmissionUnit
	if limit <= 0 {
		return true
	}
	var total int64
	for _, tf := range e.files.ListByTarget(target.ID) {
		storePath := e.storeMirrorPath(target, tf.RelPath)
		if info, err := os.Lstat(storePath); err == nil {
			total += info.Size()
		}
	}
	if total <= limit {
		return true
	}

	e.mu.Lock()
	last, logged := e.blockedLogged[target.ID]
	if !logged || time.Since(last) >= blockedLogRateLimit {
		e.blockedLogged[target.ID] = time.Now().UTC()
		e.mu.Unlock()
		e.publish("sync_blocked", map[string]any{
			"target":  target.StorePath,
			"bytes":   total,
			"limitMB": e.cfg.SizeBlockedMB,
		})
		e.logWarn("reconcile: target %s exceeds size_blocked_mb (%d bytes over %d MiB)", target.StorePath, total, e.cfg.SizeBlockedMB)
	} else {
		e.mu.Unlock()
	}
	return false
}

func (e *Engine) discoverUntracked(target model.Target, matcher *pattern.Matcher) {
	targetEntries, err := scanner.Scan(target.LocalPath, matcher)
	if err != nil {
		e.logWarn("reconcile: scan target %s: %v", target.LocalPath, err)
	}
	for _, entry := range targetEntries {
		if _, ok := e.files.GetByTargetAndPath(target.ID, entry.RelPath); ok {
			continue
		}
		kind := model.FileKindFile
		if entry.IsSymlink {
			kind = model.FileKindSymlink
		}
		tf, insertErr := e.files.Insert(model.TrackedFile{
			TargetID: target.ID,
			RelPath:  entry.RelPath,
			Kind:     kind,
			Status:   model.SyncStatusPendingToStore,
		})
		if insertErr == nil {
			e.syncFile(target, tf, matcher)
		}
	}

	storeRoot := filepath.Join(e.storeRoot, target.StorePath)
	storeEntries, err := scanner.Scan(storeRoot, matcher)
	if err != nil {
		e.logWarn("reconcile: scan store mirror %s: %v", storeRoot, err)
		return
	}
	for _, entry := range storeEntries {
		if _, ok := e.files.GetByTargetAndPath(target.ID, entry.RelPath); ok {
			continue
		}
		kind := model.FileKindFile
		if entry.IsSymlink {
			kind = model.FileKindSymlink
		}
		tf, insertErr := e.files.Insert(model.TrackedFile{
			TargetID: target.ID,
			RelPath:  entry.RelPath,
			Kind:     kind,
			Status:   model.SyncStatusPendingToTarget,
		})
		if insertErr == nil {
			e.syncFile(target, tf, matcher)
		}
	}
}

// Run drives the engine's single reconciliation task: one loop selecting
// over debounced watcher events and a self-chaining poll timer, so no two
// passes ever interleave writes to the same tracked file (§5).
func (e *Engine) Run(stop <-chan struct{}) {
	interval := time.Duration(e.cfg.SyncIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var events <-chan watcher.Event
	if e.watch != nil {
		events = e.watch.Events()
	}

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.Dispatch(ev)
		case <-timer.C:
			e.poll()
			timer.Reset(interval)
		}
	}
}

// poll implements §4.H.11's tick body.
func (e *Engine) poll() {
	if e.checkForExternalHeadChange() {
		return
	}
	e.ScanAndReconcileAll()

	e.mu.Lock()
	due := time.Since(e.lastLogPrune) >= logPruneInterval
	if due {
		e.lastLogPrune = time.Now().UTC()
	}
	e.mu.Unlock()
	if due && e.syncLog != nil {
		e.syncLog.Prune(syncLogRetention)
	}
}
