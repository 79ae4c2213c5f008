// Package model defines the typed tables the reconciler consults and
// mutates: targets, tracked files, conflicts, and the sync log. The
// relational persistence layer itself is explicitly out of scope (the
// spec treats it as an external collaborator exposing a set of typed
// tables); this package provides in-memory, mutex-guarded implementations
// that satisfy the same contracts a SQL-backed store would, so the
// reconciler can be exercised and tested without a database.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind distinguishes a general working directory from a tool
// configuration directory.
type TargetKind string

const (
	TargetKindRepo    TargetKind = "repo"
	TargetKindService TargetKind = "service"
)

// TargetStatus is a target's lifecycle status.
type TargetStatus string

const (
	TargetStatusActive TargetStatus = "active"
	TargetStatusPaused TargetStatus = "paused"
	TargetStatusError  TargetStatus = "error"
)

// Target is a syncable endpoint.
type Target struct {
	ID          string
	Kind        TargetKind
	Name        string
	LocalPath   string
	StorePath   string // "repos/<slug>" or "services/<slug>"
	Status      TargetStatus
	ServiceType string // non-empty only for TargetKindService
}

// FileKind is a tracked file's on-disk kind.
type FileKind string

const (
	FileKindFile    FileKind = "file"
	FileKindSymlink FileKind = "symlink"
)

// SyncStatus is a tracked file's reconciliation status.
type SyncStatus string

const (
	SyncStatusSynced           SyncStatus = "synced"
	SyncStatusPendingToStore   SyncStatus = "pending_to_store"
	SyncStatusPendingToTarget  SyncStatus = "pending_to_target"
	SyncStatusConflict         SyncStatus = "conflict"
	SyncStatusMissingInStore   SyncStatus = "missing_in_store"
	SyncStatusMissingInTarget  SyncStatus = "missing_in_target"
)

// TrackedFile is a single path tracked for a target.
type TrackedFile struct {
	ID             string
	TargetID       string
	RelPath        string // relative to both the target root and the store mirror
	Kind           FileKind
	StoreDigest    string
	TargetDigest   string
	StoreModTime   time.Time
	TargetModTime  time.Time
	Status         SyncStatus
	LastReconciled time.Time
}

// ConflictStatus is a conflict record's resolution status.
type ConflictStatus string

const (
	ConflictStatusPending        ConflictStatus = "pending"
	ConflictStatusResolvedManual ConflictStatus = "resolved_manual"
	ConflictStatusResolvedAuto   ConflictStatus = "resolved_auto"
)

// ConflictKind distinguishes a true three-way conflict from a
// delete-vs-modify discrepancy.
type ConflictKind string

const (
	ConflictKindConflict        ConflictKind = "conflict"
	ConflictKindMissingInStore  ConflictKind = "missing_in_store"
	ConflictKindMissingInTarget ConflictKind = "missing_in_target"
)

// Resolution is how a conflict was settled.
type Resolution string

const (
	ResolutionKeepStore      Resolution = "keep_store"
	ResolutionKeepTarget     Resolution = "keep_target"
	ResolutionMergedContent  Resolution = "merged_content"
	ResolutionDeleteBoth     Resolution = "delete_both"
)

// Conflict is an unresolved discrepancy tied to exactly one tracked file.
type Conflict struct {
	ID             string
	TrackedFileID  string
	Kind           ConflictKind
	Status         ConflictStatus
	StoreContent   string
	TargetContent  string
	BaseContent    string
	MergedContent  string
	StoreDigest    string
	TargetDigest   string
	Resolution     Resolution
	ResolvedAt     time.Time
	CreatedAt      time.Time
}

// SyncLogEntry is one append-only row of the operation trail.
type SyncLogEntry struct {
	ID        string
	TargetID  string
	RelPath   string
	Message   string
	CreatedAt time.Time
}

// NewID returns a fresh unique identifier for any table row.
func NewID() string {
	return uuid.NewString()
}
