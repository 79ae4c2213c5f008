// Package conflict implements the conflict store: creating, updating,
// resolving, and auto-clearing conflict records atop the typed tables in
// internal/model.
package conflict

import (
	"fmt"
	"time"

	"github.com/fulmenhq/confsync/internal/broadcast"
	"github.com/fulmenhq/confsync/internal/model"
)

// Store is the conflict store, consulted and mutated by the reconciler.
type Store struct {
	conflicts model.ConflictTable
	hub       *broadcast.Hub
}

// New returns a Store backed by the given ConflictTable. hub may be nil if
// the caller does not want broadcast notifications (e.g. in tests).
func New(conflicts model.ConflictTable, hub *broadcast.Hub) *Store {
	return &Store{conflicts: conflicts, hub: hub}
}

// CreateInput carries the snapshot data for a new conflict.
type CreateInput struct {
	TrackedFileID string
	Kind          model.ConflictKind
	StoreContent  string
	TargetContent string
	BaseContent   string
	MergedContent string
	StoreDigest   string
	TargetDigest  string
}

// Create opens a conflict for a tracked file. It is a no-op (returning the
// existing record) if a pending conflict already exists for that tracked
// file, per invariant 3 and the "coalesce, never double-open" rule.
func (s *Store) Create(in CreateInput) (model.Conflict, error) {
	if existing, ok := s.conflicts.GetPendingForTrackedFile(in.TrackedFileID); ok {
		return existing, nil
	}
	c := model.Conflict{
		TrackedFileID: in.TrackedFileID,
		Kind:          in.Kind,
		Status:        model.ConflictStatusPending,
		StoreContent:  in.StoreContent,
		TargetContent: in.TargetContent,
		BaseContent:   in.BaseContent,
		MergedContent: in.MergedContent,
		StoreDigest:   in.StoreDigest,
		TargetDigest:  in.TargetDigest,
		CreatedAt:     time.Now().UTC(),
	}
	created, err := s.conflicts.Insert(c)
	if err != nil {
		return model.Conflict{}, fmt.Errorf("conflict: create: %w", err)
	}
	s.publish(broadcast.EventConflictCreated, created)
	return created, nil
}

// Update refreshes a pending conflict's snapshots without changing its
// status or pre-conflict digests at open time (invariant 5: pre-conflict
// snapshots are never mutated after resolution, so Update only ever
// touches a record that is still pending).
func (s *Store) Update(id string, storeContent, targetContent, mergedContent string) (model.Conflict, error) {
	c, ok := s.conflicts.Get(id)
	if !ok {
		return model.Conflict{}, fmt.Errorf("conflict: %s not found", id)
	}
	if c.Status != model.ConflictStatusPending {
		return c, nil
	}
	c.StoreContent = storeContent
	c.TargetContent = targetContent
	c.MergedContent = mergedContent
	if err := s.conflicts.Update(c); err != nil {
		return model.Conflict{}, fmt.Errorf("conflict: update: %w", err)
	}
	s.publish(broadcast.EventConflictUpdated, c)
	return c, nil
}

// Resolve settles a pending conflict with the given resolution.
func (s *Store) Resolve(id string, resolution model.Resolution) (model.Conflict, error) {
	c, ok := s.conflicts.Get(id)
	if !ok {
		return model.Conflict{}, fmt.Errorf("conflict: %s not found", id)
	}
	c.Status = model.ConflictStatusResolvedManual
	c.Resolution = resolution
	c.ResolvedAt = time.Now().UTC()
	if err := s.conflicts.Update(c); err != nil {
		return model.Conflict{}, fmt.Errorf("conflict: resolve: %w", err)
	}
	s.publish(broadcast.EventConflictResolved, c)
	return c, nil
}

// AutoClear marks a pending conflict resolved_auto when both sides have
// converged during reconciliation.
func (s *Store) AutoClear(id string) (model.Conflict, error) {
	c, ok := s.conflicts.Get(id)
	if !ok {
		return model.Conflict{}, fmt.Errorf("conflict: %s not found", id)
	}
	if c.Status != model.ConflictStatusPending {
		return c, nil
	}
	c.Status = model.ConflictStatusResolvedAuto
	c.ResolvedAt = time.Now().UTC()
	if err := s.conflicts.Update(c); err != nil {
		return model.Conflict{}, fmt.Errorf("conflict: auto-clear: %w", err)
	}
	s.publish(broadcast.EventConflictResolved, c)
	return c, nil
}

// PendingForTrackedFile returns the pending conflict for a tracked file,
// if any.
func (s *Store) PendingForTrackedFile(trackedFileID string) (model.Conflict, bool) {
	return s.conflicts.GetPendingForTrackedFile(trackedFileID)
}

func (s *Store) publish(event string, c model.Conflict) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(event, c)
}
