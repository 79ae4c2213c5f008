package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetTableRejectsDuplicateStorePath(t *testing.T) {
	tbl := NewMemTargetTable()
	_, err := tbl.Insert(Target{StorePath: "repos/r1"})
	require.NoError(t, err)

	_, err = tbl.Insert(Target{StorePath: "repos/r1"})
	assert.Error(t, err)
}

func TestTrackedFileTableEnforcesUniqueTargetAndPath(t *testing.T) {
	tbl := NewMemTrackedFileTable()
	_, err := tbl.Insert(TrackedFile{TargetID: "t1", RelPath: "a.md"})
	require.NoError(t, err)

	_, err = tbl.Insert(TrackedFile{TargetID: "t1", RelPath: "a.md"})
	assert.Error(t, err)

	_, err = tbl.Insert(TrackedFile{TargetID: "t2", RelPath: "a.md"})
	assert.NoError(t, err)
}

func TestConflictTableEnforcesAtMostOnePending(t *testing.T) {
	tbl := NewMemConflictTable()
	_, err := tbl.Insert(Conflict{TrackedFileID: "f1", Status: ConflictStatusPending})
	require.NoError(t, err)

	_, err = tbl.Insert(Conflict{TrackedFileID: "f1", Status: ConflictStatusPending})
	assert.Error(t, err)

	// A resolved conflict does not block inserting a new pending one...
	// but a second pending insert after a different record resolves should
	// succeed once none remain pending.
	pending, ok := tbl.GetPendingForTrackedFile("f1")
	require.True(t, ok)
	pending.Status = ConflictStatusResolvedAuto
	require.NoError(t, tbl.Update(pending))

	_, err = tbl.Insert(Conflict{TrackedFileID: "f1", Status: ConflictStatusPending})
	assert.NoError(t, err)
}

func TestSyncLogPruneRemovesOldEntries(t *testing.T) {
	tbl := NewMemSyncLogTable()
	require.NoError(t, tbl.Append(SyncLogEntry{CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}))
	require.NoError(t, tbl.Append(SyncLogEntry{CreatedAt: time.Now()}))

	removed := tbl.Prune(30 * 24 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.Len(t, tbl.List(), 1)
}
