package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/confsync/internal/model"
)

func TestCreateCoalescesWithExistingPending(t *testing.T) {
	tbl := model.NewMemConflictTable()
	s := New(tbl, nil)

	first, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindConflict, StoreContent: "a"})
	require.NoError(t, err)

	second, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindConflict, StoreContent: "b"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "a", second.StoreContent)
}

func TestResolveSetsManualResolution(t *testing.T) {
	tbl := model.NewMemConflictTable()
	s := New(tbl, nil)

	c, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindConflict})
	require.NoError(t, err)

	resolved, err := s.Resolve(c.ID, model.ResolutionKeepStore)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictStatusResolvedManual, resolved.Status)
	assert.Equal(t, model.ResolutionKeepStore, resolved.Resolution)
	assert.False(t, resolved.ResolvedAt.IsZero())
}

func TestAutoClearMarksResolvedAuto(t *testing.T) {
	tbl := model.NewMemConflictTable()
	s := New(tbl, nil)

	c, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindMissingInTarget})
	require.NoError(t, err)

	cleared, err := s.AutoClear(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConflictStatusResolvedAuto, cleared.Status)
}

func TestCreateAfterResolveOpensFreshConflict(t *testing.T) {
	tbl := model.NewMemConflictTable()
	s := New(tbl, nil)

	first, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindConflict})
	require.NoError(t, err)
	_, err = s.Resolve(first.ID, model.ResolutionKeepTarget)
	require.NoError(t, err)

	second, err := s.Create(CreateInput{TrackedFileID: "f1", Kind: model.ConflictKindConflict})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}
