package store

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestInitializeCreatesRepoGitignoreAndManifest(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()

	g, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, g.Root())

	assert.DirExists(t, filepath.Join(dir, ".git"))
	ignoreContent, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(ignoreContent), ".db/")
	assert.FileExists(t, filepath.Join(dir, "machines.json"))

	// Re-initializing is idempotent.
	g2, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, g2.Root())
}

func TestGetContentAtHeadReturnsNilBeforeFirstCommit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)

	content, err := g.GetContentAtHead("machines.json")
	require.NoError(t, err)
	assert.Nil(t, content)
}

func TestCommitThenGetContentAtHead(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "repos"), nil, 0o644))
	require.NoError(t, g.Commit("seed"))

	content, err := g.GetContentAtHead("repos")
	require.NoError(t, err)
	assert.Equal(t, []byte{}, content)

	head, err := g.HeadIdentity()
	require.NoError(t, err)
	assert.NotEmpty(t, head)
}

func TestCommitIsNoOpWhenNothingChanged(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)
	require.NoError(t, g.Commit("seed"))

	headBefore, err := g.HeadIdentity()
	require.NoError(t, err)

	require.NoError(t, g.Commit("seed again, nothing changed"))
	headAfter, err := g.HeadIdentity()
	require.NoError(t, err)
	assert.Equal(t, headBefore, headAfter)
}

func TestQueueCommitCoalescesDuplicateMessages(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("1"), 0o644))
	g.QueueCommit("Sync a.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("2"), 0o644))
	g.QueueCommit("Sync a.txt")
	g.QueueCommit("Sync b.txt")

	require.NoError(t, g.FlushQueuedCommits())

	head, err := g.HeadIdentity()
	require.NoError(t, err)
	assert.NotEmpty(t, head)
	assert.Empty(t, g.pending)
}

func TestCoalesceMessagesPreservesOrderAndCounts(t *testing.T) {
	msg := coalesceMessages([]string{"Sync a", "Sync a", "Sync b"})
	assert.Equal(t, "Sync a (x2); Sync b", msg)
}

func TestParseConflictMarkersSplitsOursAndTheirs(t *testing.T) {
	content := "before\n<<<<<<< HEAD\nlocal\n=======\nremote\n>>>>>>> incoming\nafter\n"
	ours, theirs := ParseConflictMarkers(content)
	assert.Equal(t, "before\nlocal\nafter\n", ours)
	assert.Equal(t, "before\nremote\nafter\n", theirs)
}

func TestParseConflictMarkersWithBaseSection(t *testing.T) {
	content := "<<<<<<< ours\nA\n||||||| base\nbase\n=======\nB\n>>>>>>> theirs\n"
	ours, theirs := ParseConflictMarkers(content)
	assert.Equal(t, "A\n", ours)
	assert.Equal(t, "B\n", theirs)
}

func TestThreeWayMergeCleanAutoMerge(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)

	base := "a\nb\nc\n"
	storeSide := "A\nb\nc\n"
	targetSide := "a\nb\nC\n"

	result, err := g.ThreeWayMerge(base, storeSide, targetSide)
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
	assert.Equal(t, "A\nb\nC\n", result.Content)
}

func TestThreeWayMergeProducesMarkersOnTrueConflict(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)

	result, err := g.ThreeWayMerge("a\n", "X\n", "Y\n")
	require.NoError(t, err)
	assert.True(t, result.HasConflicts)
	assert.Contains(t, result.Content, "<<<<<<<")
	assert.Contains(t, result.Content, ">>>>>>>")
}

func TestPullWithNoRemoteReturnsErrNoRemote(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	g, err := Initialize(dir)
	require.NoError(t, err)
	require.NoError(t, g.Commit("seed"))

	_, err = g.Pull()
	assert.ErrorIs(t, err, ErrNoRemote)
}
