package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueuer struct {
	queued []string
}

func (f *fakeQueuer) QueueCommit(message string) {
	f.queued = append(f.queued, message)
}

func newManager(t *testing.T) (*Manager, *fakeQueuer) {
	t.Helper()
	dir := t.TempDir()
	q := &fakeQueuer{}
	m, err := NewManager(dir, q)
	require.NoError(t, err)
	return m, q
}

func TestLoadReturnsEmptyWhenFileMissing(t *testing.T) {
	m, _ := newManager(t)
	p := m.Load()
	assert.Empty(t, p.Settings)
	assert.Empty(t, p.FilePatterns)
}

func TestLoadToleratesMalformedFile(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, os.WriteFile(filepath.Join(m.storeRoot, FileName), []byte("{not json"), 0o644))
	p := m.Load()
	assert.Empty(t, p.Settings)
}

func TestSaveOrdersPatternsAndDropsEmptyOverrides(t *testing.T) {
	m, q := newManager(t)
	p := Empty()
	p.FilePatterns = []PatternEntry{{Pattern: "z.md", Enabled: true}, {Pattern: "a.md", Enabled: true}}
	p.RepoOverrides["repos/empty"] = RepoOverride{}
	p.RepoOverrides["repos/full"] = RepoOverride{Settings: map[string]string{"auto_sync": "false"}}

	require.NoError(t, m.Save(p))
	assert.Len(t, q.queued, 1)
	assert.Equal(t, "Update sync-settings.json", q.queued[0])

	reloaded := m.Load()
	require.Len(t, reloaded.FilePatterns, 2)
	assert.Equal(t, "a.md", reloaded.FilePatterns[0].Pattern)
	assert.Equal(t, "z.md", reloaded.FilePatterns[1].Pattern)
	_, hasEmpty := reloaded.RepoOverrides["repos/empty"]
	assert.False(t, hasEmpty)
	_, hasFull := reloaded.RepoOverrides["repos/full"]
	assert.True(t, hasFull)
}

func TestSaveTwiceProducesIdenticalBytes(t *testing.T) {
	m, _ := newManager(t)
	p := Empty()
	p.FilePatterns = []PatternEntry{{Pattern: "CLAUDE.md", Enabled: true}}

	require.NoError(t, m.Save(p))
	first, err := os.ReadFile(filepath.Join(m.storeRoot, FileName))
	require.NoError(t, err)

	require.NoError(t, m.Save(p))
	second, err := os.ReadFile(filepath.Join(m.storeRoot, FileName))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExportThenRestoreRoundTrips(t *testing.T) {
	m, _ := newManager(t)
	source := SourceState{
		Settings:      map[string]string{"size_warning_mb": "7", "schema_version": "3"},
		FilePatterns:  []PatternEntry{{Pattern: "CUSTOM.md", Enabled: true}},
		RepoOverrides: map[string]RepoOverride{
			"repos/r1": {
				Settings:         map[string]string{"auto_sync": "false"},
				FilePatternLocal: map[string]string{"custom": "enabled"},
			},
		},
		ServiceOverrides: map[string]ServiceOverride{},
	}

	require.NoError(t, m.Export(source))
	restored := m.Restore()

	assert.Equal(t, "7", restored.Settings["size_warning_mb"])
	_, hasSchemaVersion := restored.Settings["schema_version"]
	assert.False(t, hasSchemaVersion)
	require.Len(t, restored.FilePatterns, 1)
	assert.Equal(t, "CUSTOM.md", restored.FilePatterns[0].Pattern)
	assert.Equal(t, "false", restored.RepoOverrides["repos/r1"].Settings["auto_sync"])
}

func TestRestoreOrMigrateExportsWhenNoFileExists(t *testing.T) {
	m, _ := newManager(t)
	source := SourceState{Settings: map[string]string{"auto_sync": "true"}}

	result, err := m.RestoreOrMigrate(source)
	require.NoError(t, err)
	assert.Equal(t, "true", result.Settings["auto_sync"])
	assert.FileExists(t, filepath.Join(m.storeRoot, FileName))
}

func TestRestoreOrMigrateRestoresWhenFileExists(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.Export(SourceState{Settings: map[string]string{"auto_sync": "false"}}))

	result, err := m.RestoreOrMigrate(SourceState{Settings: map[string]string{"auto_sync": "true"}})
	require.NoError(t, err)
	assert.Equal(t, "false", result.Settings["auto_sync"])
}

func TestUpdateGlobalPersistsSingleKey(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.UpdateGlobal("size_warning_mb", "30"))
	p := m.Load()
	assert.Equal(t, "30", p.Settings["size_warning_mb"])
}

func TestRemoveRepoDropsOverride(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.UpdateRepo("repos/r1", RepoOverride{Settings: map[string]string{"auto_sync": "false"}}))
	require.NoError(t, m.RemoveRepo("repos/r1"))
	p := m.Load()
	_, ok := p.RepoOverrides["repos/r1"]
	assert.False(t, ok)
}

func TestApplyOverridesForRepoReturnsRecordedBag(t *testing.T) {
	m, _ := newManager(t)
	require.NoError(t, m.UpdateRepo("repos/r1", RepoOverride{Settings: map[string]string{"auto_sync": "false"}}))

	ov, ok := m.ApplyOverridesForRepo("repos/r1")
	require.True(t, ok)
	assert.Equal(t, "false", ov.Settings["auto_sync"])

	_, ok = m.ApplyOverridesForRepo("repos/missing")
	assert.False(t, ok)
}
