package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := New(debounce, DefaultSelfChangeTTL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcherEmitsDebouncedTargetChange(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, 30*time.Millisecond)
	require.NoError(t, w.WatchTarget("t1", dir))

	stop := make(chan struct{})
	defer close(stop)
	go w.Run(stop)

	path := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("b"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, ScopeTarget, ev.Scope)
		assert.Equal(t, "t1", ev.TargetID)
		assert.Equal(t, "file.txt", ev.RelPath)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced event")
	}
}

func TestMarkSelfChangeSuppressesEvent(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, 30*time.Millisecond)
	require.NoError(t, w.WatchStore(dir))

	stop := make(chan struct{})
	defer close(stop)
	go w.Run(stop)

	path := filepath.Join(dir, "sync-settings.json")
	w.MarkSelfChange(path)
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestClearStoreDebounceTimersOnlyClearsStoreScopes(t *testing.T) {
	w := newTestWatcher(t, 5*time.Second)
	w.debounceTimers["store:a.json"] = time.AfterFunc(time.Hour, func() {})
	w.debounceTimers["serviceStore:b.json"] = time.AfterFunc(time.Hour, func() {})
	w.debounceTimers["target:t1:c.json"] = time.AfterFunc(time.Hour, func() {})

	w.ClearStoreDebounceTimers()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.debounceTimers, 1)
	_, ok := w.debounceTimers["target:t1:c.json"]
	assert.True(t, ok)
}

func TestDebounceKeyFormat(t *testing.T) {
	assert.Equal(t, "store:a/b.json", debounceKey(ScopeStore, "", "a/b.json"))
	assert.Equal(t, "target:t1:a/b.json", debounceKey(ScopeTarget, "t1", "a/b.json"))
}
