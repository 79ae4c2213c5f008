package app

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fulmenhq/confsync/internal/model"
)

// snapshotFileName lives under the store's private state directory
// (store.go's Initialize already .gitignores ".db/"), alongside whatever
// the store gateway itself keeps there.
const snapshotFileName = "cli-state.json"

type snapshot struct {
	Targets      []model.Target      `json:"targets"`
	TrackedFiles []model.TrackedFile `json:"trackedFiles"`
	Conflicts    []model.Conflict    `json:"conflicts"`
}

func statePath(storeRoot string) string {
	return filepath.Join(storeRoot, ".db", snapshotFileName)
}

func loadSnapshot(storeRoot string) (snapshot, error) {
	data, err := os.ReadFile(statePath(storeRoot)) // #nosec G304 -- fixed filename under store root
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot{}, nil
		}
		return snapshot{}, err
	}
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		// Treat a malformed snapshot the same way settings treats a
		// malformed projection: fall back to empty rather than fail
		// the whole invocation.
		return snapshot{}, nil
	}
	return s, nil
}

func saveSnapshot(storeRoot string, s snapshot) error {
	dir := filepath.Dir(statePath(storeRoot))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(statePath(storeRoot), data, 0o600) // #nosec G306 -- CLI-private state file
}
