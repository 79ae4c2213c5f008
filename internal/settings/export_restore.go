package settings

// SourceState is the slice of model-backed state (global settings, the
// file/ignore pattern lists, and per-target overrides) that the projection
// mirrors. Callers construct it from whatever owns that state (the
// typed tables in internal/model) and pass it to Export/RestoreOrMigrate;
// Restore returns one back.
type SourceState struct {
	Settings         map[string]string
	FilePatterns     []PatternEntry
	IgnorePatterns   []PatternEntry
	RepoOverrides    map[string]RepoOverride
	ServiceOverrides map[string]ServiceOverride
}

func emptySourceState() SourceState {
	return SourceState{
		Settings:         map[string]string{},
		RepoOverrides:    map[string]RepoOverride{},
		ServiceOverrides: map[string]ServiceOverride{},
	}
}

// Export writes the whole projection from the given source state,
// overwriting whatever is currently on disk.
func (m *Manager) Export(source SourceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Save(Projection(projectionFromSource(source)))
}

func projectionFromSource(s SourceState) Projection {
	settings := map[string]string{}
	for k, v := range s.Settings {
		if k == "schema_version" {
			continue
		}
		settings[k] = v
	}
	repoOverrides := map[string]RepoOverride{}
	for k, v := range s.RepoOverrides {
		repoOverrides[k] = v
	}
	serviceOverrides := map[string]ServiceOverride{}
	for k, v := range s.ServiceOverrides {
		serviceOverrides[k] = v
	}
	return Projection{
		Settings:         settings,
		FilePatterns:     append([]PatternEntry(nil), s.FilePatterns...),
		IgnorePatterns:   append([]PatternEntry(nil), s.IgnorePatterns...),
		RepoOverrides:    repoOverrides,
		ServiceOverrides: serviceOverrides,
	}
}

// Restore reads the on-disk projection and returns it as a SourceState
// ready to apply back onto the model. schema_version is always skipped
// when restoring global settings. Non-empty pattern lists in the
// projection completely replace the destination's lists; empty lists
// leave the destination untouched (the migration-friendly choice), so
// the caller must check len(...) on the returned lists before applying.
func (m *Manager) Restore() SourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()

	out := emptySourceState()
	for k, v := range p.Settings {
		if k == "schema_version" {
			continue
		}
		out.Settings[k] = v
	}
	out.FilePatterns = p.FilePatterns
	out.IgnorePatterns = p.IgnorePatterns
	for k, v := range p.RepoOverrides {
		out.RepoOverrides[k] = v
	}
	for k, v := range p.ServiceOverrides {
		out.ServiceOverrides[k] = v
	}
	return out
}

// RestoreOrMigrate implements startup semantics: if a projection file
// already exists, restore from it; otherwise export the caller's current
// model state so the file is seeded for next time. Returns the
// SourceState that should now be considered ground truth.
func (m *Manager) RestoreOrMigrate(current SourceState) (SourceState, error) {
	m.mu.Lock()
	_, err := readRaw(m.path())
	m.mu.Unlock()
	if err != nil {
		if exportErr := m.Export(current); exportErr != nil {
			return SourceState{}, exportErr
		}
		return current, nil
	}
	return m.Restore(), nil
}
