package settings

// UpdateGlobal sets a single global setting key, leaving every other key
// and list untouched, then persists.
func (m *Manager) UpdateGlobal(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	p.Settings[key] = value
	return m.Save(p)
}

// UpdateFilePatterns replaces the whole file-pattern list.
func (m *Manager) UpdateFilePatterns(patterns []PatternEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	p.FilePatterns = patterns
	return m.Save(p)
}

// UpdateIgnorePatterns replaces the whole ignore-pattern list.
func (m *Manager) UpdateIgnorePatterns(patterns []PatternEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	p.IgnorePatterns = patterns
	return m.Save(p)
}

// UpdateRepo replaces the override bag for a repo target identified by its
// store-relative path ("repos/<slug>").
func (m *Manager) UpdateRepo(storePath string, override RepoOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	p.RepoOverrides[storePath] = override
	return m.Save(p)
}

// UpdateService replaces the override bag for a service target identified
// by its store-relative path ("services/<slug>").
func (m *Manager) UpdateService(storePath string, override ServiceOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	p.ServiceOverrides[storePath] = override
	return m.Save(p)
}

// RemoveRepo deletes a repo target's override bag, e.g. on unlink.
func (m *Manager) RemoveRepo(storePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	delete(p.RepoOverrides, storePath)
	return m.Save(p)
}

// RemoveService deletes a service target's override bag, e.g. on unlink.
func (m *Manager) RemoveService(storePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	delete(p.ServiceOverrides, storePath)
	return m.Save(p)
}

// ApplyOverridesForRepo returns the override bag currently recorded for
// storePath, if any, so a caller linking a target after the projection
// already holds overrides for it can apply them to the model.
func (m *Manager) ApplyOverridesForRepo(storePath string) (RepoOverride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	ov, ok := p.RepoOverrides[storePath]
	return ov, ok
}

// ApplyOverridesForService is the service-target counterpart of
// ApplyOverridesForRepo.
func (m *Manager) ApplyOverridesForService(storePath string) (ServiceOverride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.Load()
	ov, ok := p.ServiceOverrides[storePath]
	return ov, ok
}
