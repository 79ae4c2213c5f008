// Package settings manages sync-settings.json, the stable, human-editable
// file at store root that mirrors global settings, enabled pattern lists,
// and per-target overrides so they can be tracked in VCS and propagate
// across machines.
//
// Deterministic serialization (sorted keys, sorted pattern lists,
// dropped-empty overrides) is hand-rolled encoding/json marshaling over
// explicitly ordered slices — JSON key ordering for maps already comes for
// free from the standard library (encoding/json sorts string map keys),
// but pattern-list slices and override selection are ordered by hand here
// since no ecosystem library in the corpus offers declarative ordering for
// this shape. Malformed-file tolerance follows a soft-fail-to-empty idiom
// for reading best-effort config files.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fulmenhq/confsync/pkg/logger"
	"github.com/fulmenhq/confsync/pkg/schema"
)

// FileName is the projection's fixed filename at store root.
const FileName = "sync-settings.json"

// PatternEntry is one row of a file-pattern or ignore-pattern list.
type PatternEntry struct {
	Pattern string `json:"pattern"`
	Enabled bool   `json:"enabled"`
}

// RepoOverride is the per-repo-target override bag.
type RepoOverride struct {
	Settings               map[string]string `json:"settings,omitempty"`
	FilePatternOverrides   map[string]string `json:"filePatternOverrides,omitempty"`
	FilePatternLocal       map[string]string `json:"filePatternLocal,omitempty"`
	IgnorePatternOverrides map[string]string `json:"ignorePatternOverrides,omitempty"`
	IgnorePatternLocal     map[string]string `json:"ignorePatternLocal,omitempty"`
}

// IsEmpty reports whether every bag in the override is empty.
func (o RepoOverride) IsEmpty() bool {
	return len(o.Settings) == 0 && len(o.FilePatternOverrides) == 0 &&
		len(o.FilePatternLocal) == 0 && len(o.IgnorePatternOverrides) == 0 &&
		len(o.IgnorePatternLocal) == 0
}

// ServiceOverride is the per-service-target override bag.
type ServiceOverride struct {
	PatternDefaults map[string]string `json:"patternDefaults,omitempty"`
	PatternCustom   map[string]string `json:"patternCustom,omitempty"`
	IgnoreOverrides map[string]string `json:"ignoreOverrides,omitempty"`
	IgnoreCustom    map[string]string `json:"ignoreCustom,omitempty"`
}

// IsEmpty reports whether every bag in the override is empty.
func (o ServiceOverride) IsEmpty() bool {
	return len(o.PatternDefaults) == 0 && len(o.PatternCustom) == 0 &&
		len(o.IgnoreOverrides) == 0 && len(o.IgnoreCustom) == 0
}

// Projection is the canonical, on-disk shape of sync-settings.json.
type Projection struct {
	Settings         map[string]string          `json:"settings"`
	FilePatterns     []PatternEntry              `json:"filePatterns"`
	IgnorePatterns   []PatternEntry              `json:"ignorePatterns"`
	RepoOverrides    map[string]RepoOverride     `json:"repoOverrides"`
	ServiceOverrides map[string]ServiceOverride  `json:"serviceOverrides"`
}

// Empty returns the zero-value projection used when the file is missing
// or malformed.
func Empty() Projection {
	return Projection{
		Settings:         map[string]string{},
		RepoOverrides:    map[string]RepoOverride{},
		ServiceOverrides: map[string]ServiceOverride{},
	}
}

// schemaDoc is the embedded JSON Schema sync-settings.json is validated
// against before being trusted, the same defense-in-depth pattern the
// teacher applies to its own configuration files.
const schemaDoc = `{
  "type": "object",
  "required": ["settings", "filePatterns", "ignorePatterns", "repoOverrides", "serviceOverrides"],
  "properties": {
    "settings": {"type": "object"},
    "filePatterns": {"type": "array"},
    "ignorePatterns": {"type": "array"},
    "repoOverrides": {"type": "object"},
    "serviceOverrides": {"type": "object"}
  }
}`

// CommitQueuer is the narrow seam onto the store gateway this package
// needs: queueing a debounced commit whenever the projection changes.
type CommitQueuer interface {
	QueueCommit(message string)
}

// Manager owns the on-disk projection file and its granular update
// operations.
type Manager struct {
	mu        sync.Mutex
	storeRoot string
	gateway   CommitQueuer
	validator *schema.Validator
}

// NewManager returns a Manager rooted at storeRoot, queueing commits
// through gateway on every write.
func NewManager(storeRoot string, gateway CommitQueuer) (*Manager, error) {
	v, err := schema.NewValidatorFromBytes([]byte(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("settings: compile schema: %w", err)
	}
	return &Manager{storeRoot: storeRoot, gateway: gateway, validator: v}, nil
}

func (m *Manager) path() string {
	return filepath.Join(m.storeRoot, FileName)
}

// readRaw reads the projection file's raw bytes, returning an error if it
// does not exist. Used by RestoreOrMigrate to distinguish "no file yet"
// from "malformed file" without invoking Load's tolerant fallback.
func readRaw(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 -- fixed filename under store root
}

// Load reads the projection file, tolerating a missing or malformed file
// by returning an empty projection (the CorruptProjection case: never
// treat bad bytes on disk as ground truth, and never overwrite them until
// an explicit write happens).
func (m *Manager) Load() Projection {
	data, err := os.ReadFile(m.path()) // #nosec G304 -- fixed filename under store root
	if err != nil {
		return Empty()
	}
	var p Projection
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn("sync-settings.json is malformed, treating as empty", logger.Err(err))
		return Empty()
	}
	if p.Settings == nil {
		p.Settings = map[string]string{}
	}
	if p.RepoOverrides == nil {
		p.RepoOverrides = map[string]RepoOverride{}
	}
	if p.ServiceOverrides == nil {
		p.ServiceOverrides = map[string]ServiceOverride{}
	}
	return p
}

// Save deterministically orders p (applying canonicalize itself), validates
// and writes it to disk, then queues a store commit.
func (m *Manager) Save(p Projection) error {
	ordered := canonicalize(p)

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode projection: %w", err)
	}
	data = append(data, '\n')

	res, err := m.validator.ValidateBytes(data)
	if err != nil {
		return fmt.Errorf("settings: validate projection: %w", err)
	}
	if !res.Valid {
		return fmt.Errorf("settings: projection failed schema validation: %+v", res.Errors)
	}

	if err := os.WriteFile(m.path(), data, 0o644); err != nil { // #nosec G306 -- store-managed file
		return fmt.Errorf("settings: write projection: %w", err)
	}
	if m.gateway != nil {
		m.gateway.QueueCommit("Update sync-settings.json")
	}
	return nil
}

// canonicalize applies the deterministic-ordering rules: settings keys
// sort ascending (handled for free by encoding/json for map[string]string),
// pattern lists sort by pattern text, and override entries whose bags are
// all empty are dropped. repoOverrides/serviceOverrides key order is also
// handled for free by encoding/json's map-key sorting.
func canonicalize(p Projection) Projection {
	out := Projection{
		Settings:         map[string]string{},
		RepoOverrides:    map[string]RepoOverride{},
		ServiceOverrides: map[string]ServiceOverride{},
	}
	for k, v := range p.Settings {
		out.Settings[k] = v
	}

	out.FilePatterns = sortedPatterns(p.FilePatterns)
	out.IgnorePatterns = sortedPatterns(p.IgnorePatterns)

	for path, ov := range p.RepoOverrides {
		if ov.IsEmpty() {
			continue
		}
		out.RepoOverrides[path] = ov
	}
	for path, ov := range p.ServiceOverrides {
		if ov.IsEmpty() {
			continue
		}
		out.ServiceOverrides[path] = ov
	}
	return out
}

func sortedPatterns(entries []PatternEntry) []PatternEntry {
	out := append([]PatternEntry{}, entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}
