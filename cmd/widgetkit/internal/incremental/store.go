package incremental

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrCorruptManifest is returned when the manifest file is not valid JSON
	// or does not have the manifest's shape.
	ErrCorruptManifest = errors.New("corrupt manifest")

	// ErrUnsupportedVersion is returned when the manifest was written by a
	// newer, incompatible format version.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")
)

// Store defines the interface for manifest persistence.
type Store interface {
	// Load returns (nil, nil) when no manifest has been written yet.
	Load() (*Manifest, error)
	Save(m *Manifest) error
	Exists() bool
	Clear() error
	Path() string
}

// JSONStore implements Store as a single JSON file.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the manifest file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the manifest from disk.
func (s *JSONStore) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := DecodeManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return m, nil
}

// DecodeManifest parses a manifest. A manifest that is not valid JSON or
// that holds a null entry is ErrCorruptManifest; one of another format
// version is ErrUnsupportedVersion.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptManifest, err)
	}

	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("%w: %q (supported %q)", ErrUnsupportedVersion, m.Version, ManifestVersion)
	}

	for unit, e := range m.Bundles {
		if e == nil {
			return nil, fmt.Errorf("%w: null entry for %q", ErrCorruptManifest, unit)
		}
	}

	if m.Bundles == nil {
		m.Bundles = make(map[string]*Entry)
	}

	return &m, nil
}

// Save writes the manifest to disk atomically. Readers see either the old
// manifest or the new one, never a partial write.
func (s *JSONStore) Save(m *Manifest) error {
	if m == nil {
		return fmt.Errorf("cannot save nil manifest")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	m.Version = ManifestVersion
	if m.Bundles == nil {
		m.Bundles = make(map[string]*Entry)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')

	// Write to temp file first for atomic update
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Exists returns true if the manifest file exists.
func (s *JSONStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Clear removes the manifest file. Bundles next to it are left alone.
func (s *JSONStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}
