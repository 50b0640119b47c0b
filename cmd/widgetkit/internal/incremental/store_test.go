package incremental

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestNewManifest(t *testing.T) {
	m := NewManifest("abc")
	if m == nil {
		t.Fatal("NewManifest() returned nil")
	}
	if m.Version != ManifestVersion {
		t.Errorf("Version = %q, want %q", m.Version, ManifestVersion)
	}
	if m.SharedHash != "abc" {
		t.Errorf("SharedHash = %q, want abc", m.SharedHash)
	}
	if m.Bundles == nil {
		t.Error("Bundles should not be nil")
	}
}

func TestManifestSetGet(t *testing.T) {
	m := NewManifest("")
	m.Set("dashboard", &Entry{SourceHash: "abc123", BundleFile: "dashboard.js", BundleSize: 100})

	got, ok := m.Get("dashboard")
	if !ok {
		t.Fatal("Get() should find entry")
	}
	if got.SourceHash != "abc123" {
		t.Errorf("SourceHash = %q, want %q", got.SourceHash, "abc123")
	}

	if _, ok := m.Get("widget"); ok {
		t.Error("Get() should not find nonexistent entry")
	}

	m.Set("widget", &Entry{})
	if units := m.Units(); !slices.Equal(units, []string{"dashboard", "widget"}) {
		t.Errorf("Units() = %v", units)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestManifestNilSafety(t *testing.T) {
	var m *Manifest
	m.Set("widget", &Entry{}) // Should not panic

	if _, ok := m.Get("widget"); ok {
		t.Error("Get() on nil manifest should return false")
	}
	if m.Len() != 0 || m.Units() != nil {
		t.Error("nil manifest should be empty")
	}

	m = NewManifest("")
	m.Set("widget", nil) // Should not panic
	if m.Len() != 0 {
		t.Error("Set(nil) should not add an entry")
	}
}

func TestJSONStoreLoadMissing(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "output", "manifest.json"))

	m, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m != nil {
		t.Errorf("Load() = %+v, want nil when no manifest exists", m)
	}
}

func TestJSONStoreLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "manifest.json")
	store := NewJSONStore(path)

	builtAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewManifest("shared123")
	m.Set("dashboard", &Entry{
		SourceHash: "abc123",
		BundleFile: "dashboard.js",
		BundleSize: 2048,
		BuiltAt:    builtAt,
	})

	if err := store.Save(m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not survive Save()")
	}

	loaded, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.SharedHash != "shared123" {
		t.Errorf("SharedHash = %q", loaded.SharedHash)
	}

	entry, ok := loaded.Get("dashboard")
	if !ok {
		t.Fatal("loaded manifest should contain dashboard")
	}
	if entry.SourceHash != "abc123" || entry.BundleFile != "dashboard.js" || entry.BundleSize != 2048 {
		t.Errorf("entry = %+v", entry)
	}
	if !entry.BuiltAt.Equal(builtAt) {
		t.Errorf("BuiltAt = %v, want %v", entry.BuiltAt, builtAt)
	}
}

func TestJSONStoreLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	m := NewManifest("s")
	m.Set("widget", &Entry{SourceHash: "h", BundleFile: "widget.js", BundleSize: 1, BuiltAt: stamp(time.Now())})
	if err := NewJSONStore(path).Save(m); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if got := slices.Sorted(maps.Keys(raw)); !slices.Equal(got, []string{"bundles", "generatedAt", "sharedHash", "version"}) {
		t.Errorf("manifest keys = %v", got)
	}

	var bundles map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw["bundles"], &bundles); err != nil {
		t.Fatal(err)
	}
	if got := slices.Sorted(maps.Keys(bundles["widget"])); !slices.Equal(got, []string{"builtAt", "bundleFile", "bundleSize", "sourceHash"}) {
		t.Errorf("entry keys = %v", got)
	}

	var version string
	if err := json.Unmarshal(raw["version"], &version); err != nil || version != "1" {
		t.Errorf("version = %q, %v", version, err)
	}
}

func TestJSONStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(path).Load()
	if !errors.Is(err, ErrCorruptManifest) {
		t.Errorf("Load() error = %v, want ErrCorruptManifest", err)
	}
}

func TestJSONStoreLoadUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"version":"2","bundles":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(path).Load()
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Load() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestJSONStoreLoadNullBundles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"version":"1","sharedHash":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.Bundles == nil {
		t.Error("Load() should initialize Bundles")
	}
}

func TestJSONStoreLoadNullEntry(t *testing.T) {
	tests := []struct {
		name    string
		bundles string
	}{
		{"only entry", `{"widget":null}`},
		{"next to a valid entry", `{"dashboard":{"sourceHash":"h","bundleFile":"dashboard.js","bundleSize":1,"builtAt":"2024-01-01T00:00:00Z"},"widget":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "manifest.json")
			data := `{"version":"1","sharedHash":"x","bundles":` + tt.bundles + `}`
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}

			m, err := NewJSONStore(path).Load()
			if !errors.Is(err, ErrCorruptManifest) {
				t.Errorf("Load() error = %v, want ErrCorruptManifest", err)
			}
			if m != nil {
				t.Errorf("Load() = %+v, want nil", m)
			}
		})
	}
}

func TestManifestIgnoresNilEntries(t *testing.T) {
	m := &Manifest{Bundles: map[string]*Entry{"dashboard": {SourceHash: "h"}, "widget": nil}}

	if _, ok := m.Get("widget"); ok {
		t.Error("Get() should not report a nil entry")
	}
	if units := m.Units(); !slices.Equal(units, []string{"dashboard"}) {
		t.Errorf("Units() = %v, want [dashboard]", units)
	}
}

func TestJSONStoreSaveNil(t *testing.T) {
	if err := NewJSONStore(filepath.Join(t.TempDir(), "m.json")).Save(nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}

func TestJSONStoreExists(t *testing.T) {
	store := NewJSONStore(filepath.Join(t.TempDir(), "manifest.json"))

	if store.Exists() {
		t.Error("Exists() should return false when no manifest")
	}
	if err := store.Save(NewManifest("")); err != nil {
		t.Fatal(err)
	}
	if !store.Exists() {
		t.Error("Exists() should return true after Save()")
	}
}

func TestJSONStoreClear(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "manifest.json"))
	bundle := filepath.Join(dir, "widget.js")
	writeTestFile(t, bundle, "bundle")

	if err := store.Save(NewManifest("")); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if store.Exists() {
		t.Error("Exists() should return false after Clear()")
	}
	if _, err := os.Stat(bundle); err != nil {
		t.Error("Clear() should leave bundles alone")
	}

	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}
