package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
	"github.com/albertocavalcante/widgetkit/internal/log"
)

var (
	// ErrNoManifest is returned by Publish when nothing has been built.
	ErrNoManifest = errors.New("no manifest to publish; run a build first")

	// ErrSizeMismatch is returned by Pull when a downloaded bundle does not
	// have the size its manifest entry records.
	ErrSizeMismatch = errors.New("bundle size does not match manifest")
)

// Layout locates the local build output.
type Layout struct {
	// OutputDir holds the bundles.
	OutputDir string
	// ManifestPath is the manifest file.
	ManifestPath string
}

// Transfer summarizes a Publish or Pull.
type Transfer struct {
	Bundles []string `json:"bundles"`
	Bytes   int64    `json:"bytes"`
	// Found is false when Pull found no remote manifest.
	Found bool `json:"found"`
}

func (l Layout) manifestKey() string {
	return filepath.Base(l.ManifestPath)
}

// Publish uploads every bundle listed in the local manifest, then the
// manifest itself. Uploading the manifest last means a reader never sees a
// manifest that names a bundle missing from the store.
func Publish(ctx context.Context, store ObjectStore, layout Layout) (*Transfer, error) {
	logger := log.Component("remote")

	m, err := incremental.NewJSONStore(layout.ManifestPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if m == nil {
		return nil, ErrNoManifest
	}

	t := &Transfer{Bundles: []string{}, Found: true}
	for _, unit := range m.Units() {
		entry, _ := m.Get(unit)
		if err := checkBundleFile(entry.BundleFile); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(layout.OutputDir, entry.BundleFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle %s: %w", entry.BundleFile, err)
		}
		if err := store.Put(ctx, entry.BundleFile, data); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", entry.BundleFile, err)
		}
		logger.Debug("uploaded bundle", "unit", unit, "bytes", len(data))
		t.Bundles = append(t.Bundles, entry.BundleFile)
		t.Bytes += int64(len(data))
	}

	data, err := os.ReadFile(layout.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := store.Put(ctx, layout.manifestKey(), data); err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}
	t.Bytes += int64(len(data))

	logger.Info("published", "bundles", len(t.Bundles), "bytes", t.Bytes)
	return t, nil
}

// Pull downloads the remote manifest and every bundle it lists into the
// local output directory. Bundles are written before the manifest, so an
// interrupted pull never leaves a manifest that claims bundles it lacks. A
// missing remote manifest is not an error: Transfer.Found is false.
func Pull(ctx context.Context, store ObjectStore, layout Layout) (*Transfer, error) {
	logger := log.Component("remote")

	raw, err := store.Get(ctx, layout.manifestKey())
	if errors.Is(err, ErrNotFound) {
		logger.Info("no remote manifest")
		return &Transfer{Bundles: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}

	m, err := incremental.DecodeManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}

	if err := os.MkdirAll(layout.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	t := &Transfer{Bundles: []string{}, Found: true}
	for _, unit := range m.Units() {
		entry, _ := m.Get(unit)
		if err := checkBundleFile(entry.BundleFile); err != nil {
			return nil, err
		}
		data, err := store.Get(ctx, entry.BundleFile)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", entry.BundleFile, err)
		}
		if int64(len(data)) != entry.BundleSize {
			return nil, fmt.Errorf("%w: %s is %d bytes, manifest says %d", ErrSizeMismatch, entry.BundleFile, len(data), entry.BundleSize)
		}
		if err := writeAtomic(filepath.Join(layout.OutputDir, entry.BundleFile), data); err != nil {
			return nil, err
		}
		logger.Debug("downloaded bundle", "unit", unit, "bytes", len(data))
		t.Bundles = append(t.Bundles, entry.BundleFile)
		t.Bytes += int64(len(data))
	}

	if err := writeAtomic(layout.ManifestPath, raw); err != nil {
		return nil, err
	}
	t.Bytes += int64(len(raw))

	logger.Info("pulled", "bundles", len(t.Bundles), "bytes", t.Bytes)
	return t, nil
}

// Listing describes the contents of the remote cache.
type Listing struct {
	Objects []string `json:"objects"`
	// Manifest is false when no manifest has been published.
	Manifest bool `json:"manifest"`
	// Missing lists bundles the remote manifest names that the store lacks.
	Missing []string `json:"missing,omitempty"`
}

// Inspect lists the remote objects and checks them against the remote
// manifest, if one is published.
func Inspect(ctx context.Context, store ObjectStore, layout Layout) (*Listing, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote objects: %w", err)
	}
	l := &Listing{Objects: keys}
	if !slices.Contains(keys, layout.manifestKey()) {
		return l, nil
	}

	raw, err := store.Get(ctx, layout.manifestKey())
	if err != nil {
		return nil, fmt.Errorf("failed to download manifest: %w", err)
	}
	m, err := incremental.DecodeManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	l.Manifest = true

	for _, unit := range m.Units() {
		entry, _ := m.Get(unit)
		if !slices.Contains(keys, entry.BundleFile) {
			l.Missing = append(l.Missing, entry.BundleFile)
		}
	}
	return l, nil
}

// checkBundleFile rejects bundle names that would escape the output directory.
func checkBundleFile(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == ".." {
		return fmt.Errorf("invalid bundle file name %q in manifest", name)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}
