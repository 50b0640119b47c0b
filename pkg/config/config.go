// Package config provides configuration management for widgetkit.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/widgetkit/config.toml)
//  3. Project config (.widgetkit/config.toml or widgetkit.toml)
//  4. Environment variables (WIDGETKIT_*, optionally from a .env file)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// LegacyUnitName is the unit whose bundle historically shipped under a
// different global symbol. Embedding pages still reference that symbol.
const LegacyUnitName = "widget"

// LegacyGlobalSymbol is the global exposed by the LegacyUnitName bundle.
const LegacyGlobalSymbol = "NextWidget"

// Hash algorithms accepted by [HashConfig].
const (
	HashSHA256 = "sha256"
	HashXXHash = "xxhash"
)

// Bundler backends accepted by [BundlerConfig].
const (
	BackendESBuildAPI  = "esbuild-api"
	BackendESBuildExec = "esbuild-exec"
)

// Config is the main configuration struct for widgetkit.
type Config struct {
	// Paths locates sources, shared inputs and outputs, relative to Root.
	Paths PathsConfig `toml:"paths"`

	// Units configures unit discovery and naming.
	Units UnitsConfig `toml:"units"`

	// Hash configures content digests.
	Hash HashConfig `toml:"hash"`

	// Bundler configures the external bundler.
	Bundler BundlerConfig `toml:"bundler"`

	// Watch configures watch mode.
	Watch WatchConfig `toml:"watch"`

	// Remote configures the S3-compatible bundle cache.
	Remote RemoteConfig `toml:"remote"`

	// Root is the project root all relative paths resolve against.
	// Set by the loader; never read from files.
	Root string `toml:"-"`
}

// PathsConfig holds the filesystem layout.
type PathsConfig struct {
	// Sources is the directory whose immediate subdirectories are units.
	Sources string `toml:"sources"`

	// Shared lists cross-cutting source directories. A change under any of
	// them invalidates every unit.
	Shared []string `toml:"shared"`

	// BuildConfigs lists bundler configuration files folded into the shared digest.
	BuildConfigs []string `toml:"build_configs"`

	// Output is the directory bundles and the manifest are written to.
	Output string `toml:"output"`

	// Manifest is the manifest file name inside Output.
	Manifest string `toml:"manifest"`
}

// UnitsConfig holds unit discovery settings.
type UnitsConfig struct {
	// Entry is the entry file path relative to each unit directory.
	Entry string `toml:"entry"`

	// Extension is the bundle file extension, without the dot.
	Extension string `toml:"extension"`

	// Symbols maps unit names to global symbols, overriding the PascalCase
	// derivation. The legacy widget override is always present.
	Symbols map[string]string `toml:"symbols"`
}

// HashConfig holds content digest settings.
type HashConfig struct {
	// Algorithm is "sha256" or "xxhash".
	Algorithm string `toml:"algorithm"`

	// CacheSize is the number of file digests kept in memory per process.
	// Zero disables the cache.
	CacheSize *int `toml:"cache_size"`

	// Ignore lists doublestar globs excluded from tree digests.
	Ignore []string `toml:"ignore"`
}

// BundlerConfig holds bundler settings.
type BundlerConfig struct {
	// Backend is "esbuild-api" (in-process) or "esbuild-exec" (subprocess).
	Backend string `toml:"backend"`

	// Binary is the esbuild executable for the exec backend. Empty means
	// node_modules/.bin/esbuild, then PATH.
	Binary string `toml:"binary"`

	// Target is the ECMAScript target (e.g. "es2019").
	Target string `toml:"target"`

	// Minify enables whitespace, identifier and syntax minification.
	Minify *bool `toml:"minify"`

	// Sourcemap writes a linked source map next to each bundle.
	Sourcemap *bool `toml:"sourcemap"`

	// External lists module specifiers left unbundled.
	External []string `toml:"external"`

	// Define maps identifiers to replacement expressions.
	Define map[string]string `toml:"define"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// DebounceMS is the quiet period before a batch of changes is rebuilt.
	DebounceMS int `toml:"debounce_ms"`
}

// RemoteConfig holds the S3-compatible remote cache settings.
type RemoteConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    *bool  `toml:"use_ssl"`
}

// NewConfig creates a new Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	falseVal := false
	cacheSize := 4096
	return &Config{
		Paths: PathsConfig{
			Sources:      "sources",
			Shared:       []string{"shared"},
			BuildConfigs: []string{"build-config.js"},
			Output:       "output",
			Manifest:     "manifest.json",
		},
		Units: UnitsConfig{
			Entry:     "index.tsx",
			Extension: "js",
			Symbols:   map[string]string{LegacyUnitName: LegacyGlobalSymbol},
		},
		Hash: HashConfig{
			Algorithm: HashSHA256,
			CacheSize: &cacheSize,
			Ignore:    []string{"**/.DS_Store", "**/node_modules/**"},
		},
		Bundler: BundlerConfig{
			Backend:   BackendESBuildAPI,
			Target:    "es2019",
			Minify:    &trueVal,
			Sourcemap: &falseVal,
			External:  []string{},
			Define:    map[string]string{"process.env.NODE_ENV": `"production"`},
		},
		Watch: WatchConfig{
			DebounceMS: 300,
		},
		Remote: RemoteConfig{
			Region: "us-east-1",
			Prefix: "widgets",
			UseSSL: &trueVal,
		},
	}
}

// Merge merges another config into this one (other takes precedence).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Paths
	if other.Paths.Sources != "" {
		c.Paths.Sources = other.Paths.Sources
	}
	if other.Paths.Shared != nil {
		c.Paths.Shared = other.Paths.Shared
	}
	if other.Paths.BuildConfigs != nil {
		c.Paths.BuildConfigs = other.Paths.BuildConfigs
	}
	if other.Paths.Output != "" {
		c.Paths.Output = other.Paths.Output
	}
	if other.Paths.Manifest != "" {
		c.Paths.Manifest = other.Paths.Manifest
	}

	// Units
	if other.Units.Entry != "" {
		c.Units.Entry = other.Units.Entry
	}
	if other.Units.Extension != "" {
		c.Units.Extension = strings.TrimPrefix(other.Units.Extension, ".")
	}
	for name, symbol := range other.Units.Symbols {
		if c.Units.Symbols == nil {
			c.Units.Symbols = make(map[string]string)
		}
		c.Units.Symbols[name] = symbol
	}

	// Hash
	if other.Hash.Algorithm != "" {
		c.Hash.Algorithm = other.Hash.Algorithm
	}
	if other.Hash.CacheSize != nil {
		c.Hash.CacheSize = other.Hash.CacheSize
	}
	if len(other.Hash.Ignore) > 0 {
		c.Hash.Ignore = append(c.Hash.Ignore, other.Hash.Ignore...)
	}

	// Bundler
	if other.Bundler.Backend != "" {
		c.Bundler.Backend = other.Bundler.Backend
	}
	if other.Bundler.Binary != "" {
		c.Bundler.Binary = other.Bundler.Binary
	}
	if other.Bundler.Target != "" {
		c.Bundler.Target = other.Bundler.Target
	}
	if other.Bundler.Minify != nil {
		c.Bundler.Minify = other.Bundler.Minify
	}
	if other.Bundler.Sourcemap != nil {
		c.Bundler.Sourcemap = other.Bundler.Sourcemap
	}
	if other.Bundler.External != nil {
		c.Bundler.External = other.Bundler.External
	}
	for k, v := range other.Bundler.Define {
		if c.Bundler.Define == nil {
			c.Bundler.Define = make(map[string]string)
		}
		c.Bundler.Define[k] = v
	}

	// Watch
	if other.Watch.DebounceMS > 0 {
		c.Watch.DebounceMS = other.Watch.DebounceMS
	}

	// Remote
	if other.Remote.Endpoint != "" {
		c.Remote.Endpoint = other.Remote.Endpoint
	}
	if other.Remote.Region != "" {
		c.Remote.Region = other.Remote.Region
	}
	if other.Remote.Bucket != "" {
		c.Remote.Bucket = other.Remote.Bucket
	}
	if other.Remote.Prefix != "" {
		c.Remote.Prefix = other.Remote.Prefix
	}
	if other.Remote.AccessKey != "" {
		c.Remote.AccessKey = other.Remote.AccessKey
	}
	if other.Remote.SecretKey != "" {
		c.Remote.SecretKey = other.Remote.SecretKey
	}
	if other.Remote.UseSSL != nil {
		c.Remote.UseSSL = other.Remote.UseSSL
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Paths.Sources) == "" {
		errs = append(errs, errors.New("paths.sources must not be empty"))
	}
	if strings.TrimSpace(c.Paths.Output) == "" {
		errs = append(errs, errors.New("paths.output must not be empty"))
	}
	if strings.TrimSpace(c.Paths.Manifest) == "" {
		errs = append(errs, errors.New("paths.manifest must not be empty"))
	}
	if strings.TrimSpace(c.Units.Entry) == "" {
		errs = append(errs, errors.New("units.entry must not be empty"))
	}
	if strings.TrimSpace(c.Units.Extension) == "" {
		errs = append(errs, errors.New("units.extension must not be empty"))
	}
	if !slices.Contains([]string{HashSHA256, HashXXHash}, c.Hash.Algorithm) {
		errs = append(errs, fmt.Errorf("hash.algorithm %q is not one of %s, %s", c.Hash.Algorithm, HashSHA256, HashXXHash))
	}
	if c.Hash.CacheSize != nil && *c.Hash.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("hash.cache_size must be >= 0, got %d", *c.Hash.CacheSize))
	}
	if !slices.Contains([]string{BackendESBuildAPI, BackendESBuildExec}, c.Bundler.Backend) {
		errs = append(errs, fmt.Errorf("bundler.backend %q is not one of %s, %s", c.Bundler.Backend, BackendESBuildAPI, BackendESBuildExec))
	}

	return errors.Join(errs...)
}

// HashCacheSize returns the configured digest cache size, 0 when disabled.
func (c *Config) HashCacheSize() int {
	if c.Hash.CacheSize == nil {
		return 0
	}
	return *c.Hash.CacheSize
}

// SourcesDir returns the absolute sources directory.
func (c *Config) SourcesDir() string {
	return c.resolve(c.Paths.Sources)
}

// OutputDir returns the absolute output directory.
func (c *Config) OutputDir() string {
	return c.resolve(c.Paths.Output)
}

// ManifestPath returns the absolute manifest file path.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.OutputDir(), c.Paths.Manifest)
}

// SharedInputs returns the absolute shared directories followed by the
// build-config files, in configured order.
func (c *Config) SharedInputs() []string {
	inputs := make([]string, 0, len(c.Paths.Shared)+len(c.Paths.BuildConfigs))
	for _, p := range c.Paths.Shared {
		inputs = append(inputs, c.resolve(p))
	}
	for _, p := range c.Paths.BuildConfigs {
		inputs = append(inputs, c.resolve(p))
	}
	return inputs
}

// BundleFile returns the bundle file name for a unit, e.g. "dashboard.js".
func (c *Config) BundleFile(unit string) string {
	return unit + "." + c.Units.Extension
}

// IsEnabled reports whether an optional boolean is set and true.
func IsEnabled(b *bool) bool {
	return b != nil && *b
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}
