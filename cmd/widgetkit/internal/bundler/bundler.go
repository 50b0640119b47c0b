// Package bundler compiles a widget entry file into a single self-contained
// browser bundle that assigns its exports to a global symbol.
package bundler

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// Request describes one bundle to produce.
type Request struct {
	// Unit is the unit name, used in diagnostics.
	Unit string
	// EntryPath is the absolute path of the unit's entry file.
	EntryPath string
	// OutputPath is the absolute path of the bundle to write.
	OutputPath string
	// GlobalSymbol is the global the bundle assigns its exports to.
	GlobalSymbol string
}

// Metadata describes a bundle that was written.
type Metadata struct {
	OutputPath string        `json:"outputPath"`
	Bytes      int64         `json:"bytes"`
	Inputs     []string      `json:"inputs,omitempty"`
	// Externals are imports left for the host page to provide.
	Externals  []string      `json:"externals,omitempty"`
	Warnings   []Message     `json:"warnings,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Compiler turns an entry file into a bundle. Implementations block until
// the bundle is written or compilation fails; a failure is an *Error when
// the bundler reported diagnostics.
type Compiler interface {
	Compile(ctx context.Context, req Request) (*Metadata, error)
}

// Options are the bundling settings shared by every backend.
type Options struct {
	Target    string
	Minify    bool
	Sourcemap bool
	External  []string
	Define    map[string]string
	// WorkingDir resolves node_modules and relative paths.
	WorkingDir string
}

// OptionsFromConfig returns the bundling options in cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Target:     cfg.Bundler.Target,
		Minify:     config.IsEnabled(cfg.Bundler.Minify),
		Sourcemap:  config.IsEnabled(cfg.Bundler.Sourcemap),
		External:   append([]string(nil), cfg.Bundler.External...),
		Define:     maps.Clone(cfg.Bundler.Define),
		WorkingDir: cfg.Root,
	}
}

// New returns the Compiler selected by cfg.Bundler.Backend.
func New(cfg *config.Config) (Compiler, error) {
	opts := OptionsFromConfig(cfg)

	switch cfg.Bundler.Backend {
	case config.BackendESBuildAPI, "":
		return NewESBuild(opts)
	case config.BackendESBuildExec:
		return NewExec(opts, WithBinary(cfg.Bundler.Binary)), nil
	default:
		return nil, fmt.Errorf("unknown bundler backend %q", cfg.Bundler.Backend)
	}
}
