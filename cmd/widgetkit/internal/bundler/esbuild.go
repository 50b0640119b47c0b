package bundler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/albertocavalcante/widgetkit/internal/log"
)

// targets maps config target names to esbuild targets.
var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ESBuild compiles bundles in-process with the esbuild Go API.
type ESBuild struct {
	opts   Options
	target api.Target
}

// NewESBuild creates an in-process compiler.
func NewESBuild(opts Options) (*ESBuild, error) {
	target := api.ES2019
	if opts.Target != "" {
		t, ok := targets[strings.ToLower(opts.Target)]
		if !ok {
			return nil, fmt.Errorf("unsupported bundler target %q", opts.Target)
		}
		target = t
	}
	return &ESBuild{opts: opts, target: target}, nil
}

// Compile writes an IIFE bundle for req.
func (e *ESBuild) Compile(ctx context.Context, req Request) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := log.Component("bundler").With("unit", req.Unit, "backend", "esbuild-api")
	start := time.Now()

	sourcemap := api.SourceMapNone
	if e.opts.Sourcemap {
		sourcemap = api.SourceMapLinked
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{req.EntryPath},
		Outfile:           req.OutputPath,
		AbsWorkingDir:     e.opts.WorkingDir,
		Bundle:            true,
		Write:             true,
		Metafile:          true,
		Format:            api.FormatIIFE,
		GlobalName:        req.GlobalSymbol,
		Platform:          api.PlatformBrowser,
		Target:            e.target,
		MinifyWhitespace:  e.opts.Minify,
		MinifyIdentifiers: e.opts.Minify,
		MinifySyntax:      e.opts.Minify,
		Sourcemap:         sourcemap,
		External:          e.opts.External,
		Define:            e.opts.Define,
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, &Error{Entry: req.EntryPath, Messages: convertMessages(result.Errors)}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("bundle not written: %w", err)
	}

	meta := &Metadata{
		OutputPath: req.OutputPath,
		Bytes:      info.Size(),
		Warnings:   convertMessages(result.Warnings),
		Duration:   time.Since(start),
	}
	if mf, err := ParseMetafile([]byte(result.Metafile)); err == nil {
		meta.Inputs = mf.InputPaths()
		meta.Externals = mf.ExternalImports()
	} else {
		logger.Debug("ignoring metafile", "error", err)
	}

	logger.Debug("bundle written", "path", req.OutputPath, "bytes", meta.Bytes, "duration", meta.Duration)
	return meta, nil
}

func convertMessages(msgs []api.Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Text: m.Text}
		if m.Location != nil {
			out[i].File = m.Location.File
			out[i].Line = m.Location.Line
			out[i].Column = m.Location.Column
		}
	}
	return out
}
