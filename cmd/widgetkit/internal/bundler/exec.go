package bundler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/albertocavalcante/widgetkit/internal/log"
)

// Exec compiles bundles by running an esbuild executable.
type Exec struct {
	opts           Options
	binary         string // Configured binary, may be relative to WorkingDir
	executablePath string // Path to widgetkit executable (for finding sibling)
}

// ExecOption configures an Exec compiler.
type ExecOption func(*Exec)

// WithBinary sets an explicit esbuild executable.
func WithBinary(path string) ExecOption {
	return func(e *Exec) {
		e.binary = path
	}
}

// WithExecutablePath sets the path to the widgetkit executable.
// Used primarily for testing.
func WithExecutablePath(path string) ExecOption {
	return func(e *Exec) {
		e.executablePath = path
	}
}

// NewExec creates a subprocess compiler.
func NewExec(opts Options, options ...ExecOption) *Exec {
	e := &Exec{opts: opts}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// FindBinary locates esbuild using the following search order:
// 1. Configured binary
// 2. node_modules/.bin/esbuild under the working directory
// 3. Sibling binary (esbuild next to widgetkit)
// 4. PATH lookup
func (e *Exec) FindBinary() (string, error) {
	// 1. Configured binary
	if e.binary != "" {
		path := e.binary
		if !filepath.IsAbs(path) && strings.ContainsRune(path, filepath.Separator) {
			path = filepath.Join(e.opts.WorkingDir, path)
		}
		if fileExists(path) {
			return path, nil
		}
		if found, err := exec.LookPath(e.binary); err == nil {
			return found, nil
		}
		return "", fmt.Errorf("%w: %s", ErrESBuildNotFound, e.binary)
	}

	// 2. Project-local install
	if e.opts.WorkingDir != "" {
		local := filepath.Join(e.opts.WorkingDir, "node_modules", ".bin", "esbuild")
		if fileExists(local) {
			return local, nil
		}
	}

	// 3. Sibling binary
	exe := e.executablePath
	if exe == "" {
		if self, err := os.Executable(); err == nil {
			exe = self
		}
	}
	if exe != "" {
		if sibling := filepath.Join(filepath.Dir(exe), "esbuild"); fileExists(sibling) {
			return sibling, nil
		}
	}

	// 4. PATH
	if path, err := exec.LookPath("esbuild"); err == nil {
		return path, nil
	}

	return "", ErrESBuildNotFound
}

// Compile runs esbuild for req and waits for it to finish.
func (e *Exec) Compile(ctx context.Context, req Request) (*Metadata, error) {
	binary, err := e.FindBinary()
	if err != nil {
		return nil, err
	}

	logger := log.Component("bundler").With("unit", req.Unit, "backend", "esbuild-exec")
	start := time.Now()

	metaDir, err := os.MkdirTemp("", "widgetkit-meta-")
	if err != nil {
		return nil, fmt.Errorf("failed to create metafile directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(metaDir) }()
	metaPath := filepath.Join(metaDir, "meta.json")

	args := e.args(req, metaPath)
	logger.Debug("running esbuild", "binary", binary, "args", args)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = e.opts.WorkingDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msgs := parseDiagnostics(stderr.Bytes(), "[ERROR]")
		if len(msgs) == 0 {
			if text := strings.TrimSpace(stderr.String()); text != "" {
				msgs = []Message{{Text: text}}
			} else {
				msgs = []Message{{Text: err.Error()}}
			}
		}
		return nil, &Error{Entry: req.EntryPath, Messages: msgs}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("bundle not written: %w", err)
	}

	meta := &Metadata{
		OutputPath: req.OutputPath,
		Bytes:      info.Size(),
		Warnings:   parseDiagnostics(stderr.Bytes(), "[WARNING]"),
		Duration:   time.Since(start),
	}
	if data, err := os.ReadFile(metaPath); err == nil {
		if mf, err := ParseMetafile(data); err == nil {
			meta.Inputs = mf.InputPaths()
			meta.Externals = mf.ExternalImports()
		}
	}

	logger.Debug("bundle written", "path", req.OutputPath, "bytes", meta.Bytes, "duration", meta.Duration)
	return meta, nil
}

// args builds the esbuild command line for req.
func (e *Exec) args(req Request, metaPath string) []string {
	args := []string{
		req.EntryPath,
		"--bundle",
		"--format=iife",
		"--platform=browser",
		"--global-name=" + req.GlobalSymbol,
		"--outfile=" + req.OutputPath,
		"--metafile=" + metaPath,
		"--log-level=warning",
		"--color=false",
	}
	if e.opts.Target != "" {
		args = append(args, "--target="+strings.ToLower(e.opts.Target))
	}
	if e.opts.Minify {
		args = append(args, "--minify")
	}
	if e.opts.Sourcemap {
		args = append(args, "--sourcemap=linked")
	}
	for _, ext := range e.opts.External {
		args = append(args, "--external:"+ext)
	}
	for _, key := range slices.Sorted(maps.Keys(e.opts.Define)) {
		args = append(args, "--define:"+key+"="+e.opts.Define[key])
	}
	return args
}

// locationPattern matches the "    file:line:col:" line esbuild prints under
// each diagnostic.
var locationPattern = regexp.MustCompile(`^\s+(\S.*):(\d+):(\d+):\s*$`)

// parseDiagnostics extracts the diagnostics tagged with kind ("[ERROR]" or
// "[WARNING]") from esbuild's plain-text log output.
func parseDiagnostics(output []byte, kind string) []Message {
	var msgs []Message
	current := -1

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if i := strings.Index(line, kind); i >= 0 {
			msgs = append(msgs, Message{Text: strings.TrimSpace(line[i+len(kind):])})
			current = len(msgs) - 1
			continue
		}
		if strings.Contains(line, "[ERROR]") || strings.Contains(line, "[WARNING]") {
			current = -1
			continue
		}

		if current >= 0 && msgs[current].File == "" {
			if m := locationPattern.FindStringSubmatch(line); m != nil {
				msgs[current].File = m[1]
				msgs[current].Line, _ = strconv.Atoi(m[2])
				msgs[current].Column, _ = strconv.Atoi(m[3])
			}
		}
	}
	return slices.Clip(msgs)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
