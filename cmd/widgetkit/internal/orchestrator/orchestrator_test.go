package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/bundler"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// fakeCompiler writes a tiny bundle per request and records every call.
type fakeCompiler struct {
	calls  []bundler.Request
	failOn string
}

func (f *fakeCompiler) Compile(ctx context.Context, req bundler.Request) (*bundler.Metadata, error) {
	f.calls = append(f.calls, req)
	if req.Unit == f.failOn {
		return nil, &bundler.Error{Entry: req.EntryPath, Messages: []bundler.Message{{Text: "boom", File: req.EntryPath, Line: 1, Column: 1}}}
	}
	content := fmt.Sprintf("var %s=(()=>{})();\n", req.GlobalSymbol)
	if err := os.WriteFile(req.OutputPath, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &bundler.Metadata{
		OutputPath: req.OutputPath,
		Bytes:      int64(len(content)),
		Inputs:     []string{req.EntryPath},
		Externals:  []string{"react"},
	}, nil
}

func (f *fakeCompiler) units() []string {
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Unit
	}
	return names
}

func (f *fakeCompiler) reset() {
	f.calls = nil
}

// failingStore is a Store whose Save always fails.
type failingStore struct {
	incremental.Store
}

func (failingStore) Save(*incremental.Manifest) error {
	return errors.New("disk full")
}

type testEnv struct {
	root     string
	cfg      *config.Config
	compiler *fakeCompiler
	orch     *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "sources", "widget", "index.tsx"), "export default function Widget() {}")
	writeFile(t, filepath.Join(root, "sources", "dashboard", "index.tsx"), "export default function Dashboard() {}")
	writeFile(t, filepath.Join(root, "sources", "dashboard", "Chart.tsx"), "export const Chart = 1")
	writeFile(t, filepath.Join(root, "sources", "_template", "index.tsx"), "{{NAME}}")
	writeFile(t, filepath.Join(root, "shared", "theme.ts"), "export const theme = {}")
	writeFile(t, filepath.Join(root, "build-config.js"), "module.exports = {}")

	cfg := config.NewConfig()
	cfg.Root = root
	noCache := 0
	cfg.Hash.CacheSize = &noCache

	return newTestEnvWithStore(t, cfg, nil)
}

func newTestEnvWithStore(t *testing.T, cfg *config.Config, store incremental.Store) *testEnv {
	t.Helper()
	h, err := incremental.NewHasherFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = incremental.NewJSONStore(cfg.ManifestPath())
	}
	tracker := incremental.NewTracker(incremental.TrackerOptions{
		Hasher:    h,
		Store:     store,
		Shared:    incremental.SharedInputs{Root: cfg.Root, Paths: cfg.SharedInputs()},
		OutputDir: cfg.OutputDir(),
		Extension: cfg.Units.Extension,
	})

	compiler := &fakeCompiler{}
	return &testEnv{
		root:     cfg.Root,
		cfg:      cfg,
		compiler: compiler,
		orch:     New(cfg, tracker, compiler),
	}
}

func (e *testEnv) run(t *testing.T, opts Options) *Report {
	t.Helper()
	report, err := e.orch.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run(%+v) error = %v", opts, err)
	}
	return report
}

func (e *testEnv) output(name string) string {
	return filepath.Join(e.root, "output", name)
}

func (e *testEnv) manifest(t *testing.T) *incremental.Manifest {
	t.Helper()
	m, err := incremental.NewJSONStore(e.cfg.ManifestPath()).Load()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{name: "zero value", opts: Options{}},
		{name: "only", opts: Options{Mode: ModeOnly, Only: []string{"a"}}},
		{name: "changed", opts: Options{Mode: ModeChanged}},
		{name: "force", opts: Options{Mode: ModeForce}},
		{name: "only without units", opts: Options{Mode: ModeOnly}, want: ErrEmptySelection},
		{name: "only with empty list", opts: Options{Mode: ModeOnly, Only: []string{}}, want: ErrEmptySelection},
		{name: "only with blank name", opts: Options{Mode: ModeOnly, Only: []string{"a", " "}}, want: ErrEmptySelection},
		{name: "units with changed", opts: Options{Mode: ModeChanged, Only: []string{"a"}}, want: ErrConflictingModes},
		{name: "units with force", opts: Options{Mode: ModeForce, Only: []string{"a"}}, want: ErrConflictingModes},
		{name: "units with default", opts: Options{Only: []string{"a"}}, want: ErrConflictingModes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.opts.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	if err := (Options{Mode: "everything"}).Validate(); err == nil {
		t.Error("Validate() should reject an unknown mode")
	}
}

func TestRunInvalidOptionsWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	writeFile(t, env.output("legacy.js"), "var Legacy;")
	before := snapshot(t, filepath.Join(env.root, "output"))
	env.compiler.reset()

	for _, opts := range []Options{
		{Mode: ModeOnly},
		{Mode: ModeOnly, Only: []string{""}},
		{Mode: ModeChanged, Only: []string{"widget"}},
		{Mode: ModeForce, Only: []string{"widget"}},
	} {
		if _, err := env.orch.Run(context.Background(), opts); err == nil {
			t.Errorf("Run(%+v) expected error", opts)
		}
	}
	if len(env.compiler.calls) != 0 {
		t.Error("no unit should be built")
	}
	if after := snapshot(t, filepath.Join(env.root, "output")); !equalSnapshots(before, after) {
		t.Errorf("output changed:\n before %v\n after  %v", before, after)
	}
}

func TestRunMissingSourceRoot(t *testing.T) {
	env := newTestEnv(t)
	if err := os.RemoveAll(filepath.Join(env.root, "sources")); err != nil {
		t.Fatal(err)
	}

	_, err := env.orch.Run(context.Background(), Options{})
	if !errors.Is(err, discovery.ErrSourceRootMissing) {
		t.Errorf("Run() error = %v, want ErrSourceRootMissing", err)
	}
	if _, err := os.Stat(filepath.Join(env.root, "output")); !os.IsNotExist(err) {
		t.Error("output directory should not be created")
	}
}

func TestRunDefaultBuildsAll(t *testing.T) {
	env := newTestEnv(t)

	report := env.run(t, Options{})

	if report.Mode != ModeAll {
		t.Errorf("Mode = %q", report.Mode)
	}
	if !slices.Equal(report.BuiltNames(), []string{"dashboard", "widget"}) {
		t.Errorf("Built = %v", report.BuiltNames())
	}
	if report.ManifestErr != nil {
		t.Errorf("ManifestErr = %v", report.ManifestErr)
	}
	if report.TotalBytes() == 0 {
		t.Error("TotalBytes() should count the bundles")
	}
	for _, b := range report.Built {
		if b.Inputs != 1 || !slices.Equal(b.Externals, []string{"react"}) {
			t.Errorf("%s Inputs = %d, Externals = %v", b.Name, b.Inputs, b.Externals)
		}
	}

	m := env.manifest(t)
	if m == nil || !slices.Equal(m.Units(), []string{"dashboard", "widget"}) {
		t.Fatalf("manifest units = %v, want both", m.Units())
	}
}

func TestRunDefaultClearsOldBundles(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.output("removed-unit.js"), "old")
	writeFile(t, env.output("removed-unit.js.map"), "{}")
	writeFile(t, env.output("notes.txt"), "keep me")

	report := env.run(t, Options{Mode: ModeForce})

	if !slices.Equal(report.Cleared, []string{"removed-unit.js", "removed-unit.js.map"}) {
		t.Errorf("Cleared = %v", report.Cleared)
	}
	if _, err := os.Stat(env.output("removed-unit.js")); !os.IsNotExist(err) {
		t.Error("stale bundle should be removed")
	}
	if _, err := os.Stat(env.output("notes.txt")); err != nil {
		t.Error("non-bundle files should be left alone")
	}
	if m := env.manifest(t); m.Len() != 2 {
		t.Errorf("manifest should only list discovered units, got %v", m.Units())
	}
}

func TestRunGlobalSymbols(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})

	symbols := map[string]string{}
	for _, c := range env.compiler.calls {
		symbols[c.Unit] = c.GlobalSymbol
		if c.OutputPath != env.output(c.Unit+".js") {
			t.Errorf("%s OutputPath = %q", c.Unit, c.OutputPath)
		}
	}
	if symbols["widget"] != "NextWidget" {
		t.Errorf("widget symbol = %q, want NextWidget", symbols["widget"])
	}
	if symbols["dashboard"] != "Dashboard" {
		t.Errorf("dashboard symbol = %q, want Dashboard", symbols["dashboard"])
	}
}

func TestRunOnlyUnknownUnits(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.Run(context.Background(), Options{Mode: ModeOnly, Only: []string{"doesnotexist", "widget", "nope", "nope"}})

	var unknown *UnknownUnitsError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run() error = %v, want *UnknownUnitsError", err)
	}
	if !slices.Equal(unknown.Names, []string{"doesnotexist", "nope"}) {
		t.Errorf("Names = %v, want every unknown name once", unknown.Names)
	}
	if len(env.compiler.calls) != 0 {
		t.Error("no unit should be built")
	}
	if _, err := os.Stat(filepath.Join(env.root, "output")); !os.IsNotExist(err) {
		t.Error("output directory should not be touched")
	}
}

func TestRunOnlyUnknownUnitsLeavesOutputUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	before := snapshot(t, filepath.Join(env.root, "output"))
	env.compiler.reset()

	if _, err := env.orch.Run(context.Background(), Options{Mode: ModeOnly, Only: []string{"doesnotexist"}}); err == nil {
		t.Fatal("Run() expected error")
	}

	after := snapshot(t, filepath.Join(env.root, "output"))
	if !equalSnapshots(before, after) {
		t.Errorf("output changed:\n before %v\n after  %v", before, after)
	}
}

func TestRunOnlyIsNonDestructive(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})

	widgetBefore := readFile(t, env.output("widget.js"))
	entryBefore := entryJSON(t, env.manifest(t), "widget")
	infoBefore, _ := os.Stat(env.output("widget.js"))
	env.compiler.reset()

	time.Sleep(10 * time.Millisecond)
	report := env.run(t, Options{Mode: ModeOnly, Only: []string{"dashboard"}})

	if !slices.Equal(env.compiler.units(), []string{"dashboard"}) {
		t.Errorf("built %v, want [dashboard]", env.compiler.units())
	}
	if len(report.Cleared) != 0 {
		t.Errorf("Cleared = %v, selective builds must not clear", report.Cleared)
	}
	if got := readFile(t, env.output("widget.js")); got != widgetBefore {
		t.Error("widget bundle should be untouched")
	}
	if infoAfter, _ := os.Stat(env.output("widget.js")); !infoAfter.ModTime().Equal(infoBefore.ModTime()) {
		t.Error("widget bundle should not be rewritten")
	}
	if got := entryJSON(t, env.manifest(t), "widget"); got != entryBefore {
		t.Errorf("widget entry changed:\n before %s\n after  %s", entryBefore, got)
	}
}

func TestRunChangedEmptyIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	first := env.run(t, Options{Mode: ModeChanged})
	if first.Detection.Reason != incremental.ReasonNoManifest || len(first.Built) != 2 {
		t.Fatalf("first run = %+v, want a full build", first)
	}

	manifestBefore := readFile(t, env.cfg.ManifestPath())
	env.compiler.reset()

	second := env.run(t, Options{Mode: ModeChanged})
	if len(env.compiler.calls) != 0 {
		t.Errorf("second run built %v, want nothing", env.compiler.units())
	}
	if !second.NothingToDo() {
		t.Error("NothingToDo() should be true")
	}
	if second.Manifest != nil {
		t.Error("manifest should not be regenerated")
	}
	if got := readFile(t, env.cfg.ManifestPath()); got != manifestBefore {
		t.Error("manifest should not be rewritten")
	}
}

func TestRunChangedAfterSharedChange(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	env.compiler.reset()

	writeFile(t, filepath.Join(env.root, "shared", "theme.ts"), "export const theme = {dark: true}")

	report := env.run(t, Options{Mode: ModeChanged})
	if !report.Detection.SharedChanged {
		t.Error("SharedChanged should be true")
	}
	if !slices.Equal(env.compiler.units(), []string{"dashboard", "widget"}) {
		t.Errorf("built %v, want every unit", env.compiler.units())
	}
}

func TestRunCompileFailureAborts(t *testing.T) {
	env := newTestEnv(t)
	env.compiler.failOn = "dashboard"

	_, err := env.orch.Run(context.Background(), Options{})

	var cErr *CompileError
	if !errors.As(err, &cErr) {
		t.Fatalf("Run() error = %v, want *CompileError", err)
	}
	if cErr.Unit != "dashboard" {
		t.Errorf("Unit = %q, want dashboard", cErr.Unit)
	}
	var bErr *bundler.Error
	if !errors.As(err, &bErr) {
		t.Error("CompileError should wrap the bundler error")
	}
	if !slices.Equal(env.compiler.units(), []string{"dashboard"}) {
		t.Errorf("built %v, the run should stop at the first failure", env.compiler.units())
	}
	if _, err := os.Stat(env.cfg.ManifestPath()); !os.IsNotExist(err) {
		t.Error("manifest should not be written after a failure")
	}
}

func TestRunFailedFullBuildInvalidatesManifest(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	env.compiler.reset()

	env.compiler.failOn = "widget"
	if _, err := env.orch.Run(context.Background(), Options{Mode: ModeForce}); err == nil {
		t.Fatal("Run() expected error")
	}
	if _, err := os.Stat(env.output("widget.js")); !os.IsNotExist(err) {
		t.Fatal("widget bundle should have been cleared")
	}
	if _, err := os.Stat(env.cfg.ManifestPath()); !os.IsNotExist(err) {
		t.Error("manifest should be removed along with the bundles")
	}

	env.compiler.failOn = ""
	env.compiler.reset()
	report := env.run(t, Options{Mode: ModeChanged})
	if report.Detection.Reason != incremental.ReasonNoManifest {
		t.Errorf("Detection.Reason = %q, want %q", report.Detection.Reason, incremental.ReasonNoManifest)
	}
	if !slices.Equal(env.compiler.units(), []string{"dashboard", "widget"}) {
		t.Errorf("built %v, want every unit", env.compiler.units())
	}
	if _, err := os.Stat(env.output("widget.js")); err != nil {
		t.Errorf("widget bundle should be rebuilt: %v", err)
	}
}

func TestRunChangedNullManifestEntry(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	env.compiler.reset()

	m := env.manifest(t)
	raw := fmt.Sprintf(`{"version":%q,"generatedAt":"2024-01-01T00:00:00Z","sharedHash":%q,"bundles":{"widget":null}}`,
		incremental.ManifestVersion, m.SharedHash)
	writeFile(t, env.cfg.ManifestPath(), raw)

	report := env.run(t, Options{Mode: ModeChanged})
	if report.Detection.Reason != incremental.ReasonNoManifest {
		t.Errorf("Detection.Reason = %q, want %q", report.Detection.Reason, incremental.ReasonNoManifest)
	}
	if !slices.Equal(env.compiler.units(), []string{"dashboard", "widget"}) {
		t.Errorf("built %v, want every unit", env.compiler.units())
	}
	if got := env.manifest(t); got.Len() != 2 {
		t.Errorf("manifest units = %v, want both", got.Units())
	}
}

func TestRunManifestWriteFailureIsWarning(t *testing.T) {
	root := newTestEnv(t).root
	cfg := config.NewConfig()
	cfg.Root = root
	env := newTestEnvWithStore(t, cfg, failingStore{incremental.NewJSONStore(cfg.ManifestPath())})

	report, err := env.orch.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, manifest failures must not fail the build", err)
	}
	if report.ManifestErr == nil {
		t.Error("ManifestErr should be set")
	}
	if len(report.Built) != 2 {
		t.Errorf("Built = %v", report.BuiltNames())
	}
}

func TestRunCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.orch.Run(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(env.compiler.calls) != 0 {
		t.Error("no unit should be built after cancellation")
	}
}

// TestWidgetDashboardScenario walks the documented end-to-end flow: a full
// first build, then an incremental build after editing dashboard only.
func TestWidgetDashboardScenario(t *testing.T) {
	env := newTestEnv(t)

	// No manifest yet: build everything.
	first := env.run(t, Options{})
	if !slices.Equal(first.BuiltNames(), []string{"dashboard", "widget"}) {
		t.Fatalf("first build = %v", first.BuiltNames())
	}
	m := env.manifest(t)
	if m.Len() != 2 {
		t.Fatalf("manifest has %d entries, want 2", m.Len())
	}
	for _, b := range first.Built {
		want := map[string]string{"widget": "NextWidget", "dashboard": "Dashboard"}[b.Name]
		if b.GlobalSymbol != want {
			t.Errorf("%s symbol = %q, want %q", b.Name, b.GlobalSymbol, want)
		}
	}

	widgetBundle := readFile(t, env.output("widget.js"))
	widgetEntry := entryJSON(t, m, "widget")
	dashboardEntry := entryJSON(t, m, "dashboard")
	env.compiler.reset()

	// Edit dashboard only.
	writeFile(t, filepath.Join(env.root, "sources", "dashboard", "Chart.tsx"), "export const Chart = 2")

	second := env.run(t, Options{Mode: ModeChanged})
	if !slices.Equal(second.Detection.Changed, []string{"dashboard"}) {
		t.Errorf("Detection.Changed = %v, want [dashboard]", second.Detection.Changed)
	}
	if !slices.Equal(env.compiler.units(), []string{"dashboard"}) {
		t.Errorf("built %v, want [dashboard]", env.compiler.units())
	}

	m = env.manifest(t)
	if got := entryJSON(t, m, "widget"); got != widgetEntry {
		t.Errorf("widget entry changed:\n before %s\n after  %s", widgetEntry, got)
	}
	if got := entryJSON(t, m, "dashboard"); got == dashboardEntry {
		t.Error("dashboard entry should be refreshed")
	}
	if got := readFile(t, env.output("widget.js")); got != widgetBundle {
		t.Error("widget bundle should be untouched")
	}

	// And now everything is up to date.
	env.compiler.reset()
	third := env.run(t, Options{Mode: ModeChanged})
	if !third.NothingToDo() || len(env.compiler.calls) != 0 {
		t.Errorf("third run built %v, want nothing", env.compiler.units())
	}
}

func TestClean(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, Options{})
	writeFile(t, env.output("widget.js.map"), "{}")
	writeFile(t, env.output("notes.txt"), "keep me")

	cleared, err := env.orch.Clean()
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	want := []string{"dashboard.js", "widget.js", "widget.js.map", "manifest.json"}
	if !slices.Equal(cleared, want) {
		t.Errorf("Clean() = %v, want %v", cleared, want)
	}
	for _, name := range want {
		if _, err := os.Stat(env.output(name)); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", name)
		}
	}
	if _, err := os.Stat(env.output("notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	// Nothing left to remove.
	cleared, err = env.orch.Clean()
	if err != nil || len(cleared) != 0 {
		t.Errorf("second Clean() = %v, %v", cleared, err)
	}
}

func TestUnknownUnitsErrorMessage(t *testing.T) {
	tests := []struct {
		err  *UnknownUnitsError
		want string
	}{
		{&UnknownUnitsError{Names: []string{"a"}}, "unknown unit: a"},
		{&UnknownUnitsError{Names: []string{"a", "b"}, Available: []string{"widget"}}, "unknown units: a, b (available: widget)"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func entryJSON(t *testing.T, m *incremental.Manifest, unit string) string {
	t.Helper()
	e, ok := m.Get(unit)
	if !ok {
		t.Fatalf("manifest has no entry for %s", unit)
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// fileState is what a snapshot records per file.
type fileState struct {
	content string
	modTime time.Time
}

func snapshot(t *testing.T, dir string) map[string]fileState {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	snap := make(map[string]fileState, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			t.Fatal(err)
		}
		snap[e.Name()] = fileState{content: readFile(t, filepath.Join(dir, e.Name())), modTime: info.ModTime()}
	}
	return snap
}

func equalSnapshots(a, b map[string]fileState) bool {
	if len(a) != len(b) {
		return false
	}
	for name, sa := range a {
		sb, ok := b[name]
		if !ok || sa.content != sb.content || !sa.modTime.Equal(sb.modTime) {
			return false
		}
	}
	return true
}
