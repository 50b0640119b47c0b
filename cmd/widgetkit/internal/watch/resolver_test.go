package watch

import (
	"path/filepath"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	root := filepath.FromSlash("/project")
	p := func(rel string) string { return filepath.Join(root, filepath.FromSlash(rel)) }

	r := NewResolver(p("sources"),
		[]string{p("shared"), p("build-config.js")},
		[]string{"**/node_modules/**", "**/.DS_Store"},
	)

	tests := []struct {
		name   string
		path   string
		target string
		ok     bool
	}{
		{name: "unit file", path: "sources/dashboard/index.tsx", target: "dashboard", ok: true},
		{name: "nested unit file", path: "sources/widget/components/Chart.tsx", target: "widget", ok: true},
		{name: "unit dir", path: "sources/dashboard", target: "dashboard", ok: true},
		{name: "template", path: "sources/_template/index.tsx", ok: false},
		{name: "hidden", path: "sources/.cache/x", ok: false},
		{name: "ignored in unit", path: "sources/widget/.DS_Store", ok: false},
		{name: "node_modules in unit", path: "sources/widget/node_modules/react/index.js", ok: false},
		{name: "shared file", path: "shared/utils/format.ts", target: AllUnits, ok: true},
		{name: "shared ignored", path: "shared/.DS_Store", ok: false},
		{name: "build config", path: "build-config.js", target: AllUnits, ok: true},
		{name: "shared dir itself", path: "shared", target: AllUnits, ok: true},
		{name: "sources root", path: "sources", ok: false},
		{name: "unrelated", path: "README.md", ok: false},
		{name: "sibling prefix", path: "sources-old/widget/index.tsx", ok: false},
		{name: "shared prefix", path: "shared2/x.ts", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := r.Resolve(p(tt.path))
			if ok != tt.ok || target != tt.target {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.path, target, ok, tt.target, tt.ok)
			}
		})
	}
}
