// Package scaffold creates new widget units from a template.
package scaffold

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/internal/log"
)

// TemplateDir is the template unit inside the source root. Its leading
// underscore keeps discovery from treating it as a unit.
const TemplateDir = "_template"

// Template tokens.
const (
	TokenName   = "NAME"
	TokenSymbol = "SYMBOL"
	TokenTitle  = "TITLE"
)

var (
	// ErrInvalidName is returned for names that cannot be unit directories.
	ErrInvalidName = errors.New("invalid unit name")

	// ErrUnitExists is returned when the unit directory already exists.
	ErrUnitExists = errors.New("unit already exists")
)

var (
	tokenPattern = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)
	namePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// Render replaces every {{TOKEN}} in tmpl that has a value in vars.
// Unknown tokens are left as they are and values are not rescanned.
func Render(tmpl string, vars map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		if v, ok := vars[match[2:len(match)-2]]; ok {
			return v
		}
		return match
	})
}

// Vars returns the template variables for a unit.
func Vars(name, symbol string) map[string]string {
	return map[string]string{
		TokenName:   name,
		TokenSymbol: symbol,
		TokenTitle:  Title(name),
	}
}

// Title turns a unit name into words: "sales-chart" becomes "Sales Chart".
func Title(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidateName rejects names that discovery would skip or that are not
// lower-case kebab or snake case.
func ValidateName(name string) error {
	if discovery.IsIgnored(name) || !namePattern.MatchString(name) {
		return fmt.Errorf("%w %q: use lower-case letters, digits, '-' and '_'", ErrInvalidName, name)
	}
	return nil
}

// Options configures Create.
type Options struct {
	// Entry is the entry file path relative to the unit directory.
	Entry string
	// Symbols overrides derived global symbols.
	Symbols map[string]string
}

// Result describes a created unit.
type Result struct {
	Name         string   `json:"name"`
	Dir          string   `json:"dir"`
	GlobalSymbol string   `json:"globalSymbol"`
	Files        []string `json:"files"`
	FromTemplate bool     `json:"fromTemplate"`
}

// Create scaffolds unit name under sourcesDir. Files come from
// sourcesDir/_template when it exists, otherwise from the built-in
// templates; the entry file is always written.
func Create(sourcesDir, name string, opts Options) (*Result, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(sourcesDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnitExists, dir)
	}

	symbol := discovery.GlobalSymbol(name, opts.Symbols)
	vars := Vars(name, symbol)
	result := &Result{Name: name, Dir: dir, GlobalSymbol: symbol}

	files := make(map[string]string)

	templateDir := filepath.Join(sourcesDir, TemplateDir)
	if info, err := os.Stat(templateDir); err == nil && info.IsDir() {
		if err := readTemplate(templateDir, files); err != nil {
			return nil, err
		}
		result.FromTemplate = true
	}

	entry := filepath.ToSlash(opts.Entry)
	if entry == "" {
		entry = "index.tsx"
	}
	if _, ok := files[entry]; !ok {
		files[entry] = EntryTemplate
		if !result.FromTemplate {
			files["README.md"] = ReadmeTemplate
		}
	}

	for rel, content := range files {
		target := filepath.Join(dir, filepath.FromSlash(Render(rel, vars)))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(Render(content, vars)), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", target, err)
		}
		result.Files = append(result.Files, filepath.ToSlash(Render(rel, vars)))
	}
	slices.Sort(result.Files)

	log.Component("scaffold").Info("created unit", "name", name, "dir", dir, "files", len(result.Files))
	return result, nil
}

// readTemplate loads every file under dir keyed by slash-separated relative path.
func readTemplate(dir string, files map[string]string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
}
