package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
)

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printReport writes a human-readable build summary.
func printReport(w io.Writer, r *orchestrator.Report) {
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	if r.Detection != nil {
		changed := "none"
		if !r.Detection.IsEmpty() {
			changed = strings.Join(r.Detection.Changed, ", ")
		}
		p("%s %s %s\n", SubtitleStyle.Render("changed:"), changed, SubtitleStyle.Render("("+r.Detection.Reason+")"))
	}

	if r.NothingToDo() {
		p("%s nothing to do\n", SuccessStyle.Render("✓"))
		return
	}

	if len(r.Cleared) > 0 {
		p("%s cleared %d old %s\n", SubtitleStyle.Render("·"), len(r.Cleared), plural(len(r.Cleared), "file", "files"))
	}

	width := 0
	for _, b := range r.Built {
		width = max(width, len(b.BundleFile))
	}
	for _, b := range r.Built {
		p("%s %-*s  %s  %s\n",
			SuccessStyle.Render("✓"),
			width, b.BundleFile,
			CmdStyle.Render(b.GlobalSymbol),
			SubtitleStyle.Render(fmt.Sprintf("%s, %d %s, %s",
				humanize.Bytes(uint64(b.Bytes)), b.Inputs, plural(b.Inputs, "input", "inputs"), round(b.Duration))),
		)
		if len(b.Externals) > 0 {
			p("  %s %s\n", SubtitleStyle.Render("externals:"), strings.Join(b.Externals, ", "))
		}
		for _, warning := range b.Warnings {
			p("  %s %s\n", WarningStyle.Render("!"), warning)
		}
	}

	if r.ManifestErr != nil {
		p("%s manifest not updated: %v\n", WarningStyle.Render("!"), r.ManifestErr)
	}

	p("%s\n", TitleStyle.Render(fmt.Sprintf("built %d %s (%s) in %s",
		len(r.Built), plural(len(r.Built), "bundle", "bundles"), humanize.Bytes(uint64(r.TotalBytes())), round(r.Duration))))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
