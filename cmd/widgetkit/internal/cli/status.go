package cli

import (
	"fmt"
	"path/filepath"

	"github.com/disiqueira/gotree/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
)

type statusOptions struct {
	json bool
}

// StatusOutput is the JSON output format for widgetkit status.
type StatusOutput struct {
	Stale         bool                     `json:"stale"`
	Reason        string                   `json:"reason"`
	SharedChanged bool                     `json:"sharedChanged"`
	Algorithm     string                   `json:"algorithm"`
	Units         []incremental.UnitStatus `json:"units"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which units have stale bundles",
		Long: `Shows every unit with the freshness of its bundle:

  fresh   the bundle matches the current sources
  stale   the unit was built before but its inputs changed
  new     the unit has never been built

The --json flag outputs the result as JSON for scripting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, root *rootOptions, opts *statusOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	tracker, err := incremental.NewTrackerFromConfig(cfg)
	if err != nil {
		return err
	}

	units, err := discovery.Discover(cfg.SourcesDir(), discovery.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	states, d := tracker.UnitStates(units)

	if opts.json {
		return outputJSON(cmd.OutOrStdout(), StatusOutput{
			Stale:         !d.IsEmpty(),
			Reason:        d.Reason,
			SharedChanged: d.SharedChanged,
			Algorithm:     tracker.Hasher().Algorithm(),
			Units:         states,
		})
	}

	w := cmd.OutOrStdout()
	if len(states) == 0 {
		_, _ = fmt.Fprintf(w, "No units under %s\n", cfg.SourcesDir())
		return nil
	}

	tree := gotree.New(fmt.Sprintf("%s %s",
		TitleStyle.Render(filepath.Base(cfg.SourcesDir())),
		SubtitleStyle.Render(tracker.Hasher().Algorithm())))
	for _, s := range states {
		node := tree.Add(fmt.Sprintf("%s %s %s",
			stateStyle(s.State).Render(fmt.Sprintf("%-5s", s.State)),
			s.Name,
			SubtitleStyle.Render(s.GlobalSymbol)))
		if s.Entry != nil {
			node.Add(fmt.Sprintf("%s %s, built %s",
				s.Entry.BundleFile,
				humanize.Bytes(uint64(s.Entry.BundleSize)),
				humanize.Time(s.Entry.BuiltAt)))
		}
	}
	_, _ = fmt.Fprint(w, tree.Print())

	if d.IsEmpty() {
		_, _ = fmt.Fprintf(w, "\n%s all bundles are up to date\n", SuccessStyle.Render("✓"))
		return nil
	}
	_, _ = fmt.Fprintf(w, "\n%d %s to rebuild (%s)\n", len(d.Changed), plural(len(d.Changed), "unit", "units"), d.Reason)
	_, _ = fmt.Fprintf(w, "Run %s to update them\n", CmdStyle.Render("widgetkit build --changed"))
	return nil
}
