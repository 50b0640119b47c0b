package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/discovery"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/incremental"
)

type detectOptions struct {
	full bool
}

func newDetectCmd(root *rootOptions) *cobra.Command {
	opts := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the units that need rebuilding",
		Long: `Runs change detection without building anything.

The changed units are printed to stdout as a JSON array, e.g. ["dashboard"],
and the reason to stderr, so the output can gate CI steps:

  if [ "$(widgetkit detect)" != "[]" ]; then widgetkit build --changed; fi

--full prints {"changed", "reason", "sharedChanged"} instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(cmd, root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.full, "full", false,
		"Print the reason and shared-change flag along with the units")

	return cmd
}

func runDetect(cmd *cobra.Command, root *rootOptions, opts *detectOptions) error {
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

	d := tracker.Detect(units)

	changed := "none"
	if !d.IsEmpty() {
		changed = strings.Join(d.Changed, ", ")
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", d.Reason, changed)

	if opts.full {
		return outputJSON(cmd.OutOrStdout(), d)
	}

	data, err := json.Marshal(d.Changed)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
