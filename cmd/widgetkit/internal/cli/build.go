package cli

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
)

type buildOptions struct {
	only    []string
	changed bool
	force   bool
	json    bool
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build widget bundles",
		Long: `Compiles units into self-contained bundles and rewrites the manifest.

With no flags every existing bundle is cleared and every unit is built.

  --only a,b   Build only the named units. Other bundles and their manifest
               entries are left untouched. Unknown names fail before any
               output is written.
  --changed    Build only the units whose sources, or whose shared inputs,
               changed since the manifest was written. Nothing to build is
               not an error.
  --force      Same as no flags, stated explicitly.

The flags are mutually exclusive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, root, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.only, "only", nil,
		"Build only these units (comma-separated)")
	cmd.Flags().BoolVar(&opts.changed, "changed", false,
		"Build only units whose inputs changed")
	cmd.Flags().BoolVar(&opts.force, "force", false,
		"Clear all bundles and rebuild every unit")
	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output the build report as JSON")
	cmd.MarkFlagsMutuallyExclusive("only", "changed", "force")

	return cmd
}

func runBuild(cmd *cobra.Command, root *rootOptions, opts *buildOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	orch, err := orchestrator.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, err := orch.Run(ctx, buildRunOptions(cmd, opts))
	if err != nil {
		return err
	}

	if opts.json {
		return outputJSON(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// buildRunOptions maps the flags the user set to a build mode. --only given
// with no names stays a selective build so the orchestrator rejects it
// instead of clearing every bundle.
func buildRunOptions(cmd *cobra.Command, opts *buildOptions) orchestrator.Options {
	switch {
	case cmd.Flags().Changed("only"):
		only := make([]string, 0, len(opts.only))
		for _, name := range opts.only {
			only = append(only, strings.TrimSpace(name))
		}
		return orchestrator.Options{Mode: orchestrator.ModeOnly, Only: only}
	case opts.changed:
		return orchestrator.Options{Mode: orchestrator.ModeChanged}
	case opts.force:
		return orchestrator.Options{Mode: orchestrator.ModeForce}
	default:
		return orchestrator.Options{Mode: orchestrator.ModeAll}
	}
}
