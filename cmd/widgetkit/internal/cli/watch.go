package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/watch"
)

type watchOptions struct {
	debounce       int
	verbose        bool
	json           bool
	noColor        bool
	noInitialBuild bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild units as their sources change",
		Long: `Watches unit sources, shared directories and build-config files and
rebuilds the units a change made stale.

A change under sources/<unit>/ rebuilds that unit; a change to a shared
input rebuilds every unit. Build failures are reported and watching
continues.

Example output:

  $ widgetkit watch

  widgetkit: watching 2 units
  widgetkit: ready

  [14:32:15] rebuilding dashboard...
  [14:32:16] ✓ dashboard.js (41 kB)

Press Ctrl+C to stop watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.debounce, "debounce", 0,
		"Debounce window in milliseconds (default: watch.debounce_ms)")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false,
		"Show file-level changes")
	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Stream JSON events (for tooling integration)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false,
		"Disable colored output")
	cmd.Flags().BoolVar(&opts.noInitialBuild, "no-initial-build", false,
		"Do not build stale units on startup")

	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, opts *watchOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	orch, err := orchestrator.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	wcfg := watch.ConfigFromConfig(cfg)
	if opts.debounce > 0 {
		wcfg.Debounce = time.Duration(opts.debounce) * time.Millisecond
	}
	wcfg.InitialBuild = !opts.noInitialBuild
	wcfg.Verbose = opts.verbose
	wcfg.JSON = opts.json
	wcfg.NoColor = opts.noColor
	wcfg.Writer = cmd.OutOrStdout()

	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	w, err := watch.New(wcfg, orch)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
