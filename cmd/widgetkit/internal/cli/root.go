// Package cli implements the widgetkit command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/internal/log"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// rootOptions holds persistent flags that apply to all commands.
type rootOptions struct {
	verbosity int
	logFormat string
	dir       string
}

// loadConfig loads the layered configuration for the project containing
// --dir, or the working directory.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.dir == "" {
		return config.Load()
	}
	return config.LoadFrom(o.dir)
}

// NewRootCmd builds the widgetkit command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "widgetkit",
		Short: "Incremental builds for embeddable widget bundles",
		Long: TitleStyle.Render("widgetkit") + SubtitleStyle.Render(" - incremental builds for embeddable widget bundles") + `

Every subdirectory of the source root with an entry file is a unit. Each
unit compiles to its own self-contained bundle exposing one global symbol.
A manifest of content digests lets later builds skip unchanged units.

` + SubtitleStyle.Render("Examples:") + `
  widgetkit build                  Build every unit
  widgetkit build --changed        Build units whose sources changed
  widgetkit build --only a,b       Build the named units only
  widgetkit detect                 Print changed units as JSON
  widgetkit watch                  Rebuild on every change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			log.InitWithOutput(opts.verbosity, opts.logFormat, cmd.ErrOrStderr())
		},
		// Default behavior: show help
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", log.VerbosityWarn,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text",
		"Log format (text, json)")
	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", "",
		"Project directory (default: current directory)")

	cmd.AddCommand(
		newBuildCmd(opts),
		newDetectCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newNewCmd(opts),
		newCleanCmd(opts),
		newPublishCmd(opts),
		newLsRemoteCmd(opts),
		newPullCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd shows version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "widgetkit %s (%s)\n", Version, GitCommit)
		},
	}
}

// Execute runs the root command and exits 1 on failure.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		printError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
