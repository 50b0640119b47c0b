package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/orchestrator"
)

func newCleanCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove bundles and the manifest",
		Long: `Removes every bundle, source map and the manifest from the output
directory. The next build --changed rebuilds every unit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			orch, err := orchestrator.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			removed, err := orch.Clean()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(removed) == 0 {
				_, _ = fmt.Fprintln(w, "Nothing to clean")
				return nil
			}
			for _, name := range removed {
				_, _ = fmt.Fprintf(w, "  - %s\n", name)
			}
			_, _ = fmt.Fprintf(w, "%s removed %d %s\n", SuccessStyle.Render("✓"), len(removed), plural(len(removed), "file", "files"))
			return nil
		},
	}
}
