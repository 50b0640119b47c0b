package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/scaffold"
)

type newOptions struct {
	json bool
}

func newNewCmd(root *rootOptions) *cobra.Command {
	opts := &newOptions{}

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Scaffold a new unit",
		Long: `Creates sources/<name>/ with an entry file.

When sources/_template/ exists its files are copied, with {{NAME}},
{{SYMBOL}} and {{TITLE}} replaced in file names and contents. Otherwise a
built-in entry file and README are written.

Names are lower-case letters, digits, '-' and '_'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNew(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output as JSON")

	return cmd
}

func runNew(cmd *cobra.Command, root *rootOptions, opts *newOptions, name string) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	res, err := scaffold.Create(cfg.SourcesDir(), name, scaffold.Options{
		Entry:   cfg.Units.Entry,
		Symbols: cfg.Units.Symbols,
	})
	if err != nil {
		return err
	}

	if opts.json {
		return outputJSON(cmd.OutOrStdout(), res)
	}

	w := cmd.OutOrStdout()
	source := "built-in template"
	if res.FromTemplate {
		source = scaffold.TemplateDir
	}
	_, _ = fmt.Fprintf(w, "%s created %s %s\n", SuccessStyle.Render("✓"), res.Name,
		SubtitleStyle.Render(fmt.Sprintf("(global %s, from %s)", res.GlobalSymbol, source)))
	for _, f := range res.Files {
		_, _ = fmt.Fprintf(w, "  + %s\n", f)
	}
	_, _ = fmt.Fprintf(w, "Run %s to build it\n", CmdStyle.Render("widgetkit build --only "+res.Name))
	return nil
}
