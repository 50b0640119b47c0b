package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/albertocavalcante/widgetkit/cmd/widgetkit/internal/remote"
	"github.com/albertocavalcante/widgetkit/pkg/config"
)

type remoteOptions struct {
	json bool
}

// transferFunc is remote.Publish or remote.Pull.
type transferFunc func(context.Context, remote.ObjectStore, remote.Layout) (*remote.Transfer, error)

func newPublishCmd(root *rootOptions) *cobra.Command {
	return newTransferCmd(root, &cobra.Command{
		Use:   "publish",
		Short: "Upload bundles and the manifest to the remote cache",
		Long: `Uploads every bundle listed in the manifest, then the manifest itself,
to the S3-compatible bucket configured in [remote].

Credentials can come from WIDGETKIT_REMOTE_ACCESS_KEY and
WIDGETKIT_REMOTE_SECRET_KEY, or a .env file in the project root.`,
	}, remote.Publish, "published to")
}

func newPullCmd(root *rootOptions) *cobra.Command {
	return newTransferCmd(root, &cobra.Command{
		Use:   "pull",
		Short: "Download bundles and the manifest from the remote cache",
		Long: `Downloads the remote manifest and every bundle it lists into the output
directory, so a fresh checkout can run build --changed incrementally.

No remote manifest is not an error: there is nothing to pull.`,
	}, remote.Pull, "pulled from")
}

func newTransferCmd(root *rootOptions, cmd *cobra.Command, transfer transferFunc, verb string) *cobra.Command {
	opts := &remoteOptions{}

	cmd.Args = cobra.NoArgs
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := root.loadConfig()
		if err != nil {
			return err
		}

		store, err := remote.NewS3Store(remote.S3ConfigFromConfig(cfg))
		if err != nil {
			return err
		}

		t, err := transfer(cmd.Context(), store, layout(cfg))
		if err != nil {
			return err
		}

		if opts.json {
			return outputJSON(cmd.OutOrStdout(), t)
		}
		printTransfer(cmd.OutOrStdout(), t, verb, store.Location())
		return nil
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output as JSON")

	return cmd
}

func newLsRemoteCmd(root *rootOptions) *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "ls-remote",
		Short: "List the objects in the remote cache",
		Long: `Lists every object in the S3-compatible bucket configured in [remote]
and reports bundles the remote manifest names that are missing from it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			store, err := remote.NewS3Store(remote.S3ConfigFromConfig(cfg))
			if err != nil {
				return err
			}

			l, err := remote.Inspect(cmd.Context(), store, layout(cfg))
			if err != nil {
				return err
			}

			if opts.json {
				return outputJSON(cmd.OutOrStdout(), l)
			}
			printListing(cmd.OutOrStdout(), l, store.Location())
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false,
		"Output as JSON")

	return cmd
}

func layout(cfg *config.Config) remote.Layout {
	return remote.Layout{
		OutputDir:    cfg.OutputDir(),
		ManifestPath: cfg.ManifestPath(),
	}
}

// printTransfer writes a transfer summary; verb is e.g. "published to".
func printTransfer(w io.Writer, t *remote.Transfer, verb, location string) {
	if !t.Found {
		_, _ = fmt.Fprintf(w, "Nothing to pull from %s\n", location)
		return
	}
	for _, b := range t.Bundles {
		_, _ = fmt.Fprintf(w, "  %s\n", b)
	}
	_, _ = fmt.Fprintf(w, "%s %d %s (%s) %s %s\n",
		SuccessStyle.Render("✓"),
		len(t.Bundles), plural(len(t.Bundles), "bundle", "bundles"),
		humanize.Bytes(uint64(t.Bytes)),
		verb, CmdStyle.Render(location))
}

func printListing(w io.Writer, l *remote.Listing, location string) {
	for _, key := range l.Objects {
		_, _ = fmt.Fprintf(w, "  %s\n", key)
	}
	for _, missing := range l.Missing {
		_, _ = fmt.Fprintf(w, "%s %s is in the manifest but not in the store\n", WarningStyle.Render("!"), missing)
	}
	if !l.Manifest {
		_, _ = fmt.Fprintf(w, "No manifest published to %s\n", CmdStyle.Render(location))
		return
	}
	_, _ = fmt.Fprintf(w, "%d %s in %s\n", len(l.Objects), plural(len(l.Objects), "object", "objects"), CmdStyle.Render(location))
}
