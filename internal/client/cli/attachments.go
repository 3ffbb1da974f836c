package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAttachmentsCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{Use: "attachments", Short: "Inspect trade attachments"}

	url := &cobra.Command{
		Use:   "url <file-id>",
		Short: "Print a viewable URL for an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			var u string
			err := app.withRetry(ctx, func(ctx context.Context) error {
				var err error
				u, err = app.assets.URLFor(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		}),
	}

	cmd.AddCommand(url)
	return cmd
}
