package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/tradebook/internal/client/cache"
	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/spf13/cobra"
)

func newSettingsCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Manage preferences"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List settings",
		Args:  cobra.NoArgs,
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			var settings []models.Setting
			err := app.withRetry(ctx, func(ctx context.Context) error {
				var err error
				settings, err = app.cache.Settings(ctx)
				return err
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, s := range settings {
				fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value)
			}
			return w.Flush()
		}),
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or replace a setting",
		Args:  cobra.ExactArgs(2),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.SettingPut{Key: args[0], Value: args[1]})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.SettingDelete{Key: args[0]})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted setting %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, set, del)
	return cmd
}
