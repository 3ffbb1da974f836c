package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/tradebook/internal/client/cache"
	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/spf13/cobra"
)

func newTagsCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{Use: "tags", Short: "Manage tags"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tags in display order",
		Args:  cobra.NoArgs,
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			var tags []models.Tag
			err := app.withRetry(ctx, func(ctx context.Context) error {
				var err error
				tags, err = app.cache.Tags(ctx)
				return err
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tORDER\tNAME\tCOLOR\tEMOJI")
			for _, t := range tags {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", t.ID, t.Order, t.Name, orDash(t.Color), orDash(t.Emoji))
			}
			return w.Flush()
		}),
	}

	var tag models.Tag
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			tag.Name = args[0]
			var created models.Tag
			err := app.withRetry(ctx, func(ctx context.Context) error {
				res, err := app.cache.Mutate(ctx, cache.TagCreate{Tag: tag})
				if err != nil {
					return err
				}
				created = res.(models.Tag)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added tag %s (%s)\n", created.Name, created.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&tag.Color, "color", "", "display color, e.g. #3366ff")
	add.Flags().StringVar(&tag.Emoji, "emoji", "", "display emoji")
	add.Flags().IntVar(&tag.Order, "order", 0, "display position")

	var upd struct {
		name, color, emoji string
		order              int
	}
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a tag",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			var patch models.TagPatch
			if fs.Changed("name") {
				patch.Name = &upd.name
			}
			if fs.Changed("color") {
				patch.Color = &upd.color
			}
			if fs.Changed("emoji") {
				patch.Emoji = &upd.emoji
			}
			if fs.Changed("order") {
				patch.Order = &upd.order
			}
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.TagUpdate{ID: args[0], Patch: patch})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated tag %s\n", args[0])
			return nil
		}),
	}
	update.Flags().StringVar(&upd.name, "name", "", "new name")
	update.Flags().StringVar(&upd.color, "color", "", "new color")
	update.Flags().StringVar(&upd.emoji, "emoji", "", "new emoji")
	update.Flags().IntVar(&upd.order, "order", 0, "new display position")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a tag; trades keep their copy of it",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.TagDelete{ID: args[0]})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted tag %s\n", args[0])
			return nil
		}),
	}

	reorder := &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Set the display order to the given sequence",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.TagReorder{IDs: args})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reordered %d tags\n", len(args))
			return nil
		}),
	}

	cmd.AddCommand(list, add, update, del, reorder)
	return cmd
}
