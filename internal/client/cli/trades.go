package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/cache"
	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/filex"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// maxAttachmentFile bounds the source image read from disk; the stored
// attachment is re-encoded within the image budget.
const maxAttachmentFile = 32 << 20

type tradeFlags struct {
	date, time, amount, tag, notes, attachment string
}

func (f *tradeFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.date, "date", "", "trade date, YYYY-MM-DD (default today)")
	fs.StringVar(&f.time, "time", "", "trade time, HH:MM")
	fs.StringVar(&f.amount, "amount", "", "profit or loss, e.g. -12.50")
	fs.StringVar(&f.tag, "tag", "", "tag id or name")
	fs.StringVar(&f.notes, "notes", "", "free-form notes, - reads stdin")
	fs.StringVar(&f.attachment, "attachment", "", "path of an image to attach")
}

func newTradesCmd(r *runner) *cobra.Command {
	cmd := &cobra.Command{Use: "trades", Short: "Manage trades"}

	var month string
	list := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		Args:  cobra.NoArgs,
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			var trades []models.Trade
			err := app.withRetry(ctx, func(ctx context.Context) error {
				var err error
				if month == "" {
					trades, err = app.cache.Trades(ctx)
					return err
				}
				m, err := time.Parse("2006-01", month)
				if err != nil {
					return fmt.Errorf("%w: month %q is not YYYY-MM", common.ErrValidation, month)
				}
				trades, err = app.cache.TradesInMonth(ctx, m.Year(), m.Month())
				return err
			})
			if err != nil {
				return err
			}
			return printTrades(cmd, trades)
		}),
	}
	list.Flags().StringVar(&month, "month", "", "only trades of this month, YYYY-MM")

	var addFlags tradeFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a trade",
		Args:  cobra.NoArgs,
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			t := models.Trade{Date: addFlags.date, Time: addFlags.time}
			if t.Date == "" {
				t.Date = time.Now().Format(models.DateLayout)
			}
			amount, err := decimal.NewFromString(addFlags.amount)
			if err != nil {
				return fmt.Errorf("%w: amount %q: %w", common.ErrValidation, addFlags.amount, err)
			}
			t.Amount = amount
			if t.Notes, err = readNotes(addFlags.notes, cmd.InOrStdin()); err != nil {
				return err
			}
			attachment, err := loadAttachment(addFlags.attachment)
			if err != nil {
				return err
			}

			var created models.Trade
			err = app.withRetry(ctx, func(ctx context.Context) error {
				if addFlags.tag != "" {
					tag, err := app.findTag(ctx, addFlags.tag)
					if err != nil {
						return err
					}
					t = t.WithTag(tag)
				}
				res, err := app.cache.Mutate(ctx, cache.TradeCreate{Trade: t, Attachment: attachment})
				if err != nil {
					return err
				}
				created = res.(models.Trade)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added trade %s\n", created.ID)
			return nil
		}),
	}
	addFlags.bind(add)
	_ = add.MarkFlagRequired("amount")

	var updFlags tradeFlags
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a trade",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			var patch models.TradePatch
			if fs.Changed("date") {
				patch.Date = &updFlags.date
			}
			if fs.Changed("time") {
				patch.Time = &updFlags.time
			}
			if fs.Changed("amount") {
				amount, err := decimal.NewFromString(updFlags.amount)
				if err != nil {
					return fmt.Errorf("%w: amount %q: %w", common.ErrValidation, updFlags.amount, err)
				}
				patch.Amount = &amount
			}
			if fs.Changed("notes") {
				notes, err := readNotes(updFlags.notes, cmd.InOrStdin())
				if err != nil {
					return err
				}
				patch.Notes = &notes
			}
			attachment, err := loadAttachment(updFlags.attachment)
			if err != nil {
				return err
			}

			return app.withRetry(ctx, func(ctx context.Context) error {
				if fs.Changed("tag") {
					if err := app.patchTag(ctx, &patch, updFlags.tag); err != nil {
						return err
					}
				}
				if _, err := app.cache.Mutate(ctx, cache.TradeUpdate{ID: args[0], Patch: patch, Attachment: attachment}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated trade %s\n", args[0])
				return nil
			})
		}),
	}
	updFlags.bind(update)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a trade",
		Args:  cobra.ExactArgs(1),
		RunE: r.signedIn(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
			err := app.withRetry(ctx, func(ctx context.Context) error {
				_, err := app.cache.Mutate(ctx, cache.TradeDelete{ID: args[0]})
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted trade %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, add, update, del)
	return cmd
}

// findTag resolves a tag by id, then by name ignoring case.
func (a *App) findTag(ctx context.Context, ref string) (models.Tag, error) {
	tags, err := a.cache.Tags(ctx)
	if err != nil {
		return models.Tag{}, err
	}
	if tag, ok := models.FindTag(tags, ref); ok {
		return tag, nil
	}
	name := models.NormalizeName(ref)
	for _, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			return tag, nil
		}
	}
	return models.Tag{}, fmt.Errorf("%w: tag %q", common.ErrNotFound, ref)
}

// patchTag sets the tag fields of patch; an empty ref clears them.
func (a *App) patchTag(ctx context.Context, patch *models.TradePatch, ref string) error {
	var tag models.Tag
	if ref != "" {
		var err error
		if tag, err = a.findTag(ctx, ref); err != nil {
			return err
		}
	}
	patch.TagID = &tag.ID
	patch.TagName = &tag.Name
	patch.TagColor = &tag.Color
	patch.TagEmoji = &tag.Emoji
	return nil
}

func loadAttachment(path string) (*cache.Attachment, error) {
	if path == "" {
		return nil, nil
	}
	data, err := filex.ReadLimited(path, maxAttachmentFile)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return &cache.Attachment{Data: data, Filename: filepath.Base(path)}, nil
}

func printTrades(cmd *cobra.Command, trades []models.Trade) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTIME\tAMOUNT\tTAG\tATTACHMENT\tNOTES")

	total := decimal.Zero
	for _, t := range trades {
		tag := strings.TrimSpace(t.TagEmoji + " " + t.TagName)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Date, orDash(t.Time), t.Amount.StringFixed(2), orDash(tag), orDash(t.AttachmentID),
			strings.ReplaceAll(t.Notes, "\n", " "))
		total = total.Add(t.Amount)
	}
	fmt.Fprintf(w, "\t\t\t%s\t\t\t%d trades\n", total.StringFixed(2), len(trades))
	return w.Flush()
}
