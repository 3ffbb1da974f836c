package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/spf13/cobra"
)

func newLoginCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and prepare the journal spreadsheet",
		Args:  cobra.NoArgs,
		RunE: r.run(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			if err := app.session.Initialize(ctx); err != nil {
				return err
			}
			id, err := app.session.SignIn(ctx)
			if err != nil {
				if errors.Is(err, common.ErrConsentDenied) {
					return errors.New("sign-in was cancelled; run `tradebook login` to try again")
				}
				return fmt.Errorf("sign-in failed: %w; run `tradebook login` to try again", err)
			}

			docID, err := app.store.ResolveDocument(ctx)
			if err != nil {
				return fmt.Errorf("prepare spreadsheet: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\nJournal spreadsheet: %s\n", id, docID)
			return nil
		}),
	}
}

func newLogoutCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: r.run(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			if err := app.session.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		}),
	}
}

func newStatusCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session and the resolved remote handles",
		Args:  cobra.NoArgs,
		RunE: r.run(func(ctx context.Context, app *App, cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			if err := app.restore(ctx); err != nil {
				if errors.Is(err, errNotSignedIn) {
					fmt.Fprintln(out, "Not signed in")
					return nil
				}
				return err
			}

			fmt.Fprintf(out, "Signed in as:  %s\n", app.session.Identity())
			fmt.Fprintf(out, "Session since: %s\n", app.session.AdoptedAt().Format(time.RFC3339))
			for _, k := range []struct{ label, key string }{
				{"Spreadsheet:", common.StateKeyDocumentID},
				{"Attachments:", common.StateKeyFolderID},
			} {
				v, err := app.state.Get(ctx, k.key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-14s %s\n", k.label, orDash(string(v)))
			}
			return nil
		}),
	}
}
