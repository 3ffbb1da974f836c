package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tradebook/internal/client/config"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/dmitrijs2005/tradebook/internal/metrics"
	"github.com/spf13/cobra"
)

type runner struct {
	flags *config.Flags
	build Builder
	app   *App
	stop  context.CancelFunc
	done  chan error
}

// NewRootCmd returns the tradebook command tree.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, NewApp)
}

func newRootCmd(version string, build Builder) *cobra.Command {
	r := &runner{build: build}

	root := &cobra.Command{
		Use:               "tradebook",
		Short:             "Trading journal stored in a Google spreadsheet",
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: r.setup,
	}
	r.flags = config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newLoginCmd(r),
		newLogoutCmd(r),
		newStatusCmd(r),
		newTradesCmd(r),
		newTagsCmd(r),
		newSettingsCmd(r),
		newAttachmentsCmd(r),
	)
	return root
}

func (r *runner) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := r.flags.Load()
	if err != nil {
		return err
	}

	log := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	ctx := cmd.Context()

	app, err := r.build(ctx, cfg, log)
	if err != nil {
		return err
	}
	r.app = app

	if cfg.MetricsAddr != "" {
		mctx, stop := context.WithCancel(context.WithoutCancel(ctx))
		r.stop = stop
		r.done = make(chan error, 1)
		go func() {
			err := metrics.Serve(mctx, cfg.MetricsAddr)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(mctx, "metrics server stopped", "error", err)
			}
			r.done <- err
		}()
	}
	return nil
}

func (r *runner) teardown() error {
	if r.stop != nil {
		r.stop()
		<-r.done
	}
	if r.app == nil {
		return nil
	}
	err := r.app.Close()
	r.app = nil
	return err
}

type action func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error

// run adapts fn to cobra and releases the App once fn returns, also on
// failure.
func (r *runner) run(fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			err = errors.Join(err, r.teardown())
		}()
		return fn(cmd.Context(), r.app, cmd, args)
	}
}

// signedIn is run wrapped with a non-interactive session restore.
func (r *runner) signedIn(fn action) func(*cobra.Command, []string) error {
	return r.run(func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
		if err := app.restore(ctx); err != nil {
			return err
		}
		return fn(ctx, app, cmd, args)
	})
}
