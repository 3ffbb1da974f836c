package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/client/assets"
	"github.com/dmitrijs2005/tradebook/internal/client/cache"
	"github.com/dmitrijs2005/tradebook/internal/client/config"
	"github.com/dmitrijs2005/tradebook/internal/client/google"
	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/client/session"
	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/filex"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/dmitrijs2005/tradebook/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// App holds the wired client components for one command invocation.
type App struct {
	cfg     *config.Config
	log     logging.Logger
	state   metadata.Repository
	session *session.Manager
	store   *sheetstore.Store
	assets  *assets.Channel
	cache   *cache.Cache

	closers []func() error
}

// Builder constructs the App for a command.
type Builder func(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error)

// NewApp wires the production components.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if !strings.Contains(cfg.State.DSN, "://") {
		if _, err := filex.EnsureParentDir(cfg.State.DSN); err != nil {
			return nil, fmt.Errorf("prepare state directory: %w", err)
		}
	}

	st, err := metadata.Open(ctx, cfg.State.DSN)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}

	passphrase, err := resolvePassphrase(cfg.State.Passphrase)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	plain := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: metrics.InstrumentTransport(nil),
	}

	oauthCfg := session.OAuthConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Issuer:       cfg.OAuth.Issuer,
		Scopes:       cfg.OAuth.Scopes,
		RedirectPort: cfg.OAuth.RedirectPort,
		NoBrowser:    cfg.OAuth.NoBrowser,
		HTTPClient:   plain,
	}
	loader := func(ctx context.Context) (session.Authorizer, session.Introspector, error) {
		auth, intro, err := session.Discover(ctx, oauthCfg, log)
		if err != nil {
			return nil, nil, err
		}
		return auth, intro, nil
	}

	mgr := session.NewManager(loader, st, log, session.Options{
		Horizon:     cfg.Session.Horizon,
		RefreshLead: cfg.Session.RefreshLead,
		Passphrase:  passphrase,
		OnRefresh:   metrics.ObserveSessionRefresh,
	})

	authed := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &oauth2.Transport{
			Source: mgr,
			Base:   metrics.InstrumentTransport(nil),
		},
	}

	gc, err := google.NewClient(ctx, authed, log, google.Options{})
	if err != nil {
		mgr.Close()
		_ = st.Close()
		return nil, err
	}

	var files assets.FileStore = gc
	if cfg.Assets.Backend == config.BackendS3 {
		s3c := cfg.Assets.S3
		files, err = assets.NewS3Store(ctx, assets.S3Config{
			Bucket:    s3c.Bucket,
			Region:    s3c.Region,
			Endpoint:  s3c.Endpoint,
			AccessKey: s3c.AccessKey,
			SecretKey: s3c.SecretKey,
			PublicURL: s3c.PublicURL,
			URLExpiry: s3c.URLExpiry,
		}, log)
		if err != nil {
			mgr.Close()
			_ = st.Close()
			return nil, err
		}
	}

	store := sheetstore.New(gc, st, log, sheetstore.Options{
		DocumentName: cfg.Document.Name,
		WriteRate:    rate.Limit(cfg.WriteRate),
	})

	app := assemble(cfg, log, st, mgr, store, files)
	app.closers = append(app.closers, st.Close)
	return app, nil
}

// assemble builds the cache and asset channel on top of the given adapters
// and hooks them to sign-out.
func assemble(cfg *config.Config, log logging.Logger, state metadata.Repository, mgr *session.Manager,
	store *sheetstore.Store, files assets.FileStore) *App {

	ch := assets.NewChannel(files, state, log, assets.Options{
		RootFolder:        cfg.Document.RootFolder,
		AttachmentsFolder: cfg.Document.AttachmentsFolder,
		Budget: assets.ImageBudget{
			MaxDimension: cfg.Assets.MaxDimension,
			MaxBytes:     cfg.Assets.MaxBytes,
		},
	})

	c := cache.New(cache.Sheets(store), ch, log, cache.Options{
		TradesFreshness:   cfg.Cache.TradesFreshness,
		TagsFreshness:     cfg.Cache.TagsFreshness,
		SettingsFreshness: cfg.Cache.SettingsFreshness,
	})

	mgr.OnSignOut(func() {
		store.Forget()
		ch.Forget()
		c.Reset()
	})

	return &App{
		cfg:     cfg,
		log:     log,
		state:   state,
		session: mgr,
		store:   store,
		assets:  ch,
		cache:   c,
	}
}

// Close stops the refresh timer and releases local state.
func (a *App) Close() error {
	a.session.Close()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// restore adopts the persisted session or explains how to sign in.
func (a *App) restore(ctx context.Context) error {
	if err := a.session.Initialize(ctx); err != nil {
		return err
	}
	if _, err := a.session.Restore(ctx); err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return errNotSignedIn
		}
		return err
	}
	return nil
}

var errNotSignedIn = errors.New("not signed in: run `tradebook login`")

// withRetry runs fn and, when the credential was rejected, refreshes the
// session once and runs fn again.
func (a *App) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if !errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	a.log.Info(ctx, "credential rejected, refreshing")
	if rerr := a.session.Refresh(ctx); rerr != nil {
		return fmt.Errorf("%w (%w)", errNotSignedIn, err)
	}
	return fn(ctx)
}
