package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"golang.org/x/oauth2"
)

const (
	DefaultHorizon     = 60 * time.Minute
	DefaultRefreshLead = 10 * time.Minute
)

// Stopper cancels a scheduled callback; *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

type Options struct {
	// Horizon is the assumed lifetime of an adopted credential.
	Horizon time.Duration
	// RefreshLead is how long before the horizon the silent refresh fires.
	RefreshLead time.Duration
	// Passphrase seals the persisted credential when non-empty.
	Passphrase string
	// RefreshTimeout bounds a timer-driven refresh.
	RefreshTimeout time.Duration

	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Stopper
	// OnRefresh observes refresh outcomes ("ok", "failed").
	OnRefresh func(outcome string)
}

// Manager holds the single live credential.
type Manager struct {
	load  Loader
	creds *credentialStore
	log   logging.Logger
	opts  Options

	initOnce    sync.Once
	initialized atomic.Bool
	initErr     error
	auth        Authorizer
	intro       Introspector

	refreshMu sync.Mutex

	mu        sync.Mutex
	token     *oauth2.Token
	identity  Identity
	adoptedAt time.Time
	timer     Stopper
	gen       uint64
	closed    bool
	onSignOut []func()
}

var _ oauth2.TokenSource = (*Manager)(nil)

func NewManager(load Loader, state metadata.Repository, log logging.Logger, opts Options) *Manager {
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.RefreshLead <= 0 || opts.RefreshLead >= opts.Horizon {
		opts.RefreshLead = DefaultRefreshLead
		if opts.RefreshLead >= opts.Horizon {
			opts.RefreshLead = opts.Horizon / 6
		}
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }
	}

	return &Manager{
		load:  load,
		creds: &credentialStore{state: state, passphrase: []byte(opts.Passphrase)},
		log:   log.With("component", "session"),
		opts:  opts,
	}
}

// Initialize prepares the authorization flow. It is idempotent; a failure
// is terminal and returned by every later call.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.auth, m.intro, m.initErr = m.load(ctx)
		if m.initErr != nil {
			m.initErr = fmt.Errorf("initialize session: %w", m.initErr)
		}
		m.initialized.Store(true)
	})
	return m.initErr
}

func (m *Manager) ready() error {
	if !m.initialized.Load() {
		return common.ErrNotInitialized
	}
	return m.initErr
}

// OnSignOut registers fn to run after every sign-out.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	m.onSignOut = append(m.onSignOut, fn)
	m.mu.Unlock()
}

// SignIn adopts the persisted credential when the identity provider still
// accepts it, or when it can be refreshed silently. Otherwise it runs the
// interactive consent flow. A transport failure while checking the
// persisted credential is returned and the credential is kept.
func (m *Manager) SignIn(ctx context.Context) (Identity, error) {
	if err := m.ready(); err != nil {
		return Identity{}, err
	}

	id, err := m.restore(ctx)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, common.ErrUnauthorized):
		return Identity{}, err
	}

	m.log.Info(ctx, "starting interactive consent")
	tok, err := m.auth.Consent(ctx)
	if err != nil {
		return Identity{}, fmt.Errorf("consent: %w", err)
	}
	return m.validateAndAdopt(ctx, tok)
}

// Restore is the non-interactive half of SignIn. It fails with
// common.ErrUnauthorized when user interaction would be needed.
func (m *Manager) Restore(ctx context.Context) (Identity, error) {
	if err := m.ready(); err != nil {
		return Identity{}, err
	}
	return m.restore(ctx)
}

func (m *Manager) restore(ctx context.Context) (Identity, error) {
	tok, err := m.creds.load(ctx)
	if err != nil {
		m.log.Warn(ctx, "ignoring unreadable persisted credential", "error", err)
		tok = nil
	}
	if tok == nil {
		return Identity{}, fmt.Errorf("%w: no persisted credential", common.ErrUnauthorized)
	}

	id, err := m.intro.Introspect(ctx, tok.AccessToken)
	if err == nil {
		m.adopt(ctx, tok, id)
		m.log.Info(ctx, "persisted credential adopted", "account", m.Identity().String())
		return m.Identity(), nil
	}
	if !errors.Is(err, common.ErrUnauthorized) {
		return Identity{}, fmt.Errorf("validate credential: %w", err)
	}

	m.log.Info(ctx, "persisted credential rejected")
	if tok.RefreshToken != "" {
		fresh, rerr := m.auth.Refresh(ctx, tok)
		if rerr == nil {
			return m.validateAndAdopt(ctx, carryOver(fresh, tok))
		}
		m.log.Info(ctx, "silent refresh of persisted credential failed", "error", rerr)
	}

	if err := m.creds.state.Delete(ctx, common.StateKeyCredential); err != nil {
		m.log.Warn(ctx, "failed to discard persisted credential", "error", err)
	}
	return Identity{}, fmt.Errorf("%w: persisted credential rejected", common.ErrUnauthorized)
}

func (m *Manager) validateAndAdopt(ctx context.Context, tok *oauth2.Token) (Identity, error) {
	id, err := m.intro.Introspect(ctx, tok.AccessToken)
	if err != nil {
		return Identity{}, fmt.Errorf("validate credential: %w", err)
	}

	m.adopt(ctx, tok, id)
	if err := m.creds.save(ctx, tok); err != nil {
		return Identity{}, fmt.Errorf("persist credential: %w", err)
	}
	m.log.Info(ctx, "credential adopted", "account", m.Identity().String())
	return m.Identity(), nil
}

func (m *Manager) adopt(ctx context.Context, tok *oauth2.Token, id Identity) {
	if id.Email == "" {
		id.Email = emailFromIDToken(tok)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = tok
	m.identity = id
	m.adoptedAt = m.opts.Now()
	m.gen++
	m.scheduleLocked(ctx)
}

func (m *Manager) scheduleLocked(ctx context.Context) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.closed {
		return
	}

	gen := m.gen
	delay := m.opts.Horizon - m.opts.RefreshLead
	m.timer = m.opts.AfterFunc(delay, func() {
		m.onTimer(context.WithoutCancel(ctx), gen)
	})
	m.log.Debug(ctx, "refresh scheduled", "in", delay)
}

func (m *Manager) onTimer(ctx context.Context, gen uint64) {
	m.mu.Lock()
	stale := gen != m.gen || m.closed
	m.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.RefreshTimeout)
	defer cancel()
	if err := m.refreshIfCurrent(ctx, gen); err != nil {
		m.log.Warn(ctx, "scheduled refresh failed", "error", err)
	}
}

// Refresh replaces the live credential using the granted consent. Any
// failure signs the session out and returns common.ErrUnauthorized.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refreshIfCurrent(ctx, 0)
}

// refreshIfCurrent refreshes unless gen is non-zero and no longer current.
func (m *Manager) refreshIfCurrent(ctx context.Context, gen uint64) error {
	if err := m.ready(); err != nil {
		return err
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.Lock()
	tok := m.token
	stale := gen != 0 && (gen != m.gen || m.closed)
	m.mu.Unlock()
	if stale {
		return nil
	}
	if tok == nil {
		return fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}

	fresh, err := m.auth.Refresh(ctx, tok)
	if err == nil {
		_, err = m.validateAndAdopt(ctx, carryOver(fresh, tok))
	}
	if err != nil {
		m.observeRefresh("failed")
		m.log.Warn(ctx, "refresh failed, signing out", "error", err)
		if serr := m.SignOut(ctx); serr != nil {
			m.log.Error(ctx, "sign-out after failed refresh", "error", serr)
		}
		return fmt.Errorf("%w: refresh: %w", common.ErrUnauthorized, err)
	}

	m.observeRefresh("ok")
	return nil
}

// carryOver keeps the refresh token and id_token of prev when the provider
// omits them from a refreshed credential.
func carryOver(fresh, prev *oauth2.Token) *oauth2.Token {
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = prev.RefreshToken
	}
	if idToken(fresh) == "" && idToken(prev) != "" {
		fresh = fresh.WithExtra(map[string]any{"id_token": idToken(prev)})
	}
	return fresh
}

func (m *Manager) observeRefresh(outcome string) {
	if m.opts.OnRefresh != nil {
		m.opts.OnRefresh(outcome)
	}
}

// SignOut drops the live credential, cancels the pending refresh and clears
// the persisted credential together with the document and folder handles.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.token = nil
	m.identity = Identity{}
	hooks := append([]func(){}, m.onSignOut...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	if err := m.creds.state.Delete(ctx,
		common.StateKeyCredential, common.StateKeyDocumentID, common.StateKeyFolderID,
	); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	m.log.Info(ctx, "signed out")
	return nil
}

func (m *Manager) IsSignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil
}

// Credential returns the live credential or common.ErrUnauthorized. It
// never refreshes.
func (m *Manager) Credential(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Token()
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return nil, fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	tok := *m.token
	return &tok, nil
}

func (m *Manager) Identity() Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// AdoptedAt reports when the live credential was adopted.
func (m *Manager) AdoptedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adoptedAt
}

// Close cancels the pending refresh and stops further scheduling.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
