package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

const callbackPath = "/callback"

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	Issuer       string
	Scopes       []string
	// RedirectPort is the loopback port; 0 picks a free one.
	RedirectPort int
	// NoBrowser prints the consent URL and reads the pasted code instead of
	// serving the loopback callback.
	NoBrowser bool

	// HTTPClient is used for discovery and token requests.
	HTTPClient *http.Client
	// OpenBrowser launches the consent URL; defaults to the platform opener.
	OpenBrowser func(url string) error
	In          io.Reader
	Out         io.Writer
}

// OAuth runs the authorization-code flow with PKCE.
type OAuth struct {
	cfg    oauth2.Config
	opts   OAuthConfig
	client *http.Client
	log    logging.Logger
}

var _ Authorizer = (*OAuth)(nil)

// Discover reads the issuer's OIDC metadata and returns the authorizer and
// the userinfo introspector bound to it.
func Discover(ctx context.Context, opts OAuthConfig, log logging.Logger) (*OAuth, *UserInfo, error) {
	if opts.ClientID == "" {
		return nil, nil, fmt.Errorf("%w: oauth client id is required", common.ErrValidation)
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), opts.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: oidc discovery: %w", common.ErrTransport, err)
	}

	var claims struct {
		UserInfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("oidc metadata: %w", err)
	}
	if claims.UserInfoEndpoint == "" {
		return nil, nil, fmt.Errorf("issuer %s publishes no userinfo endpoint", opts.Issuer)
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email"}
	}

	a := &OAuth{
		cfg: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		opts:   opts,
		client: client,
		log:    log.With("component", "oauth"),
	}
	return a, NewUserInfo(claims.UserInfoEndpoint, client), nil
}

func (a *OAuth) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.client)
}

func (a *OAuth) Consent(ctx context.Context) (*oauth2.Token, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.opts.RedirectPort))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	defer ln.Close()

	cfg := a.cfg
	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	var code string
	if a.opts.NoBrowser {
		_ = ln.Close()
		code, err = a.pasteCode(authURL, state)
	} else {
		code, err = a.awaitCallback(ctx, ln, authURL, state)
	}
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(a.httpContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, mapTokenError(err)
	}
	return tok, nil
}

type callbackResult struct {
	code string
	err  error
}

func (a *OAuth) awaitCallback(ctx context.Context, ln net.Listener, authURL, state string) (string, error) {
	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		res := parseCallback(req.URL.Query(), state)
		if res.err != nil {
			http.Error(w, "Sign-in failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Signed in. You can close this window and return to the terminal.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.printf("Opening the browser to sign in. If it does not open, visit:\n\n  %s\n\n", authURL)
	if err := a.openBrowser(authURL); err != nil {
		a.log.Warn(ctx, "could not open browser", "error", err)
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pasteCode asks the user to paste either the code or the whole redirect URL
// shown by the browser.
func (a *OAuth) pasteCode(authURL, state string) (string, error) {
	a.printf("Visit the following URL, approve access, then paste the address of the page you are redirected to (or just its code parameter):\n\n  %s\n\nCode: ", authURL)

	line, err := a.readSecretLine()
	if err != nil {
		return "", fmt.Errorf("read authorization code: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", common.ErrConsentDenied
	}

	if strings.Contains(line, "code=") || strings.Contains(line, "error=") {
		if i := strings.Index(line, "?"); i >= 0 {
			line = line[i+1:]
		}
		q, err := url.ParseQuery(line)
		if err != nil {
			return "", fmt.Errorf("parse redirect: %w", err)
		}
		res := parseCallback(q, state)
		return res.code, res.err
	}
	return line, nil
}

func (a *OAuth) readSecretLine() (string, error) {
	in := a.opts.In
	if in == nil {
		in = os.Stdin
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		a.printf("\n")
		return string(b), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		err = nil
	}
	return line, err
}

func parseCallback(q url.Values, state string) callbackResult {
	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return callbackResult{err: common.ErrConsentDenied}
		}
		return callbackResult{err: fmt.Errorf("authorization failed: %s", e)}
	}
	if got := q.Get("state"); got != "" && got != state {
		return callbackResult{err: errors.New("oauth state mismatch")}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("oauth callback without code")}
	}
	return callbackResult{code: code}
}

func (a *OAuth) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", common.ErrUnauthorized)
	}

	src := a.cfg.TokenSource(a.httpContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return nil, mapTokenError(err)
	}
	return fresh, nil
}

// mapTokenError: a token endpoint that answers with an OAuth error rejected
// the grant; anything else is a transport failure.
func mapTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil && re.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: token endpoint: %w", common.ErrTransport, err)
		}
		return fmt.Errorf("%w: token endpoint: %w", common.ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: token endpoint: %w", common.ErrTransport, err)
}

func (a *OAuth) printf(format string, args ...any) {
	out := a.opts.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, format, args...)
}

func (a *OAuth) openBrowser(u string) error {
	if a.opts.OpenBrowser != nil {
		return a.opts.OpenBrowser(u)
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}
	return cmd.Start()
}
