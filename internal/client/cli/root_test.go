package cli

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/tradebook/internal/client/config"
	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/client/session"
	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore"
	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore/sheetstoretest"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type stubAuth struct {
	mu        sync.Mutex
	consent   *oauth2.Token
	denied    bool
	refresh   *oauth2.Token
	refreshes int
}

func (a *stubAuth) Consent(context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.denied {
		return nil, common.ErrConsentDenied
	}
	tok := *a.consent
	return &tok, nil
}

func (a *stubAuth) Refresh(context.Context, *oauth2.Token) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshes++
	if a.refresh == nil {
		return nil, common.ErrUnauthorized
	}
	tok := *a.refresh
	return &tok, nil
}

type stubIntro map[string]session.Identity

func (s stubIntro) Introspect(_ context.Context, token string) (session.Identity, error) {
	id, ok := s[token]
	if !ok {
		return session.Identity{}, common.ErrUnauthorized
	}
	return id, nil
}

type stubFiles struct {
	mu      sync.Mutex
	folders map[string]string
	uploads []string
}

func (f *stubFiles) FindFolder(_ context.Context, name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folders[parentID+"/"+name], nil
}

func (f *stubFiles) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("folder-%d", len(f.folders)+1)
	f.folders[parentID+"/"+name] = id
	return id, nil
}

func (f *stubFiles) FolderExists(context.Context, string) (bool, error) { return true, nil }

func (f *stubFiles) Upload(_ context.Context, _, filename, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filename)
	return fmt.Sprintf("file-%d", len(f.uploads)), nil
}

func (f *stubFiles) URL(_ context.Context, fileID string) (string, error) {
	return "https://files.test/" + fileID, nil
}

type cliEnv struct {
	fake  *sheetstoretest.Fake
	state *metadata.Store
	files *stubFiles
	auth  *stubAuth
	intro stubIntro
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	st, err := metadata.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &cliEnv{
		fake:  sheetstoretest.New(),
		state: st,
		files: &stubFiles{folders: map[string]string{}},
		auth: &stubAuth{
			consent: &oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"},
		},
		intro: stubIntro{"access-1": {Subject: "42", Email: "trader@example.com"}},
	}
}

func (e *cliEnv) build(_ context.Context, cfg *config.Config, _ logging.Logger) (*App, error) {
	log := logging.Nop()
	loader := func(context.Context) (session.Authorizer, session.Introspector, error) {
		return e.auth, e.intro, nil
	}
	mgr := session.NewManager(loader, e.state, log, session.Options{})
	store := sheetstore.New(e.fake, e.state, log, sheetstore.Options{})
	return assemble(cfg, log, e.state, mgr, store, e.files), nil
}

// run executes one command line against a fresh command tree, as a separate
// process invocation would.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := newRootCmd("test", e.build)
	root.SetArgs(append([]string{"--client-id", "test-client"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err, "tradebook %s", strings.Join(args, " "))
	return out
}

func (e *cliEnv) appends() int {
	n := 0
	for _, c := range e.fake.Calls() {
		if strings.HasPrefix(c, "AppendRow") {
			n++
		}
	}
	return n
}

func TestLogin_ProvisionsSpreadsheet(t *testing.T) {
	e := newCLIEnv(t)

	out := e.mustRun(t, "login")
	assert.Contains(t, out, "Signed in as trader@example.com")
	require.Len(t, e.fake.DocumentIDs(), 1)
	assert.Contains(t, out, e.fake.DocumentIDs()[0])

	// A second login reuses both the credential and the spreadsheet.
	e.mustRun(t, "login")
	assert.Len(t, e.fake.DocumentIDs(), 1)
}

func TestLogin_ConsentDenied(t *testing.T) {
	e := newCLIEnv(t)
	e.auth.denied = true

	_, err := e.run(t, "", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
	assert.Empty(t, e.fake.DocumentIDs())
}

func TestStatus(t *testing.T) {
	e := newCLIEnv(t)

	out := e.mustRun(t, "status")
	assert.Equal(t, "Not signed in\n", out)

	e.mustRun(t, "login")
	out = e.mustRun(t, "status")
	assert.Contains(t, out, "trader@example.com")
	assert.Contains(t, out, e.fake.DocumentIDs()[0])

	e.mustRun(t, "logout")
	out = e.mustRun(t, "status")
	assert.Equal(t, "Not signed in\n", out)

	v, err := e.state.Get(context.Background(), common.StateKeyDocumentID)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCommands_RequireSignIn(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.run(t, "", "trades", "list")
	require.ErrorIs(t, err, errNotSignedIn)
	assert.Empty(t, e.fake.Calls())
}

func TestTrades_AddWithTagAndList(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	out := e.mustRun(t, "tags", "add", "Breakout", "--emoji", "🚀", "--color", "#00aa00")
	assert.Contains(t, out, "Added tag Breakout")

	out = e.mustRun(t, "trades", "add", "--date", "2026-03-04", "--time", "09:30", "--amount", "12.5", "--tag", "breakout")
	assert.Contains(t, out, "Added trade")
	e.mustRun(t, "trades", "add", "--date", "2026-02-27", "--amount", "-3")

	out = e.mustRun(t, "trades", "list", "--month", "2026-03")
	assert.Contains(t, out, "2026-03-04")
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, "🚀 Breakout")
	assert.NotContains(t, out, "2026-02-27")

	out = e.mustRun(t, "trades", "list")
	assert.Contains(t, out, "2026-02-27")
	assert.Contains(t, out, "9.50")
	assert.Contains(t, out, "2 trades")
}

func TestTrades_UpdateAndDelete(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	out := e.mustRun(t, "trades", "add", "--date", "2026-03-04", "--amount", "10", "--notes", "first")
	id := strings.TrimSpace(strings.TrimPrefix(out, "Added trade"))
	require.NotEmpty(t, id)

	_, err := e.run(t, "closed early\nbad fill", "trades", "update", id, "--amount", "0", "--notes", "-")
	require.NoError(t, err)

	rows := e.fake.Rows(e.fake.DocumentIDs()[0], string(models.CollectionTrades))
	require.Len(t, rows, 2)
	assert.Contains(t, rows[1], "closed early\nbad fill")
	assert.Contains(t, rows[1], "2026-03-04")

	e.mustRun(t, "trades", "delete", id)
	rows = e.fake.Rows(e.fake.DocumentIDs()[0], string(models.CollectionTrades))
	assert.Len(t, rows, 1)

	_, err = e.run(t, "", "trades", "delete", id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTrades_InvalidInputMakesNoRemoteWrite(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")
	before := e.appends()

	_, err := e.run(t, "", "trades", "add", "--amount", "lots")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = e.run(t, "", "trades", "add", "--amount", "1", "--date", "2026-13-01")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = e.run(t, "", "trades", "list", "--month", "March")
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = e.run(t, "", "trades", "add", "--amount", "1", "--tag", "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	assert.Equal(t, before, e.appends())
}

func TestTrades_AddWithAttachment(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	e.mustRun(t, "trades", "add", "--date", "2026-03-04", "--amount", "5", "--attachment", path)
	assert.Equal(t, []string{"chart.jpg"}, e.files.uploads)

	out := e.mustRun(t, "trades", "list")
	assert.Contains(t, out, "file-1")

	out = e.mustRun(t, "attachments", "url", "file-1")
	assert.Equal(t, "https://files.test/file-1\n", out)
}

func TestTags_UpdateReorderDelete(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	idOf := func(out string) string {
		i := strings.LastIndex(out, "(")
		return strings.TrimSuffix(strings.TrimSpace(out[i+1:]), ")")
	}
	a := idOf(e.mustRun(t, "tags", "add", "Alpha", "--order", "1"))
	b := idOf(e.mustRun(t, "tags", "add", "Beta", "--order", "2"))

	e.mustRun(t, "tags", "reorder", b, a)
	out := e.mustRun(t, "tags", "list")
	assert.Less(t, strings.Index(out, "Beta"), strings.Index(out, "Alpha"))

	e.mustRun(t, "tags", "update", a, "--name", "Alpha Prime")
	out = e.mustRun(t, "tags", "list")
	assert.Contains(t, out, "Alpha Prime")

	e.mustRun(t, "tags", "delete", b)
	out = e.mustRun(t, "tags", "list")
	assert.NotContains(t, out, "Beta")

	_, err := e.run(t, "", "tags", "update", a, "--name", "  ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSettings(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	e.mustRun(t, "settings", "set", "currency", "EUR")
	e.mustRun(t, "settings", "set", "currency", "USD")
	out := e.mustRun(t, "settings", "list")
	assert.Contains(t, out, "USD")
	assert.NotContains(t, out, "EUR")

	e.mustRun(t, "settings", "delete", "currency")
	out = e.mustRun(t, "settings", "list")
	assert.NotContains(t, out, "currency")
}

func TestRejectedCredentialIsRefreshedOnce(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	e.auth.refresh = &oauth2.Token{AccessToken: "access-2"}
	e.intro["access-2"] = session.Identity{Subject: "42", Email: "trader@example.com"}

	var failed atomic.Bool
	e.fake.FailRead = func(string) error {
		if failed.CompareAndSwap(false, true) {
			return common.ErrUnauthorized
		}
		return nil
	}

	_, err := e.run(t, "", "settings", "list")
	require.NoError(t, err)
	assert.Equal(t, 1, e.auth.refreshes)
}

func TestRejectedCredentialWithoutRefresh(t *testing.T) {
	e := newCLIEnv(t)
	e.mustRun(t, "login")

	e.fake.FailRead = func(string) error { return common.ErrUnauthorized }

	_, err := e.run(t, "", "settings", "list")
	require.ErrorIs(t, err, errNotSignedIn)

	v, err := e.state.Get(context.Background(), common.StateKeyCredential)
	require.NoError(t, err)
	assert.Nil(t, v)
}
