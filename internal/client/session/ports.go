package session

import (
	"context"

	"golang.org/x/oauth2"
)

// Authorizer obtains credentials from the identity provider.
type Authorizer interface {
	// Consent runs the interactive flow and returns a fresh credential.
	// A user refusal is reported as common.ErrConsentDenied.
	Consent(ctx context.Context) (*oauth2.Token, error)
	// Refresh exchanges the refresh token of tok for a new credential
	// without user interaction.
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// Introspector checks that an access token is accepted and returns who it
// belongs to. A rejected token is common.ErrUnauthorized; an unreachable
// endpoint is common.ErrTransport.
type Introspector interface {
	Introspect(ctx context.Context, accessToken string) (Identity, error)
}

// Identity is the diagnostics label of the signed-in account.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func (i Identity) String() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Subject
}

// Loader builds the Authorizer and Introspector, typically through OIDC
// discovery. It runs once per Manager.
type Loader func(ctx context.Context) (Authorizer, Introspector, error)
