// Package session owns the user's bearer credential.
//
// A Manager adopts a credential either from local state (after checking it
// against the identity provider's userinfo endpoint) or from an interactive
// OAuth2 consent, persists it, and refreshes it silently shortly before the
// assumed expiry horizon. A failed refresh signs the session out. Remote
// clients read the live credential per request through Manager.Token, which
// makes the Manager an oauth2.TokenSource.
package session
