package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var sealedPrefix = []byte("sealed:v1:")

var ErrSealedCredential = errors.New("persisted credential is sealed and no passphrase is configured")

type storedCredential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
}

// credentialStore reads and writes the credential in local state, sealing
// it when a passphrase is configured.
type credentialStore struct {
	state      metadata.Repository
	passphrase []byte
}

func (s *credentialStore) load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := s.state.Get(ctx, common.StateKeyCredential)
	if err != nil || raw == nil {
		return nil, err
	}

	if bytes.HasPrefix(raw, sealedPrefix) {
		if len(s.passphrase) == 0 {
			return nil, ErrSealedCredential
		}
		key, err := s.key(ctx)
		if err != nil {
			return nil, err
		}
		defer common.Wipe(key)

		raw, err = cryptox.Open(raw[len(sealedPrefix):], key)
		if err != nil {
			return nil, fmt.Errorf("unseal credential: %w", err)
		}
	}

	var sc storedCredential
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	if sc.AccessToken == "" {
		return nil, nil
	}

	tok := &oauth2.Token{
		AccessToken:  sc.AccessToken,
		TokenType:    sc.TokenType,
		RefreshToken: sc.RefreshToken,
		Expiry:       sc.Expiry,
	}
	if sc.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": sc.IDToken})
	}
	return tok, nil
}

func (s *credentialStore) save(ctx context.Context, tok *oauth2.Token) error {
	data, err := json.Marshal(storedCredential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		IDToken:      idToken(tok),
	})
	if err != nil {
		return err
	}

	if len(s.passphrase) > 0 {
		key, err := s.key(ctx)
		if err != nil {
			return err
		}
		defer common.Wipe(key)

		sealed, err := cryptox.Seal(data, key)
		if err != nil {
			return fmt.Errorf("seal credential: %w", err)
		}
		data = append(append([]byte(nil), sealedPrefix...), sealed...)
	}

	return s.state.Set(ctx, common.StateKeyCredential, data)
}

// key derives the sealing key, creating the salt on first use.
func (s *credentialStore) key(ctx context.Context) ([]byte, error) {
	salt, err := s.state.Get(ctx, common.StateKeySalt)
	if err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		salt = cryptox.NewSalt()
		if err := s.state.Set(ctx, common.StateKeySalt, salt); err != nil {
			return nil, err
		}
	}
	return cryptox.DeriveKey(s.passphrase, salt), nil
}

func idToken(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	raw, _ := tok.Extra("id_token").(string)
	return raw
}

// emailFromIDToken reads the email claim of the token's id_token. The
// signature is not verified; the value is only a diagnostics label.
func emailFromIDToken(tok *oauth2.Token) string {
	raw := idToken(tok)
	if raw == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	email, _ := claims["email"].(string)
	return email
}
