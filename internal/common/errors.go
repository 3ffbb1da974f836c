// Package common defines shared constants and sentinel errors used across
// the tradebook client layers. Callers should use errors.Is to match these
// values; remote adapters wrap them with the underlying cause.
package common

import "errors"

var (
	// Remote call failures.
	ErrTransport    = errors.New("transport error")
	ErrUnauthorized = errors.New("unauthorized")

	// Logical errors.
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrProvisioning = errors.New("provisioning failure")

	// Session lifecycle errors.
	ErrNotInitialized = errors.New("session manager not initialized")
	ErrConsentDenied  = errors.New("consent denied")
)
