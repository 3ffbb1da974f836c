// Package logging is the structured logger handed to every client component.
package logging

import "context"

// Logger takes alternating key/value args after the message, e.g.
//
//	log.Info(ctx, "document resolved", "document_id", id, "created", created)
type Logger interface {
	// Debug logs low-level diagnostics (remote ranges, cache hits).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs lifecycle events: sign-in, document resolution, uploads.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs recoverable failures such as rollbacks and failed refreshes.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger carrying the given pairs, typically
	// "component".
	With(args ...any) Logger
}
