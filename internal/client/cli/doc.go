// Package cli implements the tradebook command-line client.
//
// Every command builds an App from the merged configuration: local state,
// the session manager, the Sheets/Drive (or S3) adapters and the entity
// cache. Commands other than login and logout restore the persisted session
// without user interaction and retry once after a silent refresh when the
// remote side rejects the credential.
//
// Commands:
//
//	login | logout | status
//	trades list|add|update|delete
//	tags list|add|update|delete|reorder
//	settings list|set|delete
//	attachments url
package cli
