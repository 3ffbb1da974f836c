// Package models defines the journal entities stored in the remote
// spreadsheet: trades, tags and settings, together with the partial-update
// patches the store applies to them.
package models
