// Package sheetstore maps journal entities onto rows of a remote spreadsheet.
//
// Every collection lives in its own tab whose first row is a header and whose
// first column holds the record identifier. The remote service has no index,
// so updates and deletes scan the identifier column to locate their row. The
// store provisions the spreadsheet on first use.
package sheetstore

import (
	"context"
	"time"
)

// DocumentInfo describes a spreadsheet found by name.
type DocumentInfo struct {
	ID           string
	Name         string
	ModifiedTime time.Time
}

// Spreadsheets is the remote tabular document service. Ranges use A1
// notation ("Trades!A2:L"). Cells read back as string, float64 or bool.
//
// Implementations map failures onto common.ErrTransport,
// common.ErrUnauthorized and common.ErrNotFound.
type Spreadsheets interface {
	// FindDocuments lists spreadsheets with the exact title, in any order.
	FindDocuments(ctx context.Context, name string) ([]DocumentInfo, error)
	// TabTitles lists the tab titles of a spreadsheet.
	TabTitles(ctx context.Context, docID string) ([]string, error)
	// CreateDocument creates a spreadsheet with the given tabs and returns its id.
	CreateDocument(ctx context.Context, title string, tabs []string) (string, error)

	ReadRange(ctx context.Context, docID, rng string) ([][]any, error)
	AppendRow(ctx context.Context, docID, rng string, row []any) error
	UpdateRange(ctx context.Context, docID, rng string, rows [][]any) error
	// DeleteRow removes a whole row; rowIndex is zero-based (0 is the header).
	DeleteRow(ctx context.Context, docID, tab string, rowIndex int) error
}
