// Package google implements the spreadsheet and file-storage ports on top of
// the Google Sheets v4 and Drive v3 APIs.
package google

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/tradebook/internal/logging"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	folderMimeType      = "application/vnd.google-apps.folder"

	// ThumbnailWidth is the width requested for attachment display URLs.
	ThumbnailWidth = 1000
)

// Options overrides the service endpoints; empty values use the public APIs.
type Options struct {
	SheetsEndpoint string
	DriveEndpoint  string
}

// Client talks to Sheets and Drive. The http.Client is expected to attach
// the bearer credential itself (oauth2.Transport).
type Client struct {
	sheets *sheets.Service
	drive  *drive.Service
	log    logging.Logger

	mu       sync.Mutex
	sheetIDs map[string]map[string]int64
}

func NewClient(ctx context.Context, httpClient *http.Client, log logging.Logger, opts Options) (*Client, error) {
	sheetOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.SheetsEndpoint != "" {
		sheetOpts = append(sheetOpts, option.WithEndpoint(opts.SheetsEndpoint))
	}
	driveOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.DriveEndpoint != "" {
		driveOpts = append(driveOpts, option.WithEndpoint(opts.DriveEndpoint))
	}

	ss, err := sheets.NewService(ctx, sheetOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	ds, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		sheets:   ss,
		drive:    ds,
		log:      log.With("component", "google"),
		sheetIDs: map[string]map[string]int64{},
	}, nil
}
