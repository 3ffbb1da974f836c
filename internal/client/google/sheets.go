package google

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"google.golang.org/api/sheets/v4"
)

var _ sheetstore.Spreadsheets = (*Client)(nil)

func (c *Client) FindDocuments(ctx context.Context, name string) ([]sheetstore.DocumentInfo, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), spreadsheetMimeType)

	res, err := c.drive.Files.List().
		Q(q).
		Spaces("drive").
		Fields("files(id,name,modifiedTime)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]sheetstore.DocumentInfo, 0, len(res.Files))
	for _, f := range res.Files {
		modified, _ := time.Parse(time.RFC3339, f.ModifiedTime)
		out = append(out, sheetstore.DocumentInfo{ID: f.Id, Name: f.Name, ModifiedTime: modified})
	}
	return out, nil
}

func (c *Client) TabTitles(ctx context.Context, docID string) ([]string, error) {
	ids, err := c.loadSheetIDs(ctx, docID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ids))
	for t := range ids {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles, nil
}

func (c *Client) CreateDocument(ctx context.Context, title string, tabs []string) (string, error) {
	doc := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}
	for _, tab := range tabs {
		doc.Sheets = append(doc.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: tab}})
	}

	res, err := c.sheets.Spreadsheets.Create(doc).Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}

	ids := make(map[string]int64, len(res.Sheets))
	for _, s := range res.Sheets {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}
	c.mu.Lock()
	c.sheetIDs[res.SpreadsheetId] = ids
	c.mu.Unlock()

	c.log.Info(ctx, "spreadsheet created", "document_id", res.SpreadsheetId, "title", title)
	return res.SpreadsheetId, nil
}

func (c *Client) ReadRange(ctx context.Context, docID, rng string) ([][]any, error) {
	res, err := c.sheets.Spreadsheets.Values.Get(docID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err)
	}
	return res.Values, nil
}

func (c *Client) AppendRow(ctx context.Context, docID, rng string, row []any) error {
	_, err := c.sheets.Spreadsheets.Values.Append(docID, rng, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return mapError(err)
}

func (c *Client) UpdateRange(ctx context.Context, docID, rng string, rows [][]any) error {
	_, err := c.sheets.Spreadsheets.Values.Update(docID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return mapError(err)
}

func (c *Client) DeleteRow(ctx context.Context, docID, tab string, rowIndex int) error {
	ids, err := c.sheetIDsFor(ctx, docID)
	if err != nil {
		return err
	}
	sheetID, ok := ids[tab]
	if !ok {
		return fmt.Errorf("%w: tab %s", common.ErrNotFound, tab)
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(rowIndex),
					EndIndex:        int64(rowIndex + 1),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = c.sheets.Spreadsheets.BatchUpdate(docID, req).Context(ctx).Do()
	return mapError(err)
}

// sheetIDsFor returns the cached tab→sheetId map, loading it on first use.
func (c *Client) sheetIDsFor(ctx context.Context, docID string) (map[string]int64, error) {
	c.mu.Lock()
	ids, ok := c.sheetIDs[docID]
	c.mu.Unlock()
	if ok {
		return ids, nil
	}
	return c.loadSheetIDs(ctx, docID)
}

func (c *Client) loadSheetIDs(ctx context.Context, docID string) (map[string]int64, error) {
	res, err := c.sheets.Spreadsheets.Get(docID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError(err)
	}

	ids := make(map[string]int64, len(res.Sheets))
	for _, s := range res.Sheets {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}

	c.mu.Lock()
	c.sheetIDs[docID] = ids
	c.mu.Unlock()
	return ids, nil
}

// escapeQuery quotes a value for a Drive search string literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
