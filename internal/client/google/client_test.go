package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type apiServer struct {
	t      *testing.T
	mu     sync.Mutex
	reqs   []recorded
	routes map[string]http.HandlerFunc
}

func newAPIServer(t *testing.T) (*apiServer, *Client) {
	t.Helper()
	s := &apiServer{t: t, routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(), logging.Nop(), Options{
		SheetsEndpoint: srv.URL + "/",
		DriveEndpoint:  srv.URL + "/drive/v3/",
	})
	require.NoError(t, err)
	return s, c
}

func (s *apiServer) handle(method, path string, h http.HandlerFunc) {
	s.routes[method+" "+path] = h
}

func (s *apiServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.reqs = append(s.reqs, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	s.mu.Unlock()

	h, ok := s.routes[r.Method+" "+r.URL.Path]
	if !ok {
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
		return
	}
	h(w, r)
}

func (s *apiServer) requests() []recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recorded(nil), s.reqs...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(code int, reason string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": "nope",
				"errors":  []map[string]any{{"reason": reason, "message": "nope"}},
			},
		})
	}
}

func TestReadRange_DecodesUnformattedValues(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodGet, "/v4/spreadsheets/doc-1/values/Trades!A2:L", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UNFORMATTED_VALUE", r.URL.Query().Get("valueRenderOption"))
		writeJSON(w, map[string]any{
			"range":  "Trades!A2:L3",
			"values": [][]any{{"x1", "2024-03-15", "09:30", "-50"}, {"x2", "2024-03-16", "", 12.5}},
		})
	})

	rows, err := c.ReadRange(context.Background(), "doc-1", "Trades!A2:L")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"x1", "2024-03-15", "09:30", "-50"}, {"x2", "2024-03-16", "", 12.5}}, rows)
}

func TestAppendAndUpdate_WriteRawValues(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodPost, "/v4/spreadsheets/doc-1/values/Tags!A2:E:append", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		writeJSON(w, map[string]any{"spreadsheetId": "doc-1"})
	})
	srv.handle(http.MethodPut, "/v4/spreadsheets/doc-1/values/Tags!A3:E3", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		writeJSON(w, map[string]any{"spreadsheetId": "doc-1"})
	})

	ctx := context.Background()
	require.NoError(t, c.AppendRow(ctx, "doc-1", "Tags!A2:E", []any{"t1", "Breakout", "", "", 0}))
	require.NoError(t, c.UpdateRange(ctx, "doc-1", "Tags!A3:E3", [][]any{{"t1", "Breakout", "", "", 2}}))

	reqs := srv.requests()
	require.Len(t, reqs, 2)
	assert.JSONEq(t, `{"values":[["t1","Breakout","","",0]]}`, reqs[0].Body)
	assert.JSONEq(t, `{"values":[["t1","Breakout","","",2]]}`, reqs[1].Body)
}

func TestTabTitlesAndDeleteRow_UseCachedSheetIDs(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodGet, "/v4/spreadsheets/doc-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"sheets": []map[string]any{
				{"properties": map[string]any{"sheetId": 0, "title": "Trades"}},
				{"properties": map[string]any{"sheetId": 77, "title": "Tags"}},
				{"properties": map[string]any{"sheetId": 78, "title": "Settings"}},
			},
		})
	})
	srv.handle(http.MethodPost, "/v4/spreadsheets/doc-1:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"spreadsheetId": "doc-1"})
	})

	ctx := context.Background()
	titles, err := c.TabTitles(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Settings", "Tags", "Trades"}, titles)

	require.NoError(t, c.DeleteRow(ctx, "doc-1", "Trades", 4))
	require.ErrorIs(t, c.DeleteRow(ctx, "doc-1", "Nope", 1), common.ErrNotFound)

	reqs := srv.requests()
	require.Len(t, reqs, 2, "sheet ids must be cached after TabTitles")
	assert.JSONEq(t, `{"requests":[{"deleteDimension":{"range":{"sheetId":0,"dimension":"ROWS","startIndex":4,"endIndex":5}}}]}`, reqs[1].Body)
}

func TestCreateDocument(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodPost, "/v4/spreadsheets", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Properties struct{ Title string }
			Sheets     []struct{ Properties struct{ Title string } }
		}
		require.NoError(t, json.NewDecoder(strings.NewReader(srv.requests()[0].Body)).Decode(&body))
		assert.Equal(t, "Tradebook Journal", body.Properties.Title)
		require.Len(t, body.Sheets, 3)
		writeJSON(w, map[string]any{
			"spreadsheetId": "new-doc",
			"sheets": []map[string]any{
				{"properties": map[string]any{"sheetId": 0, "title": "Trades"}},
				{"properties": map[string]any{"sheetId": 1, "title": "Tags"}},
				{"properties": map[string]any{"sheetId": 2, "title": "Settings"}},
			},
		})
	})
	srv.handle(http.MethodPost, "/v4/spreadsheets/new-doc:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{})
	})

	ctx := context.Background()
	id, err := c.CreateDocument(ctx, "Tradebook Journal", []string{"Trades", "Tags", "Settings"})
	require.NoError(t, err)
	assert.Equal(t, "new-doc", id)

	require.NoError(t, c.DeleteRow(ctx, "new-doc", "Tags", 1))
	assert.Len(t, srv.requests(), 2)
}

func TestFindDocuments_QueriesDriveBySpreadsheetName(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodGet, "/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		assert.Contains(t, q, `name = 'Bob\'s Journal'`)
		assert.Contains(t, q, spreadsheetMimeType)
		writeJSON(w, map[string]any{"files": []map[string]any{
			{"id": "a", "name": "Bob's Journal", "modifiedTime": "2024-03-01T10:00:00.000Z"},
			{"id": "b", "name": "Bob's Journal", "modifiedTime": "2024-03-02T10:00:00.000Z"},
		}})
	})

	docs, err := c.FindDocuments(context.Background(), "Bob's Journal")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[1].ID)
	assert.True(t, docs[0].ModifiedTime.Before(docs[1].ModifiedTime))
}

func TestFolders(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodGet, "/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.Contains(q, "'root' in parents") {
			writeJSON(w, map[string]any{"files": []map[string]any{{"id": "root-folder"}}})
			return
		}
		writeJSON(w, map[string]any{"files": []map[string]any{}})
	})
	srv.handle(http.MethodPost, "/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "sub-folder"})
	})
	srv.handle(http.MethodGet, "/drive/v3/files/sub-folder", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "sub-folder", "mimeType": folderMimeType})
	})
	srv.handle(http.MethodGet, "/drive/v3/files/trashed", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "trashed", "mimeType": folderMimeType, "trashed": true})
	})
	srv.handle(http.MethodGet, "/drive/v3/files/gone", writeAPIError(http.StatusNotFound, "notFound"))

	ctx := context.Background()
	root, err := c.FindFolder(ctx, "Tradebook", "")
	require.NoError(t, err)
	assert.Equal(t, "root-folder", root)

	sub, err := c.FindFolder(ctx, "Attachments", root)
	require.NoError(t, err)
	assert.Equal(t, "", sub)

	sub, err = c.CreateFolder(ctx, "Attachments", root)
	require.NoError(t, err)
	assert.Equal(t, "sub-folder", sub)

	ok, err := c.FolderExists(ctx, "sub-folder")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.FolderExists(ctx, "trashed")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.FolderExists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpload_SendsMultipartWithParent(t *testing.T) {
	srv, c := newAPIServer(t)
	srv.handle(http.MethodPost, "/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))
		writeJSON(w, map[string]any{"id": "file-9"})
	})

	id, err := c.Upload(context.Background(), "sub-folder", "trade.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "file-9", id)

	reqs := srv.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Body, `"parents":["sub-folder"]`)
	assert.Contains(t, reqs[0].Body, "jpeg-bytes")
}

func TestErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		reason string
		want   error
	}{
		{name: "401", code: http.StatusUnauthorized, reason: "authError", want: common.ErrUnauthorized},
		{name: "403", code: http.StatusForbidden, reason: "insufficientPermissions", want: common.ErrUnauthorized},
		{name: "403 quota", code: http.StatusForbidden, reason: "rateLimitExceeded", want: common.ErrTransport},
		{name: "404", code: http.StatusNotFound, reason: "notFound", want: common.ErrNotFound},
		{name: "400", code: http.StatusBadRequest, reason: "badRequest", want: common.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := newAPIServer(t)
			srv.handle(http.MethodGet, "/v4/spreadsheets/doc-1/values/Tags!A2:E", writeAPIError(tt.code, tt.reason))

			_, err := c.ReadRange(context.Background(), "doc-1", "Tags!A2:E")
			require.ErrorIs(t, err, tt.want)

			var gerr *googleapi.Error
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.code, gerr.Code)
		})
	}
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	auth := fmt.Errorf("token source: %w", common.ErrUnauthorized)
	assert.Same(t, auth, mapError(auth))

	err := mapError(io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, common.ErrTransport)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestThumbnailURL(t *testing.T) {
	assert.Equal(t, "https://drive.google.com/thumbnail?id=abc&sz=w1000", ThumbnailURL("abc"))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s a \\ test`, escapeQuery(`it's a \ test`))
}
