// Package sheetstoretest provides an in-memory Spreadsheets implementation
// for tests. It mimics the remote API closely enough for row-scan logic:
// trailing empty cells are trimmed on read and ranges use A1 notation.
package sheetstoretest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore"
	"github.com/dmitrijs2005/tradebook/internal/common"
)

type document struct {
	name     string
	modified time.Time
	tabs     map[string][][]any
	order    []string
}

// Fake is safe for concurrent use. Fail* hooks, when set, are consulted
// before each call and returning a non-nil error aborts it.
type Fake struct {
	mu     sync.Mutex
	docs   map[string]*document
	nextID int
	calls  []string

	FailTabs   func(docID string) error
	FailCreate func() error
	FailRead   func(rng string) error
	FailWrite  func(rng string) error
	FailFind   func() error
}

var _ sheetstore.Spreadsheets = (*Fake)(nil)

func New() *Fake {
	return &Fake{docs: map[string]*document{}}
}

// AddDocument registers an existing spreadsheet with the given tabs and
// returns its id. Each tab's rows include the header row.
func (f *Fake) AddDocument(name string, modified time.Time, tabs map[string][][]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID()
	d := &document{name: name, modified: modified, tabs: map[string][][]any{}}
	for tab, rows := range tabs {
		d.tabs[tab] = cloneRows(rows)
		d.order = append(d.order, tab)
	}
	f.docs[id] = d
	return id
}

// Rows returns a copy of a tab including its header row.
func (f *Fake) Rows(docID, tab string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.docs[docID]
	if !ok {
		return nil
	}
	return cloneRows(d.tabs[tab])
}

// DocumentIDs lists every stored spreadsheet.
func (f *Fake) DocumentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	return ids
}

// Calls returns the method log, e.g. "UpdateRange Trades!A2:L2".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *Fake) FindDocuments(ctx context.Context, name string) ([]sheetstore.DocumentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FindDocuments", name)

	if f.FailFind != nil {
		if err := f.FailFind(); err != nil {
			return nil, err
		}
	}

	var out []sheetstore.DocumentInfo
	for id, d := range f.docs {
		if d.name == name {
			out = append(out, sheetstore.DocumentInfo{ID: id, Name: d.name, ModifiedTime: d.modified})
		}
	}
	return out, nil
}

func (f *Fake) TabTitles(ctx context.Context, docID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TabTitles", docID)

	if f.FailTabs != nil {
		if err := f.FailTabs(docID); err != nil {
			return nil, err
		}
	}

	d, ok := f.docs[docID]
	if !ok {
		return nil, fmt.Errorf("%w: spreadsheet %s", common.ErrNotFound, docID)
	}
	return append([]string(nil), d.order...), nil
}

func (f *Fake) CreateDocument(ctx context.Context, title string, tabs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateDocument", title)

	if f.FailCreate != nil {
		if err := f.FailCreate(); err != nil {
			return "", err
		}
	}

	id := f.newID()
	d := &document{name: title, modified: time.Now(), tabs: map[string][][]any{}}
	for _, t := range tabs {
		d.tabs[t] = nil
		d.order = append(d.order, t)
	}
	f.docs[id] = d
	return id, nil
}

func (f *Fake) ReadRange(ctx context.Context, docID, rng string) ([][]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReadRange", rng)

	if f.FailRead != nil {
		if err := f.FailRead(rng); err != nil {
			return nil, err
		}
	}

	d, r, err := f.resolve(docID, rng)
	if err != nil {
		return nil, err
	}

	rows := d.tabs[r.tab]
	var out [][]any
	for i := r.startRow - 1; i < len(rows); i++ {
		if r.endRow > 0 && i > r.endRow-1 {
			break
		}
		row := rows[i]
		var cells []any
		for c := r.startCol; c <= r.endCol && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		out = append(out, trimTrailing(cells))
	}
	return out, nil
}

func (f *Fake) AppendRow(ctx context.Context, docID, rng string, row []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AppendRow", rng)

	if err := f.failWrite(rng); err != nil {
		return err
	}

	d, r, err := f.resolve(docID, rng)
	if err != nil {
		return err
	}
	if len(d.tabs[r.tab]) == 0 {
		d.tabs[r.tab] = [][]any{{}}
	}
	d.tabs[r.tab] = append(d.tabs[r.tab], append([]any(nil), row...))
	d.modified = time.Now()
	return nil
}

func (f *Fake) UpdateRange(ctx context.Context, docID, rng string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateRange", rng)

	if err := f.failWrite(rng); err != nil {
		return err
	}

	d, r, err := f.resolve(docID, rng)
	if err != nil {
		return err
	}
	tab := d.tabs[r.tab]
	for i, row := range rows {
		idx := r.startRow - 1 + i
		for len(tab) <= idx {
			tab = append(tab, nil)
		}
		tab[idx] = append([]any(nil), row...)
	}
	d.tabs[r.tab] = tab
	d.modified = time.Now()
	return nil
}

func (f *Fake) DeleteRow(ctx context.Context, docID, tab string, rowIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteRow", fmt.Sprintf("%s#%d", tab, rowIndex))

	if err := f.failWrite(tab); err != nil {
		return err
	}

	d, ok := f.docs[docID]
	if !ok {
		return fmt.Errorf("%w: spreadsheet %s", common.ErrNotFound, docID)
	}
	rows, ok := d.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: tab %s", common.ErrNotFound, tab)
	}
	if rowIndex < 0 || rowIndex >= len(rows) {
		return fmt.Errorf("%w: row %d out of range", common.ErrTransport, rowIndex)
	}
	d.tabs[tab] = append(rows[:rowIndex], rows[rowIndex+1:]...)
	d.modified = time.Now()
	return nil
}

func (f *Fake) failWrite(rng string) error {
	if f.FailWrite != nil {
		return f.FailWrite(rng)
	}
	return nil
}

func (f *Fake) record(method, arg string) {
	f.calls = append(f.calls, method+" "+arg)
}

func (f *Fake) newID() string {
	f.nextID++
	return "doc-" + strconv.Itoa(f.nextID)
}

type a1 struct {
	tab      string
	startCol int
	startRow int
	endCol   int
	endRow   int // 0 means open-ended
}

func (f *Fake) resolve(docID, rng string) (*document, a1, error) {
	d, ok := f.docs[docID]
	if !ok {
		return nil, a1{}, fmt.Errorf("%w: spreadsheet %s", common.ErrNotFound, docID)
	}
	r, err := parseA1(rng)
	if err != nil {
		return nil, a1{}, err
	}
	if _, ok := d.tabs[r.tab]; !ok {
		return nil, a1{}, fmt.Errorf("%w: tab %s", common.ErrNotFound, r.tab)
	}
	return d, r, nil
}

func parseA1(rng string) (a1, error) {
	tab, cells, ok := strings.Cut(rng, "!")
	if !ok {
		return a1{}, fmt.Errorf("bad range %q", rng)
	}
	from, to, ok := strings.Cut(cells, ":")
	if !ok {
		to = from
	}
	sc, sr := splitCell(from)
	ec, er := splitCell(to)
	if sr == 0 {
		sr = 1
	}
	return a1{tab: tab, startCol: sc, startRow: sr, endCol: ec, endRow: er}, nil
}

func splitCell(s string) (col, row int) {
	i := 0
	col = 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i < len(s) {
		row, _ = strconv.Atoi(s[i:])
	}
	return col - 1, row
}

func trimTrailing(cells []any) []any {
	n := len(cells)
	for n > 0 {
		if c := cells[n-1]; c == nil || c == "" {
			n--
			continue
		}
		break
	}
	return cells[:n]
}

func cloneRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
