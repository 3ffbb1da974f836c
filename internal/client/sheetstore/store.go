package sheetstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/logging"
	"golang.org/x/time/rate"
)

type Options struct {
	// DocumentName is the spreadsheet title searched for and created.
	DocumentName string
	// WriteRate paces sequential multi-row writes (reorder). Zero disables pacing.
	WriteRate rate.Limit
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Store resolves the user's spreadsheet and exposes one Table per collection.
// It is safe for concurrent use, but multi-step row operations are not atomic
// against other writers of the same spreadsheet.
type Store struct {
	api     Spreadsheets
	state   metadata.Repository
	log     logging.Logger
	name    string
	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	docID string

	trades   *Table[models.Trade, models.TradePatch]
	tags     *Table[models.Tag, models.TagPatch]
	settings *Table[models.Setting, models.SettingPatch]
}

func New(api Spreadsheets, state metadata.Repository, log logging.Logger, opts Options) *Store {
	if opts.DocumentName == "" {
		opts.DocumentName = common.DefaultDocumentName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := opts.WriteRate
	if limit <= 0 {
		limit = rate.Inf
	}

	s := &Store{
		api:     api,
		state:   state,
		log:     log.With("component", "sheetstore"),
		name:    opts.DocumentName,
		limiter: rate.NewLimiter(limit, 1),
		now:     opts.Now,
	}

	s.trades = &Table[models.Trade, models.TradePatch]{
		store:  s,
		schema: tradesSchema,
		encode: encodeTrade,
		decode: decodeTrade,
		id:     func(t models.Trade) string { return t.ID },
		prepare: func(t models.Trade, now time.Time) models.Trade {
			t.CreatedAt = now
			t.UpdatedAt = now
			return t
		},
		merge: func(cur models.Trade, p models.TradePatch, now time.Time) models.Trade {
			next := p.Apply(cur)
			next.UpdatedAt = now
			if now.Before(cur.UpdatedAt) {
				next.UpdatedAt = cur.UpdatedAt
			}
			return next
		},
	}
	s.tags = &Table[models.Tag, models.TagPatch]{
		store:  s,
		schema: tagsSchema,
		encode: encodeTag,
		decode: decodeTag,
		id:     func(t models.Tag) string { return t.ID },
		prepare: func(t models.Tag, _ time.Time) models.Tag {
			return t.Normalize()
		},
		merge: func(cur models.Tag, p models.TagPatch, _ time.Time) models.Tag {
			return p.Apply(cur)
		},
		less: func(a, b models.Tag) int { return a.Order - b.Order },
	}
	s.settings = &Table[models.Setting, models.SettingPatch]{
		store:  s,
		schema: settingsSchema,
		encode: encodeSetting,
		decode: decodeSetting,
		id:     func(st models.Setting) string { return st.Key },
		prepare: func(st models.Setting, _ time.Time) models.Setting {
			return st
		},
		merge: func(cur models.Setting, p models.SettingPatch, _ time.Time) models.Setting {
			return p.Apply(cur)
		},
	}

	return s
}

func (s *Store) Trades() *Table[models.Trade, models.TradePatch]       { return s.trades }
func (s *Store) Tags() *Table[models.Tag, models.TagPatch]             { return s.tags }
func (s *Store) Settings() *Table[models.Setting, models.SettingPatch] { return s.settings }

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// ResolveDocument returns the id of the user's spreadsheet. A persisted id
// is reused while it still carries every tab; otherwise spreadsheets with the
// configured title are inspected newest first, and when none qualifies a new
// one is created and seeded with header rows. The result is persisted.
func (s *Store) ResolveDocument(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docID != "" {
		return s.docID, nil
	}

	id, err := s.persistedDocument(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = s.searchDocument(ctx); err != nil {
			return "", err
		}
	}

	created := false
	if id == "" {
		if id, err = s.provision(ctx); err != nil {
			return "", err
		}
		created = true
	}

	if err := s.state.Set(ctx, common.StateKeyDocumentID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist document handle: %w", err)
	}
	s.docID = id
	s.log.Info(ctx, "document resolved", "document_id", id, "created", created)
	return id, nil
}

// Forget drops the in-memory document handle so the next call re-resolves.
func (s *Store) Forget() {
	s.mu.Lock()
	s.docID = ""
	s.mu.Unlock()
}

func (s *Store) persistedDocument(ctx context.Context) (string, error) {
	raw, err := s.state.Get(ctx, common.StateKeyDocumentID)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}

	id := string(raw)
	ok, err := s.hasAllTabs(ctx, id)
	switch {
	case errors.Is(err, common.ErrNotFound):
		s.log.Warn(ctx, "persisted document is gone", "document_id", id)
		return "", nil
	case err != nil:
		return "", err
	case !ok:
		s.log.Warn(ctx, "persisted document lacks required tabs", "document_id", id)
		return "", nil
	}
	return id, nil
}

func (s *Store) searchDocument(ctx context.Context) (string, error) {
	docs, err := s.api.FindDocuments(ctx, s.name)
	if err != nil {
		return "", fmt.Errorf("search documents: %w", err)
	}

	slices.SortStableFunc(docs, func(a, b DocumentInfo) int {
		return b.ModifiedTime.Compare(a.ModifiedTime)
	})

	for _, d := range docs {
		ok, err := s.hasAllTabs(ctx, d.ID)
		if errors.Is(err, common.ErrUnauthorized) {
			return "", err
		}
		if err != nil {
			s.log.Warn(ctx, "skipping candidate document", "document_id", d.ID, "error", err)
			continue
		}
		if ok {
			return d.ID, nil
		}
		s.log.Debug(ctx, "candidate document lacks required tabs", "document_id", d.ID)
	}
	return "", nil
}

func (s *Store) hasAllTabs(ctx context.Context, docID string) (bool, error) {
	titles, err := s.api.TabTitles(ctx, docID)
	if err != nil {
		return false, err
	}
	for _, sc := range schemas {
		if !slices.Contains(titles, sc.tab()) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) provision(ctx context.Context) (string, error) {
	tabs := make([]string, 0, len(schemas))
	for _, sc := range schemas {
		tabs = append(tabs, sc.tab())
	}

	id, err := s.api.CreateDocument(ctx, s.name, tabs)
	if err != nil {
		return "", fmt.Errorf("%w: create document: %w", common.ErrProvisioning, err)
	}

	for _, sc := range schemas {
		if err := s.api.UpdateRange(ctx, id, sc.headerRange(), [][]any{sc.headerRow()}); err != nil {
			return "", fmt.Errorf("%w: seed %s header: %w", common.ErrProvisioning, sc.tab(), err)
		}
	}
	return id, nil
}

// Reorder assigns each tag its position in orderedIDs, one row at a time.
// It stops at the first failure; earlier rows keep their new order.
func (s *Store) Reorder(ctx context.Context, orderedIDs []string) error {
	for i, id := range orderedIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		order := i
		if _, err := s.tags.UpdateByID(ctx, id, models.TagPatch{Order: &order}); err != nil {
			return fmt.Errorf("reorder tag %s: %w", id, err)
		}
	}
	return nil
}

// PutSetting updates the setting row or appends it when absent.
func (s *Store) PutSetting(ctx context.Context, key, value string) (models.Setting, error) {
	updated, err := s.settings.UpdateByID(ctx, key, models.SettingPatch{Value: &value})
	if errors.Is(err, common.ErrNotFound) {
		return s.settings.Append(ctx, models.Setting{Key: key, Value: value})
	}
	return updated, err
}
