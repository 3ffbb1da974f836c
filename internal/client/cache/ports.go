package cache

import (
	"context"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/client/sheetstore"
)

// Backend is the remote store behind the cache.
type Backend interface {
	FetchTrades(ctx context.Context) ([]models.Trade, error)
	CreateTrade(ctx context.Context, t models.Trade) (models.Trade, error)
	UpdateTrade(ctx context.Context, id string, p models.TradePatch) (models.Trade, error)
	DeleteTrade(ctx context.Context, id string) error

	FetchTags(ctx context.Context) ([]models.Tag, error)
	CreateTag(ctx context.Context, t models.Tag) (models.Tag, error)
	UpdateTag(ctx context.Context, id string, p models.TagPatch) (models.Tag, error)
	DeleteTag(ctx context.Context, id string) error
	ReorderTags(ctx context.Context, orderedIDs []string) error

	FetchSettings(ctx context.Context) ([]models.Setting, error)
	PutSetting(ctx context.Context, key, value string) (models.Setting, error)
	DeleteSetting(ctx context.Context, key string) error
}

// Attachments stores binary content referenced by trades.
type Attachments interface {
	Upload(ctx context.Context, blob []byte, filename string) (string, error)
}

// Sheets exposes a sheetstore.Store as a Backend.
func Sheets(s *sheetstore.Store) Backend {
	return sheetsBackend{s: s}
}

type sheetsBackend struct {
	s *sheetstore.Store
}

func (b sheetsBackend) FetchTrades(ctx context.Context) ([]models.Trade, error) {
	return b.s.Trades().FetchAll(ctx)
}

func (b sheetsBackend) CreateTrade(ctx context.Context, t models.Trade) (models.Trade, error) {
	return b.s.Trades().Append(ctx, t)
}

func (b sheetsBackend) UpdateTrade(ctx context.Context, id string, p models.TradePatch) (models.Trade, error) {
	return b.s.Trades().UpdateByID(ctx, id, p)
}

func (b sheetsBackend) DeleteTrade(ctx context.Context, id string) error {
	return b.s.Trades().DeleteByID(ctx, id)
}

// FetchTags returns the tags in display order.
func (b sheetsBackend) FetchTags(ctx context.Context) ([]models.Tag, error) {
	tags, err := b.s.Tags().FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return sortTags(tags), nil
}

func (b sheetsBackend) CreateTag(ctx context.Context, t models.Tag) (models.Tag, error) {
	return b.s.Tags().Append(ctx, t)
}

func (b sheetsBackend) UpdateTag(ctx context.Context, id string, p models.TagPatch) (models.Tag, error) {
	return b.s.Tags().UpdateByID(ctx, id, p)
}

func (b sheetsBackend) DeleteTag(ctx context.Context, id string) error {
	return b.s.Tags().DeleteByID(ctx, id)
}

func (b sheetsBackend) ReorderTags(ctx context.Context, orderedIDs []string) error {
	return b.s.Reorder(ctx, orderedIDs)
}

func (b sheetsBackend) FetchSettings(ctx context.Context) ([]models.Setting, error) {
	return b.s.Settings().FetchAll(ctx)
}

func (b sheetsBackend) PutSetting(ctx context.Context, key, value string) (models.Setting, error) {
	return b.s.PutSetting(ctx, key, value)
}

func (b sheetsBackend) DeleteSetting(ctx context.Context, key string) error {
	return b.s.Settings().DeleteByID(ctx, key)
}
