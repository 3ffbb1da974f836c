package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/common"
)

type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpReorder Op = "reorder"
)

// Mutation is a change to one collection. The set of mutations is closed;
// use the types declared in this package.
type Mutation interface {
	Collection() models.Collection
	Op() Op
	// EntityID is the id of the affected entity, empty for reorder.
	EntityID() string

	prepare() (Mutation, error)
	optimistic(value any, key Key) any
	commit(ctx context.Context, c *Cache) (any, error)
}

// Attachment is new binary content for a trade.
type Attachment struct {
	Data     []byte
	Filename string
}

func (a *Attachment) upload(ctx context.Context, c *Cache) (string, error) {
	if c.assets == nil {
		return "", fmt.Errorf("%w: no attachment storage configured", common.ErrValidation)
	}
	return c.assets.Upload(ctx, a.Data, a.Filename)
}

// TradeCreate appends a trade. An empty ID is generated.
type TradeCreate struct {
	Trade      models.Trade
	Attachment *Attachment
}

func (m TradeCreate) Collection() models.Collection { return models.CollectionTrades }
func (m TradeCreate) Op() Op                        { return OpCreate }
func (m TradeCreate) EntityID() string              { return m.Trade.ID }

func (m TradeCreate) prepare() (Mutation, error) {
	if err := m.Trade.Validate(); err != nil {
		return nil, err
	}
	if m.Trade.ID == "" {
		m.Trade.ID = models.NewID()
	}
	return m, nil
}

func (m TradeCreate) optimistic(value any, key Key) any {
	trades := value.([]models.Trade)
	if key.Scoped() && !m.Trade.InMonth(key.Year, key.Month) {
		return trades
	}
	return append(slices.Clone(trades), m.Trade)
}

func (m TradeCreate) commit(ctx context.Context, c *Cache) (any, error) {
	t := m.Trade
	if m.Attachment != nil {
		id, err := m.Attachment.upload(ctx, c)
		if err != nil {
			return nil, err
		}
		t.AttachmentID = id
	}
	return c.backend.CreateTrade(ctx, t)
}

type TradeUpdate struct {
	ID         string
	Patch      models.TradePatch
	Attachment *Attachment
}

func (m TradeUpdate) Collection() models.Collection { return models.CollectionTrades }
func (m TradeUpdate) Op() Op                        { return OpUpdate }
func (m TradeUpdate) EntityID() string              { return m.ID }

func (m TradeUpdate) prepare() (Mutation, error) {
	if err := requireID(m.ID); err != nil {
		return nil, err
	}
	if err := m.Patch.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m TradeUpdate) optimistic(value any, key Key) any {
	trades := slices.Clone(value.([]models.Trade))
	for i := range trades {
		if trades[i].ID == m.ID {
			trades[i] = m.Patch.Apply(trades[i])
		}
	}
	if key.Scoped() {
		trades = slices.DeleteFunc(trades, func(t models.Trade) bool {
			return !t.InMonth(key.Year, key.Month)
		})
	}
	return trades
}

func (m TradeUpdate) commit(ctx context.Context, c *Cache) (any, error) {
	patch := m.Patch
	if m.Attachment != nil {
		id, err := m.Attachment.upload(ctx, c)
		if err != nil {
			return nil, err
		}
		patch.AttachmentID = &id
	}
	return c.backend.UpdateTrade(ctx, m.ID, patch)
}

type TradeDelete struct {
	ID string
}

func (m TradeDelete) Collection() models.Collection { return models.CollectionTrades }
func (m TradeDelete) Op() Op                        { return OpDelete }
func (m TradeDelete) EntityID() string              { return m.ID }

func (m TradeDelete) prepare() (Mutation, error) {
	return m, requireID(m.ID)
}

func (m TradeDelete) optimistic(value any, _ Key) any {
	return without(value.([]models.Trade), m.ID, func(t models.Trade) string { return t.ID })
}

func (m TradeDelete) commit(ctx context.Context, c *Cache) (any, error) {
	return nil, c.backend.DeleteTrade(ctx, m.ID)
}

// TagCreate appends a tag. An empty ID is generated.
type TagCreate struct {
	Tag models.Tag
}

func (m TagCreate) Collection() models.Collection { return models.CollectionTags }
func (m TagCreate) Op() Op                        { return OpCreate }
func (m TagCreate) EntityID() string              { return m.Tag.ID }

func (m TagCreate) prepare() (Mutation, error) {
	if err := m.Tag.Validate(); err != nil {
		return nil, err
	}
	m.Tag = m.Tag.Normalize()
	if m.Tag.ID == "" {
		m.Tag.ID = models.NewID()
	}
	return m, nil
}

func (m TagCreate) optimistic(value any, _ Key) any {
	return sortTags(append(slices.Clone(value.([]models.Tag)), m.Tag))
}

func (m TagCreate) commit(ctx context.Context, c *Cache) (any, error) {
	return c.backend.CreateTag(ctx, m.Tag)
}

type TagUpdate struct {
	ID    string
	Patch models.TagPatch
}

func (m TagUpdate) Collection() models.Collection { return models.CollectionTags }
func (m TagUpdate) Op() Op                        { return OpUpdate }
func (m TagUpdate) EntityID() string              { return m.ID }

func (m TagUpdate) prepare() (Mutation, error) {
	if err := requireID(m.ID); err != nil {
		return nil, err
	}
	return m, m.Patch.Validate()
}

func (m TagUpdate) optimistic(value any, _ Key) any {
	tags := slices.Clone(value.([]models.Tag))
	for i := range tags {
		if tags[i].ID == m.ID {
			tags[i] = m.Patch.Apply(tags[i])
		}
	}
	return sortTags(tags)
}

func (m TagUpdate) commit(ctx context.Context, c *Cache) (any, error) {
	return c.backend.UpdateTag(ctx, m.ID, m.Patch)
}

type TagDelete struct {
	ID string
}

func (m TagDelete) Collection() models.Collection { return models.CollectionTags }
func (m TagDelete) Op() Op                        { return OpDelete }
func (m TagDelete) EntityID() string              { return m.ID }

func (m TagDelete) prepare() (Mutation, error) {
	return m, requireID(m.ID)
}

func (m TagDelete) optimistic(value any, _ Key) any {
	return without(value.([]models.Tag), m.ID, func(t models.Tag) string { return t.ID })
}

func (m TagDelete) commit(ctx context.Context, c *Cache) (any, error) {
	return nil, c.backend.DeleteTag(ctx, m.ID)
}

// TagReorder gives each listed tag its index as display order.
type TagReorder struct {
	IDs []string
}

func (m TagReorder) Collection() models.Collection { return models.CollectionTags }
func (m TagReorder) Op() Op                        { return OpReorder }
func (m TagReorder) EntityID() string              { return "" }

func (m TagReorder) prepare() (Mutation, error) {
	if len(m.IDs) == 0 {
		return nil, fmt.Errorf("%w: nothing to reorder", common.ErrValidation)
	}
	seen := make(map[string]struct{}, len(m.IDs))
	for _, id := range m.IDs {
		if err := requireID(id); err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: tag %s listed twice", common.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	m.IDs = slices.Clone(m.IDs)
	return m, nil
}

func (m TagReorder) optimistic(value any, _ Key) any {
	pos := make(map[string]int, len(m.IDs))
	for i, id := range m.IDs {
		pos[id] = i
	}
	tags := slices.Clone(value.([]models.Tag))
	for i := range tags {
		if p, ok := pos[tags[i].ID]; ok {
			tags[i].Order = p
		}
	}
	return sortTags(tags)
}

func (m TagReorder) commit(ctx context.Context, c *Cache) (any, error) {
	return nil, c.backend.ReorderTags(ctx, m.IDs)
}

// SettingPut creates or overwrites a setting.
type SettingPut struct {
	Key   string
	Value string
}

func (m SettingPut) Collection() models.Collection { return models.CollectionSettings }
func (m SettingPut) Op() Op                        { return OpUpdate }
func (m SettingPut) EntityID() string              { return m.Key }

func (m SettingPut) prepare() (Mutation, error) {
	m.Key = strings.TrimSpace(m.Key)
	return m, models.Setting{Key: m.Key, Value: m.Value}.Validate()
}

func (m SettingPut) optimistic(value any, _ Key) any {
	settings := slices.Clone(value.([]models.Setting))
	for i := range settings {
		if settings[i].Key == m.Key {
			settings[i].Value = m.Value
			return settings
		}
	}
	return append(settings, models.Setting{Key: m.Key, Value: m.Value})
}

func (m SettingPut) commit(ctx context.Context, c *Cache) (any, error) {
	return c.backend.PutSetting(ctx, m.Key, m.Value)
}

type SettingDelete struct {
	Key string
}

func (m SettingDelete) Collection() models.Collection { return models.CollectionSettings }
func (m SettingDelete) Op() Op                        { return OpDelete }
func (m SettingDelete) EntityID() string              { return m.Key }

func (m SettingDelete) prepare() (Mutation, error) {
	return m, requireID(m.Key)
}

func (m SettingDelete) optimistic(value any, _ Key) any {
	return without(value.([]models.Setting), m.Key, func(s models.Setting) string { return s.Key })
}

func (m SettingDelete) commit(ctx context.Context, c *Cache) (any, error) {
	return nil, c.backend.DeleteSetting(ctx, m.Key)
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", common.ErrValidation)
	}
	return nil
}

func without[T any](list []T, id string, idOf func(T) string) []T {
	return slices.DeleteFunc(slices.Clone(list), func(v T) bool { return idOf(v) == id })
}

func sortTags(tags []models.Tag) []models.Tag {
	slices.SortStableFunc(tags, func(a, b models.Tag) int { return a.Order - b.Order })
	return tags
}
