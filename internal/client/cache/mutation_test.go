package cache

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/stretchr/testify/assert"
)

func TestKey_String(t *testing.T) {
	assert.Equal(t, "Tags", CollectionKey(models.CollectionTags).String())
	assert.Equal(t, "Trades/2026-03", MonthKey(2026, time.March).String())
}

func TestOptimistic_TradeMovedOutOfMonth(t *testing.T) {
	march := []models.Trade{{ID: "a", Date: "2026-03-01"}, {ID: "b", Date: "2026-03-09"}}
	date := "2026-04-01"

	got := TradeUpdate{ID: "a", Patch: models.TradePatch{Date: &date}}.optimistic(march, MonthKey(2026, time.March))
	assert.Equal(t, []models.Trade{{ID: "b", Date: "2026-03-09"}}, got)
	assert.Equal(t, "2026-03-01", march[0].Date, "input is not modified")

	all := TradeUpdate{ID: "a", Patch: models.TradePatch{Date: &date}}.optimistic(march, CollectionKey(models.CollectionTrades))
	assert.Len(t, all, 2)
}

func TestOptimistic_TradeCreateOutsideMonthIsSkipped(t *testing.T) {
	m := TradeCreate{Trade: models.Trade{ID: "c", Date: "2026-02-10"}}
	got := m.optimistic([]models.Trade{}, MonthKey(2026, time.March))
	assert.Empty(t, got)
}

func TestOptimistic_TagReorderSorts(t *testing.T) {
	tags := []models.Tag{{ID: "a", Order: 0}, {ID: "b", Order: 1}, {ID: "c", Order: 2}}
	got := TagReorder{IDs: []string{"c", "b", "a"}}.optimistic(tags, CollectionKey(models.CollectionTags)).([]models.Tag)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 0, tags[0].Order)
}

func TestOptimistic_SettingPutUpserts(t *testing.T) {
	settings := []models.Setting{{Key: "currency", Value: "USD"}}
	got := SettingPut{Key: "currency", Value: "EUR"}.optimistic(settings, Key{}).([]models.Setting)
	assert.Equal(t, []models.Setting{{Key: "currency", Value: "EUR"}}, got)

	got = SettingPut{Key: "tz", Value: "UTC"}.optimistic(settings, Key{}).([]models.Setting)
	assert.Len(t, got, 2)
}

func TestLocker_ReorderExcludesEntityMutations(t *testing.T) {
	var l locker
	release := l.acquire(TagReorder{IDs: []string{"a"}})

	acquired := make(chan struct{})
	go func() {
		r := l.acquire(TagUpdate{ID: "a"})
		r()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("entity mutation ran during reorder")
	case <-time.After(30 * time.Millisecond):
	}
	release()
	<-acquired

	// trades are a different collection
	r := l.acquire(TradeDelete{ID: "a"})
	r()
	assert.Empty(t, l.entities)
}
