package models

import (
	"testing"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestTrade_Validate(t *testing.T) {
	tests := []struct {
		name    string
		trade   Trade
		wantErr bool
	}{
		{name: "ok", trade: Trade{Date: "2024-03-15", Time: "09:30"}},
		{name: "no time", trade: Trade{Date: "2024-03-15"}},
		{name: "bad date", trade: Trade{Date: "2024-3-15"}, wantErr: true},
		{name: "impossible date", trade: Trade{Date: "2024-02-30"}, wantErr: true},
		{name: "bad time", trade: Trade{Date: "2024-03-15", Time: "9:30"}, wantErr: true},
		{name: "out of range time", trade: Trade{Date: "2024-03-15", Time: "25:00"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trade.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrValidation)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTrade_InMonth(t *testing.T) {
	tr := Trade{Date: "2024-03-15"}
	assert.True(t, tr.InMonth(2024, time.March))
	assert.False(t, tr.InMonth(2024, time.April))
	assert.False(t, Trade{}.InMonth(2024, time.March))
}

func TestTradePatch_Apply_OverridesOnlySetFields(t *testing.T) {
	orig := Trade{
		ID: "t1", Date: "2024-03-15", Time: "09:30", Amount: decimal.RequireFromString("12.5"),
		TagID: "g1", TagName: "Breakout", Notes: "first",
	}

	got := TradePatch{Notes: ptr(""), Amount: ptr(decimal.Zero)}.Apply(orig)

	assert.Equal(t, "", got.Notes)
	assert.True(t, got.Amount.IsZero())
	assert.Equal(t, "2024-03-15", got.Date)
	assert.Equal(t, "Breakout", got.TagName)
	assert.Equal(t, "first", orig.Notes)
}

func TestTradePatch_Validate(t *testing.T) {
	require.NoError(t, TradePatch{}.Validate())
	require.NoError(t, TradePatch{Time: ptr("")}.Validate())
	require.ErrorIs(t, TradePatch{Date: ptr("15.03.2024")}.Validate(), common.ErrValidation)
}

func TestTrade_WithTag(t *testing.T) {
	tr := Trade{ID: "t1"}.WithTag(Tag{ID: "g1", Name: "Scalp", Color: "#ff0000", Emoji: "⚡"})
	assert.Equal(t, "g1", tr.TagID)
	assert.Equal(t, "Scalp", tr.TagName)
	assert.Equal(t, "#ff0000", tr.TagColor)
	assert.Equal(t, "⚡", tr.TagEmoji)
}

func TestNormalizeName_NFC(t *testing.T) {
	decomposed := "Cafe\u0301 "
	assert.Equal(t, "Caf\u00e9", NormalizeName(decomposed))
}

func TestTag_ValidateAndPatch(t *testing.T) {
	require.ErrorIs(t, Tag{Name: "  "}.Validate(), common.ErrValidation)
	require.NoError(t, Tag{Name: "Swing"}.Validate())
	require.ErrorIs(t, TagPatch{Name: ptr("")}.Validate(), common.ErrValidation)

	got := TagPatch{Name: ptr(" Swing "), Order: ptr(3)}.Apply(Tag{ID: "g", Name: "Old", Color: "blue", Order: 1})
	assert.Equal(t, Tag{ID: "g", Name: "Swing", Color: "blue", Order: 3}, got)
}

func TestFindTag(t *testing.T) {
	tags := []Tag{{ID: "a"}, {ID: "b", Name: "B"}}
	got, ok := FindTag(tags, "b")
	require.True(t, ok)
	assert.Equal(t, "B", got.Name)
	_, ok = FindTag(tags, "c")
	assert.False(t, ok)
}

func TestSettings(t *testing.T) {
	require.ErrorIs(t, Setting{}.Validate(), common.ErrValidation)
	assert.Equal(t, Setting{Key: "k", Value: "v2"}, SettingPatch{Value: ptr("v2")}.Apply(Setting{Key: "k", Value: "v1"}))
	assert.Equal(t, map[string]string{"a": "2"}, SettingsMap([]Setting{{"a", "1"}, {"a", "2"}}))
}

func TestNewID_Unique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
	assert.Len(t, NewID(), 36)
}
