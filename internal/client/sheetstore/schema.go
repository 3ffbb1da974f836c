package sheetstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/shopspring/decimal"
)

// TimestampLayout is RFC 3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type schema struct {
	collection models.Collection
	header     []string
	minCols    int
}

var (
	tradesSchema = schema{
		collection: models.CollectionTrades,
		header: []string{
			"id", "date", "time", "amount", "tagId", "tagName", "tagColor", "tagEmoji",
			"attachmentId", "notes", "createdAt", "updatedAt",
		},
		minCols: 8,
	}
	tagsSchema = schema{
		collection: models.CollectionTags,
		header:     []string{"id", "name", "color", "emoji", "order"},
		minCols:    2,
	}
	settingsSchema = schema{
		collection: models.CollectionSettings,
		header:     []string{"key", "value"},
		minCols:    1,
	}
)

var schemas = []schema{tradesSchema, tagsSchema, settingsSchema}

func (s schema) tab() string { return string(s.collection) }

func (s schema) lastColumn() string { return columnName(len(s.header) - 1) }

// dataRange covers every data row below the header.
func (s schema) dataRange() string {
	return fmt.Sprintf("%s!A2:%s", s.tab(), s.lastColumn())
}

func (s schema) idRange() string {
	return fmt.Sprintf("%s!A2:A", s.tab())
}

func (s schema) headerRange() string {
	return s.rowRange(1)
}

// rowRange addresses a single 1-based sheet row.
func (s schema) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", s.tab(), row, s.lastColumn(), row)
}

func (s schema) headerRow() []any {
	row := make([]any, len(s.header))
	for i, h := range s.header {
		row[i] = h
	}
	return row
}

// normalize pads a row trimmed by the remote API back to full width.
func (s schema) normalize(row []any) ([]any, error) {
	if len(row) < s.minCols {
		return nil, fmt.Errorf("%w: %s row has %d columns, need %d", common.ErrValidation, s.tab(), len(row), s.minCols)
	}
	out := make([]any, len(s.header))
	copy(out, row)
	return out, nil
}

func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}

func cellInt(v any) (int, error) {
	switch c := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(c), nil
	case int:
		return c, nil
	}
	s := strings.TrimSpace(cellString(v))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", common.ErrValidation, s)
	}
	return n, nil
}

func cellDecimal(v any) (decimal.Decimal, error) {
	s := strings.TrimSpace(cellString(v))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %w", common.ErrValidation, s, err)
	}
	return d, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

func parseTimestamp(v any) time.Time {
	s := strings.TrimSpace(cellString(v))
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func encodeTrade(t models.Trade) []any {
	return []any{
		t.ID, t.Date, t.Time, t.Amount.String(),
		t.TagID, t.TagName, t.TagColor, t.TagEmoji,
		t.AttachmentID, t.Notes,
		formatTimestamp(t.CreatedAt), formatTimestamp(t.UpdatedAt),
	}
}

func decodeTrade(row []any) (models.Trade, error) {
	row, err := tradesSchema.normalize(row)
	if err != nil {
		return models.Trade{}, err
	}
	amount, err := cellDecimal(row[3])
	if err != nil {
		return models.Trade{}, err
	}
	return models.Trade{
		ID:           cellString(row[0]),
		Date:         cellString(row[1]),
		Time:         cellString(row[2]),
		Amount:       amount,
		TagID:        cellString(row[4]),
		TagName:      cellString(row[5]),
		TagColor:     cellString(row[6]),
		TagEmoji:     cellString(row[7]),
		AttachmentID: cellString(row[8]),
		Notes:        cellString(row[9]),
		CreatedAt:    parseTimestamp(row[10]),
		UpdatedAt:    parseTimestamp(row[11]),
	}, nil
}

func encodeTag(t models.Tag) []any {
	return []any{t.ID, t.Name, t.Color, t.Emoji, t.Order}
}

func decodeTag(row []any) (models.Tag, error) {
	row, err := tagsSchema.normalize(row)
	if err != nil {
		return models.Tag{}, err
	}
	order, err := cellInt(row[4])
	if err != nil {
		return models.Tag{}, err
	}
	return models.Tag{
		ID:    cellString(row[0]),
		Name:  cellString(row[1]),
		Color: cellString(row[2]),
		Emoji: cellString(row[3]),
		Order: order,
	}, nil
}

func encodeSetting(s models.Setting) []any {
	return []any{s.Key, s.Value}
}

func decodeSetting(row []any) (models.Setting, error) {
	row, err := settingsSchema.normalize(row)
	if err != nil {
		return models.Setting{}, err
	}
	return models.Setting{Key: cellString(row[0]), Value: cellString(row[1])}, nil
}
