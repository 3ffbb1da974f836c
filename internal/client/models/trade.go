package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/shopspring/decimal"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Trade is one journal entry. Tag fields are denormalized copies of the tag
// at the time the trade was written.
type Trade struct {
	ID           string
	Date         string
	Time         string
	Amount       decimal.Decimal
	TagID        string
	TagName      string
	TagColor     string
	TagEmoji     string
	AttachmentID string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks the user-entered fields.
func (t Trade) Validate() error {
	if err := ValidateDate(t.Date); err != nil {
		return err
	}
	if t.Time != "" {
		if err := ValidateTime(t.Time); err != nil {
			return err
		}
	}
	return nil
}

// InMonth reports whether the trade date falls in the given month.
func (t Trade) InMonth(year int, month time.Month) bool {
	return len(t.Date) >= 7 && t.Date[:7] == fmt.Sprintf("%04d-%02d", year, int(month))
}

// WithTag copies the tag's display fields into the trade.
func (t Trade) WithTag(tag Tag) Trade {
	t.TagID = tag.ID
	t.TagName = tag.Name
	t.TagColor = tag.Color
	t.TagEmoji = tag.Emoji
	return t
}

// TradePatch is a partial trade update. A nil field keeps the stored value;
// a non-nil field overrides it, including empty strings and zero amounts.
type TradePatch struct {
	Date         *string
	Time         *string
	Amount       *decimal.Decimal
	TagID        *string
	TagName      *string
	TagColor     *string
	TagEmoji     *string
	AttachmentID *string
	Notes        *string
}

func (p TradePatch) Validate() error {
	if p.Date != nil {
		if err := ValidateDate(*p.Date); err != nil {
			return err
		}
	}
	if p.Time != nil && *p.Time != "" {
		if err := ValidateTime(*p.Time); err != nil {
			return err
		}
	}
	return nil
}

func (p TradePatch) Apply(t Trade) Trade {
	setString(&t.Date, p.Date)
	setString(&t.Time, p.Time)
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	setString(&t.TagID, p.TagID)
	setString(&t.TagName, p.TagName)
	setString(&t.TagColor, p.TagColor)
	setString(&t.TagEmoji, p.TagEmoji)
	setString(&t.AttachmentID, p.AttachmentID)
	setString(&t.Notes, p.Notes)
	return t
}

func ValidateDate(s string) error {
	if len(s) != len(DateLayout) {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", common.ErrValidation, s)
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", common.ErrValidation, s)
	}
	return nil
}

func ValidateTime(s string) error {
	if len(s) != len(TimeLayout) {
		return fmt.Errorf("%w: time %q is not HH:MM", common.ErrValidation, s)
	}
	if _, err := time.Parse(TimeLayout, s); err != nil {
		return fmt.Errorf("%w: time %q is not HH:MM", common.ErrValidation, s)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
