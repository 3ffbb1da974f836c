package models

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"golang.org/x/text/unicode/norm"
)

// Tag classifies trades. Order drives display order.
type Tag struct {
	ID    string
	Name  string
	Color string
	Emoji string
	Order int
}

// NormalizeName trims the name and converts it to NFC so visually identical
// names compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (t Tag) Normalize() Tag {
	t.Name = NormalizeName(t.Name)
	t.Emoji = norm.NFC.String(strings.TrimSpace(t.Emoji))
	return t
}

func (t Tag) Validate() error {
	if NormalizeName(t.Name) == "" {
		return fmt.Errorf("%w: tag name is empty", common.ErrValidation)
	}
	return nil
}

type TagPatch struct {
	Name  *string
	Color *string
	Emoji *string
	Order *int
}

func (p TagPatch) Validate() error {
	if p.Name != nil && NormalizeName(*p.Name) == "" {
		return fmt.Errorf("%w: tag name is empty", common.ErrValidation)
	}
	return nil
}

func (p TagPatch) Apply(t Tag) Tag {
	if p.Name != nil {
		t.Name = NormalizeName(*p.Name)
	}
	setString(&t.Color, p.Color)
	setString(&t.Emoji, p.Emoji)
	if p.Order != nil {
		t.Order = *p.Order
	}
	return t
}

// FindTag returns the tag with the given id.
func FindTag(tags []Tag, id string) (Tag, bool) {
	for _, t := range tags {
		if t.ID == id {
			return t, true
		}
	}
	return Tag{}, false
}
