package models

import "github.com/google/uuid"

// Collection names an entity kind. The value doubles as the spreadsheet tab
// title.
type Collection string

const (
	CollectionTrades   Collection = "Trades"
	CollectionTags     Collection = "Tags"
	CollectionSettings Collection = "Settings"
)

// Collections lists every collection in tab order.
var Collections = []Collection{CollectionTrades, CollectionTags, CollectionSettings}

func (c Collection) String() string { return string(c) }

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}
