package cache

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
	"github.com/dmitrijs2005/tradebook/internal/common"
)

// Key identifies a cached list: a whole collection, or the trades of one
// month.
type Key struct {
	Collection models.Collection
	Year       int
	Month      time.Month
}

func CollectionKey(c models.Collection) Key {
	return Key{Collection: c}
}

func MonthKey(year int, month time.Month) Key {
	return Key{Collection: models.CollectionTrades, Year: year, Month: month}
}

// Scoped reports whether the key selects a single month.
func (k Key) Scoped() bool {
	return k.Year != 0 || k.Month != 0
}

func (k Key) String() string {
	if !k.Scoped() {
		return string(k.Collection)
	}
	return fmt.Sprintf("%s/%04d-%02d", k.Collection, k.Year, int(k.Month))
}

func (k Key) validate() error {
	switch k.Collection {
	case models.CollectionTrades, models.CollectionTags, models.CollectionSettings:
	default:
		return fmt.Errorf("%w: unknown collection %q", common.ErrValidation, k.Collection)
	}
	if !k.Scoped() {
		return nil
	}
	if k.Collection != models.CollectionTrades {
		return fmt.Errorf("%w: only trades can be scoped by month", common.ErrValidation)
	}
	if k.Year < 1 || k.Month < time.January || k.Month > time.December {
		return fmt.Errorf("%w: invalid month %04d-%02d", common.ErrValidation, k.Year, int(k.Month))
	}
	return nil
}

// base returns the unscoped key of the same collection.
func (k Key) base() Key {
	return CollectionKey(k.Collection)
}
