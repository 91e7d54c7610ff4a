package scheduling

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const catalogKey = "time_slots"

// Catalog serves the fixed list of daily time slots. The list is cached for
// ttl; a non-positive ttl disables caching.
type Catalog struct {
	repo  CatalogRepository
	cache *expirable.LRU[string, []TimeSlot]
}

func NewCatalog(repo CatalogRepository, ttl time.Duration) *Catalog {
	c := &Catalog{repo: repo}
	if ttl > 0 {
		c.cache = expirable.NewLRU[string, []TimeSlot](1, nil, ttl)
	}
	return c
}

// ListSlots returns all slots ordered by slot number.
func (c *Catalog) ListSlots(ctx context.Context) ([]TimeSlot, error) {
	if c.cache != nil {
		if slots, ok := c.cache.Get(catalogKey); ok {
			return slices.Clone(slots), nil
		}
	}

	slots, err := c.repo.ListTimeSlots(ctx)
	if err != nil {
		return nil, internal("list time slots", err)
	}

	if c.cache != nil {
		c.cache.Add(catalogKey, slots)
	}
	return slices.Clone(slots), nil
}

func (c *Catalog) SlotByID(ctx context.Context, id int64) (*TimeSlot, error) {
	slots, err := c.ListSlots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].ID == id {
			return &slots[i], nil
		}
	}
	return nil, &NotFoundError{Resource: "time slot"}
}

// Invalidate drops the cached list.
func (c *Catalog) Invalidate() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
