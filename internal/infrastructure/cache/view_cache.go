package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

var (
	_ inventory.ViewCache   = (*ViewCache)(nil)
	_ ledger.ChangeListener = (*ViewCache)(nil)
)

const (
	itemKeyPrefix     = "stockledger:item-locations:"
	locationKeyPrefix = "stockledger:location-items:"
)

// ViewCache caches item and location listings. Register it as a ledger
// ChangeListener so every entry change drops both affected keys.
// Cache failures are logged and treated as misses.
type ViewCache struct {
	backend Backend
	ttl     time.Duration
}

// NewViewCache creates a cache storing listings for ttl.
func NewViewCache(backend Backend, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ViewCache{backend: backend, ttl: ttl}
}

func itemKey(itemID id.ID) string         { return itemKeyPrefix + itemID.String() }
func locationKey(locationID id.ID) string { return locationKeyPrefix + locationID.String() }

// ItemLocations returns the cached listing for an item.
func (c *ViewCache) ItemLocations(ctx context.Context, itemID id.ID) ([]entity.InventoryEntry, bool) {
	return c.get(ctx, itemKey(itemID))
}

// SetItemLocations caches the listing for an item.
func (c *ViewCache) SetItemLocations(ctx context.Context, itemID id.ID, entries []entity.InventoryEntry) {
	c.set(ctx, itemKey(itemID), entries)
}

// LocationItems returns the cached listing for a location.
func (c *ViewCache) LocationItems(ctx context.Context, locationID id.ID) ([]entity.InventoryEntry, bool) {
	return c.get(ctx, locationKey(locationID))
}

// SetLocationItems caches the listing for a location.
func (c *ViewCache) SetLocationItems(ctx context.Context, locationID id.ID, entries []entity.InventoryEntry) {
	c.set(ctx, locationKey(locationID), entries)
}

// EntryChanged drops the listings touching the changed entry.
func (c *ViewCache) EntryChanged(ctx context.Context, itemID, locationID id.ID) {
	if err := c.backend.Delete(ctx, itemKey(itemID), locationKey(locationID)); err != nil {
		logger.Warn(ctx, "view cache invalidation failed",
			"item_id", itemID,
			"location_id", locationID,
			"error", err,
		)
	}
}

func (c *ViewCache) get(ctx context.Context, key string) ([]entity.InventoryEntry, bool) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn(ctx, "view cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entries []entity.InventoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warn(ctx, "view cache entry corrupt", "key", key, "error", err)
		_ = c.backend.Delete(ctx, key)
		return nil, false
	}
	return entries, true
}

func (c *ViewCache) set(ctx context.Context, key string, entries []entity.InventoryEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		logger.Warn(ctx, "view cache write failed", "key", key, "error", err)
	}
}
