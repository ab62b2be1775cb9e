package catalog_repo

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
	"stockledger/internal/infrastructure/storage/postgres"
)

// CatalogRepo implements catalog.Lookup over cat_items and cat_locations.
type CatalogRepo struct {
	items     *baseRepo[catalog.Item]
	locations *baseRepo[catalog.Location]
}

// NewCatalogRepo creates a new catalog repository.
func NewCatalogRepo(txManager *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		items:     newBaseRepo[catalog.Item](txManager, postgres.TableItems, "Item", postgres.ItemColumns),
		locations: newBaseRepo[catalog.Location](txManager, postgres.TableLocations, "Location", postgres.LocationColumns),
	}
}

// GetItem returns an item or NotFound.
func (r *CatalogRepo) GetItem(ctx context.Context, itemID id.ID) (*catalog.Item, error) {
	return r.items.getByID(ctx, itemID)
}

// GetLocation returns a location or NotFound.
func (r *CatalogRepo) GetLocation(ctx context.Context, locationID id.ID) (*catalog.Location, error) {
	return r.locations.getByID(ctx, locationID)
}

// SaveItem inserts or replaces an item.
func (r *CatalogRepo) SaveItem(ctx context.Context, item *catalog.Item) error {
	return r.items.upsert(ctx, item)
}

// SaveLocation inserts or replaces a location.
func (r *CatalogRepo) SaveLocation(ctx context.Context, loc *catalog.Location) error {
	return r.locations.upsert(ctx, loc)
}

var _ catalog.Lookup = (*CatalogRepo)(nil)
