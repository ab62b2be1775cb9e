package memory

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
)

var _ catalog.Lookup = (*CatalogRepo)(nil)

// CatalogRepo serves item and location lookups.
type CatalogRepo struct {
	store *Store
}

// NewCatalogRepo creates a catalog repository over store.
func NewCatalogRepo(store *Store) *CatalogRepo {
	return &CatalogRepo{store: store}
}

// PutItem inserts or replaces an item.
func (r *CatalogRepo) PutItem(ctx context.Context, item catalog.Item) {
	defer r.store.lock(ctx)()
	r.store.items[item.ID] = item
}

// PutLocation inserts or replaces a location.
func (r *CatalogRepo) PutLocation(ctx context.Context, loc catalog.Location) {
	defer r.store.lock(ctx)()
	r.store.locations[loc.ID] = loc
}

// GetItem returns the item or NotFound.
func (r *CatalogRepo) GetItem(ctx context.Context, itemID id.ID) (*catalog.Item, error) {
	defer r.store.lock(ctx)()
	item, ok := r.store.items[itemID]
	if !ok {
		return nil, apperror.NewNotFound("item", itemID.String())
	}
	return &item, nil
}

// GetLocation returns the location or NotFound.
func (r *CatalogRepo) GetLocation(ctx context.Context, locationID id.ID) (*catalog.Location, error) {
	defer r.store.lock(ctx)()
	loc, ok := r.store.locations[locationID]
	if !ok {
		return nil, apperror.NewNotFound("location", locationID.String())
	}
	return &loc, nil
}
