package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

// EffectivePrice resolves the price a user pays for a product: the user's
// custom price when one exists, otherwise the catalog base price. A custom
// price replaces the base price unconditionally, even when it is higher.
func (r *Repository) EffectivePrice(ctx context.Context, userID, productID string) (float64, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.EffectivePrice")
	defer span.End()

	key := cache.PricingKey(userID, productID)
	price, err := cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) (*float64, error) {
		r.logCacheOp("get", key, false)
		p, err := r.resolvePrice(ctx, userID, productID)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}, cache.Options{TTL: cache.TTLPricing})
	if err != nil {
		return 0, err
	}
	if price == nil {
		return 0, fmt.Errorf("no price for product %s", productID)
	}
	return *price, nil
}

func (r *Repository) resolvePrice(ctx context.Context, userID, productID string) (float64, error) {
	docs, err := r.store.Query(ctx, documentstore.CollectionCustomPricing, documentstore.Query{
		Filters: map[string]any{"userId": userID, "productId": productID},
		Limit:   1,
	})
	if err != nil {
		return 0, err
	}
	if len(docs) > 0 {
		cp, err := fromDoc[CustomPrice](docs[0])
		if err != nil {
			return 0, err
		}
		return cp.Price, nil
	}

	p, err := r.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("product %s not found", productID)
	}
	return p.Price, nil
}

// SetCustomPrice upserts a per-user price override and invalidates the
// cached effective price for that user/product pair.
func (r *Repository) SetCustomPrice(ctx context.Context, cp CustomPrice) error {
	doc, err := toDoc(cp)
	if err != nil {
		return err
	}
	id := cp.UserID + ":" + cp.ProductID
	err = r.store.BatchWrite(ctx, documentstore.CollectionCustomPricing, []documentstore.BatchDoc{
		{ID: id, Doc: doc},
	})
	if err != nil {
		return err
	}
	r.InvalidatePricing(ctx, cp.UserID, cp.ProductID)
	return nil
}

// RemoveCustomPrice drops a user's override so they fall back to the base
// price. A missing override is not an error.
func (r *Repository) RemoveCustomPrice(ctx context.Context, userID, productID string) error {
	err := r.store.Delete(ctx, documentstore.CollectionCustomPricing, userID+":"+productID)
	if err != nil && !errors.Is(err, documentstore.ErrNotFound) {
		return err
	}
	r.InvalidatePricing(ctx, userID, productID)
	return nil
}

// InvalidatePricing deletes the cached effective price for one user/product.
func (r *Repository) InvalidatePricing(ctx context.Context, userID, productID string) {
	key := cache.PricingKey(userID, productID)
	r.cache.Delete(ctx, key, "")
	r.logCacheOp("invalidate", key, false)
}
