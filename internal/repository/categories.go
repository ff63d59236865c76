package repository

import (
	"context"
	"errors"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

// GetCategory returns a category by id. Missing ids yield (nil, nil).
func (r *Repository) GetCategory(ctx context.Context, id string) (*Category, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetCategory")
	defer span.End()

	key := cache.CategoryKey(id)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) (*Category, error) {
		r.logCacheOp("get", key, false)
		doc, err := r.store.Get(ctx, documentstore.CollectionCategories, id)
		if errors.Is(err, documentstore.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		c, err := fromDoc[Category](doc)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}, cache.Options{TTL: cache.TTLCategory})
}

// GetCategories returns all active categories ordered by position. An
// empty catalog is cached as an explicit empty list, not treated as a
// miss, so an empty store does not hammer the document store.
func (r *Repository) GetCategories(ctx context.Context) ([]Category, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetCategories")
	defer span.End()

	key := cache.CategoriesKey()
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) ([]Category, error) {
		r.logCacheOp("get", key, false)
		docs, err := r.store.Query(ctx, documentstore.CollectionCategories, documentstore.Query{
			Filters: map[string]any{"active": true},
			OrderBy: "position",
		})
		if err != nil {
			return nil, err
		}
		cats, err := fromDocs[Category](docs)
		if err != nil {
			return nil, err
		}
		if cats == nil {
			cats = []Category{}
		}
		return cats, nil
	}, cache.Options{TTL: cache.TTLCategoriesList})
}

// FetchActiveCategories reads active categories straight from the document
// store, bypassing the cache.
func (r *Repository) FetchActiveCategories(ctx context.Context, limit int) ([]Category, error) {
	docs, err := r.store.Query(ctx, documentstore.CollectionCategories, documentstore.Query{
		Filters: map[string]any{"active": true},
		OrderBy: "position",
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	cats, err := fromDocs[Category](docs)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []Category{}
	}
	return cats, nil
}

// CreateCategory stores a category and invalidates both its entity key and
// the full list.
func (r *Repository) CreateCategory(ctx context.Context, c *Category) error {
	doc, err := toDoc(c)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, documentstore.CollectionCategories, c.ID, doc); err != nil {
		return err
	}
	r.InvalidateCategory(ctx, c.ID)
	return nil
}

// UpdateCategory merges fields into a category, then invalidates it.
func (r *Repository) UpdateCategory(ctx context.Context, id string, fields documentstore.Document) error {
	if err := r.store.Update(ctx, documentstore.CollectionCategories, id, fields); err != nil {
		return err
	}
	r.InvalidateCategory(ctx, id)
	return nil
}

// DeleteCategory removes a category and invalidates it.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, documentstore.CollectionCategories, id); err != nil {
		return err
	}
	r.InvalidateCategory(ctx, id)
	return nil
}

// InvalidateCategory deletes the category's entity key and the full list
// key. The list is small and single-keyed, so unlike product listings it
// can be invalidated precisely on every category mutation.
func (r *Repository) InvalidateCategory(ctx context.Context, id string) {
	r.cache.Delete(ctx, cache.CategoryKey(id), "")
	r.cache.Delete(ctx, cache.CategoriesKey(), "")
	r.logCacheOp("invalidate", cache.CategoryKey(id), false)
}
