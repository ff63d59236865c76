package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

// GetProduct returns a product by id, read-through cached. A missing id
// yields (nil, nil).
func (r *Repository) GetProduct(ctx context.Context, id string) (*Product, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product_id", id))

	key := cache.ProductKey(id)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) (*Product, error) {
		r.logCacheOp("get", key, false)
		doc, err := r.store.Get(ctx, documentstore.CollectionProducts, id)
		if errors.Is(err, documentstore.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := fromDoc[Product](doc)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}, cache.Options{TTL: cache.TTLProduct})
}

// GetProducts returns products matching the filter set. The cache key
// folds in the canonicalized filters, so distinct queries never collide.
func (r *Repository) GetProducts(ctx context.Context, filters map[string]any) ([]Product, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetProducts")
	defer span.End()

	key := cache.ProductsKey(filters)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) ([]Product, error) {
		r.logCacheOp("get", key, false)
		docs, err := r.store.Query(ctx, documentstore.CollectionProducts, documentstore.Query{
			Filters: filters,
			OrderBy: "name",
		})
		if err != nil {
			return nil, err
		}
		products, err := fromDocs[Product](docs)
		if err != nil {
			return nil, err
		}
		if products == nil {
			products = []Product{}
		}
		return products, nil
	}, cache.Options{TTL: cache.TTLProductList})
}

// SearchProducts runs a free-text search over active products, optionally
// narrowed by filters. Search results churn fastest, so they get the
// shortest TTL tier.
func (r *Repository) SearchProducts(ctx context.Context, term string, filters map[string]any) ([]Product, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.SearchProducts")
	defer span.End()
	span.SetAttributes(attribute.String("search_term", term))

	key := cache.SearchProductsKey(term, filters)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) ([]Product, error) {
		r.logCacheOp("search", key, false)
		q := documentstore.Query{Filters: map[string]any{"active": true}, OrderBy: "name"}
		for k, v := range filters {
			q.Filters[k] = v
		}
		docs, err := r.store.Query(ctx, documentstore.CollectionProducts, q)
		if err != nil {
			return nil, err
		}
		products, err := fromDocs[Product](docs)
		if err != nil {
			return nil, err
		}
		return MatchProducts(products, term), nil
	}, cache.Options{TTL: cache.TTLSearch})
}

// GetProductsPage returns one page of the product listing for a search
// term, cached per (term, limit, page) triple. Page numbering starts at 1.
func (r *Repository) GetProductsPage(ctx context.Context, term string, limit, page int) ([]Product, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetProductsPage")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}

	key := cache.ProductsListKey(term, limit, page)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) ([]Product, error) {
		r.logCacheOp("list", key, false)
		docs, err := r.store.Query(ctx, documentstore.CollectionProducts, documentstore.Query{
			Filters: map[string]any{"active": true},
			OrderBy: "name",
		})
		if err != nil {
			return nil, err
		}
		products, err := fromDocs[Product](docs)
		if err != nil {
			return nil, err
		}
		if term != "" {
			products = MatchProducts(products, term)
		}
		offset := (page - 1) * limit
		if offset >= len(products) {
			return []Product{}, nil
		}
		end := offset + limit
		if end > len(products) {
			end = len(products)
		}
		return products[offset:end], nil
	}, cache.Options{TTL: cache.TTLProductList})
}

// MatchProducts filters a product slice by case-insensitive substring
// match on name, sku, brand, description and OEM numbers. The warmer uses
// it to build common-search entries from an already-fetched product list
// without extra document store round trips.
func MatchProducts(products []Product, term string) []Product {
	needle := strings.ToLower(strings.TrimSpace(term))
	out := []Product{}
	if needle == "" {
		return out
	}
	for _, p := range products {
		if productMatches(p, needle) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func productMatches(p Product, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.SKU), needle) ||
		strings.Contains(strings.ToLower(p.Brand), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, oem := range p.OEMNumbers {
		if strings.Contains(strings.ToLower(oem), needle) {
			return true
		}
	}
	return false
}

// FetchActiveProducts reads active products straight from the document
// store, bypassing the cache. The warmer uses it to build fresh entries.
func (r *Repository) FetchActiveProducts(ctx context.Context, limit int) ([]Product, error) {
	docs, err := r.store.Query(ctx, documentstore.CollectionProducts, documentstore.Query{
		Filters: map[string]any{"active": true},
		OrderBy: "name",
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	return fromDocs[Product](docs)
}

// CreateProduct stores a new product and invalidates its entity key.
func (r *Repository) CreateProduct(ctx context.Context, p *Product) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	doc, err := toDoc(p)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, documentstore.CollectionProducts, p.ID, doc); err != nil {
		return err
	}
	r.InvalidateProduct(ctx, p.ID)
	return nil
}

// UpdateProduct merges fields into a product, then invalidates its entity
// key so the very next GetProduct sees the update. List and search caches
// intentionally stay stale until their TTL lapses.
func (r *Repository) UpdateProduct(ctx context.Context, id string, fields documentstore.Document) error {
	fields["updatedAt"] = time.Now().UTC()
	if err := r.store.Update(ctx, documentstore.CollectionProducts, id, fields); err != nil {
		return err
	}
	r.InvalidateProduct(ctx, id)
	return nil
}

// DeleteProduct removes a product and invalidates its entity key.
func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, documentstore.CollectionProducts, id); err != nil {
		return err
	}
	r.InvalidateProduct(ctx, id)
	return nil
}

// InvalidateProduct deletes the product's entity key.
func (r *Repository) InvalidateProduct(ctx context.Context, id string) {
	key := cache.ProductKey(id)
	r.cache.Delete(ctx, key, "")
	r.logCacheOp("invalidate", key, false)
}
