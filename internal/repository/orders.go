package repository

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/partsflow/storefront/backend/internal/cache"
	"github.com/partsflow/storefront/backend/internal/documentstore"
	"github.com/partsflow/storefront/backend/internal/tracing"
)

// GetOrder returns a single order by id. Missing ids yield (nil, nil).
func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", id))

	key := cache.OrderKey(id)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) (*Order, error) {
		r.logCacheOp("get", key, false)
		doc, err := r.store.Get(ctx, documentstore.CollectionOrders, id)
		if errors.Is(err, documentstore.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		o, err := fromDoc[Order](doc)
		if err != nil {
			return nil, err
		}
		return &o, nil
	}, cache.Options{TTL: cache.TTLOrder})
}

// GetUserOrders returns a user's order history, newest first. An empty
// history is cached as an explicit empty list.
func (r *Repository) GetUserOrders(ctx context.Context, userID string) ([]Order, error) {
	ctx, span := tracing.StartSpan(ctx, "repository.GetUserOrders")
	defer span.End()

	key := cache.UserOrdersKey(userID)
	return cache.GetOrSet(ctx, r.cache, key, func(ctx context.Context) ([]Order, error) {
		r.logCacheOp("get", key, false)
		docs, err := r.store.Query(ctx, documentstore.CollectionOrders, documentstore.Query{
			Filters:    map[string]any{"userId": userID},
			OrderBy:    "createdAt",
			Descending: true,
		})
		if err != nil {
			return nil, err
		}
		orders, err := fromDocs[Order](docs)
		if err != nil {
			return nil, err
		}
		if orders == nil {
			orders = []Order{}
		}
		return orders, nil
	}, cache.Options{TTL: cache.TTLUserOrders})
}

// CreateOrder stores a new order and invalidates the user's order history
// so their next history read includes it immediately.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) error {
	o.CreatedAt = time.Now().UTC()
	doc, err := toDoc(o)
	if err != nil {
		return err
	}
	if err := r.store.Insert(ctx, documentstore.CollectionOrders, o.ID, doc); err != nil {
		return err
	}
	r.InvalidateOrder(ctx, o.ID, o.UserID)
	if r.events != nil {
		r.events.LogOrderEvent(o.ID, o.UserID, "order created", map[string]any{
			"total": o.Total,
			"items": len(o.Items),
		})
	}
	return nil
}

// UpdateOrderStatus transitions an order's status and invalidates both the
// order and its owner's history.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id, status string) error {
	o, err := r.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if o == nil {
		return documentstore.ErrNotFound
	}
	if err := r.store.Update(ctx, documentstore.CollectionOrders, id, documentstore.Document{"status": status}); err != nil {
		return err
	}
	r.InvalidateOrder(ctx, id, o.UserID)
	if r.events != nil {
		r.events.LogOrderEvent(id, o.UserID, "order status changed", map[string]any{"status": status})
	}
	return nil
}

// InvalidateOrder deletes the order's entity key and the owning user's
// order-history key.
func (r *Repository) InvalidateOrder(ctx context.Context, id, userID string) {
	r.cache.Delete(ctx, cache.OrderKey(id), "")
	if userID != "" {
		r.cache.Delete(ctx, cache.UserOrdersKey(userID), "")
	}
	r.logCacheOp("invalidate", cache.OrderKey(id), false)
}

// InvalidateUserOrders deletes only the user's order-history key.
func (r *Repository) InvalidateUserOrders(ctx context.Context, userID string) {
	r.cache.Delete(ctx, cache.UserOrdersKey(userID), "")
	r.logCacheOp("invalidate", cache.UserOrdersKey(userID), false)
}
