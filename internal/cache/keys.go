package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key builders. Each is a pure function of its inputs: identical inputs
// always yield an identical key, which cache-aside correctness depends on.
// Filter maps are canonicalized before encoding so two logically-identical
// filter sets never fragment into distinct keys.

// ProductKey is the cache key for a single product.
func ProductKey(id string) string {
	return "product:" + id
}

// ProductsKey is the cache key for a filtered product listing.
func ProductsKey(filters map[string]any) string {
	return "products:" + canonicalJSON(filters)
}

// ProductsListKey is the cache key for a paged product search listing.
func ProductsListKey(term string, limit, page int) string {
	key := fmt.Sprintf("products-list:%s:%d", term, limit)
	if page > 1 {
		key += fmt.Sprintf(":page:%d", page)
	}
	return key
}

// CategoryKey is the cache key for a single category.
func CategoryKey(id string) string {
	return "category:" + id
}

// CategoriesKey is the cache key for the full category list.
func CategoriesKey() string {
	return "categories:all"
}

// UserOrdersKey is the cache key for a user's order history.
func UserOrdersKey(userID string) string {
	return "orders:user:" + userID
}

// OrderKey is the cache key for a single order.
func OrderKey(id string) string {
	return "order:" + id
}

// SearchProductsKey is the cache key for a free-text product search.
// Filters are folded in canonically so distinct filtered searches never collide.
func SearchProductsKey(query string, filters map[string]any) string {
	key := "search:products:" + strings.ToLower(strings.TrimSpace(query))
	if len(filters) > 0 {
		key += ":" + canonicalJSON(filters)
	}
	return key
}

// PricingKey is the cache key for a user's effective price on a product.
func PricingKey(userID, productID string) string {
	return "pricing:" + userID + ":" + productID
}

// CartKey is the cache key for a user's cart snapshot.
func CartKey(userID string) string {
	return "cart:" + userID
}

// SessionKey is the cache key for a user/session marker.
func SessionKey(userID, sessionID string) string {
	return "session:" + userID + ":" + sessionID
}

// AnalyticsKey is the cache key for a daily analytics counter.
func AnalyticsKey(name, date string) string {
	return "analytics:" + name + ":" + date
}

// WarmProductsKey is the fixed key the warmer caches the product list under.
func WarmProductsKey() string {
	return "products:warm:all"
}

// Namespace extracts the leading namespace of a key ("product:42" -> "product").
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// canonicalJSON encodes filters deterministically. encoding/json already
// sorts map keys, so nested filter maps come out in a stable order.
func canonicalJSON(filters map[string]any) string {
	if len(filters) == 0 {
		return "{}"
	}
	b, err := json.Marshal(filters)
	if err != nil {
		// Filters are plain JSON-safe values in practice; fall back to a
		// length marker rather than fragmenting the namespace.
		return fmt.Sprintf("unencodable:%d", len(filters))
	}
	return string(b)
}
