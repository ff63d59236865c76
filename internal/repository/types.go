package repository

import (
	"encoding/json"
	"time"

	"github.com/partsflow/storefront/backend/internal/documentstore"
)

// Product is a catalog item. Prices are decimal currency units, not minor
// units.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Price       float64   `json:"price"`
	Image       string    `json:"image,omitempty"`
	OEMNumbers  []string  `json:"oemNumbers,omitempty"`
	CategoryID  string    `json:"categoryId,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Category groups products.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Position    int    `json:"position,omitempty"`
	Active      bool   `json:"active"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Order is a placed order.
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// CustomPrice is a per-user price override for one product. When present
// it replaces the catalog base price unconditionally.
type CustomPrice struct {
	UserID    string  `json:"userId"`
	ProductID string  `json:"productId"`
	Price     float64 `json:"price"`
}

// toDoc converts a domain value to a schemaless document through JSON.
func toDoc(v any) (documentstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := documentstore.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// fromDoc converts a document back into a typed domain value.
func fromDoc[T any](doc documentstore.Document) (T, error) {
	var v T
	raw, err := json.Marshal(doc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}

func fromDocs[T any](docs []documentstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := fromDoc[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
