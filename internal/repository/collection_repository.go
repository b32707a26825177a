package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"stockroom/internal/domain"
	"stockroom/internal/schema"
)

// CollectionRepository persists the whole product collection as a single slot.
//
// Load reports ok=false when nothing has ever been saved, which is different
// from a saved empty collection. Save replaces the slot atomically: readers
// see either the old collection or the new one, never a mix.
type CollectionRepository interface {
	Load(ctx context.Context) (products []domain.Product, ok bool, err error)
	Save(ctx context.Context, products []domain.Product) error
}

// encodeCollection serializes products as a JSON array with UTC timestamps
func encodeCollection(products []domain.Product) ([]byte, error) {
	normalized := make([]domain.Product, len(products))
	for i, p := range products {
		p.CreatedAt = p.CreatedAt.UTC()
		normalized[i] = p
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	return data, nil
}

// decodeCollection parses a stored slot and rejects records that could not
// have been written by the store.
func decodeCollection(data []byte) ([]domain.Product, error) {
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if err := schema.CheckProduct(p); err != nil {
			return nil, fmt.Errorf("invalid stored record: %w", err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q in stored collection", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	return products, nil
}
