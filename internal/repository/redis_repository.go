package repository

import (
	"context"
	"errors"
	"fmt"

	"stockroom/internal/domain"

	"github.com/redis/go-redis/v9"
)

type redisRepository struct {
	client redis.Cmdable
	key    string
}

// NewRedisRepository stores the collection under a single redis key
func NewRedisRepository(client redis.Cmdable, key string) CollectionRepository {
	return &redisRepository{client: client, key: key}
}

func (r *redisRepository) Load(ctx context.Context) ([]domain.Product, bool, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get key %s: %w", r.key, err)
	}

	products, err := decodeCollection(data)
	if err != nil {
		return nil, false, err
	}
	return products, true, nil
}

// Save replaces the key with a single SET, which redis applies atomically
func (r *redisRepository) Save(ctx context.Context, products []domain.Product) error {
	data, err := encodeCollection(products)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", r.key, err)
	}
	return nil
}
