package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrCacheMiss возвращается, если значения нет в кеше.
var ErrCacheMiss = errors.New("cache miss")

const (
	defaultProductTTL = 5 * time.Minute
	maxTTLJitter      = 30 * time.Second
)

// ProductCache хранит карточки товаров в Redis.
type ProductCache struct {
	client  redis.Cmdable
	baseTTL time.Duration
}

// NewProductCache создаёт кеш. ttl <= 0 заменяется значением по умолчанию.
func NewProductCache(client redis.Cmdable, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	return &ProductCache{client: client, baseTTL: ttl}
}

type cachedProduct struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Inventory    int             `json:"inventory"`
	CollectionID int64           `json:"collection_id"`
	LastUpdate   time.Time       `json:"last_update"`
}

func (c *ProductCache) Get(ctx context.Context, id int64) (domain.Product, error) {
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cached cachedProduct
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.Product{}, fmt.Errorf("unmarshal product failed: %w", err)
	}

	return domain.Product{
		ID:           cached.ID,
		Title:        cached.Title,
		Slug:         cached.Slug,
		Description:  cached.Description,
		UnitPrice:    cached.UnitPrice,
		Inventory:    cached.Inventory,
		CollectionID: cached.CollectionID,
		LastUpdate:   cached.LastUpdate,
	}, nil
}

// Set сохраняет товар со случайной добавкой к TTL, чтобы ключи не истекали одновременно.
func (c *ProductCache) Set(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(cachedProduct{
		ID:           product.ID,
		Title:        product.Title,
		Slug:         product.Slug,
		Description:  product.Description,
		UnitPrice:    product.UnitPrice,
		Inventory:    product.Inventory,
		CollectionID: product.CollectionID,
		LastUpdate:   product.LastUpdate,
	})
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(maxTTLJitter)))
	if err := c.client.Set(ctx, productKey(product.ID), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *ProductCache) Delete(ctx context.Context, id int64) error {
	if err := c.client.Del(ctx, productKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func productKey(id int64) string {
	return fmt.Sprintf("storefront:product:%d", id)
}
