package question

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = time.Minute
	categoriesKey   = "trivia:categories"
)

// CategoryCache caches the distinct category list.
type CategoryCache interface {
	Get(ctx context.Context) ([]string, error)
	Set(ctx context.Context, categories []string) error
	Invalidate(ctx context.Context) error
}

// Cache is the Redis-backed CategoryCache. The consumer invalidates it after every insert.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ CategoryCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context) ([]string, error) {
	data, err := c.client.Get(ctx, categoriesKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var categories []string
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

func (c *Cache) Set(ctx context.Context, categories []string) error {
	data, err := json.Marshal(categories)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, categoriesKey, data, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, categoriesKey).Err()
}

// QuestionStored drops the cached list so a new category shows up on the next read.
func (c *Cache) QuestionStored(ctx context.Context, _ StoredQuestion) error {
	return c.Invalidate(ctx)
}
