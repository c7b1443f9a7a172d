package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/pkg/log"
)

type cachedClient struct {
	next Client
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedClient wraps next with a Redis cache keyed by model and content hash,
// so unchanged chunks are not re-embedded across runs. Cache failures fall back to next.
func NewCachedClient(next Client, rdb *redis.Client, ttl time.Duration) Client {
	return &cachedClient{next: next, rdb: rdb, ttl: ttl}
}

// CacheKey returns the Redis key holding the vector of text under modelID.
func CacheKey(modelID, text string) string {
	return "embedding:" + modelID + ":" + model.ContentHash(text)
}

func (c *cachedClient) Model() string {
	return c.next.Model()
}

func (c *cachedClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.next.Model(), text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vector []float32
		if jsonErr := json.Unmarshal(raw, &vector); jsonErr == nil && len(vector) > 0 {
			return vector, nil
		}
		log.Warnf("[EmbeddingCache] 缓存内容无法解析, key: %s", key)
	case !errors.Is(err, redis.Nil):
		log.Warnf("[EmbeddingCache] 读取缓存失败, 回退到 Embedding API: %v", err)
	}

	vector, err := c.next.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(vector); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			log.Warnf("[EmbeddingCache] 写入缓存失败: %v", err)
		}
	}
	return vector, nil
}
