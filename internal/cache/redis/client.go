package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/metrics"
	"github.com/claimlens/backend/pkg/logger"
	"github.com/claimlens/backend/pkg/utils"
)

// Client caches embeddings so repeated queries skip the embedding API. A nil
// *Client is valid and behaves as a cache that always misses.
type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &Client{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.GetLogger(),
	}, nil
}

func embeddingKey(text string) string {
	return "embedding:" + utils.HashText(text)
}

// GetEmbedding returns the cached embedding for the text, or found=false.
func (c *Client) GetEmbedding(ctx context.Context, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.rdb.Get(ctx, embeddingKey(text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("Embedding cache read failed", zap.Error(err))
		}
		metrics.RecordEmbeddingCacheMiss()
		return nil, false
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		c.logger.Warn("Corrupt embedding cache entry", zap.Error(err))
		metrics.RecordEmbeddingCacheMiss()
		return nil, false
	}

	metrics.RecordEmbeddingCacheHit()
	return embedding, true
}

// SetEmbedding stores an embedding. Failures are logged and swallowed.
func (c *Client) SetEmbedding(ctx context.Context, text string, embedding []float32) {
	if c == nil {
		return
	}

	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}

	if err := c.rdb.Set(ctx, embeddingKey(text), data, c.ttl).Err(); err != nil {
		c.logger.Debug("Embedding cache write failed", zap.Error(err))
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
