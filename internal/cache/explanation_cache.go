package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"phyrisk/internal/xai"
)

type ExplanationCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewExplanationCache(client *redisv9.Client, ttl time.Duration) *ExplanationCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ExplanationCache{client: client, ttl: ttl}
}

func (c *ExplanationCache) Get(ctx context.Context, recordID uint) (*xai.Explanation, bool, error) {
	raw, err := c.client.Get(ctx, explanationKey(recordID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get explanation failed: %w", err)
	}
	var exp xai.Explanation
	if err := json.Unmarshal(raw, &exp); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached explanation failed: %w", err)
	}
	return &exp, true, nil
}

func (c *ExplanationCache) Set(ctx context.Context, recordID uint, exp *xai.Explanation) error {
	payload, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshal explanation failed: %w", err)
	}
	if err := c.client.Set(ctx, explanationKey(recordID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set explanation failed: %w", err)
	}
	return nil
}

func explanationKey(recordID uint) string {
	return fmt.Sprintf("%sxai:local:%d", keyPrefix, recordID)
}
