package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"phyrisk/internal/model"
)

const keyPrefix = "phyrisk:"

// HistoryCache keeps the recent messages of a conversation. A dirty marker is
// set while writes are still queued so readers go to the database instead.
type HistoryCache struct {
	client   *redisv9.Client
	ttl      time.Duration
	dirtyTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, ttl, dirtyTTL time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if dirtyTTL <= 0 {
		dirtyTTL = 5 * time.Second
	}
	return &HistoryCache{client: client, ttl: ttl, dirtyTTL: dirtyTTL}
}

func (c *HistoryCache) Get(ctx context.Context, conversationID uint) ([]model.Message, bool, error) {
	dirty, err := c.client.Exists(ctx, dirtyKey(conversationID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	if dirty > 0 {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, historyKey(conversationID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, conversationID uint, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	if err := c.client.Set(ctx, historyKey(conversationID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached history and marks the conversation dirty for dirtyTTL.
func (c *HistoryCache) Invalidate(ctx context.Context, conversationID uint) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, historyKey(conversationID))
	pipe.Set(ctx, dirtyKey(conversationID), "1", c.dirtyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func historyKey(conversationID uint) string {
	return fmt.Sprintf("%schat:history:%d", keyPrefix, conversationID)
}

func dirtyKey(conversationID uint) string {
	return fmt.Sprintf("%schat:history:dirty:%d", keyPrefix, conversationID)
}
