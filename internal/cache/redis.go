package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/npezzotti/campus-connect/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	historyKey = "chat:history"
	// warmKey marks the history set as a complete copy of the newest
	// messages. Without it the set is never read.
	warmKey = "chat:history:warm"
)

// RedisHistoryCache keeps the newest chat messages in a capped Redis sorted
// set. Messages are ranked by send time in milliseconds, then by id, the
// same order the database uses, regardless of the order they are pushed in.
type RedisHistoryCache struct {
	client  redis.Cmdable
	maxSize int64
}

func NewRedisHistoryCache(client redis.Cmdable, maxSize int) *RedisHistoryCache {
	return &RedisHistoryCache{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// entry encodes msg as a sorted set member. Members with equal scores sort
// lexically, so the zero-padded id prefix breaks send time ties by id.
func entry(msg types.ChatMessage) (redis.Z, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return redis.Z{}, fmt.Errorf("marshal message: %w", err)
	}

	return redis.Z{
		Score:  float64(msg.SentAt.UnixMilli()),
		Member: fmt.Sprintf("%019d|%s", msg.Id, data),
	}, nil
}

func decodeEntry(member string) (types.ChatMessage, error) {
	var msg types.ChatMessage
	_, data, ok := strings.Cut(member, "|")
	if !ok {
		return msg, fmt.Errorf("malformed history entry %q", member)
	}
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return msg, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}

// Warm replaces the cached history with msgs and marks the cache as usable.
func (c *RedisHistoryCache) Warm(ctx context.Context, msgs []types.ChatMessage) error {
	members := make([]redis.Z, 0, len(msgs))
	for _, m := range msgs {
		z, err := entry(m)
		if err != nil {
			return err
		}
		members = append(members, z)
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, historyKey, warmKey)
	if len(members) > 0 {
		pipe.ZAdd(ctx, historyKey, members...)
		pipe.ZRemRangeByRank(ctx, historyKey, 0, -c.maxSize-1)
	}
	pipe.Set(ctx, warmKey, "1", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm history: %w", err)
	}

	return nil
}

// Push adds msg and drops the oldest messages beyond capacity. A failed
// push invalidates the cache so readers fall back to the database until
// the next Warm.
func (c *RedisHistoryCache) Push(ctx context.Context, msg types.ChatMessage) error {
	z, err := entry(msg)
	if err != nil {
		return err
	}

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, historyKey, z)
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -c.maxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		if invErr := c.Invalidate(ctx); invErr != nil {
			return fmt.Errorf("push message: %w (invalidate: %v)", err, invErr)
		}
		return fmt.Errorf("push message: %w", err)
	}

	return nil
}

// Recent returns the newest n messages in chronological order. ok is false
// when the cache is cold or cannot hold n messages.
func (c *RedisHistoryCache) Recent(ctx context.Context, n int) ([]types.ChatMessage, bool, error) {
	if n <= 0 || int64(n) > c.maxSize {
		return nil, false, nil
	}

	warm, err := c.client.Exists(ctx, warmKey).Result()
	if err != nil {
		return nil, false, fmt.Errorf("check warm marker: %w", err)
	}
	if warm == 0 {
		return nil, false, nil
	}

	vals, err := c.client.ZRange(ctx, historyKey, int64(-n), -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("read history: %w", err)
	}

	msgs := make([]types.ChatMessage, 0, len(vals))
	for _, v := range vals {
		m, err := decodeEntry(v)
		if err != nil {
			return nil, false, err
		}
		msgs = append(msgs, m)
	}

	return msgs, true, nil
}

func (c *RedisHistoryCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, historyKey, warmKey).Err()
}
