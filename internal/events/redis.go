package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream, trimmed to roughly MaxLen entries.
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(client *redis.Client, stream string, maxLen int64) *RedisPublisher {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	values, err := streamValues(e)
	if err != nil {
		return err
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", e.Type, err)
	}
	return nil
}

func streamValues(e Event) (map[string]interface{}, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	return map[string]interface{}{
		"id":          e.ID.String(),
		"type":        string(e.Type),
		"user_id":     e.UserID.String(),
		"occurred_at": e.OccurredAt.Format(time.RFC3339Nano),
		"payload":     string(payload),
	}, nil
}
