package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// NewRedisClient creates a Redis client and verifies connectivity.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisBroadcaster publishes realtime updates on per-event pub/sub
// channels. Dashboard consumers subscribe by event ID.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster creates a broadcaster over an existing client.
func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

// AlertChannel is the pub/sub channel carrying alert updates for an event.
func AlertChannel(eventID string) string { return "alert:" + eventID }

// FeedbackChannel is the pub/sub channel carrying processed feedback for
// an event.
func FeedbackChannel(eventID string) string { return "feedback:" + eventID }

// BroadcastAlert implements Broadcaster.
func (b *RedisBroadcaster) BroadcastAlert(ctx context.Context, alert *domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := b.client.Publish(ctx, AlertChannel(alert.EventID), payload).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// BroadcastAutoResolveSummary implements Broadcaster. The summary is a
// count-only payload on the event's alert channel.
func (b *RedisBroadcaster) BroadcastAutoResolveSummary(ctx context.Context, eventID string, count int) error {
	payload, err := json.Marshal(map[string]any{
		"type":  "autoResolveSummary",
		"count": count,
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := b.client.Publish(ctx, AlertChannel(eventID), payload).Err(); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	return nil
}

// BroadcastFeedback implements Broadcaster.
func (b *RedisBroadcaster) BroadcastFeedback(ctx context.Context, item *domain.FeedbackItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}
	if err := b.client.Publish(ctx, FeedbackChannel(item.EventID), payload).Err(); err != nil {
		return fmt.Errorf("publish feedback: %w", err)
	}
	return nil
}
