package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Redis channels for task events.
const (
	StatusChannel  = "tts_tasks:status"
	ConsoleChannel = "tts_tasks:console"
)

// RedisPublisher publishes task events to Redis pub/sub channels so
// detached UIs (or other processes on the host) can follow task progress.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, password string, db int) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisPublisher{client: client}, nil
}

// PublishStatus publishes a status event to the status channel.
func (p *RedisPublisher) PublishStatus(ctx context.Context, event StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, StatusChannel, data).Err()
}

// PublishConsole publishes a console event to the console channel.
func (p *RedisPublisher) PublishConsole(ctx context.Context, event ConsoleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, ConsoleChannel, data).Err()
}

// Close closes the Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
