// Package events carries engine notifications over Redis pub/sub.
package events

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/yakoovad/cohort-engine/internal/config"
)

const pingTimeout = 2 * time.Second

// NewRedisClient connects and pings Redis so a bad address fails at startup.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Channel builds the pub/sub channel name for an event type.
func Channel(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// SourceChannel is where collaborators announce grade and attendance changes.
const SourceChannel = "source-events"
