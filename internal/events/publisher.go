package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

// publishClient is the slice of *redis.Client the publisher needs.
type publishClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher sends outbound events through a circuit breaker.
type RedisPublisher struct {
	client  publishClient
	breaker *gobreaker.CircuitBreaker
	prefix  string
	timeout time.Duration
}

func NewRedisPublisher(ctx context.Context, client publishClient, prefix string, timeout time.Duration) *RedisPublisher {
	l := logger.FromContext(ctx)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-events",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &RedisPublisher{
		client:  client,
		breaker: breaker,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *model.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	channel := Channel(p.prefix, string(event.Type))
	_, err = p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		return errors.Wrapf(err, "publish to %s", channel)
	}
	return nil
}

// State exposes the breaker state for health reporting.
func (p *RedisPublisher) State() gobreaker.State {
	return p.breaker.State()
}
