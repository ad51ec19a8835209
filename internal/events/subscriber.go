package events

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/service"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type SourceHandler interface {
	HandleSourceEvent(ctx context.Context, event *model.SourceEvent) (*model.ScoreSnapshot, *service.Error)
}

// Subscriber feeds collaborator events from Redis into the score aggregator.
type Subscriber struct {
	client   *redis.Client
	handler  SourceHandler
	validate *validator.Validate
	channel  string
}

func NewSubscriber(client *redis.Client, handler SourceHandler, prefix string) *Subscriber {
	return &Subscriber{
		client:   client,
		handler:  handler,
		validate: validator.New(),
		channel:  Channel(prefix, SourceChannel),
	}
}

// Run consumes messages until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	l := logger.FromContext(ctx)

	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", s.channel)
	}
	l.Info("listening for source events", zap.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := s.handle(ctx, msg.Payload); err != nil {
				l.Warn("source event dropped", zap.String("channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) error {
	event := &model.SourceEvent{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		return errors.Wrap(err, "decode event")
	}
	if err := s.validate.Struct(event); err != nil {
		return errors.Wrap(err, "invalid event")
	}

	snapshot, serviceErr := s.handler.HandleSourceEvent(ctx, event)
	if serviceErr != nil {
		return serviceErr
	}

	logger.FromContext(ctx).Debug("score refreshed from event",
		zap.String("type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.Int("total_score", snapshot.TotalScore))
	return nil
}
