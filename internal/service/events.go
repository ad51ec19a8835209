package service

import (
	"context"
	"time"

	"github.com/yakoovad/cohort-engine/internal/metrics"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

// EventPublisher delivers outbound notifications after a mutation committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.OutboundEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *model.OutboundEvent) error { return nil }

// publish never fails the caller: the mutation is already committed.
func publish(ctx context.Context, p EventPublisher, event *model.OutboundEvent) {
	event.At = time.Now().UTC()
	if err := p.Publish(ctx, event); err != nil {
		metrics.ObservePublishFailure(string(event.Type))
		logger.FromContext(ctx).Warn("failed to publish event",
			zap.String("type", string(event.Type)),
			zap.String("team_id", event.TeamID),
			zap.String("user_id", event.UserID),
			zap.Error(err))
	}
}

func teamChanged(teamID string) *model.OutboundEvent {
	return &model.OutboundEvent{Type: model.EventTeamChanged, TeamID: teamID}
}

func scoreUpdated(userID string, total int) *model.OutboundEvent {
	return &model.OutboundEvent{Type: model.EventScoreUpdated, UserID: userID, TotalScore: &total}
}

const defaultOpTimeout = 5 * time.Second

// observe records the outcome of one engine operation.
func observe(operation string, err *Error) {
	result := "OK"
	if err != nil {
		result = string(err.Code)
	}
	metrics.ObserveOperation(operation, result)
}
