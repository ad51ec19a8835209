package model

import "time"

type SourceEventType string

const (
	EventGradeAssigned     SourceEventType = "grade-assigned"
	EventGradeRemoved      SourceEventType = "grade-removed"
	EventAttendanceMarked  SourceEventType = "attendance-marked"
	EventAttendanceRemoved SourceEventType = "attendance-removed"
	EventSubmissionDeleted SourceEventType = "submission-deleted"
)

// SourceEvent is an inbound notification that a user's score sources changed.
type SourceEvent struct {
	Type       SourceEventType `json:"type" validate:"required,oneof=grade-assigned grade-removed attendance-marked attendance-removed submission-deleted"`
	UserID     string          `json:"user_id" validate:"required"`
	Score      *int            `json:"score,omitempty"`
	Status     string          `json:"status,omitempty"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
}

type OutboundEventType string

const (
	EventTeamChanged  OutboundEventType = "team-changed"
	EventScoreUpdated OutboundEventType = "score-updated"
)

type OutboundEvent struct {
	Type       OutboundEventType `json:"type"`
	TeamID     string            `json:"team_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	TotalScore *int              `json:"total_score,omitempty"`
	At         time.Time         `json:"at"`
}
