package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 500
)

// ScoreService is the score aggregator. Cached scores live on the user row and
// are rebuilt from submissions and attendance on demand.
type ScoreService struct {
	tx db.Transactor

	users       repository.UserRepository
	submissions repository.SubmissionRepository
	attendance  repository.AttendanceRepository
	events      EventPublisher

	timeout time.Duration
}

func NewScoreService(tx db.Transactor) *ScoreService {
	return &ScoreService{
		tx:      tx,
		events:  NopPublisher{},
		timeout: defaultOpTimeout,
	}
}

// RecomputeScore rebuilds and caches the user's score. When either source
// read fails the cached score is left as it was.
func (s *ScoreService) RecomputeScore(ctx context.Context, userID string) (*model.ScoreSnapshot, *Error) {
	l := logger.FromContext(ctx)
	l.Info("recomputing score", zap.String("user_id", userID))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snapshot, serviceErr := s.recompute(ctx, userID)
	observe("recompute_score", serviceErr)
	if serviceErr != nil {
		l.Warn("recompute score failed", zap.String("user_id", userID), zap.String("code", string(serviceErr.Code)), zap.Error(serviceErr.Unwrap()))
		return nil, serviceErr
	}

	l.Debug("score recomputed", zap.String("user_id", userID), zap.Int("total_score", snapshot.TotalScore))
	publish(ctx, s.events, scoreUpdated(userID, snapshot.TotalScore))
	return snapshot, nil
}

// HandleSourceEvent reacts to a collaborator notification by recomputing the
// affected user.
func (s *ScoreService) HandleSourceEvent(ctx context.Context, event *model.SourceEvent) (*model.ScoreSnapshot, *Error) {
	switch event.Type {
	case model.EventGradeAssigned, model.EventGradeRemoved,
		model.EventAttendanceMarked, model.EventAttendanceRemoved,
		model.EventSubmissionDeleted:
	default:
		return nil, NewError(ErrorCodeInvalidBody, "unknown event type")
	}
	if event.UserID == "" {
		return nil, NewError(ErrorCodeInvalidBody, "user_id is required")
	}

	logger.FromContext(ctx).Debug("source event received", zap.String("type", string(event.Type)), zap.String("user_id", event.UserID))
	return s.RecomputeScore(ctx, event.UserID)
}

func (s *ScoreService) GetScore(ctx context.Context, userID string) (*model.ScoreSnapshot, *Error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, internalError("failed to get user", err)
	}
	return toSnapshot(user), nil
}

// Leaderboard ranks users matching the filter. With Filter.Recompute every
// listed user is recomputed first; a user whose sources cannot be read keeps
// the cached score.
func (s *ScoreService) Leaderboard(ctx context.Context, query model.LeaderboardQuery) (*model.Leaderboard, *Error) {
	l := logger.FromContext(ctx)

	key, serviceErr := sortKey(query.Sort)
	if serviceErr != nil {
		return nil, serviceErr
	}
	if query.Offset < 0 || query.Limit < 0 {
		return nil, NewError(ErrorCodeInvalidBody, "limit and offset must not be negative")
	}
	limit := query.Limit
	if limit == 0 {
		limit = defaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.users.List(ctx, repository.UserFilter{TeamID: query.Filter.TeamID})
	if errors.Is(err, repository.ErrNotFound) {
		// A malformed team id has no members.
		return &model.Leaderboard{Entries: []*model.LeaderboardEntry{}}, nil
	}
	if err != nil {
		l.Error("failed to list users", zap.Error(err))
		return nil, internalError("failed to list users", err)
	}

	snapshots := make([]*model.ScoreSnapshot, 0, len(users))
	for _, user := range users {
		snapshot := toSnapshot(user)
		if query.Filter.Recompute {
			fresh, serviceErr := s.RecomputeScore(ctx, user.ID)
			switch {
			case serviceErr == nil:
				snapshot = fresh
			case serviceErr.Code == ErrorCodeSourceReadFailure:
				l.Warn("using cached score", zap.String("user_id", user.ID), zap.Error(serviceErr.Unwrap()))
			default:
				return nil, serviceErr
			}
		}
		snapshots = append(snapshots, snapshot)
	}

	slices.SortStableFunc(snapshots, func(a, b *model.ScoreSnapshot) int {
		c := cmp.Compare(key(a), key(b))
		if !query.Ascending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	entries := make([]*model.LeaderboardEntry, 0, len(snapshots))
	for i, snapshot := range snapshots {
		rank := i + 1
		if i > 0 && key(snapshot) == key(snapshots[i-1]) {
			rank = entries[i-1].Rank
		}
		entries = append(entries, &model.LeaderboardEntry{Rank: rank, ScoreSnapshot: snapshot})
	}

	start := min(query.Offset, len(entries))
	end := min(start+limit, len(entries))
	return &model.Leaderboard{Total: len(entries), Entries: entries[start:end]}, nil
}

func (s *ScoreService) recompute(ctx context.Context, userID string) (*model.ScoreSnapshot, *Error) {
	var res *model.ScoreSnapshot
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		user, err := s.users.GetForUpdate(txCtx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if err != nil {
			return internalError("failed to lock user", err)
		}

		present, err := s.attendance.CountPresent(txCtx, userID)
		if err != nil {
			return sourceReadFailure("failed to read attendance", err)
		}
		graded, err := s.submissions.SumGradedScores(txCtx, userID)
		if err != nil {
			return sourceReadFailure("failed to read submissions", err)
		}

		snapshot := model.NewScoreSnapshot(userID, present, graded)
		updated, err := s.users.SetScore(txCtx, &repository.UserScore{
			UserID:           userID,
			AttendancePoints: snapshot.AttendancePoints,
			TaskPoints:       snapshot.TaskPoints,
			TotalScore:       snapshot.TotalScore,
		})
		if err != nil {
			return internalError("failed to store score", err)
		}

		updated.Username = cmp.Or(updated.Username, user.Username)
		res = toSnapshot(updated)
		return nil
	})
	return res, toServiceError(err)
}

func sourceReadFailure(message string, err error) *Error {
	return &Error{Code: ErrorCodeSourceReadFailure, Message: message, cause: err}
}

func sortKey(sort model.LeaderboardSort) (func(*model.ScoreSnapshot) int, *Error) {
	switch sort {
	case "", model.SortByTotal:
		return func(s *model.ScoreSnapshot) int { return s.TotalScore }, nil
	case model.SortByTasks:
		return func(s *model.ScoreSnapshot) int { return s.TaskPoints }, nil
	case model.SortByAttendance:
		return func(s *model.ScoreSnapshot) int { return s.AttendancePoints }, nil
	default:
		return nil, NewError(ErrorCodeInvalidBody, "sort must be one of total, tasks, attendance")
	}
}

func toSnapshot(u *repository.User) *model.ScoreSnapshot {
	return &model.ScoreSnapshot{
		UserID:           u.ID,
		Username:         u.Username,
		TeamID:           u.TeamID,
		AttendancePoints: u.AttendancePoints,
		TaskPoints:       u.TaskPoints,
		TotalScore:       u.TotalScore,
		UpdatedAt:        u.ScoreUpdatedAt,
	}
}

func (s *ScoreService) WithUserRepo(r repository.UserRepository) *ScoreService {
	s.users = r
	return s
}

func (s *ScoreService) WithSubmissionRepo(r repository.SubmissionRepository) *ScoreService {
	s.submissions = r
	return s
}

func (s *ScoreService) WithAttendanceRepo(r repository.AttendanceRepository) *ScoreService {
	s.attendance = r
	return s
}

func (s *ScoreService) WithPublisher(p EventPublisher) *ScoreService {
	s.events = p
	return s
}

func (s *ScoreService) WithTimeout(d time.Duration) *ScoreService {
	if d > 0 {
		s.timeout = d
	}
	return s
}
