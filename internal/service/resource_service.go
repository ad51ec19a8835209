package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/metrics"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

// ResourceService is the capacity allocator for problem statements.
type ResourceService struct {
	tx db.Transactor

	teams     repository.TeamRepository
	resources repository.ResourceRepository
	events    EventPublisher

	timeout time.Duration
	newID   func() string
}

func NewResourceService(tx db.Transactor) *ResourceService {
	return &ResourceService{
		tx:      tx,
		events:  NopPublisher{},
		timeout: defaultOpTimeout,
		newID:   uuid.NewString,
	}
}

// SelectResource binds the team to resourceID, moving it off any previously
// selected statement. Only the team leader may select.
func (r *ResourceService) SelectResource(ctx context.Context, actingUserID, teamID, resourceID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("selecting resource", zap.String("team_id", teamID), zap.String("resource_id", resourceID))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := r.lockLedTeam(txCtx, actingUserID, teamID)
		if err != nil {
			return err
		}
		return r.selectLocked(txCtx, team, resourceID)
	})

	serviceErr := toServiceError(err)
	observe("select_resource", serviceErr)
	if serviceErr != nil {
		l.Warn("select resource failed", zap.String("team_id", teamID), zap.String("resource_id", resourceID),
			zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return serviceErr
	}

	publish(ctx, r.events, teamChanged(teamID))
	return nil
}

// ReleaseResource drops the team's selection. Releasing a team without a
// selection is a no-op.
func (r *ResourceService) ReleaseResource(ctx context.Context, actingUserID, teamID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("releasing resource", zap.String("team_id", teamID))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	released := false
	err := r.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, err := r.lockLedTeam(txCtx, actingUserID, teamID)
		if err != nil {
			return err
		}
		released = team.ResourceID != nil
		return r.releaseLocked(txCtx, team)
	})

	serviceErr := toServiceError(err)
	observe("release_resource", serviceErr)
	if serviceErr != nil {
		l.Warn("release resource failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return serviceErr
	}

	if released {
		publish(ctx, r.events, teamChanged(teamID))
	}
	return nil
}

func (r *ResourceService) CreateResource(ctx context.Context, title, description string) (*model.Resource, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating resource", zap.String("title", title))

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewError(ErrorCodeInvalidBody, "title is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := &repository.Resource{
		ID:          r.newID(),
		Title:       title,
		Description: description,
		MaxTeams:    model.MaxTeamsPerResource,
	}
	if err := r.resources.Create(ctx, res); err != nil {
		l.Error("failed to create resource", zap.Error(err))
		return nil, internalError("failed to create resource", err)
	}

	return toModelResource(res, []string{}), nil
}

func (r *ResourceService) GetResource(ctx context.Context, resourceID string) (*model.Resource, *Error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.resources.Get(ctx, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "problem statement not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get resource", zap.String("resource_id", resourceID), zap.Error(err))
		return nil, internalError("failed to get problem statement", err)
	}

	teams, err := r.teams.ListActiveByResource(ctx, resourceID)
	if err != nil {
		return nil, internalError("failed to list selecting teams", err)
	}
	return toModelResource(res, teams), nil
}

func (r *ResourceService) ListResources(ctx context.Context) ([]*model.Resource, *Error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.resources.List(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list resources", zap.Error(err))
		return nil, internalError("failed to list problem statements", err)
	}

	res := make([]*model.Resource, 0, len(list))
	for _, item := range list {
		teams, err := r.teams.ListActiveByResource(ctx, item.ID)
		if err != nil {
			return nil, internalError("failed to list selecting teams", err)
		}
		res = append(res, toModelResource(item, teams))
	}
	return res, nil
}

func (r *ResourceService) lockLedTeam(txCtx context.Context, actingUserID, teamID string) (*repository.Team, error) {
	team, err := r.teams.GetForUpdate(txCtx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		return nil, internalError("failed to lock team", err)
	}
	if !team.IsActive {
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if team.LeaderID != actingUserID {
		return nil, NewError(ErrorCodeForbidden, "only the team leader can change the problem statement")
	}
	return team, nil
}

// selectLocked must run inside a transaction holding the team row lock. The
// new statement is acquired before the old one is released, so a full target
// leaves the current selection untouched.
func (r *ResourceService) selectLocked(txCtx context.Context, team *repository.Team, resourceID string) error {
	if team.ResourceID != nil && *team.ResourceID == resourceID {
		return nil
	}

	_, err := r.resources.Acquire(txCtx, resourceID)
	switch {
	case errors.Is(err, repository.ErrAtCapacity):
		return NewError(ErrorCodeAtCapacity, "problem statement already selected by the maximum number of teams")
	case errors.Is(err, repository.ErrNotFound):
		return NewError(ErrorCodeNotFound, "problem statement not found")
	case err != nil:
		return internalError("failed to acquire problem statement", err)
	}

	if team.ResourceID != nil {
		if err = r.release(txCtx, *team.ResourceID); err != nil {
			return err
		}
	}

	if err = r.teams.SetResource(txCtx, team.ID, &resourceID); err != nil {
		return internalError("failed to bind problem statement", err)
	}
	team.ResourceID = &resourceID
	return nil
}

// releaseLocked must run inside a transaction holding the team row lock.
func (r *ResourceService) releaseLocked(txCtx context.Context, team *repository.Team) error {
	if team.ResourceID == nil {
		return nil
	}
	if err := r.release(txCtx, *team.ResourceID); err != nil {
		return err
	}
	if err := r.teams.SetResource(txCtx, team.ID, nil); err != nil {
		return internalError("failed to unbind problem statement", err)
	}
	team.ResourceID = nil
	return nil
}

func (r *ResourceService) release(txCtx context.Context, resourceID string) error {
	_, err := r.resources.Release(txCtx, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		// The ledger drifted: a team held a binding the counter never recorded.
		// The binding is still dropped so the team is not stuck.
		metrics.ObserveReleaseDrift()
		logger.FromContext(txCtx).Error("released resource had no allocation", zap.String("resource_id", resourceID))
		return nil
	}
	if err != nil {
		return internalError("failed to release problem statement", err)
	}
	return nil
}

func toModelResource(r *repository.Resource, teams []string) *model.Resource {
	return &model.Resource{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		MaxTeams:       r.MaxTeams,
		SelectedCount:  r.SelectedCount,
		SelectingTeams: teams,
	}
}

func (r *ResourceService) WithTeamRepo(repo repository.TeamRepository) *ResourceService {
	r.teams = repo
	return r
}

func (r *ResourceService) WithResourceRepo(repo repository.ResourceRepository) *ResourceService {
	r.resources = repo
	return r
}

func (r *ResourceService) WithPublisher(p EventPublisher) *ResourceService {
	r.events = p
	return r
}

func (r *ResourceService) WithTimeout(d time.Duration) *ResourceService {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func (r *ResourceService) WithIDGenerator(fn func() string) *ResourceService {
	r.newID = fn
	return r
}
