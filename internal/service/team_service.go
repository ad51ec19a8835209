package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

// TeamService is the membership ledger. Team rows are the source of truth;
// users.team_id is written only here, in the same transaction as team_members.
type TeamService struct {
	tx db.Transactor

	users     repository.UserRepository
	teams     repository.TeamRepository
	members   repository.MemberRepository
	allocator *ResourceService
	events    EventPublisher

	timeout time.Duration
	newID   func() string
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx:      tx,
		events:  NopPublisher{},
		timeout: defaultOpTimeout,
		newID:   uuid.NewString,
	}
}

func (t *TeamService) CreateTeam(ctx context.Context, leaderID, name, description string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("team_name", name), zap.String("leader_id", leaderID))

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewError(ErrorCodeInvalidBody, "team name is required")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		user, err := t.users.GetForUpdate(txCtx, leaderID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if err != nil {
			return internalError("failed to lock user", err)
		}

		taken, err := t.teams.NameTaken(txCtx, name, "")
		if err != nil {
			return internalError("failed to check team name", err)
		}
		if taken {
			l.Warn("team name already taken", zap.String("team_name", name))
			return NewError(ErrorCodeDuplicateName, "team name already exists")
		}

		if user.TeamID != nil {
			l.Warn("user already has a team", zap.String("user_id", leaderID), zap.String("team_id", *user.TeamID))
			return NewError(ErrorCodeAlreadyTeamed, "user already belongs to a team")
		}

		team := &repository.Team{
			ID:          t.newID(),
			Name:        name,
			Description: description,
			LeaderID:    leaderID,
			MaxMembers:  model.MaxTeamMembers,
			IsActive:    true,
		}
		err = t.teams.Create(txCtx, team)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeDuplicateName, "team name already exists")
		}
		if err != nil {
			return internalError("failed to create team", err)
		}

		leader := &repository.Member{TeamID: team.ID, UserID: leaderID, Username: user.Username, Role: model.RoleLeader}
		err = t.members.Add(txCtx, leader)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeAlreadyTeamed, "user already belongs to a team")
		}
		if err != nil {
			return internalError("failed to add leader", err)
		}

		if err = t.users.SetTeam(txCtx, leaderID, &team.ID); err != nil {
			return internalError("failed to set user team", err)
		}

		members := []*repository.Member{leader}
		if err = verifyMembership(team, members); err != nil {
			return internalError("team invariant violated", err)
		}

		res = toModelTeam(team, members)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("create_team", serviceErr)
	if serviceErr != nil {
		l.Warn("create team failed", zap.String("team_name", name), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	l.Debug("team created", zap.String("team_id", res.ID))
	publish(ctx, t.events, teamChanged(res.ID))
	return res, nil
}

func (t *TeamService) JoinTeam(ctx context.Context, teamID, userID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("joining team", zap.String("team_id", teamID), zap.String("user_id", userID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// Lock order: team row, then user row.
		team, err := t.teams.GetForUpdate(txCtx, teamID)
		if errors.Is(err, repository.ErrMalformedID) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return internalError("failed to lock team", err)
		}

		user, uerr := t.users.GetForUpdate(txCtx, userID)
		if errors.Is(uerr, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if uerr != nil {
			return internalError("failed to lock user", uerr)
		}
		if user.TeamID != nil {
			return NewError(ErrorCodeAlreadyTeamed, "user already belongs to a team")
		}

		if team == nil || !team.IsActive {
			return NewError(ErrorCodeNotFound, "team not found")
		}

		members, err := t.members.List(txCtx, teamID)
		if err != nil {
			return internalError("failed to list members", err)
		}
		if len(members) >= team.MaxMembers {
			return NewError(ErrorCodeFull, "team is full")
		}
		if findMember(members, userID) != nil {
			return NewError(ErrorCodeAlreadyMember, "user is already a member")
		}

		member := &repository.Member{TeamID: teamID, UserID: userID, Username: user.Username, Role: model.RoleMember}
		err = t.members.Add(txCtx, member)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeAlreadyTeamed, "user already belongs to a team")
		}
		if err != nil {
			return internalError("failed to add member", err)
		}

		if err = t.users.SetTeam(txCtx, userID, &teamID); err != nil {
			return internalError("failed to set user team", err)
		}

		members = append(members, member)
		if err = verifyMembership(team, members); err != nil {
			return internalError("team invariant violated", err)
		}

		res = toModelTeam(team, members)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("join_team", serviceErr)
	if serviceErr != nil {
		l.Warn("join team failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	publish(ctx, t.events, teamChanged(teamID))
	return res, nil
}

// LeaveTeam removes userID from the team. A leader with remaining members must
// name a successor; a sole leader dissolves the team, in which case the
// returned team is nil.
func (t *TeamService) LeaveTeam(ctx context.Context, teamID, userID string, transferTo *string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("leaving team", zap.String("team_id", teamID), zap.String("user_id", userID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, members, err := t.lockActiveTeam(txCtx, teamID)
		if err != nil {
			return err
		}

		leaver := findMember(members, userID)
		if leaver == nil {
			return NewError(ErrorCodeNotMember, "user is not a member of this team")
		}
		if _, err = t.users.GetForUpdate(txCtx, userID); err != nil {
			return internalError("failed to lock user", err)
		}

		remaining := withoutMember(members, userID)

		switch {
		case leaver.Role == model.RoleLeader && len(remaining) > 0 && transferTo == nil:
			return NewError(ErrorCodeLeadershipTransferRequired, "leader must transfer leadership before leaving")

		case leaver.Role == model.RoleLeader && len(remaining) > 0:
			successor := findMember(remaining, *transferTo)
			if successor == nil {
				return NewError(ErrorCodeInvalidTransferTarget, "transfer target is not another member of this team")
			}

			if err = t.members.Remove(txCtx, teamID, userID); err != nil {
				return internalError("failed to remove member", err)
			}
			if err = t.members.SetRole(txCtx, teamID, successor.UserID, model.RoleLeader); err != nil {
				return internalError("failed to promote successor", err)
			}
			team, err = t.teams.Patch(txCtx, &repository.TeamPatch{ID: teamID, LeaderID: &successor.UserID})
			if err != nil {
				return internalError("failed to update leader", err)
			}
			successor.Role = model.RoleLeader

		case leaver.Role == model.RoleLeader:
			if err = t.members.Remove(txCtx, teamID, userID); err != nil {
				return internalError("failed to remove member", err)
			}
			if err = t.deactivate(txCtx, team); err != nil {
				return err
			}
			if err = t.users.SetTeam(txCtx, userID, nil); err != nil {
				return internalError("failed to clear user team", err)
			}
			res = nil
			return nil

		default:
			if err = t.members.Remove(txCtx, teamID, userID); err != nil {
				return internalError("failed to remove member", err)
			}
		}

		if err = t.users.SetTeam(txCtx, userID, nil); err != nil {
			return internalError("failed to clear user team", err)
		}

		if err = verifyMembership(team, remaining); err != nil {
			return internalError("team invariant violated", err)
		}
		res = toModelTeam(team, remaining)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("leave_team", serviceErr)
	if serviceErr != nil {
		l.Warn("leave team failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	if res == nil {
		l.Info("team dissolved", zap.String("team_id", teamID))
	}
	publish(ctx, t.events, teamChanged(teamID))
	return res, nil
}

func (t *TeamService) RemoveMember(ctx context.Context, teamID, actingLeaderID, memberID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("removing member", zap.String("team_id", teamID), zap.String("member_id", memberID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, members, err := t.lockActiveTeam(txCtx, teamID)
		if err != nil {
			return err
		}

		leader := leaderOf(members)
		if leader == nil || leader.UserID != actingLeaderID {
			return NewError(ErrorCodeForbidden, "only the team leader can remove members")
		}
		if memberID == leader.UserID {
			return NewError(ErrorCodeCannotRemoveLeader, "leader cannot be removed")
		}
		if findMember(members, memberID) == nil {
			return NewError(ErrorCodeNotMember, "user is not a member of this team")
		}

		if _, err = t.users.GetForUpdate(txCtx, memberID); err != nil {
			return internalError("failed to lock user", err)
		}
		if err = t.members.Remove(txCtx, teamID, memberID); err != nil {
			return internalError("failed to remove member", err)
		}
		if err = t.users.SetTeam(txCtx, memberID, nil); err != nil {
			return internalError("failed to clear user team", err)
		}

		remaining := withoutMember(members, memberID)
		if err = verifyMembership(team, remaining); err != nil {
			return internalError("team invariant violated", err)
		}
		res = toModelTeam(team, remaining)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("remove_member", serviceErr)
	if serviceErr != nil {
		l.Warn("remove member failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	publish(ctx, t.events, teamChanged(teamID))
	return res, nil
}

// TransferLeadership hands the leader role to another member; the previous
// leader stays on the team as a member.
func (t *TeamService) TransferLeadership(ctx context.Context, teamID, actingLeaderID, newLeaderID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("transferring leadership", zap.String("team_id", teamID), zap.String("new_leader_id", newLeaderID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, members, err := t.lockActiveTeam(txCtx, teamID)
		if err != nil {
			return err
		}

		leader := leaderOf(members)
		if leader == nil || leader.UserID != actingLeaderID {
			return NewError(ErrorCodeForbidden, "only the team leader can transfer leadership")
		}
		successor := findMember(members, newLeaderID)
		if successor == nil || successor.UserID == leader.UserID {
			return NewError(ErrorCodeInvalidTransferTarget, "transfer target is not another member of this team")
		}

		// Demote first: a team may hold only one leader row at any time.
		if err = t.members.SetRole(txCtx, teamID, leader.UserID, model.RoleMember); err != nil {
			return internalError("failed to demote leader", err)
		}
		if err = t.members.SetRole(txCtx, teamID, successor.UserID, model.RoleLeader); err != nil {
			return internalError("failed to promote successor", err)
		}
		team, err = t.teams.Patch(txCtx, &repository.TeamPatch{ID: teamID, LeaderID: &successor.UserID})
		if err != nil {
			return internalError("failed to update leader", err)
		}

		leader.Role = model.RoleMember
		successor.Role = model.RoleLeader
		if err = verifyMembership(team, members); err != nil {
			return internalError("team invariant violated", err)
		}
		res = toModelTeam(team, members)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("transfer_leadership", serviceErr)
	if serviceErr != nil {
		l.Warn("transfer leadership failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	publish(ctx, t.events, teamChanged(teamID))
	return res, nil
}

// DisbandTeam deactivates the team, clears every member's team reference and
// releases the selected problem statement.
func (t *TeamService) DisbandTeam(ctx context.Context, teamID, actingLeaderID string) *Error {
	l := logger.FromContext(ctx)
	l.Info("disbanding team", zap.String("team_id", teamID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, members, err := t.lockActiveTeam(txCtx, teamID)
		if err != nil {
			return err
		}

		leader := leaderOf(members)
		if leader == nil || leader.UserID != actingLeaderID {
			return NewError(ErrorCodeForbidden, "only the team leader can disband the team")
		}

		userIDs := make([]string, 0, len(members))
		for _, m := range members {
			userIDs = append(userIDs, m.UserID)
		}
		slices.Sort(userIDs)

		for _, id := range userIDs {
			if _, err = t.users.GetForUpdate(txCtx, id); err != nil {
				return internalError("failed to lock user", err)
			}
		}

		if _, err = t.members.RemoveAll(txCtx, teamID); err != nil {
			return internalError("failed to remove members", err)
		}
		for _, id := range userIDs {
			if err = t.users.SetTeam(txCtx, id, nil); err != nil {
				return internalError("failed to clear user team", err)
			}
		}

		return t.deactivate(txCtx, team)
	})

	serviceErr := toServiceError(err)
	observe("disband_team", serviceErr)
	if serviceErr != nil {
		l.Warn("disband team failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return serviceErr
	}

	publish(ctx, t.events, teamChanged(teamID))
	return nil
}

// UpdateTeam applies a leader-only patch. Rename and problem statement
// selection commit together or not at all.
func (t *TeamService) UpdateTeam(ctx context.Context, teamID, actingLeaderID string, patch *model.TeamPatch) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("updating team", zap.String("team_id", teamID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var res *model.Team
	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		team, members, err := t.lockActiveTeam(txCtx, teamID)
		if err != nil {
			return err
		}

		leader := leaderOf(members)
		if leader == nil || leader.UserID != actingLeaderID {
			return NewError(ErrorCodeForbidden, "only the team leader can update the team")
		}

		repoPatch := &repository.TeamPatch{ID: teamID, Description: patch.Description}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return NewError(ErrorCodeInvalidBody, "team name is required")
			}
			taken, err := t.teams.NameTaken(txCtx, name, teamID)
			if err != nil {
				return internalError("failed to check team name", err)
			}
			if taken {
				return NewError(ErrorCodeDuplicateName, "team name already exists")
			}
			repoPatch.Name = &name
		}

		if repoPatch.Name != nil || repoPatch.Description != nil {
			updated, err := t.teams.Patch(txCtx, repoPatch)
			if errors.Is(err, repository.ErrAlreadyExists) {
				return NewError(ErrorCodeDuplicateName, "team name already exists")
			}
			if err != nil {
				return internalError("failed to update team", err)
			}
			team = updated
		}

		if patch.ResourceID != nil {
			if err = t.allocator.selectLocked(txCtx, team, *patch.ResourceID); err != nil {
				return err
			}
		}

		res = toModelTeam(team, members)
		return nil
	})

	serviceErr := toServiceError(err)
	observe("update_team", serviceErr)
	if serviceErr != nil {
		l.Warn("update team failed", zap.String("team_id", teamID), zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	publish(ctx, t.events, teamChanged(teamID))
	return res, nil
}

func (t *TeamService) GetTeam(ctx context.Context, teamID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", teamID))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	team, err := t.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !team.IsActive) {
		l.Warn("team not found", zap.String("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, internalError("failed to get team", err)
	}

	members, err := t.members.List(ctx, teamID)
	if err != nil {
		l.Error("failed to get team members", zap.String("team_id", teamID), zap.Error(err))
		return nil, internalError("failed to get team members", err)
	}

	return toModelTeam(team, members), nil
}

func (t *TeamService) ListTeams(ctx context.Context) ([]*model.Team, *Error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	teams, err := t.teams.ListActive(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list teams", zap.Error(err))
		return nil, internalError("failed to list teams", err)
	}

	res := make([]*model.Team, 0, len(teams))
	for _, team := range teams {
		members, err := t.members.List(ctx, team.ID)
		if err != nil {
			return nil, internalError("failed to get team members", err)
		}
		res = append(res, toModelTeam(team, members))
	}
	return res, nil
}

func (t *TeamService) GetUserTeam(ctx context.Context, userID string) (*model.Team, *Error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	user, err := t.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, internalError("failed to get user", err)
	}
	if user.TeamID == nil {
		return nil, NewError(ErrorCodeNotInTeam, "user has no team")
	}
	return t.GetTeam(ctx, *user.TeamID)
}

// lockActiveTeam locks the team row and loads its members. Inactive teams are
// reported as missing.
func (t *TeamService) lockActiveTeam(txCtx context.Context, teamID string) (*repository.Team, []*repository.Member, error) {
	team, err := t.teams.GetForUpdate(txCtx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		return nil, nil, internalError("failed to lock team", err)
	}
	if !team.IsActive {
		return nil, nil, NewError(ErrorCodeNotFound, "team not found")
	}

	members, err := t.members.List(txCtx, teamID)
	if err != nil {
		return nil, nil, internalError("failed to list members", err)
	}
	return team, members, nil
}

// deactivate soft-deletes the team and releases any held allocation.
func (t *TeamService) deactivate(txCtx context.Context, team *repository.Team) error {
	if err := t.allocator.releaseLocked(txCtx, team); err != nil {
		return err
	}

	inactive := false
	if _, err := t.teams.Patch(txCtx, &repository.TeamPatch{ID: team.ID, IsActive: &inactive}); err != nil {
		return internalError("failed to deactivate team", err)
	}
	team.IsActive = false
	return nil
}

func (t *TeamService) WithUserRepo(r repository.UserRepository) *TeamService {
	t.users = r
	return t
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}

func (t *TeamService) WithMemberRepo(r repository.MemberRepository) *TeamService {
	t.members = r
	return t
}

func (t *TeamService) WithAllocator(a *ResourceService) *TeamService {
	t.allocator = a
	return t
}

func (t *TeamService) WithPublisher(p EventPublisher) *TeamService {
	t.events = p
	return t
}

func (t *TeamService) WithTimeout(d time.Duration) *TeamService {
	if d > 0 {
		t.timeout = d
	}
	return t
}

func (t *TeamService) WithIDGenerator(fn func() string) *TeamService {
	t.newID = fn
	return t
}
