package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type VoteService struct {
	tx db.Transactor

	users repository.UserRepository
	teams repository.TeamRepository
	votes repository.VoteRepository

	timeout time.Duration
	newID   func() string
}

func NewVoteService(tx db.Transactor) *VoteService {
	return &VoteService{
		tx:      tx,
		timeout: defaultOpTimeout,
		newID:   uuid.NewString,
	}
}

// SubmitVote records a new rating of teamID by voterID. The voter row is read
// with a share lock in the same transaction, so a concurrent join cannot slip
// a self-vote past the check.
func (v *VoteService) SubmitVote(ctx context.Context, voterID, teamID string, rating int, comment string) (*model.Vote, *Error) {
	l := logger.FromContext(ctx)
	l.Info("submitting vote", zap.String("voter_id", voterID), zap.String("team_id", teamID))

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var res *repository.Vote
	err := v.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		voter, err := v.users.GetForShare(txCtx, voterID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "voter not found")
		}
		if err != nil {
			return internalError("failed to read voter", err)
		}

		if voter.TeamID == nil {
			return NewError(ErrorCodeNotInTeam, "voter must belong to a team")
		}
		if *voter.TeamID == teamID {
			return NewError(ErrorCodeSelfVote, "cannot vote for your own team")
		}
		if verr := validateVote(rating, comment); verr != nil {
			return verr
		}

		team, err := v.teams.Get(txCtx, teamID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !team.IsActive) {
			return NewError(ErrorCodeNotFound, "team not found")
		}
		if err != nil {
			return internalError("failed to read team", err)
		}

		vote := &repository.Vote{
			ID:      v.newID(),
			VoterID: voterID,
			TeamID:  teamID,
			Rating:  rating,
			Comment: strings.TrimSpace(comment),
		}
		err = v.votes.Create(txCtx, vote)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeDuplicateVote, "vote already submitted, update it instead")
		}
		if err != nil {
			return internalError("failed to create vote", err)
		}

		res = vote
		return nil
	})

	serviceErr := toServiceError(err)
	observe("submit_vote", serviceErr)
	if serviceErr != nil {
		l.Warn("submit vote failed", zap.String("voter_id", voterID), zap.String("team_id", teamID),
			zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	return toModelVote(res), nil
}

// UpdateVote overwrites rating and comment of an existing vote. Identity and
// creation time are preserved.
func (v *VoteService) UpdateVote(ctx context.Context, voterID, teamID string, rating int, comment string) (*model.Vote, *Error) {
	l := logger.FromContext(ctx)
	l.Info("updating vote", zap.String("voter_id", voterID), zap.String("team_id", teamID))

	if err := validateVote(rating, comment); err != nil {
		observe("update_vote", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vote, err := v.votes.Update(ctx, voterID, teamID, rating, strings.TrimSpace(comment))
	var serviceErr *Error
	switch {
	case errors.Is(err, repository.ErrNotFound):
		serviceErr = NewError(ErrorCodeNotFound, "vote not found")
	case err != nil:
		serviceErr = internalError("failed to update vote", err)
	}

	observe("update_vote", serviceErr)
	if serviceErr != nil {
		l.Warn("update vote failed", zap.String("voter_id", voterID), zap.String("team_id", teamID),
			zap.String("code", string(serviceErr.Code)), zap.Error(err))
		return nil, serviceErr
	}

	return toModelVote(vote), nil
}

func (v *VoteService) GetVote(ctx context.Context, voterID, teamID string) (*model.Vote, *Error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	vote, err := v.votes.Get(ctx, voterID, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "vote not found")
	}
	if err != nil {
		return nil, internalError("failed to get vote", err)
	}
	return toModelVote(vote), nil
}

func (v *VoteService) ListVoterVotes(ctx context.Context, voterID string) ([]*model.Vote, *Error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	votes, err := v.votes.ListByVoter(ctx, voterID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list votes", zap.String("voter_id", voterID), zap.Error(err))
		return nil, internalError("failed to list votes", err)
	}

	res := make([]*model.Vote, 0, len(votes))
	for _, vote := range votes {
		res = append(res, toModelVote(vote))
	}
	return res, nil
}

func (v *VoteService) TeamRating(ctx context.Context, teamID string) (*model.TeamRating, *Error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if _, err := v.teams.Get(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewError(ErrorCodeNotFound, "team not found")
		}
		return nil, internalError("failed to read team", err)
	}

	summary, err := v.votes.Summary(ctx, teamID)
	if err != nil {
		return nil, internalError("failed to summarise votes", err)
	}
	return &model.TeamRating{TeamID: teamID, Votes: summary.Votes, Average: summary.Average}, nil
}

// VoteCompletionStatus counts the voter's votes against every currently active
// team other than their own. Nothing is cached: the team set changes as teams
// disband.
func (v *VoteService) VoteCompletionStatus(ctx context.Context, voterID string) (*model.VoteCompletion, *Error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	voter, err := v.users.Get(ctx, voterID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "voter not found")
	}
	if err != nil {
		return nil, internalError("failed to read voter", err)
	}

	teams, err := v.teams.ListActive(ctx)
	if err != nil {
		return nil, internalError("failed to list teams", err)
	}
	votes, err := v.votes.ListByVoter(ctx, voterID)
	if err != nil {
		return nil, internalError("failed to list votes", err)
	}

	voted := make(map[string]struct{}, len(votes))
	for _, vote := range votes {
		voted[vote.TeamID] = struct{}{}
	}

	res := &model.VoteCompletion{VoterID: voterID}
	for _, team := range teams {
		if voter.TeamID != nil && *voter.TeamID == team.ID {
			continue
		}
		res.TotalCount++
		if _, ok := voted[team.ID]; ok {
			res.VotedCount++
		}
	}
	res.Complete = res.TotalCount > 0 && res.VotedCount == res.TotalCount
	return res, nil
}

func validateVote(rating int, comment string) *Error {
	if rating < model.MinRating || rating > model.MaxRating {
		return NewError(ErrorCodeInvalidRating, "rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" || utf8.RuneCountInString(comment) > model.MaxCommentLength {
		return NewError(ErrorCodeInvalidComment, "comment is required and must be at most 500 characters")
	}
	return nil
}

func toModelVote(v *repository.Vote) *model.Vote {
	return &model.Vote{
		ID:        v.ID,
		VoterID:   v.VoterID,
		TeamID:    v.TeamID,
		Rating:    v.Rating,
		Comment:   v.Comment,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func (v *VoteService) WithUserRepo(r repository.UserRepository) *VoteService {
	v.users = r
	return v
}

func (v *VoteService) WithTeamRepo(r repository.TeamRepository) *VoteService {
	v.teams = r
	return v
}

func (v *VoteService) WithVoteRepo(r repository.VoteRepository) *VoteService {
	v.votes = r
	return v
}

func (v *VoteService) WithTimeout(d time.Duration) *VoteService {
	if d > 0 {
		v.timeout = d
	}
	return v
}

func (v *VoteService) WithIDGenerator(fn func() string) *VoteService {
	v.newID = fn
	return v
}
