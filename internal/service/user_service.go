package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type UserService struct {
	tx db.Transactor

	users repository.UserRepository

	timeout time.Duration
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{tx: tx, timeout: defaultOpTimeout}
}

// SyncUser provisions or renames an identity. Team membership is never
// touched here; only the membership ledger writes it.
func (u *UserService) SyncUser(ctx context.Context, userID, username string) (*model.User, *Error) {
	l := logger.FromContext(ctx)
	l.Info("syncing user", zap.String("user_id", userID))

	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" || username == "" {
		return nil, NewError(ErrorCodeInvalidBody, "user id and username are required")
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var res *repository.User
	err := u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := u.users.Upsert(txCtx, &repository.User{ID: userID, Username: username}); err != nil {
			return internalError("failed to upsert user", err)
		}

		user, err := u.users.Get(txCtx, userID)
		if err != nil {
			return internalError("failed to get user", err)
		}
		res = user
		return nil
	})

	serviceErr := toServiceError(err)
	observe("sync_user", serviceErr)
	if serviceErr != nil {
		l.Error("sync user failed", zap.String("user_id", userID), zap.Error(err))
		return nil, serviceErr
	}

	return toModelUser(res), nil
}

func (u *UserService) GetUser(ctx context.Context, userID string) (*model.User, *Error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	user, err := u.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, internalError("failed to get user", err)
	}
	return toModelUser(user), nil
}

func toModelUser(u *repository.User) *model.User {
	return &model.User{
		ID:       u.ID,
		Username: u.Username,
		TeamID:   u.TeamID,
	}
}

func (u *UserService) WithUserRepo(userRepo repository.UserRepository) *UserService {
	u.users = userRepo
	return u
}

func (u *UserService) WithTimeout(d time.Duration) *UserService {
	if d > 0 {
		u.timeout = d
	}
	return u
}
