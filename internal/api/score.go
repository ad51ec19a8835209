package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/service"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type syncUserRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Username string `json:"username" validate:"required"`
}

func (h *Handler) GetScore(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	userID := e.Param("userId")

	score, err := h.score.GetScore(e.Request().Context(), userID)
	if err != nil {
		l.Error("failed to get score", zap.String("user_id", userID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, score)
}

func (h *Handler) RecomputeScore(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	userID := e.Param("userId")
	l.Info("recomputing score", zap.String("user_id", userID))

	score, err := h.score.RecomputeScore(e.Request().Context(), userID)
	if err != nil {
		l.Error("failed to recompute score", zap.String("user_id", userID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, score)
}

func (h *Handler) Leaderboard(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	query, err := leaderboardQuery(e)
	if err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	board, err := h.score.Leaderboard(e.Request().Context(), query)
	if err != nil {
		l.Error("failed to build leaderboard", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, board)
}

func leaderboardQuery(e echo.Context) (model.LeaderboardQuery, *service.Error) {
	var (
		query  model.LeaderboardQuery
		sort   string
		order  string
		teamID string
	)

	err := echo.QueryParamsBinder(e).
		String("sort", &sort).
		String("order", &order).
		String("team_id", &teamID).
		Bool("recompute", &query.Filter.Recompute).
		Int("limit", &query.Limit).
		Int("offset", &query.Offset).
		BindError()
	if err != nil {
		return query, service.NewError(service.ErrorCodeInvalidBody, "invalid query parameters")
	}

	switch order {
	case "", "desc":
	case "asc":
		query.Ascending = true
	default:
		return query, service.NewError(service.ErrorCodeInvalidBody, "order must be asc or desc")
	}

	query.Sort = model.LeaderboardSort(sort)
	if teamID != "" {
		query.Filter.TeamID = &teamID
	}
	return query, nil
}

func (h *Handler) IngestEvent(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var event model.SourceEvent
	if err := decodeRequest(e, &event); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("ingesting source event", zap.String("type", string(event.Type)), zap.String("user_id", event.UserID))

	score, err := h.score.HandleSourceEvent(e.Request().Context(), &event)
	if err != nil {
		l.Error("failed to handle source event", zap.String("user_id", event.UserID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, score)
}

func (h *Handler) SyncUser(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req syncUserRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("syncing user", zap.String("user_id", req.UserID))

	user, err := h.user.SyncUser(e.Request().Context(), req.UserID, req.Username)
	if err != nil {
		l.Error("failed to sync user", zap.String("user_id", req.UserID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}

func (h *Handler) GetUser(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	userID := e.Param("id")

	user, err := h.user.GetUser(e.Request().Context(), userID)
	if err != nil {
		l.Error("failed to get user", zap.String("user_id", userID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, user)
}
