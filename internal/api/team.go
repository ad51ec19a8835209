package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type leaveTeamRequest struct {
	TransferTo *string `json:"transfer_to,omitempty"`
}

type transferRequest struct {
	NewLeaderID string `json:"new_leader_id" validate:"required"`
}

func (h *Handler) CreateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req createTeamRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	actor := actorFrom(e)
	l.Info("creating team", zap.String("team_name", req.Name))

	team, err := h.team.CreateTeam(e.Request().Context(), actor.UserID, req.Name, req.Description)
	if err != nil {
		l.Error("failed to create team", zap.String("team_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) ListTeams(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teams, err := h.team.ListTeams(e.Request().Context())
	if err != nil {
		l.Error("failed to list teams", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, teams)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) UpdateTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var patch model.TeamPatch
	if err := decodeRequest(e, &patch); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("updating team", zap.String("team_id", teamID))

	team, err := h.team.UpdateTeam(e.Request().Context(), teamID, actorFrom(e).UserID, &patch)
	if err != nil {
		l.Error("failed to update team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) JoinTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")
	l.Info("joining team", zap.String("team_id", teamID))

	team, err := h.team.JoinTeam(e.Request().Context(), teamID, actorFrom(e).UserID)
	if err != nil {
		l.Error("failed to join team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) LeaveTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req leaveTeamRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("leaving team", zap.String("team_id", teamID))

	team, err := h.team.LeaveTeam(e.Request().Context(), teamID, actorFrom(e).UserID, req.TransferTo)
	if err != nil {
		l.Error("failed to leave team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	// The last member leaving dissolves the team.
	if team == nil {
		return e.NoContent(http.StatusNoContent)
	}
	return e.JSON(http.StatusOK, team)
}

func (h *Handler) RemoveMember(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, memberID := e.Param("id"), e.Param("userId")
	l.Info("removing member", zap.String("team_id", teamID), zap.String("member_id", memberID))

	team, err := h.team.RemoveMember(e.Request().Context(), teamID, actorFrom(e).UserID, memberID)
	if err != nil {
		l.Error("failed to remove member",
			zap.String("team_id", teamID),
			zap.String("member_id", memberID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) TransferLeadership(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req transferRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("transferring leadership", zap.String("team_id", teamID), zap.String("new_leader_id", req.NewLeaderID))

	team, err := h.team.TransferLeadership(e.Request().Context(), teamID, actorFrom(e).UserID, req.NewLeaderID)
	if err != nil {
		l.Error("failed to transfer leadership", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) DisbandTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")
	l.Info("disbanding team", zap.String("team_id", teamID))

	if err := h.team.DisbandTeam(e.Request().Context(), teamID, actorFrom(e).UserID); err != nil {
		l.Error("failed to disband team", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) GetUserTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	userID := actorFrom(e).UserID

	team, err := h.team.GetUserTeam(e.Request().Context(), userID)
	if err != nil {
		l.Error("failed to get user team", zap.String("user_id", userID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}
