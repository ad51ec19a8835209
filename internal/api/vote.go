package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

// Rating and comment bounds are checked by the vote ledger.
type voteRequest struct {
	TeamID  string `json:"team_id" validate:"required"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) SubmitVote(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req voteRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("submitting vote", zap.String("team_id", req.TeamID), zap.Int("rating", req.Rating))

	vote, err := h.vote.SubmitVote(e.Request().Context(), actorFrom(e).UserID, req.TeamID, req.Rating, req.Comment)
	if err != nil {
		l.Error("failed to submit vote", zap.String("team_id", req.TeamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, vote)
}

func (h *Handler) UpdateVote(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req voteRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("updating vote", zap.String("team_id", req.TeamID), zap.Int("rating", req.Rating))

	vote, err := h.vote.UpdateVote(e.Request().Context(), actorFrom(e).UserID, req.TeamID, req.Rating, req.Comment)
	if err != nil {
		l.Error("failed to update vote", zap.String("team_id", req.TeamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, vote)
}

func (h *Handler) ListMyVotes(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	votes, err := h.vote.ListVoterVotes(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		l.Error("failed to list votes", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, votes)
}

func (h *Handler) VoteStatus(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	status, err := h.vote.VoteCompletionStatus(e.Request().Context(), actorFrom(e).UserID)
	if err != nil {
		l.Error("failed to get vote status", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, status)
}

func (h *Handler) TeamRating(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	rating, err := h.vote.TeamRating(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team rating", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, rating)
}
