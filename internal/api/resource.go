package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

type selectResourceRequest struct {
	ResourceID string `json:"problem_statement_id" validate:"required"`
}

type createResourceRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

func (h *Handler) ListResources(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	resources, err := h.resource.ListResources(e.Request().Context())
	if err != nil {
		l.Error("failed to list resources", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, resources)
}

func (h *Handler) GetResource(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	resourceID := e.Param("id")

	resource, err := h.resource.GetResource(e.Request().Context(), resourceID)
	if err != nil {
		l.Error("failed to get resource", zap.String("resource_id", resourceID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, resource)
}

func (h *Handler) CreateResource(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req createResourceRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("creating resource", zap.String("title", req.Title))

	resource, err := h.resource.CreateResource(e.Request().Context(), req.Title, req.Description)
	if err != nil {
		l.Error("failed to create resource", zap.String("title", req.Title), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, resource)
}

func (h *Handler) SelectResource(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")

	var req selectResourceRequest
	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("selecting resource", zap.String("team_id", teamID), zap.String("resource_id", req.ResourceID))

	if err := h.resource.SelectResource(e.Request().Context(), actorFrom(e).UserID, teamID, req.ResourceID); err != nil {
		l.Error("failed to select resource",
			zap.String("team_id", teamID),
			zap.String("resource_id", req.ResourceID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) ReleaseResource(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := e.Param("id")
	l.Info("releasing resource", zap.String("team_id", teamID))

	if err := h.resource.ReleaseResource(e.Request().Context(), actorFrom(e).UserID, teamID); err != nil {
		l.Error("failed to release resource", zap.String("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}
