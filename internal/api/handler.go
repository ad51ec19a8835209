package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yakoovad/cohort-engine/internal/auth"
	"github.com/yakoovad/cohort-engine/internal/service"
	"go.uber.org/zap"
)

// contentionRetryAfter is the hint, in seconds, sent with CONTENTION responses.
const contentionRetryAfter = 1

type Handler struct {
	team     *service.TeamService
	resource *service.ResourceService
	vote     *service.VoteService
	score    *service.ScoreService
	user     *service.UserService

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithResourceService(resource *service.ResourceService) *Handler {
	h.resource = resource
	return h
}

func (h *Handler) WithVoteService(vote *service.VoteService) *Handler {
	h.vote = vote
	return h
}

func (h *Handler) WithScoreService(score *service.ScoreService) *Handler {
	h.score = score
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(MetricsMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	userSecurity := e.Group("", AuthMiddleware(auth.TokenTypeUser, auth.TokenTypeAdmin))

	userSecurity.POST("/teams", h.CreateTeam)
	userSecurity.GET("/teams", h.ListTeams)
	userSecurity.GET("/teams/:id", h.GetTeam)
	userSecurity.PATCH("/teams/:id", h.UpdateTeam)
	userSecurity.POST("/teams/:id/join", h.JoinTeam)
	userSecurity.POST("/teams/:id/leave", h.LeaveTeam)
	userSecurity.POST("/teams/:id/members/:userId/remove", h.RemoveMember)
	userSecurity.POST("/teams/:id/transfer", h.TransferLeadership)
	userSecurity.POST("/teams/:id/disband", h.DisbandTeam)
	userSecurity.GET("/teams/:id/rating", h.TeamRating)
	userSecurity.POST("/teams/:id/resource", h.SelectResource)
	userSecurity.DELETE("/teams/:id/resource", h.ReleaseResource)
	userSecurity.GET("/users/me/team", h.GetUserTeam)
	userSecurity.GET("/users/:id", h.GetUser)

	userSecurity.GET("/resources", h.ListResources)
	userSecurity.GET("/resources/:id", h.GetResource)

	userSecurity.POST("/votes", h.SubmitVote)
	userSecurity.PUT("/votes", h.UpdateVote)
	userSecurity.GET("/votes/me", h.ListMyVotes)
	userSecurity.GET("/votes/me/status", h.VoteStatus)

	userSecurity.GET("/scores/:userId", h.GetScore)
	userSecurity.GET("/leaderboard", h.Leaderboard)

	adminSecurity := e.Group("", AuthMiddleware(auth.TokenTypeAdmin))

	adminSecurity.POST("/resources", h.CreateResource)
	adminSecurity.POST("/scores/:userId/recompute", h.RecomputeScore)
	adminSecurity.POST("/events", h.IngestEvent)
	adminSecurity.POST("/users/sync", h.SyncUser)
}

// statusFor maps an error category onto its HTTP status.
func statusFor(code service.ErrorCode) int {
	switch code {
	case service.ErrorCodeNotFound:
		return http.StatusNotFound
	case service.ErrorCodeForbidden:
		return http.StatusForbidden
	case service.ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case service.ErrorCodeAlreadyTeamed, service.ErrorCodeAlreadyMember, service.ErrorCodeNotMember,
		service.ErrorCodeFull, service.ErrorCodeDuplicateName, service.ErrorCodeAtCapacity,
		service.ErrorCodeNotInTeam, service.ErrorCodeSelfVote, service.ErrorCodeDuplicateVote,
		service.ErrorCodeLeadershipTransferRequired, service.ErrorCodeCannotRemoveLeader,
		service.ErrorCodeContention:
		return http.StatusConflict
	case service.ErrorCodeInvalidBody:
		return http.StatusBadRequest
	case service.ErrorCodeInvalidRating, service.ErrorCodeInvalidComment, service.ErrorCodeInvalidTransferTarget:
		return http.StatusUnprocessableEntity
	case service.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	case service.ErrorCodeSourceReadFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	if err.Code == service.ErrorCodeContention {
		e.Response().Header().Set("Retry-After", strconv.Itoa(contentionRetryAfter))
	}
	return writeError(e, statusFor(err.Code), err)
}

func writeError(e echo.Context, status int, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	return e.JSON(status, response)
}
