package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/cohort-engine/internal/auth"
	"github.com/yakoovad/cohort-engine/internal/metrics"
	"github.com/yakoovad/cohort-engine/internal/service"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

const (
	loggerKey = "logger"
	actorKey  = "actor"
)

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			c.Set(loggerKey, reqLogger)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			latency := time.Since(start)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", latency),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			metrics.ObserveHTTPRequest(c.Request().Method, c.Path(), status, time.Since(start))
			return err
		}
	}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Type   auth.TokenType
}

func (a Actor) IsAdmin() bool {
	return a.Type == auth.TokenTypeAdmin
}

// AuthMiddleware accepts a bearer token whose type is one of allowed and
// stores the caller on the echo context.
func AuthMiddleware(allowed ...auth.TokenType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				return writeError(c, http.StatusUnauthorized, service.NewError(service.ErrorCodeUnauthorized, "missing bearer token"))
			}

			tokenType, subject, ok := auth.IsValidToken(token)
			if !ok {
				return writeError(c, http.StatusUnauthorized, service.NewError(service.ErrorCodeUnauthorized, "invalid token"))
			}
			if !slices.Contains(allowed, tokenType) {
				return writeError(c, http.StatusForbidden, service.NewError(service.ErrorCodeForbidden, "insufficient permissions"))
			}

			c.Set(actorKey, Actor{UserID: subject, Type: tokenType})

			ctx := c.Request().Context()
			l := logger.FromContext(ctx).With(zap.String("actor_id", subject))
			c.SetRequest(c.Request().WithContext(logger.WithLogger(ctx, l)))

			return next(c)
		}
	}
}

func actorFrom(c echo.Context) Actor {
	if a, ok := c.Get(actorKey).(Actor); ok {
		return a
	}
	return Actor{}
}

func GetLoggerFromContext(c echo.Context) *zap.Logger {
	if l, ok := c.Get(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
