package api

import (
	"context"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	redis "github.com/redis/go-redis/v9"
)

type HealthChecker interface {
	HealthCheck() echo.HandlerFunc
}

type healthChecker struct {
	health *health.Health
}

func NewHealthChecker(version string, checks ...health.Config) (HealthChecker, error) {
	h, err := health.New(health.WithComponent(health.Component{Name: "cohort-engine", Version: version}))
	if err != nil {
		return nil, err
	}

	for _, check := range checks {
		if err = h.Register(check); err != nil {
			return nil, err
		}
	}

	return &healthChecker{
		health: h,
	}, nil
}

func (h *healthChecker) HealthCheck() echo.HandlerFunc {
	return echo.WrapHandler(h.health.Handler())
}

func PostgresCheck(pool *pgxpool.Pool) health.Config {
	return health.Config{
		Name:    "postgres",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// RedisCheck is non-critical: the engine keeps serving when only events are down.
func RedisCheck(client *redis.Client) health.Config {
	return health.Config{
		Name:      "redis",
		Timeout:   time.Second,
		SkipOnErr: true,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}
