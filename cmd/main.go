package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/hellofresh/health-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/yakoovad/cohort-engine/internal/api"
	"github.com/yakoovad/cohort-engine/internal/auth"
	"github.com/yakoovad/cohort-engine/internal/config"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/events"
	"github.com/yakoovad/cohort-engine/internal/metrics"
	"github.com/yakoovad/cohort-engine/internal/repository"
	"github.com/yakoovad/cohort-engine/internal/service"
	"github.com/yakoovad/cohort-engine/migrations"
	"github.com/yakoovad/cohort-engine/pkg/logger"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting application", zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	auth.TokenSecretKey = cfg.Auth.TokenSecret

	if err = migrations.Up(ctx, cfg.Postgres.DSN()); err != nil {
		log.Fatal("failed to apply migrations", zap.Error(err))
	}

	pool, err := newPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	log.Info("database connection established")

	if err = metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("failed to register metrics", zap.Error(err))
	}

	transactor := db.NewPgxTransactor(pool,
		db.WithMaxAttempts(cfg.Engine.MaxTxAttempts),
		db.WithBackoff(cfg.Engine.RetryBackoff),
		db.WithRetryObserver(func(attempt int, err error) {
			metrics.ObserveTxRetry()
			log.Debug("retrying transaction", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	userRepo := repository.NewPgxUserRepository(pool)
	teamRepo := repository.NewPgxTeamRepository(pool)
	memberRepo := repository.NewPgxMemberRepository(pool)
	resourceRepo := repository.NewPgxResourceRepository(pool)
	voteRepo := repository.NewPgxVoteRepository(pool)
	submissionRepo := repository.NewPgxSubmissionRepository(pool)
	attendanceRepo := repository.NewPgxAttendanceRepository(pool)

	checks := []health.Config{api.PostgresCheck(pool)}

	var publisher service.EventPublisher = service.NopPublisher{}
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = events.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()

		publisher = events.NewRedisPublisher(ctx, redisClient, cfg.Redis.ChannelPrefix, cfg.Redis.OpTimeout)
		checks = append(checks, api.RedisCheck(redisClient))
		log.Info("redis event bus enabled", zap.String("addr", cfg.Redis.Addr))
	}

	timeout := cfg.Engine.OpTimeout

	resources := service.NewResourceService(transactor).
		WithTeamRepo(teamRepo).
		WithResourceRepo(resourceRepo).
		WithPublisher(publisher).
		WithTimeout(timeout)
	teams := service.NewTeamService(transactor).
		WithUserRepo(userRepo).
		WithTeamRepo(teamRepo).
		WithMemberRepo(memberRepo).
		WithAllocator(resources).
		WithPublisher(publisher).
		WithTimeout(timeout)
	votes := service.NewVoteService(transactor).
		WithUserRepo(userRepo).
		WithTeamRepo(teamRepo).
		WithVoteRepo(voteRepo).
		WithTimeout(timeout)
	scores := service.NewScoreService(transactor).
		WithUserRepo(userRepo).
		WithSubmissionRepo(submissionRepo).
		WithAttendanceRepo(attendanceRepo).
		WithPublisher(publisher).
		WithTimeout(timeout)
	users := service.NewUserService(transactor).
		WithUserRepo(userRepo).
		WithTimeout(timeout)

	if redisClient != nil {
		subscriber := events.NewSubscriber(redisClient, scores, cfg.Redis.ChannelPrefix)
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				log.Error("source event subscriber stopped", zap.Error(err))
			}
		}()
	}

	healthChecker, err := api.NewHealthChecker(version, checks...)
	if err != nil {
		log.Fatal("failed to create health checker", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true

	handler := api.NewHandler(log).
		WithTeamService(teams).
		WithResourceService(resources).
		WithVoteService(votes).
		WithScoreService(scores).
		WithUserService(users).
		WithHealthChecker(healthChecker)

	handler.RegisterRoutes(e)

	go func() {
		log.Info("server starting", zap.String("addr", cfg.ServerAddr()))
		if err := e.Start(cfg.ServerAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
