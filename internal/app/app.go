package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-review/internal/config"
	"github.com/gokatarajesh/quiz-review/internal/db"
	"github.com/gokatarajesh/quiz-review/internal/db/repository"
	"github.com/gokatarajesh/quiz-review/internal/logging"
	"github.com/gokatarajesh/quiz-review/internal/question"
	"github.com/gokatarajesh/quiz-review/internal/question/external"
	"github.com/gokatarajesh/quiz-review/internal/review"
	"github.com/gokatarajesh/quiz-review/internal/server"
	ws "github.com/gokatarajesh/quiz-review/pkg/http/ws"
)

// Application aggregates shared infrastructure (store, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	store *db.Store
	redis *redis.Client
	hub   *ws.Hub
	http  *http.Server

	statsWorker *db.StatsWorker
	bgCancels   []context.CancelFunc
}

// New bootstraps logger, SQLite store, optional Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	store, err := db.Open(ctx, db.Config{
		Path:        cfg.SQLite.Path,
		BusyTimeout: cfg.SQLite.BusyTimeout,
		Retry: db.RetryPolicy{
			Attempts: cfg.SQLite.LockRetries,
			Backoff:  cfg.SQLite.LockBackoff,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var (
		redisClient *redis.Client
		sessions    review.SessionStore
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = store.CloseAll(ctx)
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		sessions = review.NewRedisStore(redisClient, cfg.Review.SessionTTL, cfg.Review.LockTTL, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("sessions stored in redis")
	} else {
		sessions = review.NewMemoryStore()
		logger.Warn().Msg("REDIS_ADDR not set; sessions kept in process memory")
	}

	userRepo := repository.NewUserRepository(store)
	historyRepo := repository.NewHistoryRepository(store)

	opentdbClient := external.NewOpenTDBClient(cfg.Question.OpenTDBBaseURL, &http.Client{Timeout: cfg.Question.FetchTimeout})
	questionSvc := question.NewService(opentdbClient, logger)

	wsHub := ws.NewHub(logger)
	reviewSvc := review.NewService(review.Deps{
		Questions: questionSvc,
		Users:     userRepo,
		History:   historyRepo,
		Sessions:  sessions,
		Artifacts: review.NewArtifactStore(cfg.Review.CaptureDir),
		Resetter:  store,
		Notifier:  review.NewHubNotifier(wsHub, logger),
	}, logger)

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		TTL:    cfg.Security.TokenTTL,
		Issuer: cfg.Name,
	})
	reviewHandlers := review.NewHTTPHandlers(reviewSvc, tokens, wsHub, logger)

	apiServer := server.NewHTTPServer(cfg, logger, store, redisClient, reviewHandlers.Register)

	return &Application{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		redis:       redisClient,
		hub:         wsHub,
		http:        apiServer,
		statsWorker: db.NewStatsWorker(store.Pool(), cfg.SQLite.StatsInterval, logger),
		bgCancels:   make([]context.CancelFunc, 0, 1),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not tracked by Shutdown
	a.hub.CloseAll()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if err := a.store.CloseAll(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("store shutdown error")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.statsWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.statsWorker.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("pool stats worker stopped")
			}
		}()
	}
}
