package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"quiz-review"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	SQLite   SQLite
	Redis    Redis
	Security Security
	Question Question
	Review   Review
}

// SQLite captures the local store location and its locking behaviour.
type SQLite struct {
	Path          string        `env:"SQLITE_PATH" envDefault:"quiz_app.db"`
	BusyTimeout   time.Duration `env:"SQLITE_BUSY_TIMEOUT" envDefault:"30s"`
	LockRetries   int           `env:"STORE_LOCK_RETRIES" envDefault:"5"`
	LockBackoff   time.Duration `env:"STORE_LOCK_BACKOFF" envDefault:"1s"`
	StatsInterval time.Duration `env:"POOL_STATS_INTERVAL" envDefault:"15s"`
}

// Redis is optional; sessions stay in process memory when Addr is empty.
type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
}

// Security stores secrets for signing session tokens.
type Security struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
}

// Question configures the remote question source.
type Question struct {
	OpenTDBBaseURL string        `env:"OPENTDB_BASE_URL" envDefault:"https://opentdb.com"`
	FetchTimeout   time.Duration `env:"QUESTION_FETCH_TIMEOUT" envDefault:"10s"`
}

// Review groups session and capture settings.
type Review struct {
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	LockTTL    time.Duration `env:"REVIEW_LOCK_TTL" envDefault:"30s"`
	CaptureDir string        `env:"CAPTURE_DIR" envDefault:"screenshots"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: false}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SQLite.LockRetries < 1 {
		return nil, fmt.Errorf("STORE_LOCK_RETRIES must be at least 1, got %d", cfg.SQLite.LockRetries)
	}
	return cfg, nil
}
