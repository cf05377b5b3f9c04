package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/quiz-review/internal/db"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, or reset")
		path    = flag.String("db", "", "SQLite file (defaults to SQLITE_PATH)")
	)
	flag.Parse()

	// Setup logging
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load("configs/.env")
	}

	dbPath := *path
	if dbPath == "" {
		dbPath = getEnv("SQLITE_PATH", "quiz_app.db")
	}

	handle, err := sql.Open("sqlite3", db.DSN(dbPath, 30*time.Second))
	if err != nil {
		log.Fatal().Err(err).Str("path", dbPath).Msg("failed to open database")
	}
	defer handle.Close()

	ctx := context.Background()
	if err := handle.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	provider, err := db.NewMigrator(handle, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build migrator")
	}

	log.Info().Str("path", dbPath).Msg("connected to database")

	switch *command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Int("applied", len(results)).Msg("migrations applied successfully")

	case "down":
		if _, err := provider.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations down")
		}
		log.Info().Msg("migration rolled back successfully")

	case "reset":
		if _, err := provider.DownTo(ctx, 0); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back migrations")
		}
		log.Info().Msg("all migrations rolled back")

	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}
		for _, st := range statuses {
			event := log.Info().Int64("version", st.Source.Version).Str("state", string(st.State))
			if !st.AppliedAt.IsZero() {
				event = event.Time("applied_at", st.AppliedAt)
			}
			event.Msg("migration")
		}

	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, status, or reset")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
