package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-review/internal/config"
	"github.com/gokatarajesh/quiz-review/internal/db"
	"github.com/gokatarajesh/quiz-review/internal/logging"
)

// WSUpgrader handles WebSocket upgrades (configure CORS/security as needed).
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the review UI origin once it is served from a fixed host
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewHTTPServer wires base routes (health, metrics, ping) plus whatever
// register adds. Every request runs with a store connection lease that is
// released when the handler returns. redis may be nil.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, store *db.Store, redis *redis.Client, register func(mux *http.ServeMux)) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), store, redis); err != nil {
			logging.FromContext(r.Context()).Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if register != nil {
		register(mux)
	}

	handler := LeaseMiddleware(store.Pool())(mux)
	handler = logging.Middleware(logger)(handler)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

// LeaseMiddleware binds one pooled store connection slot to each request.
func LeaseMiddleware(pool *db.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, release := pool.Lease(r.Context())
			defer release()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func pingDependencies(ctx context.Context, store *db.Store, redis *redis.Client) error {
	if err := store.Ping(ctx); err != nil {
		return err
	}
	if redis == nil {
		return nil
	}
	return redis.Ping(ctx).Err()
}
