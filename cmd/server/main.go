package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vmbid/matching-engine/internal/config"
	"github.com/vmbid/matching-engine/internal/engine"
	"github.com/vmbid/matching-engine/internal/events"
	"github.com/vmbid/matching-engine/internal/metrics"
	"github.com/vmbid/matching-engine/internal/store"
	"github.com/vmbid/matching-engine/internal/trade"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize fill journal ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("database schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, journaling fills in memory")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	var opts []trade.Option
	opts = append(opts,
		trade.WithUsernameMaxLen(cfg.UsernameMaxLen),
		trade.WithMaxVolume(cfg.MaxOrderVolume),
	)

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := pub.Close(); err != nil {
				slog.Error("kafka close failed", "err", err)
			}
		}()
		opts = append(opts, trade.WithPublisher(pub))
		slog.Info("publishing fills to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run(ctx)

	// --- Matching engine and trade service ---
	eng := engine.New()
	tradeSvc := trade.NewService(eng, st, wsHub, opts...)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sold, bought := eng.TotalVolume()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"service":      "matching-engine",
			"total_sold":   sold,
			"total_bought": bought,
			"ws_clients":   wsHub.Clients(),
		})
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for the live fill feed. Kept outside the timeout
	// middleware, which would cut long-lived connections.
	r.Get("/ws", wsHub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Post("/buy", tradeSvc.Buy)
		r.Post("/sell", tradeSvc.Sell)
		r.Get("/allocation", tradeSvc.GetAllocation)
		r.Get("/fills", tradeSvc.GetFills)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("matching-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down matching-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("matching-engine stopped")
}
