package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockleague/league-engine/config"
	"github.com/stockleague/league-engine/internal/league"
	"github.com/stockleague/league-engine/internal/metrics"
	"github.com/stockleague/league-engine/internal/oracle"
	"github.com/stockleague/league-engine/internal/position"
	"github.com/stockleague/league-engine/internal/scoring"
	"github.com/stockleague/league-engine/internal/store"
)

func main() {
	cfg := config.MustLoad()
	setupLogger(cfg)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Postgres.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price oracle: HTTP client → bounded retry → TTL cache ---
	client := oracle.NewClient(oracle.ClientConfig{
		BaseURL: cfg.Oracle.BaseURL,
		Timeout: cfg.Oracle.Timeout,
		Debug:   cfg.Oracle.Debug,
		RPS:     cfg.Oracle.RPS,
	})
	retrier := oracle.NewRetrier(client, cfg.Oracle.MaxAttempts, cfg.Oracle.RetryDelay)
	quotes := oracle.NewCache(retrier, cfg.Oracle.CacheTTL)

	// --- WebSocket hub ---
	wsHub := league.NewWSHub()
	go wsHub.Run()

	// --- League service ---
	svc := league.NewService(
		st,
		quotes,
		scoring.DefaultPolicy(),
		decimal.NewFromInt(cfg.InitialCash),
		cfg.BenchmarkSymbol,
		wsHub,
	)

	// --- Quote cache warm job ---
	sched, err := gocron.NewScheduler()
	if err != nil {
		slog.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.Jobs.WarmQuotesInterval),
		gocron.NewTask(func(ctx context.Context) {
			warmQuotes(ctx, st, quotes, cfg.BenchmarkSymbol)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		slog.Error("warm job init failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"league-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// League membership.
		r.Post("/accounts", svc.CreateAccount)
		r.Get("/accounts/{accountID}", svc.GetAccount)
		r.Get("/accounts/{accountID}/trades", svc.ListTrades)
		r.Get("/accounts/{accountID}/score", svc.GetScore)
		r.Get("/accounts/{accountID}/daytrades", svc.GetDayTrades)

		// Trade execution.
		r.Post("/trade", svc.ExecuteTrade)

		// Standings.
		r.Get("/leaderboard", svc.GetLeaderboard)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("league-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down league-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("league-engine stopped")
}

// warmQuotes refreshes the quote cache for every symbol with an open
// position, plus the benchmark, so interactive scoring mostly hits warm
// entries.
func warmQuotes(ctx context.Context, st store.Store, quotes *oracle.Cache, benchmark string) {
	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		slog.Error("warm job: list accounts", "err", err)
		return
	}

	seen := map[string]struct{}{}
	symbols := []string{}
	if benchmark != "" {
		symbols = append(symbols, benchmark)
		seen[benchmark] = struct{}{}
	}
	for _, acct := range accounts {
		trades, err := st.GetTradesByAccount(ctx, acct.ID)
		if err != nil {
			slog.Error("warm job: load trades", "account", acct.ID, "err", err)
			continue
		}
		for sym := range position.Open(trades) {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}

	quotes.Warm(ctx, symbols)
	slog.Debug("quote cache warmed", "symbols", len(symbols))
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
