package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mockforge/internal/adapter/repo"
	"mockforge/internal/billing"
	"mockforge/internal/breaker"
	"mockforge/internal/http/handlers"
	httpapi "mockforge/internal/http/httpapi"
	"mockforge/internal/infra"
	"mockforge/internal/progress"
	"mockforge/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	jobs := repo.NewJobRepository(runner)
	mockups := repo.NewMockupRepository(runner)
	ledger := repo.NewLedgerRepository(runner)

	// Redis is optional. Without it the rate limiter and breaker state
	// stay in process memory, which is fine for a single instance.
	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	var breakerStore breaker.StateStore = breaker.NewMemoryStore()
	if rdb != nil {
		defer rdb.Close()
		limitStore = ratelimit.NewRedisStore(rdb)
		breakerStore = breaker.NewRedisStore(rdb)
		logger.Info().Msg("redis connected, shared counters enabled")
	}
	if ms, ok := limitStore.(*ratelimit.MemoryStore); ok {
		go ms.Janitor(ctx, cfg.RateLimitWindow)
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimitMax, cfg.RateLimitWindow)

	breakers := breaker.NewRegistry(logger, breakerStore)
	breakers.Get(breaker.DepGenerationService, cfg.GenerationBreaker)

	app := &handlers.App{
		Jobs:        jobs,
		Mockups:     mockups,
		Ledger:      ledger,
		Webhooks:    billing.NewService(cfg.WebhookSecret, repo.NewBillingRepository(runner), logger),
		Progress:    progress.New(jobs, progress.LogNotifier{Logger: logger}, progress.Config{}, logger),
		Breakers:    breakers,
		DB:          dbpool,
		Logger:      logger,
		MaxAttempts: cfg.MaxAttempts,
	}

	router := httpapi.NewRouter(app, limiter, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
