package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mockforge/internal/adapter/repo"
	"mockforge/internal/breaker"
	"mockforge/internal/infra"
	"mockforge/internal/progress"
	"mockforge/internal/providers/generation"
	"mockforge/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	mockups := repo.NewMockupRepository(runner)
	ledger := repo.NewLedgerRepository(runner)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: redis connection failed")
	}
	var breakerStore breaker.StateStore = breaker.NewMemoryStore()
	if rdb != nil {
		defer rdb.Close()
		breakerStore = breaker.NewRedisStore(rdb)
	}
	breakers := breaker.NewRegistry(logger, breakerStore)
	genBreaker := breakers.Get(breaker.DepGenerationService, cfg.GenerationBreaker)

	gen, err := generation.NewClient(generation.Options{
		BaseURL: cfg.GenerationBaseURL,
		APIKey:  cfg.GenerationAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: generation client init failed")
	}

	sched := scheduler.New(jobs, mockups, ledger, gen, genBreaker, scheduler.Config{
		Tick:              cfg.SchedulerTick,
		BatchSize:         cfg.DispatchBatchSize,
		MaxConcurrent:     cfg.MaxConcurrent,
		ProcessingTimeout: cfg.ProcessingTimeout,
		BackoffBase:       cfg.BackoffBase,
		BackoffMax:        cfg.BackoffMax,
	}, logger)

	tracker := progress.New(jobs, progress.LogNotifier{Logger: logger}, progress.Config{
		PollInterval:   cfg.ProgressPollInterval,
		NotifyThrottle: cfg.NotifyThrottle,
	}, logger)
	sched.SetObserver(tracker)

	go func() {
		if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler: progress tracker stopped")
		}
	}()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("scheduler: run loop failed")
	}
	logger.Info().Msg("scheduler stopped")
}
