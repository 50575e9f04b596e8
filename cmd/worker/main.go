package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.app/harmony/common/id"
	"basegraph.app/harmony/common/logger"
	"basegraph.app/harmony/common/otel"
	"basegraph.app/harmony/core/config"
	"basegraph.app/harmony/core/db"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/service"
	"basegraph.app/harmony/internal/store"
	"basegraph.app/harmony/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logCloser := logger.Setup(cfg)
	defer logCloser.Close()

	slog.InfoContext(ctx, "harmony worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.JobGroup,
		"consumer_name", cfg.Redis.JobConsumer)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if err := database.ApplySchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to apply schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.JobStream)

	provider, verifier, err := service.NewLLMCapabilities(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create LLM clients", "error", err)
		os.Exit(1)
	}
	planner, engine, err := service.NewPipeline(cfg, provider, verifier)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create pipeline", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Conn())
	sink, history := service.NewEventSink(redisClient, cfg.Redis, stores.RunEvents())

	deps := service.RunServiceDeps{
		Planner:  planner,
		Executor: engine,
		Sink:     sink,
		Runs:     stores.Runs(),
	}
	if cfg.Execution.OutputDir != "" {
		contents, err := store.NewLocalContentStore(cfg.Execution.OutputDir)
		if err != nil {
			slog.ErrorContext(ctx, "failed to open content store", "error", err, "dir", cfg.Execution.OutputDir)
			os.Exit(1)
		}
		deps.Contents = contents
	}
	runs := service.NewRunService(deps)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.JobStream,
		Group:        cfg.Redis.JobGroup,
		Consumer:     cfg.Redis.JobConsumer,
		DLQStream:    cfg.Redis.JobDLQStream,
		BatchSize:    cfg.Worker.BatchSize,
		Block:        cfg.Worker.Block,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RequeueDelay: cfg.Worker.RequeueDelay,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, runs, worker.Config{
		MaxAttempts: cfg.Worker.MaxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:        cfg.Redis.JobStream,
		Group:         cfg.Redis.JobGroup,
		Consumer:      cfg.Redis.JobConsumer + "-reclaimer",
		MinIdle:       cfg.Redis.ReclaimMinIdle,
		Interval:      cfg.Redis.ReclaimInterval,
		BatchSize:     10,
		MaxDeliveries: cfg.Worker.MaxDeliveries,
	}, consumer, w.Handle)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be mid-run)
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if history != nil {
		if err := history.Close(shutdownCtx); err != nil {
			slog.WarnContext(ctx, "event history flush incomplete", "error", err, "dropped", history.Dropped())
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 _                                          
| |__   __ _ _ __ _ __ ___   ___  _ __  _   _ 
| '_ \ / _' | '__| '_ ' _ \ / _ \| '_ \| | | |
| | | | (_| | |  | | | | | | (_) | | | | |_| |
|_| |_|\__,_|_|  |_| |_| |_|\___/|_| |_|\__, |
                                 worker |___/ 
`
