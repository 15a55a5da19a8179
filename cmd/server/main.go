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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/quizsolver/common/id"
	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/common/otel"
	"basegraph.app/quizsolver/core/config"
	"basegraph.app/quizsolver/internal/bootstrap"
	"basegraph.app/quizsolver/internal/http/middleware"
	httprouter "basegraph.app/quizsolver/internal/http/router"
	"basegraph.app/quizsolver/internal/queue"
	"basegraph.app/quizsolver/internal/service"
	"basegraph.app/quizsolver/internal/store"
	"basegraph.app/quizsolver/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "quizsolver starting", "env", cfg.Env, "service", cfg.OTel.ServiceName, "queue", cfg.Queue.Backend)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if cfg.AppSecret == "" {
		slog.WarnContext(ctx, "APP_SECRET not set, every quiz task will be rejected")
	}

	jobs := store.NewMemoryJobStore()

	orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, jobs)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize solver", "error", err)
		os.Exit(1)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var (
		producer      queue.Producer
		consumer      worker.Consumer
		redisConsumer *queue.RedisConsumer
		redisClient   *redis.Client
		reclaimer     *worker.RedisReclaimer
	)

	if cfg.Queue.UsesRedis() {
		redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.RedisStream, "group", cfg.Queue.RedisGroup)

		producer = queue.NewRedisProducer(redisClient, cfg.Queue.RedisStream, slog.Default())

		redisConsumer, err = queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
			Stream:       cfg.Queue.RedisStream,
			Group:        cfg.Queue.RedisGroup,
			Consumer:     cfg.Queue.RedisConsumer,
			DLQStream:    cfg.Queue.RedisDLQStream,
			BatchSize:    1,
			Block:        5 * time.Second,
			RequeueDelay: time.Second,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create redis consumer", "error", err)
			os.Exit(1)
		}
		consumer = redisConsumer
	} else {
		local := queue.NewChannelQueue(cfg.Queue.Size, time.Second)
		producer = local
		consumer = local
	}
	defer producer.Close()

	w := worker.New(consumer, orchestrator, worker.Config{
		Concurrency:   cfg.Queue.Workers,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
	})

	if redisConsumer != nil {
		reclaimer = worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
			Stream:        cfg.Queue.RedisStream,
			Group:         cfg.Queue.RedisGroup,
			Consumer:      cfg.Queue.RedisConsumer,
			MinIdle:       cfg.Queue.ReclaimMinIdle,
			Interval:      cfg.Queue.ReclaimInterval,
			MaxDeliveries: int64(cfg.Queue.MaxDeliveries),
		}, redisConsumer, w.ProcessMessage)
		go reclaimer.Run(workerCtx)
	}

	go func() {
		if err := w.Run(workerCtx); err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}()

	services := service.NewServices(jobs, producer, cfg.AppSecret)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.ShutdownDeadline)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	stopWorkers(shutdownCtx, w, reclaimer)
	cancelWorkers()

	if telemetry != nil {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			slog.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

// stopWorkers lets in-flight jobs finish until ctx expires. Jobs still
// running after that are abandoned with the process.
func stopWorkers(ctx context.Context, w *worker.Worker, reclaimer *worker.RedisReclaimer) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if reclaimer != nil {
			reclaimer.Stop()
		}
		w.Stop()
	}()

	select {
	case <-done:
		slog.InfoContext(ctx, "workers stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "shutdown deadline reached with jobs still running")
	}
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		TraceHeaderName: cfg.Queue.TraceHeaderName,
	})

	return router
}

const banner = `
  ___  _   _ ___ _____   ____   ___  _ __     _______ ____
 / _ \| | | |_ _|__  /  / ___| / _ \| |\ \   / / ____|  _ \
| | | | | | || |  / /   \___ \| | | | | \ \ / /|  _| | |_) |
| |_| | |_| || | / /_    ___) | |_| | |__\ V / | |___|  _ <
 \__\_\\___/|___/____|  |____/ \___/|_____\_/  |_____|_| \_\
`
