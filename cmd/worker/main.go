package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/config"
	"cvbuilder/internal/database"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/subscription"
	"cvbuilder/internal/tasks"
	"cvbuilder/internal/worker"
)

const metricsAddr = ":9091"

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{"default": 1},
	})

	subs := subscription.NewService(db, subscription.NewCatalog(cfg.Payment.Prices, cfg.Payment.Currency))

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeAnalyticsRecord, worker.NewAnalyticsTaskHandler(analytics.NewStore(db), logger))
	mux.Handle(tasks.TypeSubscriptionSweep, worker.NewSweepTaskHandler(subs, logger))

	client := asynq.NewClient(redisOpt)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()
	scheduler, err := worker.NewScheduler(cfg.Worker.SweepSchedule, client, logger)
	if err != nil {
		log.Fatalf("init sweep scheduler: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// 启动时补一次清扫，避免调度间隔内的遗漏。
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := worker.EnqueueSweep(startupCtx, client, "startup"); err != nil {
		logger.Warn("enqueue startup sweep failed", slog.Any("error", err))
	}
	cancel()

	go serveMetrics(logger)

	logger.Info("worker service started",
		slog.String("redis_addr", cfg.Redis.Addr()),
		slog.String("sweep_schedule", cfg.Worker.SweepSchedule),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}

func serveMetrics(logger *slog.Logger) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/metrics", metrics.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", slog.Any("error", err))
	}
}
