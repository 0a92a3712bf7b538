// Package main runs the live polling server: WebSocket gateway, read API and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-classroom/livepoll/config"
	"github.com/aura-classroom/livepoll/internal/middleware"
	"github.com/aura-classroom/livepoll/internal/polls"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/results"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/pkg/database"
	"github.com/aura-classroom/livepoll/pkg/queue"
	"github.com/aura-classroom/livepoll/pkg/redis"
	"github.com/aura-classroom/livepoll/pkg/response"
	"github.com/aura-classroom/livepoll/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Redis: chat relay, event mirror and the export queue. Optional.
	var (
		redisPub realtime.RedisPublisher
		redisSub realtime.RedisSubscriber
		exporter *results.Exporter
	)
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		redisPub, redisSub = pubsub, pubsub
		exporter = results.NewExporter(queue.NewQueue(rdb.Client, logger), results.DefaultExportBuffer, logger)
	} else {
		logger.Info("redis not configured; chat is local and results are not exported")
	}

	// Postgres: exported results read API. Optional.
	var resultStore results.Store
	if cfg.Database.Enabled() {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		resultStore = results.NewRepository(pool)
	}

	// S3: presigned downloads of exported result documents. Optional.
	var presigner results.Presigner
	if cfg.AWS.Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ResultsBucket:        cfg.AWS.ResultsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		presigner = s3Client
	}

	hub := realtime.NewHub(logger, redisPub, redisSub, cfg.Redis.Channel, cfg.Server.SendBuffer)
	go hub.Run(bgCtx)

	coordinator := session.NewCoordinator(hub, cfg.Session.DefaultDuration(), cfg.Session.BroadcastInterval(), logger)
	if exporter != nil {
		coordinator.SetArchiveHandler(exporter.Archive)
		go exporter.Run(bgCtx)
	}
	dispatcher := realtime.NewDispatcher(coordinator, hub, logger)

	pollHandler := polls.NewHandler(coordinator)
	resultHandler := results.NewHandler(resultStore, presigner, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger, "/health"))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "clients": hub.ClientCount()})
	})
	router.GET("/state", pollHandler.State)
	router.GET("/history", pollHandler.History)
	router.GET("/results", resultHandler.List)
	router.GET("/results/:id/download-url", resultHandler.DownloadURL)
	router.GET("/ws", realtime.ServeWs(hub, dispatcher, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	coordinator.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	bgCancel()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
