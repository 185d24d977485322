package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/config"
	"github.com/d60-Lab/community-messaging/internal/api"
	"github.com/d60-Lab/community-messaging/internal/api/handler"
	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/internal/cache"
	"github.com/d60-Lab/community-messaging/internal/filter"
	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/realtime"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/database"
	"github.com/d60-Lab/community-messaging/pkg/logger"
	"github.com/d60-Lab/community-messaging/pkg/tracing"
)

// @title Community Messaging API
// @version 1.0
// @description 私信、屏蔽与会话列表服务
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Fatal("init sentry", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	hub := realtime.NewHub(cfg.Server.AllowedOrigins)
	var publisher service.Publisher = hub
	var summaryCache service.SummaryCache
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("init redis", zap.Error(err))
		}
		defer client.Close()
		summaryCache = cache.NewSummaryCache(client, cfg.Redis.SummaryTTL)

		broadcaster := realtime.NewRedisBroadcaster(client, cfg.Redis.PushChannel, hub)
		go func() {
			if err := broadcaster.Run(ctx); err != nil {
				logger.Error("push subscriber stopped", zap.Error(err))
			}
		}()
		publisher = broadcaster
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	users := repository.NewUserRepository(db)
	messages := repository.NewMessageRepository(db)
	blocks := repository.NewBlockRepository(db)
	notifs := repository.NewNotificationRepository(db)
	normalizer := media.NewNormalizer(cfg.Media.FilesRoutePrefix, cfg.Media.DefaultAvatar)

	dispatcher := service.NewNotificationDispatcher(notifs, messages, publisher, cfg.Messaging.PushQueueSize)
	stopDispatcher := dispatcher.Start(cfg.Messaging.PushWorkers)

	tokens := middleware.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL)
	h := handler.NewHandler(handler.Deps{
		Users:         service.NewUserService(users, normalizer),
		Messages:      service.NewMessageService(database.NewTransactor(db), users, messages, blocks, filter.NewWordFilter(cfg.Messaging.ProhibitedWords), dispatcher, summaryCache),
		Conversations: service.NewConversationService(users, messages, blocks, normalizer, summaryCache),
		Blocks:        service.NewBlockService(users, blocks, normalizer, summaryCache),
		Notifications: service.NewNotificationService(users, notifs),
		Tokens:        tokens,
		Hub:           hub,
	})
	limiter := middleware.NewUserRateLimiter(cfg.Messaging.SendRatePerSecond, cfg.Messaging.SendBurst)
	router := api.NewRouter(cfg, h, tokens, limiter)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// 先排空推送，再断开实时连接
	if err := stopDispatcher(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown", zap.Error(err))
	}
	hub.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
}
