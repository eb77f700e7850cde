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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/weiawesome/wes-io-chat/internal/config"
	chatgrpc "github.com/weiawesome/wes-io-chat/internal/grpc"
	"github.com/weiawesome/wes-io-chat/internal/handler"
	"github.com/weiawesome/wes-io-chat/internal/history"
	"github.com/weiawesome/wes-io-chat/internal/housekeeping"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/idgen"
	"github.com/weiawesome/wes-io-chat/internal/persistence"
	"github.com/weiawesome/wes-io-chat/internal/room"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/internal/session"
	"github.com/weiawesome/wes-io-chat/internal/store"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "chat-server",
	})
	logger := pkglog.L()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage client
	storage, err := store.New(cfg.Storage, cfg.Log.Level)
	if err != nil {
		logger.Fatal().Err(err).Str(pkglog.FieldDriver, cfg.Storage.Driver).Msg("failed to create storage client")
	}
	defer storage.Close()
	logger.Info().Str(pkglog.FieldDriver, cfg.Storage.Driver).Msg("storage client ready")

	// Persistence gateway
	gateway := persistence.NewGateway(storage, persistence.Config{
		MaxQueueSize:     cfg.Persistence.MaxQueueSize,
		InboxSize:        cfg.Persistence.InboxSize,
		RecoveryInterval: cfg.Persistence.RecoveryInterval,
		RequestTimeout:   cfg.Persistence.RequestTimeout,
	})
	health := chatgrpc.NewHealth()
	gateway.OnModeChange(health.OnModeChange)
	gateway.Start()

	// Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Optional redis: activity tracking and history cache
	var (
		redisClient  *redis.Client
		tracker      *housekeeping.RedisTracker
		historyCache history.Cache
	)
	if cfg.Redis.Enabled {
		redisClient, err = housekeeping.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		tracker = housekeeping.NewRedisTracker(redisClient, cfg.Housekeeping.ActivityKey)
		historyCache = history.NewRedisCache(redisClient, cfg.History.CachePrefix)
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis connected")
	}

	// Chat service
	var activity service.ActivityTracker
	if tracker != nil {
		activity = tracker
	}
	chatSvc := service.NewChatService(
		wsHub,
		session.NewRegistry(),
		room.NewRegistry(),
		idgen.NewAllocator(),
		gateway,
		activity,
		service.Options{MaxBodyLength: cfg.Chat.MaxBodyLength},
	)
	if err := chatSvc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat service")
	}

	// History, when the driver can page messages
	var historySvc history.Service
	if reader, ok := storage.(store.HistoryReader); ok {
		historySvc = history.NewService(reader, historyCache, history.Config{
			MaxLimit: cfg.History.MaxLimit,
			CacheTTL: cfg.History.CacheTTL,
		})
	} else {
		logger.Warn().Str(pkglog.FieldDriver, cfg.Storage.Driver).Msg("storage driver cannot page history, history endpoint disabled")
	}

	// Housekeeping
	var keeper *housekeeping.Housekeeper
	if cfg.Housekeeping.Enabled {
		purger, _ := storage.(store.RoomPurger)
		var t housekeeping.Tracker
		if tracker != nil {
			t = tracker
		}
		var forget housekeeping.Forgetter
		if historySvc != nil {
			forget = historySvc
		}
		keeper = housekeeping.New(chatSvc, t, purger, forget, housekeeping.Config{
			Interval:  cfg.Housekeeping.Interval,
			Retention: cfg.Housekeeping.Retention,
		})
		keeper.Start(ctx)
		logger.Info().Dur("interval", cfg.Housekeeping.Interval).Dur("retention", cfg.Housekeeping.Retention).Msg("housekeeping started")
	}

	// gRPC health
	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		s, err := chatgrpc.StartGRPCServer(grpcAddr, health, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start grpc server")
		}
		grpcServer = s
	}

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health"))

	handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket).RegisterRoutes(r)
	handler.NewHTTPHandler(chatSvc, historySvc, gateway, wsHub, cfg.History.MaxLimit).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Str(pkglog.FieldDriver, cfg.Storage.Driver).Msg("chat server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Closing the hub ends every socket; disconnect handling runs as the
	// read pumps exit.
	wsHub.Stop()

	if keeper != nil {
		keeper.Stop()
		<-keeper.Done()
	}
	if err := chatSvc.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("chat service stop timed out")
	}

	health.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	if err := gateway.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("persistence gateway stop timed out")
	}

	logger.Info().Msg("chat server stopped")
}
