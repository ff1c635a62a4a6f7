// Package main runs the marketplace API server with the event feed and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slotmarket/backend/config"
	"github.com/slotmarket/backend/internal/adslots"
	"github.com/slotmarket/backend/internal/auth"
	"github.com/slotmarket/backend/internal/campaigns"
	"github.com/slotmarket/backend/internal/dashboard"
	"github.com/slotmarket/backend/internal/events"
	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/internal/placements"
	"github.com/slotmarket/backend/internal/publishers"
	"github.com/slotmarket/backend/internal/sponsors"
	"github.com/slotmarket/backend/internal/worker"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/metrics"
	"github.com/slotmarket/backend/pkg/queue"
	"github.com/slotmarket/backend/pkg/redis"
	"github.com/slotmarket/backend/pkg/response"
	"github.com/slotmarket/backend/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Left as a nil interface when S3 is off so the logo endpoints answer 503.
	var assets storage.Assets
	if cfg.AWS.S3Enabled() {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			AssetsBucket:    cfg.AWS.AssetsBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			assets = s3Client
		}
	}

	m := metrics.New("slotmarket_api")
	pageCache := cache.NewRedis(rdb.Client)
	hub := events.NewHub(events.NewRedisBridge(rdb.Client, logger), m, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	signer := auth.NewSigner(cfg.Auth.Secret)
	resolver := auth.NewResolver(authRepo, signer, pageCache, cfg.Auth.PrincipalCacheTTL, logger)
	cookieName := "better-auth.session_token"
	if len(cfg.Auth.SessionCookieNames) > 0 {
		cookieName = cfg.Auth.SessionCookieNames[0]
	}
	authHandler := auth.NewHandler(authRepo, signer, resolver, cfg.Auth.SessionTTL(), cookieName, logger)
	requireSession := middleware.Session(resolver, cfg.Auth.SessionCookieNames, logger)

	// Profiles
	sponsorRepo := sponsors.NewRepository(pool)
	sponsorHandler := sponsors.NewHandler(sponsorRepo, assets, jobQueue, cfg.Worker.MaxLogoBytes, logger)
	publisherRepo := publishers.NewRepository(pool)
	publisherHandler := publishers.NewHandler(publisherRepo, logger)
	sponsorHandler.SetPrincipalEvicter(resolver)
	publisherHandler.SetPrincipalEvicter(resolver)

	// Marketplace
	campaignRepo := campaigns.NewRepository(pool)
	campaignHandler := campaigns.NewHandler(campaignRepo, hub, logger)
	slotRepo := adslots.NewRepository(pool)
	slotHandler := adslots.NewHandler(slotRepo, hub, logger)
	placementHandler := placements.NewHandler(placements.NewRepository(pool), hub, logger)
	dashboardHandler := dashboard.NewHandler(dashboard.NewRepository(pool), logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger))
	router.Use(m.Middleware())

	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api")
	api.Use(limiter.Middleware())
	api.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", requireSession, authHandler.Logout)
		authGroup.GET("/me", requireSession, authHandler.Me)
	}

	sponsorOnly := middleware.RequireRole(models.RoleSponsor)
	publisherOnly := middleware.RequireRole(models.RolePublisher)
	campaignOwner := campaigns.RequireOwner(campaignRepo, logger)
	slotOwner := adslots.RequireOwner(slotRepo, logger)

	// Public reads
	api.GET("/sponsors", sponsorHandler.List)
	api.GET("/sponsors/:id", sponsorHandler.Get)
	api.GET("/publishers", publisherHandler.List)
	api.GET("/publishers/:id", publisherHandler.Get)
	api.GET("/publishers/:id/stats", publisherHandler.Stats)
	api.GET("/campaigns/:id", campaignHandler.Get)
	api.GET("/ad-slots", slotHandler.List)
	api.GET("/ad-slots/:id", slotHandler.Get)
	api.GET("/dashboard/stats", dashboardHandler.Stats)
	api.GET("/events/ws", events.ServeWs(hub, cfg.Server.AllowedOrigins(), logger))

	protected := api.Group("")
	protected.Use(requireSession)
	{
		protected.POST("/sponsors", sponsorHandler.Create)
		protected.PUT("/sponsors/:id", sponsorOnly, sponsorHandler.Update)
		protected.POST("/sponsors/:id/logo", sponsorOnly, sponsorHandler.UploadLogo)
		protected.POST("/sponsors/:id/logo/import", sponsorOnly, sponsorHandler.ImportLogo)

		protected.POST("/publishers", publisherHandler.Create)
		protected.PUT("/publishers/:id", publisherOnly, publisherHandler.Update)

		protected.GET("/campaigns", middleware.RequireSponsorOwnership(), campaignHandler.List)
		protected.POST("/campaigns", middleware.RequireSponsorOwnership(), sponsorOnly, campaignHandler.Create)
		protected.PUT("/campaigns/:id", sponsorOnly, campaignOwner, campaignHandler.Update)
		protected.DELETE("/campaigns/:id", sponsorOnly, campaignOwner, campaignHandler.Delete)

		protected.POST("/ad-slots", publisherOnly, middleware.RequirePublisherOwnership(), slotHandler.Create)
		protected.PUT("/ad-slots/:id", publisherOnly, slotOwner, slotHandler.Update)
		protected.DELETE("/ad-slots/:id", publisherOnly, slotOwner, slotHandler.Delete)
		protected.POST("/ad-slots/:id/book", sponsorOnly, slotHandler.Book)
		protected.POST("/ad-slots/:id/unbook", publisherOnly, slotOwner, slotHandler.Unbook)

		protected.GET("/placements", placementHandler.List)
		protected.POST("/placements", sponsorOnly, placementHandler.Create)
		protected.PATCH("/placements/:id/status", placementHandler.UpdateStatus)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	limiter.StartSweeper(bgCtx.Done())
	go func() {
		if err := hub.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event relay stopped", zap.Error(err))
		}
	}()
	go worker.NewSessionSweeper(authRepo, cfg.Worker.SessionSweepInterval, logger).Run(bgCtx)
	if assets != nil {
		processor := worker.NewLogoProcessor(sponsorRepo, assets, jobQueue, m, cfg.Worker.MaxLogoBytes, logger)
		go processor.Run(bgCtx)
		logger.Info("logo import worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		config.Level = lvl
	}
	logger, _ := config.Build()
	return logger
}
