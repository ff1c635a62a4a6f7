// Package main runs the frontend action server: form actions and cached page loaders in front of the API.
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
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/slotmarket/backend/config"
	"github.com/slotmarket/backend/internal/events"
	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/web"
	"github.com/slotmarket/backend/pkg/apiclient"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/redis"
	"github.com/slotmarket/backend/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	// Pages fall back to a per-process cache when Redis is down. The event feed
	// keeps retrying on its own client so invalidation resumes once Redis is back.
	var pages cache.Store = cache.NewMemory()
	var feed *goredis.Client
	rdb, err := redis.NewClient(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory page cache", zap.Error(err))
		feed = goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer feed.Close()
	} else {
		defer rdb.Close()
		pages = cache.NewRedis(rdb.Client)
		feed = rdb.Client
	}

	api := apiclient.New(cfg.Web.APIURL, &http.Client{Timeout: 15 * time.Second}, logger)
	h := web.NewHandler(api, pages, cfg.Auth.SessionCookieNames, cfg.Web.PageCacheTTL, logger)

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	go func() {
		if err := h.FollowEvents(feedCtx, events.NewRedisBridge(feed, logger)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event feed stopped", zap.Error(err))
		}
	}()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	actions := router.Group("/actions")
	{
		actions.POST("/campaigns", h.CreateCampaign)
		actions.POST("/campaigns/:id", h.UpdateCampaign)
		actions.POST("/campaigns/:id/delete", h.DeleteCampaign)
		actions.POST("/ad-slots", h.CreateAdSlot)
		actions.POST("/ad-slots/:id/delete", h.DeleteAdSlot)
	}

	pagesGroup := router.Group("/pages")
	{
		pagesGroup.GET("/marketplace", h.Marketplace)
		pagesGroup.GET("/dashboard/sponsor", h.SponsorDashboard)
		pagesGroup.GET("/dashboard/publisher", h.PublisherDashboard)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Web.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("web listening", zap.String("port", cfg.Web.Port), zap.String("api", cfg.Web.APIURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("web server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopFeed()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("web shutdown", zap.Error(err))
	}
	logger.Info("web stopped")
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
