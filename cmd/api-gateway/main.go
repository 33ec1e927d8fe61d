package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/xdmy1/colete/api/swagger"
	"github.com/xdmy1/colete/internal/handler"
	"github.com/xdmy1/colete/internal/middleware"
	"github.com/xdmy1/colete/internal/models"
	"github.com/xdmy1/colete/internal/repository"
	"github.com/xdmy1/colete/internal/service"
	"github.com/xdmy1/colete/pkg/cache"
	"github.com/xdmy1/colete/pkg/config"
	"github.com/xdmy1/colete/pkg/database"
	"github.com/xdmy1/colete/pkg/jobs"
	"github.com/xdmy1/colete/pkg/logger"
	corsmiddleware "github.com/xdmy1/colete/pkg/middleware/cors"
	reqidmiddleware "github.com/xdmy1/colete/pkg/middleware/requestid"
	"github.com/xdmy1/colete/pkg/storage"
)

// @title Colete API
// @version 1.0.0
// @description Parcel logistics tracking for fixed Moldova routes
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, parcel cache disabled", "error", err)
		redisClient = nil
	}

	photoStorage, err := storage.NewLocalStorage(cfg.Photos.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init photo storage", "error", err)
	}
	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	photoSigner := storage.NewSignedURLSigner(cfg.Photos.SignedURLSecret, cfg.Photos.SignedURLTTL)
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	validate := validator.New()

	profileRepo := repository.NewProfileRepository(db)
	parcelRepo := repository.NewParcelRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authService := service.NewAuthService(profileRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "colete-api",
	})
	metricsService := service.NewMetricsService()
	parcelService := service.NewParcelService(parcelRepo, sequenceRepo, profileRepo, cacheRepo,
		photoStorage, photoSigner, validate, logr, service.ParcelConfig{
			RatePerKg:     cfg.Pricing.RatePerKg,
			CacheEnabled:  cfg.Cache.Enabled && redisClient != nil,
			CacheTTL:      cfg.Cache.TTL,
			PhotoMaxBytes: cfg.Photos.MaxFileSizeByte,
		}).WithMetrics(metricsService)
	driverService := service.NewDriverService(profileRepo, validate, logr)
	sweepService := service.NewSweepService(parcelRepo, logr, service.SweepConfig{
		SchedulerEnabled: cfg.Archive.SchedulerEnabled,
		Timezone:         cfg.Archive.Timezone,
		Weekday:          cfg.Archive.Weekday,
		Hour:             cfg.Archive.Hour,
		Minute:           cfg.Archive.Minute,
	}).WithMetrics(metricsService)

	exportService := service.NewExportService(parcelRepo, profileRepo, exportStorage, exportSigner,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}, logr, nil, nil)
	exportWorker := service.NewExportWorker(exportJobRepo, exportService, cfg.Exports.WorkerRetries, logr).
		WithMetrics(metricsService)
	exportQueue := jobs.NewQueue("exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportJobService := service.NewExportJobService(exportJobRepo, exportQueue, exportService, logr,
		service.ExportJobConfig{
			ResultTTL:  cfg.Exports.SignedURLTTL,
			MaxRetries: cfg.Exports.WorkerRetries,
		})

	if cfg.Exports.Enabled {
		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportJobService.RecoverPendingJobs(ctx)
		exportJobService.StartCleanup(ctx)
	}
	sweepService.StartScheduler(ctx)

	authHandler := handler.NewAuthHandler(authService)
	parcelHandler := handler.NewParcelHandler(parcelService)
	driverHandler := handler.NewDriverHandler(driverService)
	archiveHandler := handler.NewArchiveHandler(sweepService, parcelService)
	exportHandler := handler.NewExportHandler(exportJobService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	// The photo download is authenticated by its signed token, not a JWT.
	api.GET("/parcels/photo/:token", parcelHandler.Photo)

	parcels := api.Group("/parcels", middleware.JWT(authService))
	{
		parcels.POST("", parcelHandler.Create)
		parcels.GET("", parcelHandler.List)
		parcels.GET("/:id", parcelHandler.Get)
		parcels.POST("/:id/deliver", parcelHandler.Deliver)
		parcels.GET("/:id/photo-url", parcelHandler.PhotoURL)

		admin := parcels.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/reassign", parcelHandler.Reassign)
			admin.POST("/reorder", parcelHandler.Reorder)
			admin.PATCH("/:id", parcelHandler.Update)
			admin.DELETE("/:id", parcelHandler.Delete)
		}
	}

	api.GET("/contacts", middleware.JWT(authService), parcelHandler.Contacts)

	weeks := api.Group("/weeks", middleware.JWT(authService))
	{
		weeks.GET("/current", archiveHandler.CurrentWeek)
		weeks.GET("/archived", archiveHandler.ArchivedWeeks)
	}

	drivers := api.Group("/drivers",
		middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		drivers.GET("", driverHandler.List)
		drivers.GET("/:id", driverHandler.Get)
		drivers.POST("", driverHandler.Create)
	}

	api.POST("/admin/archive/reset",
		middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), archiveHandler.Reset)

	if cfg.Exports.Enabled {
		api.GET("/exports/download/:token", exportHandler.Download)
		exports := api.Group("/exports",
			middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
		{
			exports.POST("", exportHandler.Create)
			exports.GET("/:id", exportHandler.Status)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
