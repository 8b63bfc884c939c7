package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/office-hours-api/api/swagger"
	"github.com/noah-isme/office-hours-api/internal/handler"
	"github.com/noah-isme/office-hours-api/internal/lock"
	"github.com/noah-isme/office-hours-api/internal/middleware"
	"github.com/noah-isme/office-hours-api/internal/models"
	"github.com/noah-isme/office-hours-api/internal/repository"
	"github.com/noah-isme/office-hours-api/internal/service"
	"github.com/noah-isme/office-hours-api/pkg/cache"
	"github.com/noah-isme/office-hours-api/pkg/config"
	"github.com/noah-isme/office-hours-api/pkg/database"
	"github.com/noah-isme/office-hours-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/office-hours-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/office-hours-api/pkg/middleware/requestid"
)

// @title Office Hours API
// @version 1.0.0
// @description Office hours scheduling and token-gated registration service
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
	defer db.Close()

	location, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid schedule timezone", "timezone", cfg.Scheduling.Timezone, "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	officeHourRepo := repository.NewOfficeHourRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	tokenRepo := repository.NewTokenRepository(db)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	var cacheSvc *service.CacheService
	if cfg.Feed.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Feed.CacheTTL, logr, true)
	}

	notifications := service.NewNotificationService(cfg.Notifications, userRepo, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	keys := lock.NewKeyedMutex()
	guard := service.NewWindowGuard(nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	tokenSvc := service.NewTokenService(tokenRepo, keys, logr)
	officeHourSvc := service.NewOfficeHourService(officeHourRepo, courseRepo, registrationRepo, notifications, location, cfg.Scheduling.HorizonDays, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, officeHourRepo, courseRepo, tokenSvc, guard, notifications, keys, location, validate, logr)
	feedSvc := service.NewFeedService(registrationRepo, userRepo, cacheSvc, cfg.Feed.CacheTTL, logr)
	courseSvc := service.NewCourseService(courseRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	officeHourHandler := handler.NewOfficeHourHandler(officeHourSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc, feedSvc)
	tokenHandler := handler.NewTokenHandler(tokenSvc)
	feedHandler := handler.NewFeedHandler(feedSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.WithResponseMeta())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	staffOnly := middleware.RequireRoles(models.RoleStaff, models.RoleInstructor)

	authed.GET("/courses/:id", courseHandler.Get)
	authed.GET("/courses/:id/topics", courseHandler.Topics)
	authed.GET("/courses/:id/office-hours", officeHourHandler.ListByCourse)
	authed.GET("/courses/:id/instances", officeHourHandler.CourseInstances)

	authed.POST("/office-hours", staffOnly, officeHourHandler.Create)
	authed.GET("/office-hours/:id", officeHourHandler.Get)
	authed.GET("/office-hours/:id/instances", officeHourHandler.Instances)
	authed.PATCH("/office-hours/:id/location", staffOnly, officeHourHandler.UpdateLocation)
	authed.POST("/office-hours/:id/cancellations", staffOnly, officeHourHandler.CancelDate)
	authed.POST("/office-hours/:id/hosts", staffOnly, officeHourHandler.AddHost)
	authed.DELETE("/office-hours/:id/hosts/:userId", staffOnly, officeHourHandler.RemoveHost)
	authed.GET("/office-hours/:id/time-options", officeHourHandler.ListTimeOptions)
	authed.POST("/office-hours/:id/time-options", staffOnly, officeHourHandler.AddTimeOption)

	authed.POST("/registrations", registrationHandler.Create)
	authed.GET("/registrations", registrationHandler.List)
	authed.GET("/registrations/:id", registrationHandler.Get)
	authed.DELETE("/registrations/:id", registrationHandler.Cancel)
	authed.POST("/registrations/:id/no-show", staffOnly, registrationHandler.MarkNoShow)

	authed.GET("/me/office-hours", officeHourHandler.ListMine)
	authed.GET("/me/tokens", tokenHandler.MyTokens)
	authed.GET("/me/feed", feedHandler.Feed)

	authed.GET("/students/:id/tokens", staffOnly, tokenHandler.StudentTokens)
	authed.POST("/students/:id/tokens", staffOnly, tokenHandler.Issue)
	authed.POST("/students/:id/tokens/:tokenId/uses", staffOnly, tokenHandler.Consume)
	authed.DELETE("/students/:id/tokens/:tokenId/uses", staffOnly, tokenHandler.UndoConsume)
	authed.PUT("/students/:id/tokens/:tokenId/override", staffOnly, tokenHandler.SetOverride)
	authed.DELETE("/students/:id/tokens/:tokenId/override", staffOnly, tokenHandler.ClearOverride)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
