package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/tutortrack/tutor-admin-api/api/swagger"
	"github.com/tutortrack/tutor-admin-api/internal/handler"
	"github.com/tutortrack/tutor-admin-api/internal/repository"
	"github.com/tutortrack/tutor-admin-api/internal/service"
	"github.com/tutortrack/tutor-admin-api/pkg/cache"
	"github.com/tutortrack/tutor-admin-api/pkg/config"
	"github.com/tutortrack/tutor-admin-api/pkg/database"
	"github.com/tutortrack/tutor-admin-api/pkg/logger"
	corsmiddleware "github.com/tutortrack/tutor-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutortrack/tutor-admin-api/pkg/middleware/requestid"
)

// @title Tutor Admin API
// @version 1.0.0
// @description Course-hour package ledger for a tutoring business
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and duplicate suppression degraded", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	students := repository.NewStudentRepository(db)
	packages := repository.NewPackageRepository(db)
	consumptions := repository.NewConsumptionRepository(db)
	classRecords := repository.NewClassRecordRepository(db)
	users := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	summarySvc := service.NewSummaryService(packages, students, cacheRepo, metrics, logr, service.SummaryServiceConfig{
		CacheEnabled: cfg.Summary.CacheEnabled,
		CacheTTL:     cfg.Summary.CacheTTL,
		Workers:      cfg.Summary.Workers,
	})
	studentSvc := service.NewStudentService(students, summarySvc, validate, logr)
	packageSvc := service.NewPackageService(packages, students, consumptions, summarySvc, validate, metrics, logr)
	consumptionSvc := service.NewConsumptionService(consumptions, packages, cacheRepo, summarySvc, validate, metrics, logr, service.ConsumptionServiceConfig{
		SubmitTimeout:  cfg.Consumption.SubmitTimeout,
		IdempotencyTTL: cfg.Consumption.IdempotencyTTL,
	})
	classRecordSvc := service.NewClassRecordService(classRecords, students, validate, logr)
	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	exportSvc := service.NewExportService(consumptions, students, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	summarySvc.Start(ctx)
	defer summarySvc.Stop()

	if err := authSvc.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logr.Error("failed to ensure default admin", zap.Error(err))
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handlers := handler.Handlers{
		Auth:    handler.NewAuthHandler(authSvc),
		Student: handler.NewStudentHandler(studentSvc, summarySvc),
		Package: handler.NewPackageHandler(packageSvc),
		Record:  handler.NewRecordHandler(consumptionSvc, classRecordSvc),
		Export:  handler.NewExportHandler(exportSvc),
	}
	handler.RegisterRoutes(r, handlers, authSvc, metrics)
	handler.RegisterHealth(r, db, redisClient)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
