package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/database"
	"github.com/dshomebg/dshome-docker-sub001/internal/events"
	"github.com/dshomebg/dshome-docker-sub001/internal/handlers"
	"github.com/dshomebg/dshome-docker-sub001/internal/jobs"
	"github.com/dshomebg/dshome-docker-sub001/internal/metrics"
	"github.com/dshomebg/dshome-docker-sub001/internal/middleware"
	"github.com/dshomebg/dshome-docker-sub001/internal/repository"
	"github.com/dshomebg/dshome-docker-sub001/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	if err := database.RunMigrations(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	// Session store: redis when configured, in-process otherwise
	var sessions services.SessionStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("Invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		sessions = repository.NewRedisSessionStore(client, cfg.SessionTTL)
		logger.Info("Using redis for import sessions")
	} else {
		sessions = repository.NewMemorySessionStore(cfg.SessionTTL)
		logger.Warn("REDIS_URL not configured, import sessions are kept in memory")
	}

	// NATS event publisher (optional)
	var publisher services.EventPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize NATS publisher, continuing without events")
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	} else {
		logger.Info("NATS_URL not configured, event publishing disabled")
	}

	m := metrics.New("dshome", "catalog_import")

	catalogRepo := repository.NewCatalogRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	importService := services.NewImportService(catalogRepo, templateRepo, sessions, publisher, m, logger, services.Options{
		WarehouseSlots:        cfg.WarehouseSlots,
		DynamicWarehouseSlots: cfg.DynamicWarehouseSlots,
		Workers:               cfg.ImportWorkers,
		Timeout:               cfg.ImportTimeout,
		MaxUploadBytes:        cfg.MaxUploadBytes,
		MaxRows:               cfg.MaxImportRows,
		PreviewRows:           cfg.PreviewRows,
		SlotWarehouses:        cfg.SlotWarehouses,
	})
	importHandler := handlers.NewImportHandler(importService, logger)

	sweepJob := jobs.NewSessionSweepJob(importService, cfg.SessionSweepSchedule, logger)
	if err := sweepJob.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start session sweep job")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(m.Middleware())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	// multipart parts beyond this spill to temp files
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(map[string]handlers.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"sessions": importService.Ping,
	}))
	router.GET("/metrics", m.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.TenantMiddleware())
	importHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithField("port", cfg.Port).Info("Catalog import service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-quit
	logger.Info("Shutting down catalog import service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}
	sweepJob.Stop()
	if err := importService.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Running imports did not finish before shutdown")
	}

	logger.Info("Catalog import service stopped")
}
