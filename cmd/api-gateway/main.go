package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.uber.org/zap"

	_ "github.com/noah-isme/notifications-dashboard-api/api/swagger"
	"github.com/noah-isme/notifications-dashboard-api/internal/handler"
	"github.com/noah-isme/notifications-dashboard-api/internal/repository"
	"github.com/noah-isme/notifications-dashboard-api/internal/service"
	"github.com/noah-isme/notifications-dashboard-api/migrations"
	"github.com/noah-isme/notifications-dashboard-api/pkg/cache"
	"github.com/noah-isme/notifications-dashboard-api/pkg/config"
	"github.com/noah-isme/notifications-dashboard-api/pkg/database"
	"github.com/noah-isme/notifications-dashboard-api/pkg/jobs"
	"github.com/noah-isme/notifications-dashboard-api/pkg/logger"
	"github.com/noah-isme/notifications-dashboard-api/pkg/storage"
)

// @title Notifications Dashboard API
// @version 1.0.0
// @description Live operator dashboard over the pays record feed
// @BasePath /api/v1
// @schemes http https

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if applied, err := migrations.Apply(ctx, db, logr); err != nil {
		logr.Fatal("migrations failed", zap.Error(err))
	} else if len(applied) > 0 {
		logr.Info("schema up to date", zap.Strings("applied", applied))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	hub := service.NewNotificationHub(64, logr)

	recordRepo := repository.NewRecordRepository(db, cfg.Feed.Collection, logr)
	feed := repository.NewRecordFeed(repository.RecordFeedParams{
		Loader: recordRepo,
		NewListener: func() repository.NotificationListener {
			return database.NewListener(cfg.Database, cfg.Feed, func(ev pq.ListenerEventType, err error) {
				if err != nil {
					logr.Warn("feed listener event", zap.Int("event", int(ev)), zap.Error(err))
				}
			})
		},
		Channel:      cfg.Feed.NotifyChannel,
		PingInterval: cfg.Feed.PingInterval,
		OnDropped:    metrics.ObserveDropped,
		Logger:       logr,
	})
	presenceRepo := repository.NewPresenceRepository(redisClient, cfg.Presence.KeyPrefix, logr)
	tracker := service.NewPresenceTracker(presenceRepo, metrics, logr)
	store := service.NewRecordStore(service.RecordStoreParams{
		Feed:     feed,
		Presence: tracker,
		Hub:      hub,
		Metrics:  metrics,
		Logger:   logr,
	})
	guard := service.NewSessionGuard(service.SessionGuardParams{
		Store:         store,
		Metrics:       metrics,
		Logger:        logr,
		SweepInterval: cfg.Auth.SweepInterval,
	})
	go guard.Run(ctx)

	authSvc := service.NewAuthService(service.AuthServiceParams{
		Repo:     repository.NewUserRepository(db),
		Sessions: repository.NewSessionRepository(redisClient),
		Observer: guard,
		Logger:   logr,
		Config: service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		},
	})

	views := service.NewViewStateCache(repository.NewCacheRepository(redisClient, "dashboard:", logr), metrics, cfg.Dashboard.ViewStateTTL, logr, true)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Store:    store,
		Presence: tracker,
		Views:    views,
		Metrics:  metrics,
		Logger:   logr,
		Config:   service.DashboardServiceConfig{PageSize: cfg.Dashboard.PageSize},
	})
	notificationSvc := service.NewNotificationService(service.NotificationServiceParams{
		Repo:    recordRepo,
		Store:   store,
		Hub:     hub,
		Metrics: metrics,
		Logger:  logr,
	})

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("export storage unavailable", zap.Error(err))
	}
	exportSvc := service.NewExportService(service.ExportServiceParams{
		Source:  dashboardSvc,
		Storage: fileStore,
		Signer:  storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		Hub:     hub,
		Metrics: metrics,
		Logger:  logr,
		Config: service.ExportConfig{
			APIPrefix:  cfg.APIPrefix,
			ResultTTL:  cfg.Exports.SignedURLTTL,
			MaxRetries: cfg.Exports.WorkerRetries,
		},
	})
	exportQueue := jobs.NewQueue("exports", exportSvc.Handle, jobs.QueueConfig{
		Workers:     cfg.Exports.WorkerConcurrency,
		MaxRetries:  cfg.Exports.WorkerRetries,
		RetryDelay:  2 * time.Second,
		JobTimeout:  2 * time.Minute,
		Logger:      logr,
		OnExhausted: exportSvc.OnExhausted,
	})
	exportQueue.Start(ctx)
	defer exportQueue.Stop()
	exportSvc.SetQueue(exportQueue)
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	router := newRouter(routerDeps{
		cfg:     cfg,
		logger:  logr,
		metrics: metrics,
		auth:    authSvc,
		guard:   guard,
		audit:   repository.NewAuditRepository(db),
		handlers: routeHandlers{
			auth: handler.NewAuthHandler(authSvc, dashboardSvc, handler.SessionCookieConfig{
				Secure:    cfg.Env == config.EnvProduction,
				LoginPath: cfg.Auth.LoginPath,
			}),
			notifications: handler.NewNotificationHandler(handler.NotificationHandlerParams{
				Reader:    dashboardSvc,
				Mutator:   notificationSvc,
				Refresher: store,
				Events:    hub,
			}),
			exports: handler.NewExportHandler(exportSvc),
			metrics: handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
				"postgres": db.PingContext,
				"redis": func(ctx context.Context) error {
					return cache.Ping(ctx, redisClient)
				},
			}),
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Event streams end with the process context instead of holding Shutdown open.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("shutdown error", zap.Error(err))
	}
	store.Deactivate()
}
