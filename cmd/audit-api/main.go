package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/activity-audit-api/api/swagger"
	"github.com/noah-isme/activity-audit-api/internal/handler"
	"github.com/noah-isme/activity-audit-api/internal/middleware"
	"github.com/noah-isme/activity-audit-api/internal/repository"
	"github.com/noah-isme/activity-audit-api/internal/service"
	"github.com/noah-isme/activity-audit-api/pkg/cache"
	"github.com/noah-isme/activity-audit-api/pkg/config"
	"github.com/noah-isme/activity-audit-api/pkg/database"
	"github.com/noah-isme/activity-audit-api/pkg/integrity"
	"github.com/noah-isme/activity-audit-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/activity-audit-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/activity-audit-api/pkg/middleware/requestid"
	"github.com/noah-isme/activity-audit-api/pkg/redact"
)

// @title Activity Audit API
// @version 1.0.0
// @description Tamper-evident activity log with retention and security analysis
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logr.Info("database migrations applied")
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	// Reports are recomputed on every request when Redis is unavailable.
	var cacheRepo service.CacheRepository
	if cfg.Security.ReportCacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, security report cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, "audit:", logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Security.ReportCacheTTL, logr, cfg.Security.ReportCacheEnabled)

	activityRepo := repository.NewActivityRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	policyRepo := repository.NewRetentionPolicyRepository(db)
	cleanupRepo := repository.NewCleanupLogRepository(db)
	alertRepo := repository.NewSecurityAlertRepository(db)

	signer, err := integrity.NewSigner(cfg.Audit.SigningVersion, cfg.Audit.SigningSecret, cfg.Audit.LegacySecrets)
	if err != nil {
		return fmt.Errorf("init signer: %w", err)
	}
	logr.Info("activity signer ready", zap.String("version", signer.Version()), zap.Strings("verifies", signer.Versions()))
	redactor := redact.New(redact.Options{
		ExtraKeys: cfg.Redaction.ExtraKeys,
		KeepChars: cfg.Redaction.KeepChars,
		MaskChar:  maskRune(cfg.Redaction.MaskChar),
	})

	securitySvc := service.NewSecurityService(activityRepo, alertRepo, cacheSvc, metrics, validate, logr, service.SecurityOptions{
		BruteForceWindow:    cfg.Security.BruteForceWindow,
		BruteForceThreshold: cfg.Security.BruteForceThreshold,
		SuspiciousScore:     cfg.Security.SuspiciousScore,
		AnomalyWindow:       cfg.Security.AnomalyWindow,
		AnomalyHistory:      cfg.Security.AnomalyHistory,
		AnomalyMultiplier:   cfg.Security.AnomalyMultiplier,
		HighRiskTypes:       cfg.Audit.HighRiskTypes,
		ReportCacheTTL:      cfg.Security.ReportCacheTTL,
		MaxReportWindow:     cfg.Security.MaxReportWindow,
		HistorySample:       cfg.Security.HistorySample,
		BatchSize:           cfg.Audit.BatchSize,
	})

	worker := service.NewAnalysisWorker(securitySvc, metrics, logr, service.AnalysisWorkerConfig{
		Workers:    cfg.Audit.AnalysisWorkers,
		BufferSize: cfg.Audit.AnalysisBuffer,
		MaxRetries: cfg.Audit.AnalysisRetries,
	})
	worker.Start(ctx)
	defer worker.Stop()

	activitySvc := service.NewActivityService(activityRepo, redactor, signer, worker, metrics, validate, logr)
	integritySvc := service.NewIntegrityService(activityRepo, signer, securitySvc, metrics, validate, logr, cfg.Audit.BatchSize)
	retentionSvc := service.NewRetentionService(activityRepo, archiveRepo, policyRepo, cleanupRepo, signer, activitySvc, cacheSvc, metrics, validate, logr, cfg.Audit.BatchSize)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	var maintenanceHandler *handler.MaintenanceHandler
	if cfg.Maintenance.Enabled {
		scheduler := service.NewMaintenanceScheduler(service.MaintenanceSchedule{
			Retention:       cfg.Maintenance.RetentionCron,
			IntegrityAudit:  cfg.Maintenance.IntegrityAuditCron,
			BruteForceSweep: cfg.Maintenance.BruteForceSweepCron,
			AnomalySweep:    cfg.Maintenance.AnomalySweepCron,
			SystemActor:     cfg.Maintenance.SystemActor,
		}, retentionSvc, integritySvc, securitySvc, logr)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start maintenance scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := scheduler.Stop(stopCtx); err != nil {
				logr.Warn("maintenance scheduler stop timed out", zap.Error(err))
			}
		}()
		maintenanceHandler = handler.NewMaintenanceHandler(scheduler)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	var extra []gin.HandlerFunc
	if cfg.Audit.LogAPIAccess {
		extra = append(extra, middleware.APIAccess(activitySvc, logr, "/health", "/metrics", cfg.APIPrefix+"/activities"))
	}

	handlers := handler.Handlers{
		Activity:    handler.NewActivityHandler(activitySvc),
		Integrity:   handler.NewIntegrityHandler(integritySvc),
		Retention:   handler.NewRetentionHandler(retentionSvc),
		Security:    handler.NewSecurityHandler(securitySvc),
		Metrics:     handler.NewMetricsHandler(metrics, worker, db),
		Maintenance: maintenanceHandler,
	}
	handler.RegisterRoutes(r, cfg.APIPrefix, handlers, middleware.JWT(tokens), extra...)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func maskRune(s string) rune {
	if s == "" {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r
}
