package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/hudoor/api/swagger"
	"github.com/noah-isme/hudoor/internal/handler"
	"github.com/noah-isme/hudoor/internal/middleware"
	"github.com/noah-isme/hudoor/internal/repository"
	"github.com/noah-isme/hudoor/internal/service"
	"github.com/noah-isme/hudoor/pkg/activation"
	"github.com/noah-isme/hudoor/pkg/cache"
	"github.com/noah-isme/hudoor/pkg/config"
	"github.com/noah-isme/hudoor/pkg/database"
	"github.com/noah-isme/hudoor/pkg/export"
	"github.com/noah-isme/hudoor/pkg/jobs"
	"github.com/noah-isme/hudoor/pkg/kvstore"
	"github.com/noah-isme/hudoor/pkg/logger"
	corsmiddleware "github.com/noah-isme/hudoor/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hudoor/pkg/middleware/requestid"
	"github.com/noah-isme/hudoor/pkg/storage"
)

// @title Hudoor API
// @version 1.0.0
// @description School attendance and truancy tracking
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	backend, err := database.NewStore(cfg, logr)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	store := kvstore.Instrument(backend, metrics)
	if err := store.Open(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close() //nolint:errcheck

	school := repository.NewSchoolRepository(store, logr)
	if err := school.Load(ctx); err != nil {
		return fmt.Errorf("load school: %w", err)
	}
	attendanceRepo := repository.NewAttendanceRepository(store, logr)
	if err := attendanceRepo.Load(ctx); err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}
	settingsRepo := repository.NewSettingsRepository(store)

	deps := map[string]handler.ReadinessCheck{
		"store": func(ctx context.Context) error {
			_, _, err := store.Get(ctx, kvstore.CollectionSettings, repository.SettingsKeySchool)
			return err
		},
	}

	var reportCache *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		reportCache = service.NewCacheService(cacheRepo, metrics, "reports", cfg.Reports.CacheTTL, logr, true)
		if err := reportCache.Invalidate(ctx); err != nil {
			logr.Warn("report cache not cleared", zap.Error(err))
		}
		deps["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	validate := service.NewValidator()
	fingerprint := activation.Fingerprint(activation.Detect(cfg.Activation.DeviceID))
	settingsSvc := service.NewSettingsService(settingsRepo, service.SettingsConfig{
		Fingerprint:       fingerprint,
		Salt:              cfg.Activation.Salt,
		RequireActivation: cfg.Activation.Required,
	}, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, school, metrics, validate, logr)
	reportSvc := service.NewReportService(attendanceRepo, school, reportCache, logr)
	stopWatch := reportSvc.Watch(school, attendanceRepo)
	defer stopWatch()

	exportSvc := service.NewExportService(attendanceSvc, reportSvc, school, settingsSvc, logr,
		export.NewCSVExporter(), export.NewPDFExporter(cfg.Reports.FontPath), export.NewXLSXExporter())
	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return fmt.Errorf("export storage: %w", err)
	}

	// The queue and the job service refer to each other.
	var jobSvc *service.ExportJobService
	queue := jobs.NewQueue("exports", func(ctx context.Context, j jobs.Job) error {
		return jobSvc.Handle(ctx, j)
	}, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Timeout:    2 * time.Minute,
		Logger:     logr,
		OnFailure: func(ctx context.Context, j jobs.Job, err error) {
			jobSvc.HandleFailure(ctx, j, err)
		},
	})
	jobSvc = service.NewExportJobService(repository.NewExportJobRepository(store), queue, exportSvc, files,
		storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL), metrics, validate, logr,
		service.ExportJobConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
	queue.Start(ctx)
	defer queue.Stop()
	if _, err := jobSvc.Resume(ctx); err != nil {
		logr.Warn("pending exports not resumed", zap.Error(err))
	}
	jobSvc.StartCleanup(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	handler.Register(r, cfg.APIPrefix, handler.Handlers{
		Grades:     handler.NewGradeHandler(service.NewGradeService(school, validate, logr)),
		Classes:    handler.NewClassHandler(service.NewClassService(school, validate, logr)),
		Students:   handler.NewStudentHandler(service.NewStudentService(school, validate, logr)),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Reports:    handler.NewReportHandler(reportSvc),
		Messaging:  handler.NewMessagingHandler(service.NewMessagingService(school, attendanceRepo, settingsRepo, logr)),
		Exports:    handler.NewExportHandler(jobSvc, logr),
		Imports:    handler.NewImportHandler(service.NewImportService(school, cfg.Reports.MaxImportBytes, validate, logr)),
		Settings:   handler.NewSettingsHandler(settingsSvc),
		Metrics:    handler.NewMetricsHandler(metrics, deps),
	}, middleware.RequireActivation(settingsSvc, cfg.Activation.Required))

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
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("fingerprint", fingerprint),
			zap.Int("students", school.StudentCount()),
		)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
