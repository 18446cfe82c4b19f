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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/scantrack/attendance-api/api/swagger"
	"github.com/scantrack/attendance-api/internal/handler"
	"github.com/scantrack/attendance-api/internal/middleware"
	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/internal/repository"
	"github.com/scantrack/attendance-api/internal/service"
	"github.com/scantrack/attendance-api/pkg/cache"
	"github.com/scantrack/attendance-api/pkg/clock"
	"github.com/scantrack/attendance-api/pkg/config"
	"github.com/scantrack/attendance-api/pkg/database"
	"github.com/scantrack/attendance-api/pkg/jobs"
	"github.com/scantrack/attendance-api/pkg/logger"
	corsmiddleware "github.com/scantrack/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scantrack/attendance-api/pkg/middleware/requestid"
	"github.com/scantrack/attendance-api/pkg/qrtoken"
)

// @title ScanTrack Attendance API
// @version 1.0.0
// @description QR-scan attendance sessions, classification and reconciliation
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

	schoolClock, err := clock.NewSchoolClock(cfg.Attendance.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid school timezone", "timezone", cfg.Attendance.Timezone, "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Summary caching degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	// Repositories.
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, cfg.JWT)
	sessionSvc := service.NewSessionService(sessionRepo, schoolClock, cfg.Attendance, nil, logr)
	reconcileSvc := service.NewReconcileService(sessionRepo, attendanceRepo, studentRepo, schoolClock, metricsSvc, logr)
	sessionSvc.SetReconciler(reconcileSvc)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, sessionSvc, auditRepo, cacheRepo, metricsSvc, schoolClock, cfg.Attendance, cfg.Cache, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	reportSvc := service.NewReportService(sessionSvc, attendanceRepo, schoolClock, logr)
	signer := qrtoken.NewSigner(cfg.QR.TokenSecret, cfg.QR.TokenTTL)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, reconcileSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, signer, schoolClock)
	reportHandler := handler.NewReportHandler(reportSvc)
	qrHandler := handler.NewQRHandler(studentRepo, signer, schoolClock)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.GET("/metrics/summary", func(c *gin.Context) {
		snapshot, err := metricsSvc.Summary()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	})
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	staff := authed.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	staff.GET("/students", studentHandler.List)
	staff.GET("/students/:admissionNumber", studentHandler.Get)
	staff.GET("/sessions", sessionHandler.List)
	staff.GET("/sessions/:id", sessionHandler.Get)
	staff.GET("/sessions/:id/attendance", attendanceHandler.ListBySession)
	staff.GET("/sessions/:id/summary", attendanceHandler.Summary)
	staff.GET("/sessions/:id/report", reportHandler.Download)
	staff.POST("/attendance/scan", attendanceHandler.Scan)
	staff.GET("/qr/token/:admissionNumber", qrHandler.Token)

	admin := authed.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/sessions", sessionHandler.Create)
	admin.POST("/sessions/:id/activate", sessionHandler.Activate)
	admin.POST("/sessions/:id/complete", sessionHandler.ForceComplete)
	admin.POST("/attendance/:id/excuse", attendanceHandler.Excuse)
	admin.POST("/attendance/override", attendanceHandler.Override)
	admin.POST("/reconcile", sessionHandler.Reconcile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweepQueue *jobs.Queue
	if cfg.Attendance.SweepEnabled {
		sweepQueue = jobs.NewQueue("reconcile-sweep", func(jobCtx context.Context, _ jobs.Job) error {
			report, err := reconcileSvc.Reconcile(jobCtx)
			if err != nil {
				return err
			}
			if report.SessionsProcessed > 0 {
				logr.Info("reconcile sweep finished",
					zap.Int("sessions_processed", report.SessionsProcessed),
					zap.Int("sessions_completed", report.SessionsCompleted),
					zap.Int("absent_marked", report.AbsentMarked))
			}
			return nil
		}, jobs.QueueConfig{Workers: cfg.Attendance.SweepWorkers, Logger: logr})
		sweepQueue.Start(ctx)

		go func() {
			ticker := time.NewTicker(cfg.Attendance.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case tick := <-ticker.C:
					job := jobs.Job{ID: fmt.Sprintf("sweep-%d", tick.Unix()), Type: "reconcile"}
					if err := sweepQueue.Enqueue(job); err != nil {
						logr.Warn("failed to enqueue reconcile sweep", zap.Error(err))
					}
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown incomplete", "error", err)
	}
	if sweepQueue != nil {
		sweepQueue.Stop()
	}
}
