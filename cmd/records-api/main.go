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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academic-records-api/api/swagger"
	"github.com/noah-isme/academic-records-api/internal/handler"
	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/internal/service"
	"github.com/noah-isme/academic-records-api/migrations"
	"github.com/noah-isme/academic-records-api/pkg/config"
	"github.com/noah-isme/academic-records-api/pkg/database"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
	"github.com/noah-isme/academic-records-api/pkg/export"
	"github.com/noah-isme/academic-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/cors"
	"github.com/noah-isme/academic-records-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/academic-records-api/pkg/response"
	"github.com/noah-isme/academic-records-api/pkg/tracing"
)

// @title Academic Records API
// @version 1.0.0
// @description Grade and attendance ledgers with atomic batch writes and derived averages
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logr.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, migrations.FS); err != nil {
			return err
		}
		logr.Info("database migrations applied")
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := service.NewMetricsService()
	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go sweepLimiter(ctx, limiter, cfg.RateLimit.Window)

	router := newRouter(cfg, logr, db, metrics, limiter)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, logr *zap.Logger, db *sqlx.DB, metrics *service.MetricsService, limiter *ratelimit.Limiter) *gin.Engine {
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewSubjectAssignmentRepository(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	refs := service.NewReferenceValidator(enrollmentRepo, assignmentRepo, logr)
	coordinator := service.NewTransactionCoordinator(db, cfg.Ledger.TxTimeout, metrics, logr)
	gradeLedger := service.NewGradeLedger(gradeRepo, refs, coordinator, metrics, logr)
	attendanceLedger := service.NewAttendanceLedger(attendanceRepo, refs, coordinator, cfg.Ledger.MaxBatchSize, metrics, logr)
	reportSvc := service.NewReportService(gradeRepo, attendanceRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	gradeHandler := handler.NewGradeHandler(gradeLedger)
	attendanceHandler := handler.NewAttendanceHandler(attendanceLedger)
	studentHandler := handler.NewStudentHandler(gradeLedger, attendanceLedger, reportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(tracing.GinMiddleware())
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := []models.UserRole{models.RoleProfessor, models.RoleCoordinator}
	throttle := limiter.Middleware(actorKey, func(c *gin.Context) {
		response.Error(c, appErrors.ErrTooManyRequests)
	})

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	grades := api.Group("/grades")
	grades.POST("", middleware.Audit(logr, "record_grade"), middleware.RequireRoles(staff...), throttle, gradeHandler.Record)
	grades.GET("/average", gradeHandler.Average)

	attendance := api.Group("/attendance")
	attendance.POST("/batch", middleware.Audit(logr, "record_attendance_batch"), middleware.RequireRoles(staff...), throttle, attendanceHandler.RecordBatch)
	attendance.GET("/ratio", attendanceHandler.Ratio)

	students := api.Group("/students/:id")
	students.Use(middleware.RBAC(string(models.RoleProfessor), string(models.RoleCoordinator), middleware.RoleSelf))
	students.GET("/grades", studentHandler.Grades)
	students.GET("/attendance", studentHandler.Attendance)
	students.GET("/transcript", studentHandler.Transcript)

	system := api.Group("/system")
	system.Use(middleware.RequireRoles(models.RoleCoordinator, models.RoleAdmin))
	system.GET("/metrics", metricsHandler.System)

	return r
}

func actorKey(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func sweepLimiter(ctx context.Context, limiter *ratelimit.Limiter, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
