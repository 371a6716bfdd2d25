package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/database"
	"github.com/stemsi/examcore/internal/handler"
	"github.com/stemsi/examcore/internal/logger"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/router"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/session"
	"github.com/stemsi/examcore/internal/validator"
	"github.com/stemsi/examcore/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting examcore")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Schema ────────────────────────────────────────────────────────
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate schema")
		}
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	courseRepo := repository.NewCourseRepository(pool)
	subjectRepo := repository.NewSubjectRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	resultRepo := repository.NewExamResultRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Initialize Engine & Services ──────────────────────────────────
	engine := session.NewEngine(sessionRepo, log, session.WithGrace(cfg.ExpiryGrace))
	fastLane := service.NewRedisFastLane(rdb)

	authService := service.NewAuthService(cfg)
	courseService := service.NewCourseService(courseRepo, subjectRepo, log)
	subjectService := service.NewSubjectService(subjectRepo, log)
	questionService := service.NewQuestionService(questionRepo)
	examService := service.NewExamService(examRepo, questionRepo, subjectRepo, resultRepo, fastLane, authService, log)
	sessionService := service.NewExamSessionService(engine, examRepo, questionRepo, resultRepo, sessionRepo, fastLane, authService, log)
	dashboardService := service.NewDashboardService(dashboardRepo)
	monitorService := service.NewMonitorService(monitorRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Course:    handler.NewCourseHandler(courseService),
		Subject:   handler.NewSubjectHandler(subjectService),
		Question:  handler.NewQuestionHandler(questionService),
		Exam:      handler.NewExamHandler(examService),
		Dashboard: handler.NewDashboardHandler(dashboardService),
		Monitor:   handler.NewMonitorHandler(examService, monitorService, log),
		System:    handler.NewSystemHandler(rdb, log),
		Candidate: handler.NewCandidateHandler(sessionService),
		WS:        handler.NewWSHandler(sessionService, monitorService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	resultWorker := worker.NewResultWorker(resultRepo, rdb, log)
	expiryWorker := worker.NewExpiryWorker(sessionRepo, sessionService, cfg.ExpirySweepInterval, cfg.ExpiryGrace, engine.Now, log)

	workers.Add(2)
	go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); expiryWorker.Start(workerCtx) }()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go limiter.Run(workerCtx.Done())

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the result worker flushes its pending batch.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
