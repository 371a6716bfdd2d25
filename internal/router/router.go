package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/handler"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Course    *handler.CourseHandler
	Subject   *handler.SubjectHandler
	Question  *handler.QuestionHandler
	Exam      *handler.ExamHandler
	Dashboard *handler.DashboardHandler
	Monitor   *handler.MonitorHandler
	System    *handler.SystemHandler
	Candidate *handler.CandidateHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// A nil limiter disables candidate rate limiting.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Admin Group ────────────────────────────────────────────────
	admin := router.Group("/api/v1/admin")
	admin.Use(middleware.RequireAdmin(auth), middleware.Brotli(), middleware.NoStore())
	{
		admin.GET("/dashboard", handlers.Dashboard.GetDashboardData)

		admin.GET("/courses", handlers.Course.ListCourses)
		admin.POST("/courses", handlers.Course.CreateCourse)
		admin.GET("/courses/:id", handlers.Course.GetCourse)
		admin.PUT("/courses/:id", handlers.Course.UpdateCourse)
		admin.DELETE("/courses/:id", handlers.Course.DeleteCourse)
		admin.GET("/courses/:id/inventory", handlers.Course.GetInventory)
		admin.GET("/courses/:id/subjects", handlers.Subject.ListSubjects)
		admin.POST("/courses/:id/subjects", handlers.Subject.CreateSubject)

		admin.PUT("/subjects/:id", handlers.Subject.UpdateSubject)
		admin.DELETE("/subjects/:id", handlers.Subject.DeleteSubject)
		admin.GET("/subjects/:id/questions", handlers.Question.ListQuestions)
		admin.POST("/subjects/:id/questions", handlers.Question.CreateQuestion)

		admin.GET("/questions/:id", handlers.Question.GetQuestion)
		admin.PUT("/questions/:id", handlers.Question.UpdateQuestion)
		admin.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		admin.GET("/exams", handlers.Exam.ListExams)
		admin.POST("/exams", handlers.Exam.CreateExam)
		admin.GET("/exams/:id", handlers.Exam.GetExam)
		admin.PUT("/exams/:id", handlers.Exam.UpdateExam)
		admin.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		admin.POST("/exams/:id/publish", handlers.Exam.PublishExam)
		admin.POST("/exams/:id/unpublish", handlers.Exam.UnpublishExam)
		admin.POST("/exams/:id/archive", handlers.Exam.ArchiveExam)
		admin.PUT("/exams/:id/access-code", handlers.Exam.SetAccessCode)
		admin.GET("/exams/:id/results", handlers.Exam.ListResults)
		admin.GET("/exams/:id/stats", handlers.Dashboard.GetExamStats)
		admin.GET("/exams/:id/sessions", handlers.Monitor.ListLiveSessions)

		admin.GET("/system/metrics", handlers.System.GetMetrics)
	}

	// SSE streams skip brotli so events are flushed as they are written.
	adminStream := router.Group("/api/v1/admin")
	adminStream.Use(middleware.RequireAdmin(auth))
	{
		adminStream.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)
		adminStream.GET("/system/metrics/stream", handlers.System.MetricsSSE)
	}

	// ─── 2. Candidate Group ────────────────────────────────────────────
	candidate := router.Group("/api/v1/candidate")
	candidate.Use(middleware.RequireCandidate(auth))
	if limiter != nil {
		candidate.Use(limiter.Middleware())
	}
	candidate.Use(middleware.Brotli(), middleware.NoStore())
	{
		candidate.GET("/exams", handlers.Candidate.ListExams)
		candidate.POST("/exams/:id/start", handlers.Candidate.StartExam)
		candidate.GET("/sessions/:id", handlers.Candidate.GetSession)
		candidate.GET("/sessions/:id/paper", handlers.Candidate.GetPaper)
		candidate.PUT("/sessions/:id/answers", handlers.Candidate.SaveAnswer)
		candidate.PUT("/sessions/:id/position", handlers.Candidate.Navigate)
		candidate.POST("/sessions/:id/submit", handlers.Candidate.Submit)
		candidate.GET("/sessions/:id/result", handlers.Candidate.GetResult)
	}

	// ─── 3. WebSocket Group (Candidate WS Auth) ────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWS(auth))
	{
		ws.GET("/candidate/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}
