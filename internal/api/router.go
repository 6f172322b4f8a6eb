package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"algoverse/internal/api/handler"
	"algoverse/internal/api/middleware"
	"algoverse/internal/app/service"
	"algoverse/internal/platform/queue"
)

// requestTimeout bounds the store-only routes. Run and submit are bounded by
// their per-call executor and store timeouts instead.
const requestTimeout = 60 * time.Second

type RouterOptions struct {
	CORSAllowedOrigins []string
	RunLimiter         queue.Limiter // nil disables
	SubmitLimiter      queue.Limiter // nil disables
}

func NewRouter(
	log *zap.Logger,
	authService *service.AuthService,
	problemService *service.ProblemService,
	submissionService *service.SubmissionService,
	adminService *service.AdminService,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))

	requireAuth := middleware.RequireAuth(authService)
	adminOnly := middleware.AdminOnly(authService)

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))
		handler.NewProblemHandler(problemService).RegisterRoutes(r)
		handler.NewAuthHandler(authService, requireAuth).RegisterRoutes(r)
		handler.NewAdminHandler(problemService, adminService, requireAuth, adminOnly).RegisterRoutes(r)
	})
	handler.NewSubmissionHandler(
		submissionService,
		requireAuth,
		middleware.RateLimit(opts.RunLimiter, log),
		middleware.RateLimit(opts.SubmitLimiter, log),
	).RegisterRoutes(r)

	return r
}
