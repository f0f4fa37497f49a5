package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/model"
	"github.com/kpcai/examfront/internal/session"
)

// Config carries deployment settings for the web front-end.
type Config struct {
	BasePath      string
	SecureCookies bool
	AIUsageLimit  int
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	client   *api.Client
	sessions *session.Manager
	config   Config
}

// New creates a new Handler.
func New(client *api.Client, sessions *session.Manager, cfg Config) (*Handler, error) {
	if cfg.AIUsageLimit <= 0 {
		cfg.AIUsageLimit = 10
	}
	return &Handler{client: client, sessions: sessions, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.handleRegisterPage)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/", h.handleHome)
		r.Post("/exam/start", h.handleStartExam)
		r.Get("/exam", h.handleExamRedirect)
		r.Get("/exam/questions/{num}", h.handleQuestionPage)
		r.Post("/exam/questions/{num}/answer", h.handleSetAnswer)
		r.Post("/exam/questions/{num}/save", h.handleSaveAnswer)
		r.Post("/exam/questions/{num}/ai", h.handleAIAssist)
		r.Get("/exam/timer", h.handleTimer)
		r.Post("/exam/submit", h.handleSubmit)
		r.Get("/exam/result", h.handleResult)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/", h.handleAdminDashboard)
			r.Get("/users", h.handleAdminUsers)
			r.Get("/questions", h.handleAdminQuestions)
			r.Get("/questions/new", h.handleQuestionNew)
			r.Post("/questions", h.handleQuestionCreate)
			r.Get("/questions/{id}/edit", h.handleQuestionEdit)
			r.Post("/questions/{id}", h.handleQuestionUpdate)
			r.Post("/questions/{id}/delete", h.handleQuestionDelete)
			r.Post("/questions/auto-generate", h.handleQuestionAutoGenerate)
			r.Get("/exams", h.handleAdminExams)
			r.Get("/exams/{id}", h.handleAdminExamDetails)
			r.Post("/answers/{id}/grade", h.handleGradeAnswer)
			r.Post("/exams/{id}/grade", h.handleGradeExam)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context
// so views can build correct links under sub-path deployments.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// path prefixes p with the configured base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// redirect honors htmx: fragment requests get an HX-Redirect header so the
// browser swaps the whole page instead of the fragment target.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, to string) {
	target := h.path(to)
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
