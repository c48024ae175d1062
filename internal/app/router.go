package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/auth"
	"github.com/odyssey-erp/sentinel/internal/errorpage"
	"github.com/odyssey-erp/sentinel/internal/observability"
	"github.com/odyssey-erp/sentinel/internal/queuemonitor"
	"github.com/odyssey-erp/sentinel/internal/rbac"
	"github.com/odyssey-erp/sentinel/internal/shared"
	"github.com/odyssey-erp/sentinel/internal/users"
	"github.com/odyssey-erp/sentinel/jobs"
	"github.com/odyssey-erp/sentinel/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Errors         *errorpage.Handler
	RBACMiddleware rbac.Middleware

	AuthHandler         *auth.Handler
	AdminHandler        *rbac.Handler
	UsersHandler        *users.Handler
	ActivityHandler     *activity.Handler
	QueueMonitorHandler *queuemonitor.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
		Errors:         params.Errors,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.RBACMiddleware.LoadPrincipal)
	// The outer recoverer covers the stack above; this one sees the principal.
	r.Use(params.Errors.Recoverer)

	r.NotFound(params.Errors.NotFound)
	r.MethodNotAllowed(params.Errors.MethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.Errors.MountRoutes(r)

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/admin", func(r chi.Router) {
		if params.AdminHandler != nil {
			params.AdminHandler.MountRoutes(r)
		}
		r.Route("/users", func(r chi.Router) {
			if params.UsersHandler != nil {
				params.UsersHandler.MountRoutes(r)
			}
			r.Route("/{id}", func(r chi.Router) {
				if params.AdminHandler != nil {
					params.AdminHandler.MountUserRoutes(r)
				}
				if params.UsersHandler != nil {
					params.UsersHandler.MountMemberRoutes(r)
				}
			})
		})
		if params.ActivityHandler != nil {
			r.Route("/activity", params.ActivityHandler.MountRoutes)
		}
		if params.QueueMonitorHandler != nil {
			r.Route("/queues", params.QueueMonitorHandler.MountRoutes)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := web.StaticFS()
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
