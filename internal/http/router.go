package http

import (
	"net/http"
	"time"

	"tasktimer/internal/auth"
	"tasktimer/internal/config"
	"tasktimer/internal/http/handler"
	mw "tasktimer/internal/http/middleware"
	"tasktimer/internal/notify"
	"tasktimer/internal/progress"
	"tasktimer/internal/task"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the router exposes.
type Deps struct {
	Users    *auth.Users
	JWT      *auth.JWT
	Tasks    *task.Service
	Progress *progress.Service
	Hub      *notify.Hub
	Limiter  *mw.RateLimiter
	Now      func() time.Time
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.Metrics)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Handler)
		}

		ah := &handler.AuthHandler{Users: d.Users, JWT: d.JWT}
		r.Post("/auth/register", ah.Register)
		r.Post("/auth/login", ah.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.JWT))

			me := &handler.MeHandler{Progress: d.Progress}
			notes := &handler.NotificationHandler{Hub: d.Hub}
			r.Route("/me", func(r chi.Router) {
				r.Get("/", me.Me)
				r.Get("/stats", me.Stats)
				r.Post("/stats/rebuild", me.RebuildStats)
				r.Get("/achievements", me.Achievements)
				r.Get("/notifications", notes.Stream)
			})

			th := &handler.TaskHandler{Svc: d.Tasks, ToggleTimeout: cfg.ToggleTimeout}
			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", th.List)
				r.Post("/", th.Create)

				r.Get("/{id}", th.Get)
				r.Patch("/{id}", th.Update)
				r.Delete("/{id}", th.Delete)

				r.Post("/{id}/completion", th.SetCompletion)
				r.Put("/{id}/labels/{labelID}", th.AssignLabel)
				r.Delete("/{id}/labels/{labelID}", th.UnassignLabel)
			})

			lh := &handler.LabelHandler{Svc: d.Tasks}
			r.Route("/labels", func(r chi.Router) {
				r.Get("/", lh.List)
				r.Post("/", lh.Create)
				r.Delete("/{id}", lh.Delete)
			})

			an := &handler.AnalyticsHandler{Tasks: d.Tasks, Progress: d.Progress, Now: d.Now}
			r.Get("/analytics", an.Summary)
		})
	})

	return r
}
