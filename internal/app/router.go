package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelier-ops/atelier-ops/internal/audit"
	"github.com/atelier-ops/atelier-ops/internal/auth"
	"github.com/atelier-ops/atelier-ops/internal/deals"
	"github.com/atelier-ops/atelier-ops/internal/payledger"
	"github.com/atelier-ops/atelier-ops/internal/projects"
	"github.com/atelier-ops/atelier-ops/internal/team"
)

// RouterParams collects everything NewRouter mounts.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	AuthMW    *auth.Middleware
	Auth      *auth.Handler
	Deals     *deals.Handler
	Projects  *projects.Handler
	Team      *team.Handler
	PayLedger *payledger.Handler
	Audit     *audit.Handler
}

// NewRouter assembles the HTTP surface. Everything except login and
// the health probe sits behind bearer auth.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		p.Auth.MountRoutes(r, LoginRateLimit())
	})

	r.Group(func(r chi.Router) {
		r.Use(p.AuthMW.RequireAuth)
		r.Route("/deals", p.Deals.MountRoutes)
		r.Route("/projects", p.Projects.MountProjectRoutes)
		r.Route("/tasks", p.Projects.MountTaskRoutes)
		r.Route("/team", p.Team.MountTeamRoutes)
		r.Route("/pay-status", p.Team.MountPayStatusRoutes)
		r.Route("/profit-share-status", p.Team.MountProfitShareRoutes)
		r.Route("/pay-log", p.PayLedger.MountRoutes)
		r.Route("/audit-log", p.Audit.MountRoutes)
	})

	return r
}
