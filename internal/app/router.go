package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/praxisdesk/praxisdesk/internal/auth"
	"github.com/praxisdesk/praxisdesk/internal/consultancy"
	"github.com/praxisdesk/praxisdesk/internal/project"
	"github.com/praxisdesk/praxisdesk/internal/rbac"
	"github.com/praxisdesk/praxisdesk/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthMiddleware     auth.Middleware
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *rbac.Handler
	ConsultancyHandler *consultancy.Handler
	ProjectHandler     *project.Handler
}

// NewRouter constructs the chi.Router with application defaults. Auth
// routes are public; everything else requires a resolved principal.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireAuth)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/consultancies", params.ConsultancyHandler.MountRoutes)
		r.Route("/projects", params.ProjectHandler.MountRoutes)
	})

	return r
}
