package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/markd/internal/httpserver/mw"
)

func init() { Register(registerProbes) }

// Liveness is public; readiness and infra are operator-only.
func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	guarded := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	guarded.Get("/readyz", handlers.Readyz(d))
	guarded.Get("/infra", handlers.Infra(d))
}
