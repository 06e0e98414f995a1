package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/markd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/markd/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/markd/internal/httpserver/mw"
)

func init() { Register(registerAPI) }

// registerAPI mounts the owner-scoped API. The feed route stays outside the
// request timeout: it lives as long as the websocket does.
func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(api chi.Router) {
		api.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		api.Use(mw.Authenticate(d.Identity, d.Logger))
		api.Use(mw.RateLimit(mw.RateLimitConfig{
			Burst:        d.RateBurst,
			RefillPerMin: d.RateRefill,
			MaxEntries:   10000,
			TrustProxy:   d.TrustProxy,
		}))

		api.Group(func(rest chi.Router) {
			if d.RequestTimeout > 0 {
				rest.Use(middleware.Timeout(d.RequestTimeout))
			}
			rest.Get("/bookmarks", handlers.ListBookmarks(d))
			rest.Post("/bookmarks", handlers.CreateBookmark(d))
			rest.Delete("/bookmarks/{id}", handlers.DeleteBookmark(d))
		})

		api.Get("/feed", handlers.Feed(d))
	})
}
