// ABOUTME: chi route table for the dreams API with per-route auth mode
// ABOUTME: Strict routes reject unauthenticated callers; optional routes serve anonymous ones too

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/dream-gateway/internal/metrics"
)

// routes builds the HTTP handler for the gateway.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(g.requestLogger)
	r.Use(g.recoverer)
	r.Use(g.observeRequests)

	if origins := g.config.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		g.sendJSONError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Health endpoints - no auth required
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, metrics.Handler(g.registry))
	}

	strict := chi.Chain(g.auth.Strict(), recordUserID)
	optional := chi.Chain(g.auth.Optional(), recordUserID)
	generate := chi.Chain(g.auth.Strict(), recordUserID, g.rateLimit)

	r.Route("/api", func(r chi.Router) {
		r.With(strict...).Post("/auth/exchange", g.handleExchangeToken)
		r.With(strict...).Get("/users/me", g.handleMe)

		r.With(optional...).Get("/profiles/{userID}", g.handleGetProfile)
		r.With(strict...).Put("/profiles/{userID}", g.handlePutProfile)

		r.With(strict...).Get("/dreams", g.handleListDreams)
		r.With(strict...).Post("/dreams", g.handleCreateDream)
		r.With(optional...).Get("/dreams/public", g.handleListPublicDreams)
		r.With(optional...).Get("/dreams/{id}", g.handleGetDream)
		r.With(strict...).Patch("/dreams/{id}", g.handleUpdateDream)
		r.With(strict...).Delete("/dreams/{id}", g.handleDeleteDream)

		r.With(strict...).Get("/subscriptions", g.handleListSubscriptions)
		r.With(strict...).Post("/subscriptions", g.handleCreateSubscription)
		r.With(strict...).Get("/subscriptions/{id}", g.handleGetSubscription)
		r.With(strict...).Post("/subscriptions/{id}/cancel", g.handleCancelSubscription)

		r.With(generate...).Post("/transcriptions", g.handleTranscribe)
		r.With(generate...).Post("/dreams/{id}/comic", g.handleGenerateComic)
		r.With(generate...).Post("/dreams/{id}/video", g.handleGenerateVideo)
		r.With(strict...).Get("/generation-tasks/{id}", g.handleGetGenerationTask)

		r.With(strict...).Get("/admin/audit", g.handleListAudit)
	})

	return r
}
