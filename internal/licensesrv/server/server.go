// Package server wires the HTTP surface: the public activation endpoint, the
// health probe, and the token-gated admin API.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/cspline/activationsrv/internal/common/httpx"
	"github.com/cspline/activationsrv/internal/common/middleware"
	"github.com/cspline/activationsrv/internal/licensesrv/activation"
	"github.com/cspline/activationsrv/internal/licensesrv/config"
	"github.com/cspline/activationsrv/internal/licensesrv/db"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
)

// Server holds the router and the request-scoped dependencies.
type Server struct {
	Router       *chi.Mux
	orchestrator *activation.Orchestrator
}

// storeFromContext hands the orchestrator the store bound to the request's
// database connection.
func storeFromContext(ctx context.Context) activation.ClaimStore {
	if d := db.DB(ctx); d != nil {
		return d
	}
	return nil
}

// CreateNewServer builds the server around the given signer and mounts all
// handlers.
func CreateNewServer(signer *license.Signer) *Server {
	s := &Server{
		Router:       chi.NewRouter(),
		orchestrator: activation.NewOrchestrator(signer, storeFromContext),
	}
	s.MountHandlers()
	return s
}

// MountHandlers sets up middleware and routes.
func (s *Server) MountHandlers() {
	r := s.Router

	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicHandler)
	if config.Config().HandleCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   config.Config().CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(limitRequestBody(config.Config().MaxRequestBodySize))

	r.Get("/health", httpx.WrapHttpRsp(healthHandler))

	r.Group(func(r chi.Router) {
		r.Use(db.LoadDBMiddleware)
		r.Use(middleware.SetTimeout(config.Config().GetRequestTimeout()))

		r.Post("/activate", httpx.WrapHttpRsp(s.activateHandler))

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Post("/keys", httpx.WrapHttpRsp(createKeysHandler))
			r.Get("/keys", httpx.WrapHttpRsp(listKeysHandler))
			r.Post("/keys/{keyID}/reset", httpx.WrapHttpRsp(resetKeyHandler))
			r.Get("/activations", httpx.WrapHttpRsp(listActivationsHandler))
			r.Get("/stats", httpx.WrapHttpRsp(statsHandler))
		})
	})
}

// limitRequestBody caps request bodies. Oversized payloads surface as a 413
// from the request decode in httpx.GetRequestData.
func limitRequestBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
