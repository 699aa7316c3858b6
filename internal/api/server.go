// Package api provides the HTTP API server and handlers for the Komandorr server.
package api

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"log/slog"

	"github.com/komandorr/komandorr-server/internal/config"
	"github.com/komandorr/komandorr-server/internal/settings"
	"github.com/komandorr/komandorr-server/internal/store"
	"github.com/komandorr/komandorr-server/internal/validation"
)

// apiVersion is reported by the health endpoint and the OpenAPI spec.
const apiVersion = "1.0.0"

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *store.Store
	services   *Services
	settings   *settings.Manager
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger
	adminToken string
	validator  *validation.Validator

	// publicRateLimiter throttles the unauthenticated redemption endpoints.
	publicRateLimiter *RateLimiter
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(cfg *config.Config, st *store.Store, services *Services, settingsManager *settings.Manager, logger *slog.Logger) *Server {
	s := &Server{
		store:      st,
		services:   services,
		settings:   settingsManager,
		router:     chi.NewRouter(),
		logger:     logger,
		adminToken: cfg.Admin.Token,
		validator:  validation.New(),

		// The join flow polls every 2 seconds; 60/min with burst leaves
		// room for one attempt per IP plus retries.
		publicRateLimiter: NewRateLimiter(60, time.Minute, 30),
	}

	s.setupMiddleware(cfg)

	humaConfig := huma.DefaultConfig("Komandorr API", apiVersion)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:   "http",
			Scheme: "bearer",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerInviteRoutes()
	s.registerOAuthRoutes()
	s.registerSettingsRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware(cfg *config.Config) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// The dashboard frontend is served from a different origin.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public join endpoints are rate limited by client IP.
	s.router.Use(publicRateLimit(s))
}

// publicRateLimit throttles the unauthenticated endpoints under /api/v1/oauth
// and /api/v1/invites/validate. Admin routes are exempt.
func publicRateLimit(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				RateLimitMiddleware(s.publicRateLimiter, s.logger)(next).ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string) bool {
	const (
		oauthPrefix  = "/api/v1/oauth/"
		validatePath = "/api/v1/invites/validate"
	)
	if len(path) >= len(oauthPrefix) && path[:len(oauthPrefix)] == oauthPrefix {
		return true
	}
	return path == validatePath
}
