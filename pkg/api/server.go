package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/metrics"
	"github.com/authbridge/authbridge/pkg/store"
	"github.com/authbridge/authbridge/pkg/token"
	"github.com/authbridge/authbridge/pkg/types"
)

const requestTimeout = 30 * time.Second

// Server wires the entity store, token authority and auth boundary into the
// HTTP surface
type Server struct {
	cfg       *config.Config
	store     *store.Store
	cache     *cache.Cache
	authn     *auth.Authenticator
	limiter   *auth.Limiter
	authority *token.Authority
	issuer    *token.Issuer
	registry  *types.Registry
	router    chi.Router
	logger    zerolog.Logger
}

// NewServer assembles the router over the given components
func NewServer(
	cfg *config.Config,
	st *store.Store,
	authn *auth.Authenticator,
	limiter *auth.Limiter,
	authority *token.Authority,
	issuer *token.Issuer,
	registry *types.Registry,
) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		cache:     st.Cache(),
		authn:     authn,
		limiter:   limiter,
		authority: authority,
		issuer:    issuer,
		registry:  registry,
		logger:    log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(observe)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/services", func(r chi.Router) {
			r.Post("/", s.handleServiceCreate)
			r.Get("/", s.handleServiceIndex)
			r.Get("/list", s.handleServiceList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleServiceGet)
				r.Delete("/", s.handleServiceDelete)
				r.Get("/version", s.handleServiceVersion)
				r.Put("/rekey", s.handleServiceRekey)
				r.Put("/info", s.handleServiceUpdateInfo)
				r.Put("/content", s.handleServiceUpdateContent)
				r.Get("/discovery", s.handleServiceDiscovery)
				r.Get("/callers", s.handleServiceCallers)
				r.Get("/links", s.handleServiceAllLinks)
			})
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", s.handleWorkspaceCreate)
			r.Get("/", s.handleWorkspaceIndex)
			r.Get("/list", s.handleWorkspaceList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleWorkspaceGet)
				r.Delete("/", s.handleWorkspaceDelete)
				r.Get("/version", s.handleWorkspaceVersion)
				r.Put("/rekey", s.handleWorkspaceRekey)
				r.Put("/info", s.handleWorkspaceUpdateInfo)
				r.Put("/content", s.handleWorkspaceUpdateContent)
				r.Post("/link-service", s.handleWorkspaceLink)
				r.Post("/unlink-service", s.handleWorkspaceUnlink)
			})
		})

		r.Route("/token", func(r chi.Router) {
			r.Post("/{service_id}/issue", s.handleTokenIssue)
			r.Post("/verify", s.handleTokenVerify)
			r.Get("/jwks", s.handleJWKS)
			r.Get("/public_key", s.handlePublicKey)
		})

		r.Route("/system", func(r chi.Router) {
			r.Post("/rotate-keys", s.handleRotateKeys)
			r.Post("/rotate", s.handleRotateAdminKeys)
			r.Get("/diagnostics", s.handleDiagnostics)
			r.Get("/version", s.handleSystemVersion)
			r.Get("/heartbeat", s.handleHeartbeat)
		})

		r.Get("/admin/data", s.handleAdminData)
	})

	return r
}

// Handler returns the assembled router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until the context is cancelled, then
// drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("api server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireAdmin applies the admin rate limit and admin-key check
func (s *Server) requireAdmin(r *http.Request) error {
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketAdmin, auth.Principal(key), s.cfg.AdminLimitPerMin); err != nil {
		return err
	}
	return s.authn.RequireAdmin(key)
}
