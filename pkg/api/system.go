package api

import (
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/store"
	"github.com/authbridge/authbridge/pkg/types"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRotateKeys adds a fresh signing keypair to the ring
func (s *Server) handleRotateKeys(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	newKid, err := s.authority.Ring().Rotate(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"new_kid": newKid,
		"current": s.authority.Ring().CurrentKid(),
	})
}

// handleRotateAdminKeys re-reads the admin key set from the environment, so
// keys can be swapped without a restart
func (s *Server) handleRotateAdminKeys(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	keys, err := config.ParseAdminKeys(os.Getenv("AUTHBRIDGE_API_KEYS"))
	if err != nil {
		respondError(w, err)
		return
	}
	s.authn.SetAdminKeys(keys)
	s.logger.Info().Int("count", len(keys)).Msg("admin key set rotated")
	respondJSON(w, http.StatusOK, map[string]int{"admin_keys": len(keys)})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	services, workspaces := s.cache.Sizes()
	respondJSON(w, http.StatusOK, map[string]any{
		"backend_available": s.store.Backend().Available(r.Context()),
		"key_count":         s.authority.Ring().Size(),
		"current_kid":       s.authority.Ring().CurrentKid(),
		"services_cached":   services,
		"workspaces_cached": workspaces,
	})
}

func (s *Server) handleSystemVersion(w http.ResponseWriter, r *http.Request) {
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeAnyEntity(r.Context(), key); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"service":   s.store.Backend().SystemVersion(r.Context(), types.KindService),
		"workspace": s.store.Backend().SystemVersion(r.Context(), types.KindWorkspace),
	})
}

// handleAdminData returns the aggregated provisioning snapshot consumed by
// admin tooling
func (s *Server) handleAdminData(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	ctx := r.Context()

	services := s.cache.Services(ctx)
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	workspaces := s.cache.Workspaces(ctx)
	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].ID < workspaces[j].ID })

	links := []store.RemovedLink{}
	for _, ws := range workspaces {
		for _, l := range ws.Services {
			links = append(links, store.RemovedLink{
				WorkspaceID: ws.ID,
				IssuerID:    l.IssuerID,
				AudienceID:  l.AudienceID,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"services":      services,
		"workspaces":    workspaces,
		"links":         links,
		"service_types": s.registry.Types(),
		"system_versions": map[string]string{
			"service":   s.store.Backend().SystemVersion(ctx, types.KindService),
			"workspace": s.store.Backend().SystemVersion(ctx, types.KindWorkspace),
		},
	})
}
