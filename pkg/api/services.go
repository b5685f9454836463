package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/discovery"
	"github.com/authbridge/authbridge/pkg/types"
)

type createServiceRequest struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	APIKey  string         `json:"api_key"`
	Info    map[string]any `json:"info"`
	Content map[string]any `json:"content"`
}

func (s *Server) handleServiceCreate(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var req createServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	svc := &types.Service{
		Entity: types.Entity{
			ID:      req.ID,
			Name:    req.Name,
			APIKey:  req.APIKey,
			Info:    req.Info,
			Content: req.Content,
		},
		Type: req.Type,
	}
	created, err := s.store.CreateService(r.Context(), svc)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, created)
}

func (s *Server) handleServiceIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	services := s.cache.Services(r.Context())
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	respondJSON(w, http.StatusOK, map[string]any{
		"system_version": s.store.Backend().SystemVersion(r.Context(), types.KindService),
		"count":          len(services),
		"services":       services,
	})
}

// handleServiceList returns {name, id} pairs grouped by service type
func (s *Server) handleServiceList(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}

	type entry struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	grouped := make(map[string][]entry)
	for _, svc := range s.cache.Services(r.Context()) {
		grouped[svc.Type] = append(grouped[svc.Type], entry{Name: svc.Name, ID: svc.ID})
	}
	for t := range grouped {
		sort.Slice(grouped[t], func(i, j int) bool { return grouped[t][i].Name < grouped[t][j].Name })
	}
	respondJSON(w, http.StatusOK, grouped)
}

func (s *Server) handleServiceGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeService(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, svc)
}

func (s *Server) handleServiceVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeService(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": svc.ID, "version": svc.Version})
}

func (s *Server) handleServiceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	summary, err := s.store.DeleteService(r.Context(), chi.URLParam(r, "id"), ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleServiceRekey(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	svc, err := s.store.RekeyService(r.Context(), chi.URLParam(r, "id"), ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": svc.ID, "api_key": svc.APIKey, "version": svc.Version})
}

func (s *Server) handleServiceUpdateInfo(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	svc, err := s.store.UpdateServiceInfo(r.Context(), chi.URLParam(r, "id"), body, ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, svc)
}

func (s *Server) handleServiceUpdateContent(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	svc, err := s.store.UpdateServiceContent(r.Context(), chi.URLParam(r, "id"), body, ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, svc)
}

// handleServiceDiscovery returns the outbound view: who this service may
// call, in which workspaces. Requires the service's own key.
func (s *Server) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeServiceStrict(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"audiences": discovery.Outbound(r.Context(), s.cache, id),
	})
}

// handleServiceCallers returns the inbound view: who may call this service
func (s *Server) handleServiceCallers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeServiceStrict(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"callers": discovery.Inbound(r.Context(), s.cache, id),
	})
}

// handleServiceAllLinks returns every link mentioning the service in either
// direction
func (s *Server) handleServiceAllLinks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeService(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	if _, err := s.store.GetService(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":    id,
		"links": s.store.ServiceLinks(r.Context(), id),
	})
}
