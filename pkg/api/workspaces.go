package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/store"
	"github.com/authbridge/authbridge/pkg/types"
)

type createWorkspaceRequest struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	APIKey  string         `json:"api_key"`
	Info    map[string]any `json:"info"`
	Content map[string]any `json:"content"`
}

type linkRequest struct {
	IssuerID   string         `json:"issuer_id"`
	AudienceID string         `json:"audience_id"`
	Context    map[string]any `json:"context"`
}

func (s *Server) handleWorkspaceCreate(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	ws := &types.Workspace{
		Entity: types.Entity{
			ID:      req.ID,
			Name:    req.Name,
			APIKey:  req.APIKey,
			Info:    req.Info,
			Content: req.Content,
		},
	}
	created, err := s.store.CreateWorkspace(r.Context(), ws)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, created)
}

func (s *Server) handleWorkspaceIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	workspaces := s.cache.Workspaces(r.Context())
	sort.Slice(workspaces, func(i, j int) bool { return workspaces[i].ID < workspaces[j].ID })
	respondJSON(w, http.StatusOK, map[string]any{
		"system_version": s.store.Backend().SystemVersion(r.Context(), types.KindWorkspace),
		"count":          len(workspaces),
		"workspaces":     workspaces,
	})
}

func (s *Server) handleWorkspaceList(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}

	type entry struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	var out []entry
	for _, ws := range s.cache.Workspaces(r.Context()) {
		out = append(out, entry{Name: ws.Name, ID: ws.ID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []entry{}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleWorkspaceGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeWorkspace(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.store.GetWorkspace(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleWorkspaceVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeWorkspace(r.Context(), key, id); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.store.GetWorkspace(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": ws.ID, "version": ws.Version})
}

func (s *Server) handleWorkspaceDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	summary, err := s.store.DeleteWorkspace(r.Context(), chi.URLParam(r, "id"), ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWorkspaceRekey(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.store.RekeyWorkspace(r.Context(), chi.URLParam(r, "id"), ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": ws.ID, "api_key": ws.APIKey, "version": ws.Version})
}

func (s *Server) handleWorkspaceUpdateInfo(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.store.UpdateWorkspaceInfo(r.Context(), chi.URLParam(r, "id"), body, ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleWorkspaceUpdateContent(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, err)
		return
	}
	ws, err := s.store.UpdateWorkspaceContent(r.Context(), chi.URLParam(r, "id"), body, ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleWorkspaceLink(w http.ResponseWriter, r *http.Request) {
	s.handleLinkChange(w, r, store.ActionLink)
}

func (s *Server) handleWorkspaceUnlink(w http.ResponseWriter, r *http.Request) {
	s.handleLinkChange(w, r, store.ActionUnlink)
}

func (s *Server) handleLinkChange(w http.ResponseWriter, r *http.Request, action store.LinkAction) {
	if err := s.requireAdmin(r); err != nil {
		respondError(w, err)
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	link := types.ServiceLink{
		IssuerID:   req.IssuerID,
		AudienceID: req.AudienceID,
		Context:    req.Context,
	}
	ws, err := s.store.ChangeLink(r.Context(), chi.URLParam(r, "id"), action, link, ifMatch(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}
