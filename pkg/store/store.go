package store

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/types"
)

// Store is the entity layer over the backend and the cache. All mutations
// follow the same concurrency protocol: an If-Match mismatch against the
// cached version fails with PRECONDITION_FAILED, a backing-blob version that
// drifted from the cache fails with CONFLICT.
type Store struct {
	backend  *backend.Adapter
	cache    *cache.Cache
	registry *types.Registry
	logger   zerolog.Logger
}

// New creates a store over the backend adapter and cache
func New(b *backend.Adapter, c *cache.Cache, registry *types.Registry) *Store {
	return &Store{
		backend:  b,
		cache:    c,
		registry: registry,
		logger:   log.WithComponent("store"),
	}
}

// Cache exposes the underlying cache for read-side consumers
func (s *Store) Cache() *cache.Cache {
	return s.cache
}

// Backend exposes the underlying adapter for diagnostics
func (s *Store) Backend() *backend.Adapter {
	return s.backend
}

// checkVersions enforces the mutation concurrency protocol for the entity
// whose cached version is cachedVersion
func (s *Store) checkVersions(ctx context.Context, kind types.Kind, id, cachedVersion, ifMatch string) error {
	if ifMatch != "" && ifMatch != cachedVersion {
		return errdefs.Newf(errdefs.CodePreconditionFailed,
			"%s [%s] version is %s, If-Match was %s", kind, id, cachedVersion, ifMatch)
	}
	if backing := s.backend.ItemVersion(ctx, kind, id); backing != "" && backing != cachedVersion {
		return errdefs.Newf(errdefs.CodeConflict,
			"%s [%s] was modified concurrently", kind, id)
	}
	return nil
}

// exists reports whether any blob for (kind, id) is present in cache or backend
func (s *Store) exists(ctx context.Context, kind types.Kind, id string) bool {
	switch kind {
	case types.KindService:
		if _, ok := s.cache.Service(ctx, id); ok {
			return true
		}
	case types.KindWorkspace:
		if _, ok := s.cache.Workspace(ctx, id); ok {
			return true
		}
	}
	return s.backend.ItemVersion(ctx, kind, id) != ""
}

// CreateService provisions a new service. The id is caller-supplied and must
// be globally unique; the type must come from the registry.
func (s *Store) CreateService(ctx context.Context, svc *types.Service) (*types.Service, error) {
	if svc.ID == "" {
		return nil, errdefs.New(errdefs.CodeBadRequest, "service id is required")
	}
	if svc.Name == "" {
		return nil, errdefs.New(errdefs.CodeBadRequest, "service name is required")
	}
	normalized, err := s.registry.Validate(svc.Type)
	if err != nil {
		return nil, errdefs.New(errdefs.CodeBadRequest, err.Error())
	}
	svc.Type = normalized
	if s.exists(ctx, types.KindService, svc.ID) {
		return nil, errdefs.Newf(errdefs.CodeAlreadyExists, "service [%s] already exists", svc.ID)
	}

	svc.ApplyDefaults()
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindService, svc, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreService(svc, stamp)

	s.logger.Info().Str("service_id", svc.ID).Str("name", svc.Name).Str("type", svc.Type).Msg("service created")
	return svc, nil
}

// GetService returns the service or NOT_FOUND
func (s *Store) GetService(ctx context.Context, id string) (*types.Service, error) {
	svc, ok := s.cache.Service(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("service", id)
	}
	return svc, nil
}

// RemovedLink records one link dropped during a cascading service delete
type RemovedLink struct {
	WorkspaceID string `json:"workspace_id"`
	IssuerID    string `json:"issuer_id"`
	AudienceID  string `json:"audience_id"`
}

// ServiceDeleteSummary reports what a service delete touched
type ServiceDeleteSummary struct {
	ID           string        `json:"id"`
	RemovedLinks []RemovedLink `json:"removed_links"`
}

// DeleteService removes the service and every link referencing it from every
// workspace. Affected workspaces are rewritten before the service blob is
// deleted, so a failure partway leaves no dangling links.
func (s *Store) DeleteService(ctx context.Context, id, ifMatch string) (*ServiceDeleteSummary, error) {
	svc, ok := s.cache.Service(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("service", id)
	}
	if err := s.checkVersions(ctx, types.KindService, id, svc.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	removed, err := s.removeServiceLinks(ctx, id)
	if err != nil {
		return nil, err
	}

	stamp := security.NewVersion()
	if err := s.backend.DeleteItem(ctx, types.KindService, id, stamp); err != nil {
		return nil, err
	}
	s.cache.DropService(id, stamp)

	s.logger.Info().Str("service_id", id).Int("removed_links", len(removed)).Msg("service deleted")
	return &ServiceDeleteSummary{ID: id, RemovedLinks: removed}, nil
}

// RekeyService regenerates the service api_key under the concurrency protocol
func (s *Store) RekeyService(ctx context.Context, id, ifMatch string) (*types.Service, error) {
	cur, ok := s.cache.Service(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("service", id)
	}
	if err := s.checkVersions(ctx, types.KindService, id, cur.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	svc := cur.Clone()
	svc.APIKey = security.NewAPIKey()
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindService, svc, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreService(svc, stamp)

	s.logger.Info().Str("service_id", id).Msg("service rekeyed")
	return svc, nil
}

// UpdateServiceInfo replaces the service info map wholesale
func (s *Store) UpdateServiceInfo(ctx context.Context, id string, info map[string]any, ifMatch string) (*types.Service, error) {
	return s.updateService(ctx, id, ifMatch, func(svc *types.Service) {
		svc.Info = info
	})
}

// UpdateServiceContent replaces the service content map wholesale
func (s *Store) UpdateServiceContent(ctx context.Context, id string, content map[string]any, ifMatch string) (*types.Service, error) {
	return s.updateService(ctx, id, ifMatch, func(svc *types.Service) {
		svc.Content = content
	})
}

func (s *Store) updateService(ctx context.Context, id, ifMatch string, mutate func(*types.Service)) (*types.Service, error) {
	cur, ok := s.cache.Service(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("service", id)
	}
	if err := s.checkVersions(ctx, types.KindService, id, cur.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	svc := cur.Clone()
	mutate(svc)
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindService, svc, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreService(svc, stamp)
	return svc, nil
}

// CreateWorkspace provisions a new workspace with an empty link set
func (s *Store) CreateWorkspace(ctx context.Context, ws *types.Workspace) (*types.Workspace, error) {
	if ws.ID == "" {
		return nil, errdefs.New(errdefs.CodeBadRequest, "workspace id is required")
	}
	if ws.Name == "" {
		return nil, errdefs.New(errdefs.CodeBadRequest, "workspace name is required")
	}
	if s.exists(ctx, types.KindWorkspace, ws.ID) {
		return nil, errdefs.Newf(errdefs.CodeAlreadyExists, "workspace [%s] already exists", ws.ID)
	}

	ws.ApplyDefaults()
	if ws.Services == nil {
		ws.Services = []types.ServiceLink{}
	}
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindWorkspace, ws, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreWorkspace(ws, stamp)

	s.logger.Info().Str("workspace_id", ws.ID).Str("name", ws.Name).Msg("workspace created")
	return ws, nil
}

// GetWorkspace returns the workspace or NOT_FOUND
func (s *Store) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	ws, ok := s.cache.Workspace(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("workspace", id)
	}
	return ws, nil
}

// WorkspaceDeleteSummary reports what a workspace delete removed
type WorkspaceDeleteSummary struct {
	ID           string `json:"id"`
	DroppedLinks int    `json:"dropped_links"`
}

// DeleteWorkspace removes the workspace and its link set
func (s *Store) DeleteWorkspace(ctx context.Context, id, ifMatch string) (*WorkspaceDeleteSummary, error) {
	ws, ok := s.cache.Workspace(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("workspace", id)
	}
	if err := s.checkVersions(ctx, types.KindWorkspace, id, ws.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	stamp := security.NewVersion()
	if err := s.backend.DeleteItem(ctx, types.KindWorkspace, id, stamp); err != nil {
		return nil, err
	}
	s.cache.DropWorkspace(id, stamp)

	s.logger.Info().Str("workspace_id", id).Int("dropped_links", len(ws.Services)).Msg("workspace deleted")
	return &WorkspaceDeleteSummary{ID: id, DroppedLinks: len(ws.Services)}, nil
}

// RekeyWorkspace regenerates the workspace api_key under the concurrency protocol
func (s *Store) RekeyWorkspace(ctx context.Context, id, ifMatch string) (*types.Workspace, error) {
	cur, ok := s.cache.Workspace(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("workspace", id)
	}
	if err := s.checkVersions(ctx, types.KindWorkspace, id, cur.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	ws := cur.Clone()
	ws.APIKey = security.NewAPIKey()
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindWorkspace, ws, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreWorkspace(ws, stamp)

	s.logger.Info().Str("workspace_id", id).Msg("workspace rekeyed")
	return ws, nil
}

// UpdateWorkspaceInfo replaces the workspace info map wholesale
func (s *Store) UpdateWorkspaceInfo(ctx context.Context, id string, info map[string]any, ifMatch string) (*types.Workspace, error) {
	return s.updateWorkspace(ctx, id, ifMatch, func(ws *types.Workspace) {
		ws.Info = info
	})
}

// UpdateWorkspaceContent replaces the workspace content map wholesale
func (s *Store) UpdateWorkspaceContent(ctx context.Context, id string, content map[string]any, ifMatch string) (*types.Workspace, error) {
	return s.updateWorkspace(ctx, id, ifMatch, func(ws *types.Workspace) {
		ws.Content = content
	})
}

func (s *Store) updateWorkspace(ctx context.Context, id, ifMatch string, mutate func(*types.Workspace)) (*types.Workspace, error) {
	cur, ok := s.cache.Workspace(ctx, id)
	if !ok {
		return nil, errdefs.NotFound("workspace", id)
	}
	if err := s.checkVersions(ctx, types.KindWorkspace, id, cur.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	ws := cur.Clone()
	mutate(ws)
	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindWorkspace, ws, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreWorkspace(ws, stamp)
	return ws, nil
}
