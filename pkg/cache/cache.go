package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/metrics"
	"github.com/authbridge/authbridge/pkg/types"
)

// Cache holds the in-process view of all services and workspaces, keyed by
// id. Reads compare the cached system stamp against the backend's and reload
// the whole map when they differ, so a hit is never staler than the stamp
// read that preceded it.
type Cache struct {
	backend *backend.Adapter
	logger  zerolog.Logger

	// mu guards the maps and stamps; swaps are wholesale
	mu         sync.RWMutex
	services   map[string]*types.Service
	workspaces map[string]*types.Workspace
	svcStamp   string
	wsStamp    string

	// one reload in flight per type; latecomers re-check the stamp
	svcReload sync.Mutex
	wsReload  sync.Mutex
}

// New creates an empty cache over the backend adapter
func New(b *backend.Adapter) *Cache {
	return &Cache{
		backend:    b,
		logger:     log.WithComponent("cache"),
		services:   make(map[string]*types.Service),
		workspaces: make(map[string]*types.Workspace),
	}
}

// ReloadServices refreshes the service map when the backend's system stamp
// moved. An empty stamp (unset or backend down) keeps the current map.
func (c *Cache) ReloadServices(ctx context.Context) {
	stamp := c.backend.SystemVersion(ctx, types.KindService)
	if stamp == "" || stamp == c.serviceStamp() {
		return
	}

	c.svcReload.Lock()
	defer c.svcReload.Unlock()

	stamp = c.backend.SystemVersion(ctx, types.KindService)
	if stamp == "" || stamp == c.serviceStamp() {
		return
	}

	fresh := make(map[string]*types.Service)
	for _, id := range c.backend.SearchIDs(ctx, types.KindService) {
		blob, err := c.backend.GetItem(ctx, types.KindService, id)
		if err != nil || blob == nil {
			continue
		}
		var svc types.Service
		if err := json.Unmarshal(blob, &svc); err != nil {
			c.logger.Error().Err(err).Str("id", id).Msg("failed to decode cached service")
			continue
		}
		fresh[id] = &svc
	}

	c.mu.Lock()
	c.services = fresh
	c.svcStamp = stamp
	c.mu.Unlock()

	metrics.CacheReloads.WithLabelValues(string(types.KindService)).Inc()
	metrics.ServicesCached.Set(float64(len(fresh)))
	c.logger.Debug().Int("count", len(fresh)).Str("stamp", stamp).Msg("service cache reloaded")
}

// ReloadWorkspaces refreshes the workspace map when the backend's system
// stamp moved. An empty stamp (unset or backend down) keeps the current map.
func (c *Cache) ReloadWorkspaces(ctx context.Context) {
	stamp := c.backend.SystemVersion(ctx, types.KindWorkspace)
	if stamp == "" || stamp == c.workspaceStamp() {
		return
	}

	c.wsReload.Lock()
	defer c.wsReload.Unlock()

	stamp = c.backend.SystemVersion(ctx, types.KindWorkspace)
	if stamp == "" || stamp == c.workspaceStamp() {
		return
	}

	fresh := make(map[string]*types.Workspace)
	for _, id := range c.backend.SearchIDs(ctx, types.KindWorkspace) {
		blob, err := c.backend.GetItem(ctx, types.KindWorkspace, id)
		if err != nil || blob == nil {
			continue
		}
		var ws types.Workspace
		if err := json.Unmarshal(blob, &ws); err != nil {
			c.logger.Error().Err(err).Str("id", id).Msg("failed to decode cached workspace")
			continue
		}
		fresh[id] = &ws
	}

	c.mu.Lock()
	c.workspaces = fresh
	c.wsStamp = stamp
	c.mu.Unlock()

	metrics.CacheReloads.WithLabelValues(string(types.KindWorkspace)).Inc()
	metrics.WorkspacesCached.Set(float64(len(fresh)))
	c.logger.Debug().Int("count", len(fresh)).Str("stamp", stamp).Msg("workspace cache reloaded")
}

// Service returns the cached service after a staleness check. Callers must
// not mutate the result; use Clone before editing.
func (c *Cache) Service(ctx context.Context, id string) (*types.Service, bool) {
	c.ReloadServices(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[id]
	return svc, ok
}

// Workspace returns the cached workspace after a staleness check. Callers
// must not mutate the result; use Clone before editing.
func (c *Cache) Workspace(ctx context.Context, id string) (*types.Workspace, bool) {
	c.ReloadWorkspaces(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	ws, ok := c.workspaces[id]
	return ws, ok
}

// Services returns a snapshot slice of all cached services
func (c *Cache) Services(ctx context.Context) []*types.Service {
	c.ReloadServices(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Service, 0, len(c.services))
	for _, svc := range c.services {
		out = append(out, svc)
	}
	return out
}

// Workspaces returns a snapshot slice of all cached workspaces
func (c *Cache) Workspaces(ctx context.Context) []*types.Workspace {
	c.ReloadWorkspaces(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Workspace, 0, len(c.workspaces))
	for _, ws := range c.workspaces {
		out = append(out, ws)
	}
	return out
}

// StoreService applies a just-persisted service to the cache without waiting
// for the next stamp-driven reload
func (c *Cache) StoreService(svc *types.Service, stamp string) {
	c.mu.Lock()
	c.services[svc.ID] = svc
	if stamp != "" {
		c.svcStamp = stamp
	}
	metrics.ServicesCached.Set(float64(len(c.services)))
	c.mu.Unlock()
}

// StoreWorkspace applies a just-persisted workspace to the cache without
// waiting for the next stamp-driven reload
func (c *Cache) StoreWorkspace(ws *types.Workspace, stamp string) {
	c.mu.Lock()
	c.workspaces[ws.ID] = ws
	if stamp != "" {
		c.wsStamp = stamp
	}
	metrics.WorkspacesCached.Set(float64(len(c.workspaces)))
	c.mu.Unlock()
}

// DropService removes a just-deleted service from the cache
func (c *Cache) DropService(id, stamp string) {
	c.mu.Lock()
	delete(c.services, id)
	if stamp != "" {
		c.svcStamp = stamp
	}
	metrics.ServicesCached.Set(float64(len(c.services)))
	c.mu.Unlock()
}

// DropWorkspace removes a just-deleted workspace from the cache
func (c *Cache) DropWorkspace(id, stamp string) {
	c.mu.Lock()
	delete(c.workspaces, id)
	if stamp != "" {
		c.wsStamp = stamp
	}
	metrics.WorkspacesCached.Set(float64(len(c.workspaces)))
	c.mu.Unlock()
}

// Sizes returns the current service and workspace counts
func (c *Cache) Sizes() (services, workspaces int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.services), len(c.workspaces)
}

func (c *Cache) serviceStamp() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svcStamp
}

func (c *Cache) workspaceStamp() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wsStamp
}
