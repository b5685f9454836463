package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
)

// Authenticator classifies callers into admin and entity principals. Admin
// keys come from configuration and can be swapped at runtime; entity keys
// are the api_key attribute of the service or workspace itself.
type Authenticator struct {
	cache  *cache.Cache
	logger zerolog.Logger

	mu        sync.RWMutex
	adminKeys map[string]bool
}

// New creates an authenticator with the given admin key set
func New(adminKeys []string, c *cache.Cache) *Authenticator {
	a := &Authenticator{
		cache:  c,
		logger: log.WithComponent("auth"),
	}
	a.SetAdminKeys(adminKeys)
	return a
}

// SetAdminKeys replaces the admin key set (used by the rotate endpoint)
func (a *Authenticator) SetAdminKeys(keys []string) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	a.mu.Lock()
	a.adminKeys = set
	a.mu.Unlock()
}

// IsAdmin reports whether the key is in the admin set
func (a *Authenticator) IsAdmin(key string) bool {
	if key == "" {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.adminKeys[key]
}

// RequireAdmin fails unless the key is an admin key
func (a *Authenticator) RequireAdmin(key string) error {
	if key == "" {
		return errdefs.New(errdefs.CodeNoAPIKey, "x-api-key header is required")
	}
	if !a.IsAdmin(key) {
		return errdefs.New(errdefs.CodeInvalidAdminKey, "not an admin key")
	}
	return nil
}

// AuthorizeService accepts an admin key or the service's own api_key
func (a *Authenticator) AuthorizeService(ctx context.Context, key, serviceID string) error {
	if key == "" {
		return errdefs.New(errdefs.CodeNoAPIKey, "x-api-key header is required")
	}
	if a.IsAdmin(key) {
		return nil
	}
	if svc, ok := a.cache.Service(ctx, serviceID); ok && keysEqual(key, svc.APIKey) {
		return nil
	}
	return errdefs.Newf(errdefs.CodeInvalidEntityKey, "key does not authorize service [%s]", serviceID)
}

// AuthorizeServiceStrict accepts only the service's own api_key. Admin keys
// are rejected so they can never mint tokens on a service's behalf.
func (a *Authenticator) AuthorizeServiceStrict(ctx context.Context, key, serviceID string) error {
	if key == "" {
		return errdefs.New(errdefs.CodeNoAPIKey, "x-api-key header is required")
	}
	svc, ok := a.cache.Service(ctx, serviceID)
	if !ok || !keysEqual(key, svc.APIKey) {
		return errdefs.Newf(errdefs.CodeInvalidEntityKey, "key is not the api_key of service [%s]", serviceID)
	}
	return nil
}

// AuthorizeWorkspace accepts an admin key or the workspace's own api_key
func (a *Authenticator) AuthorizeWorkspace(ctx context.Context, key, workspaceID string) error {
	if key == "" {
		return errdefs.New(errdefs.CodeNoAPIKey, "x-api-key header is required")
	}
	if a.IsAdmin(key) {
		return nil
	}
	if ws, ok := a.cache.Workspace(ctx, workspaceID); ok && keysEqual(key, ws.APIKey) {
		return nil
	}
	return errdefs.Newf(errdefs.CodeInvalidEntityKey, "key does not authorize workspace [%s]", workspaceID)
}

// AuthorizeAnyEntity accepts an admin key or any known entity key
func (a *Authenticator) AuthorizeAnyEntity(ctx context.Context, key string) error {
	if key == "" {
		return errdefs.New(errdefs.CodeNoAPIKey, "x-api-key header is required")
	}
	if a.IsAdmin(key) {
		return nil
	}
	for _, svc := range a.cache.Services(ctx) {
		if keysEqual(key, svc.APIKey) {
			return nil
		}
	}
	for _, ws := range a.cache.Workspaces(ctx) {
		if keysEqual(key, ws.APIKey) {
			return nil
		}
	}
	return errdefs.New(errdefs.CodeInvalidEntityKey, "unknown api key")
}

// Principal derives a stable rate-limit principal from the key without
// writing the raw secret into backend key names
func Principal(key string) string {
	if key == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

func keysEqual(a, b string) bool {
	if b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
