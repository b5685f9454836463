package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/authbridge/pkg/backend"
	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/types"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cipher, err := security.NewCipherFromSecret("test-secret-key-of-at-least-32-chars!")
	require.NoError(t, err)
	adapter := backend.NewWithClient(client, cipher, "authbridge")
	return New(adapter, cache.New(adapter), types.NewRegistry(nil)), mr
}

func mustCreateService(t *testing.T, s *Store, id string) *types.Service {
	t.Helper()
	svc, err := s.CreateService(context.Background(), &types.Service{
		Entity: types.Entity{ID: id, Name: "Service " + id},
		Type:   "ai",
	})
	require.NoError(t, err)
	return svc
}

func mustCreateWorkspace(t *testing.T, s *Store, id string) *types.Workspace {
	t.Helper()
	ws, err := s.CreateWorkspace(context.Background(), &types.Workspace{
		Entity: types.Entity{ID: id, Name: "Workspace " + id},
	})
	require.NoError(t, err)
	return ws
}

func TestCreateService(t *testing.T) {
	s, _ := newTestStore(t)

	svc := mustCreateService(t, s, "svc-a")
	assert.Equal(t, "svc-a", svc.ID)
	assert.Len(t, svc.APIKey, 64)
	assert.Len(t, svc.Version, 16)
	assert.NotEmpty(t, svc.RegisteredAt)

	got, err := s.GetService(context.Background(), "svc-a")
	require.NoError(t, err)
	assert.Equal(t, svc.APIKey, got.APIKey)
}

func TestCreateServiceValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		svc  *types.Service
		code errdefs.Code
	}{
		{
			name: "missing id",
			svc:  &types.Service{Entity: types.Entity{Name: "x"}},
			code: errdefs.CodeBadRequest,
		},
		{
			name: "missing name",
			svc:  &types.Service{Entity: types.Entity{ID: "x"}},
			code: errdefs.CodeBadRequest,
		},
		{
			name: "unknown type",
			svc:  &types.Service{Entity: types.Entity{ID: "x", Name: "x"}, Type: "quantum"},
			code: errdefs.CodeBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateService(ctx, tt.svc)
			assert.True(t, errdefs.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCreateServiceDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateService(t, s, "svc-a")

	_, err := s.CreateService(context.Background(), &types.Service{
		Entity: types.Entity{ID: "svc-a", Name: "again"},
	})
	assert.True(t, errdefs.IsCode(err, errdefs.CodeAlreadyExists), "got %v", err)
}

func TestCreateServiceDefaultsType(t *testing.T) {
	s, _ := newTestStore(t)

	svc, err := s.CreateService(context.Background(), &types.Service{
		Entity: types.Entity{ID: "svc-x", Name: "X"},
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown", svc.Type)
}

func TestGetServiceNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.GetService(context.Background(), "nope")
	assert.True(t, errdefs.IsCode(err, errdefs.CodeNotFound))
}

func TestRekeyService(t *testing.T) {
	s, _ := newTestStore(t)
	svc := mustCreateService(t, s, "svc-a")

	rekeyed, err := s.RekeyService(context.Background(), "svc-a", "")
	require.NoError(t, err)
	assert.NotEqual(t, svc.APIKey, rekeyed.APIKey)
	assert.NotEqual(t, svc.Version, rekeyed.Version)
}

func TestUpdateInfoWithIfMatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	svc := mustCreateService(t, s, "svc-a")

	updated, err := s.UpdateServiceInfo(ctx, "svc-a", map[string]any{"tier": "gold"}, svc.Version)
	require.NoError(t, err)
	assert.Equal(t, "gold", updated.Info["tier"])
	assert.NotEqual(t, svc.Version, updated.Version)

	// a second writer still holding the old version loses
	_, err = s.UpdateServiceInfo(ctx, "svc-a", map[string]any{"tier": "silver"}, svc.Version)
	assert.True(t, errdefs.IsCode(err, errdefs.CodePreconditionFailed), "got %v", err)

	got, err := s.GetService(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "gold", got.Info["tier"])
}

func TestUpdateDetectsBackingDrift(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	mustCreateService(t, s, "svc-a")

	// the backing version moves without the system stamp, so the cache
	// cannot notice; the pre-write check must catch it
	require.NoError(t, mr.Set("authbridge:service:svc-a:version", "ffffffffffffffff"))

	_, err := s.UpdateServiceInfo(ctx, "svc-a", map[string]any{"k": "v"}, "")
	assert.True(t, errdefs.IsCode(err, errdefs.CodeConflict), "got %v", err)
}

func TestDeleteServiceCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	mustCreateService(t, s, "svc-a")
	mustCreateService(t, s, "svc-b")
	mustCreateWorkspace(t, s, "ws-1")
	mustCreateWorkspace(t, s, "ws-2")
	for _, wsID := range []string{"ws-1", "ws-2"} {
		_, err := s.ChangeLink(ctx, wsID, ActionLink,
			types.ServiceLink{IssuerID: "svc-a", AudienceID: "svc-b"}, "")
		require.NoError(t, err)
	}

	svcStampBefore := s.Backend().SystemVersion(ctx, types.KindService)
	wsStampBefore := s.Backend().SystemVersion(ctx, types.KindWorkspace)

	summary, err := s.DeleteService(ctx, "svc-a", "")
	require.NoError(t, err)
	assert.Len(t, summary.RemovedLinks, 2)

	for _, wsID := range []string{"ws-1", "ws-2"} {
		ws, err := s.GetWorkspace(ctx, wsID)
		require.NoError(t, err)
		for _, l := range ws.Services {
			assert.NotEqual(t, "svc-a", l.IssuerID)
			assert.NotEqual(t, "svc-a", l.AudienceID)
		}
	}

	_, err = s.GetService(ctx, "svc-a")
	assert.True(t, errdefs.IsCode(err, errdefs.CodeNotFound))

	assert.NotEqual(t, svcStampBefore, s.Backend().SystemVersion(ctx, types.KindService))
	assert.NotEqual(t, wsStampBefore, s.Backend().SystemVersion(ctx, types.KindWorkspace))
}

func TestDeleteServiceWithoutLinks(t *testing.T) {
	s, _ := newTestStore(t)
	mustCreateService(t, s, "svc-a")

	summary, err := s.DeleteService(context.Background(), "svc-a", "")
	require.NoError(t, err)
	assert.Empty(t, summary.RemovedLinks)
}

func TestWorkspaceLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ws := mustCreateWorkspace(t, s, "ws-1")
	assert.NotNil(t, ws.Services)
	assert.Len(t, ws.APIKey, 64)

	rekeyed, err := s.RekeyWorkspace(ctx, "ws-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, ws.APIKey, rekeyed.APIKey)

	updated, err := s.UpdateWorkspaceContent(ctx, "ws-1", map[string]any{"env": "prod"}, "")
	require.NoError(t, err)
	assert.Equal(t, "prod", updated.Content["env"])

	summary, err := s.DeleteWorkspace(ctx, "ws-1", "")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", summary.ID)

	_, err = s.GetWorkspace(ctx, "ws-1")
	assert.True(t, errdefs.IsCode(err, errdefs.CodeNotFound))
}

func TestVersionsNeverRepeat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	svc := mustCreateService(t, s, "svc-a")

	seen := map[string]bool{svc.Version: true}
	for i := 0; i < 10; i++ {
		updated, err := s.UpdateServiceInfo(ctx, "svc-a", map[string]any{"i": i}, "")
		require.NoError(t, err)
		require.False(t, seen[updated.Version], "version %q reused", updated.Version)
		seen[updated.Version] = true
	}
}
