package backend

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/types"
)

const testSecret = "test-secret-key-of-at-least-32-chars!"

func newTestAdapter(t *testing.T) (*Adapter, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cipher, err := security.NewCipherFromSecret(testSecret)
	require.NoError(t, err)
	return NewWithClient(client, cipher, "authbridge"), mr, client
}

func testService(id string) *types.Service {
	return &types.Service{
		Entity: types.Entity{ID: id, Name: "Service " + id, APIKey: "key-" + id},
		Type:   "ai",
	}
}

func TestSaveAndGetItem(t *testing.T) {
	a, mr, _ := newTestAdapter(t)
	ctx := context.Background()

	svc := testService("svc-a")
	require.NoError(t, a.SaveItem(ctx, types.KindService, svc, "aaaa000011112222"))

	// save stamps the entity with the new system version
	assert.Equal(t, "aaaa000011112222", svc.Version)

	blob, err := a.GetItem(ctx, types.KindService, "svc-a")
	require.NoError(t, err)
	require.NotNil(t, blob)

	var got types.Service
	require.NoError(t, json.Unmarshal(blob, &got))
	assert.Equal(t, "svc-a", got.ID)
	assert.Equal(t, "key-svc-a", got.APIKey)

	// blob at rest is ciphertext
	raw, err := mr.Get("authbridge:service:svc-a:data")
	require.NoError(t, err)
	assert.NotContains(t, raw, "key-svc-a")

	assert.Equal(t, "aaaa000011112222", a.ItemVersion(ctx, types.KindService, "svc-a"))
	assert.Equal(t, "aaaa000011112222", a.SystemVersion(ctx, types.KindService))
}

func TestGetItemAbsent(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	blob, err := a.GetItem(context.Background(), types.KindService, "nope")
	assert.NoError(t, err)
	assert.Nil(t, blob)
}

func TestGetItemWrongSecret(t *testing.T) {
	a, mr, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.SaveItem(ctx, types.KindService, testService("svc-a"), "v1v1v1v1v1v1v1v1"))

	otherCipher, err := security.NewCipherFromSecret("a-completely-different-32-char-secret")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	other := NewWithClient(client, otherCipher, "authbridge")

	_, err = other.GetItem(ctx, types.KindService, "svc-a")
	assert.Error(t, err)
}

func TestDeleteItem(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.SaveItem(ctx, types.KindService, testService("svc-a"), "v1v1v1v1v1v1v1v1"))

	require.NoError(t, a.DeleteItem(ctx, types.KindService, "svc-a", "v2v2v2v2v2v2v2v2"))

	blob, err := a.GetItem(ctx, types.KindService, "svc-a")
	assert.NoError(t, err)
	assert.Nil(t, blob)
	assert.Empty(t, a.ItemVersion(ctx, types.KindService, "svc-a"))
	assert.Equal(t, "v2v2v2v2v2v2v2v2", a.SystemVersion(ctx, types.KindService))
}

func TestSearchIDs(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()
	for _, id := range []string{"svc-a", "svc-b", "svc-c"} {
		require.NoError(t, a.SaveItem(ctx, types.KindService, testService(id), security.NewVersion()))
	}
	require.NoError(t, a.SaveItem(ctx, types.KindWorkspace,
		&types.Workspace{Entity: types.Entity{ID: "ws-1", Name: "W"}}, security.NewVersion()))

	ids := a.SearchIDs(ctx, types.KindService)
	assert.ElementsMatch(t, []string{"svc-a", "svc-b", "svc-c"}, ids)

	wsIDs := a.SearchIDs(ctx, types.KindWorkspace)
	assert.Equal(t, []string{"ws-1"}, wsIDs)
}

func TestSystemVersionUnset(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	assert.Empty(t, a.SystemVersion(context.Background(), types.KindService))
}

func TestRateIncr(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, ttl, err := a.RateIncr(ctx, "issue", "principal", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, count)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	}
}

func TestKeyRingRoundTrip(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	assert.Nil(t, a.GetKeyRing(ctx))

	blob := []byte(`[{"kid":"k1","public_pem":"pem","private_pem_enc":"enc"}]`)
	require.NoError(t, a.SaveKeyRing(ctx, blob))
	assert.Equal(t, blob, a.GetKeyRing(ctx))
}

func TestLegacyRSARoundTrip(t *testing.T) {
	a, mr, _ := newTestAdapter(t)
	ctx := context.Background()

	_, _, ok := a.GetLegacyRSA(ctx)
	assert.False(t, ok)

	a.SaveLegacyRSA(ctx, "PUBLIC PEM", "PRIVATE PEM")
	pub, priv, ok := a.GetLegacyRSA(ctx)
	require.True(t, ok)
	assert.Equal(t, "PUBLIC PEM", pub)
	assert.Equal(t, "PRIVATE PEM", priv)

	// private half is stored encrypted, public in the clear
	raw, err := mr.Get("authbridge:rsa:private:data")
	require.NoError(t, err)
	assert.False(t, strings.Contains(raw, "PRIVATE PEM"))
	rawPub, err := mr.Get("authbridge:rsa:public:data")
	require.NoError(t, err)
	assert.Equal(t, "PUBLIC PEM", rawPub)
}

func TestSaveItemPublishesAndAudits(t *testing.T) {
	a, _, client := newTestAdapter(t)
	ctx := context.Background()

	sub := a.Subscribe(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, a.SaveItem(ctx, types.KindService, testService("svc-a"), "v1v1v1v1v1v1v1v1"))

	select {
	case msg := <-sub.Channel():
		var event map[string]string
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, "updated", event["op"])
		assert.Equal(t, "service", event["type"])
		assert.Equal(t, "svc-a", event["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no cache event published")
	}

	entries, err := client.XRange(ctx, a.AuditStream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "save", entries[0].Values["action"])
	assert.Equal(t, "svc-a", entries[0].Values["id"])
}

func TestReadsTolerateBackendDown(t *testing.T) {
	a, mr, _ := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, a.SaveItem(ctx, types.KindService, testService("svc-a"), "v1v1v1v1v1v1v1v1"))

	mr.Close()

	assert.False(t, a.Available(ctx))
	assert.Empty(t, a.SystemVersion(ctx, types.KindService))
	blob, err := a.GetItem(ctx, types.KindService, "svc-a")
	assert.NoError(t, err)
	assert.Nil(t, blob)
	assert.Empty(t, a.SearchIDs(ctx, types.KindService))

	// write path fails loudly
	err = a.SaveItem(ctx, types.KindService, testService("svc-b"), "v2v2v2v2v2v2v2v2")
	assert.Error(t, err)
}

func TestAuditStreamStaysCapped(t *testing.T) {
	a, _, client := newTestAdapter(t)
	ctx := context.Background()

	for i := 0; i < auditMaxLen+50; i++ {
		a.Audit(ctx, "save", types.KindService, "svc-a", nil)
	}

	length, err := client.XLen(ctx, a.AuditStream()).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, length, int64(auditMaxLen))
	assert.Greater(t, length, int64(0))
}

func TestAuditSwallowsBackendFailure(t *testing.T) {
	a, mr, _ := newTestAdapter(t)
	mr.Close()

	// best-effort: no panic, no error surfaced
	a.Audit(context.Background(), "save", types.KindService, "svc-a", nil)
}
