package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/authbridge/authbridge/pkg/config"
	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/log"
	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/types"
)

// auditMaxLen caps the rolling audit stream
const auditMaxLen = 10_000

// Entity is the slice of the data model the adapter needs to persist a blob
type Entity interface {
	EntityID() string
	SetVersion(version string)
}

// Adapter is the encrypted Redis-backed store shared by all bridge
// processes. Reads tolerate an unavailable backend and degrade to absent;
// writes fail loudly with a BACKEND_ERROR.
type Adapter struct {
	client redis.UniversalClient
	cipher *security.Cipher
	ns     string
	logger zerolog.Logger
}

// New creates an adapter from the process configuration. The client runs in
// sentinel failover mode when the config names a master.
func New(cfg *config.Config, cipher *security.Cipher) *Adapter {
	addrs := cfg.SentinelAddrs
	if len(addrs) == 0 {
		addrs = []string{cfg.RedisAddr}
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   cfg.MasterName,
		DB:           cfg.RedisDB,
		Password:     cfg.RedisPassword,
		PoolSize:     512,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return NewWithClient(client, cipher, cfg.Namespace)
}

// NewWithClient creates an adapter over an existing client (used by tests)
func NewWithClient(client redis.UniversalClient, cipher *security.Cipher, namespace string) *Adapter {
	return &Adapter{
		client: client,
		cipher: cipher,
		ns:     namespace,
		logger: log.WithComponent("backend"),
	}
}

// Close releases the underlying connection pool
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Available reports whether the backend answers a ping
func (a *Adapter) Available(ctx context.Context) bool {
	return a.client.Ping(ctx).Err() == nil
}

// SystemVersion returns the global stamp for the entity type, or "" when the
// stamp is unset or the backend is unavailable
func (a *Adapter) SystemVersion(ctx context.Context, kind types.Kind) string {
	val, err := a.client.Get(ctx, a.systemKey(kind)).Result()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn().Err(err).Str("type", string(kind)).Msg("backend unavailable during system version read")
		}
		return ""
	}
	return val
}

// SearchIDs scans for all entity ids of the given type. Partial failures
// return whatever was found.
func (a *Adapter) SearchIDs(ctx context.Context, kind types.Kind) []string {
	var ids []string
	pattern := a.itemKey(kind, "*")
	iter := a.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if id, ok := a.idFromItemKey(iter.Val()); ok {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		a.logger.Warn().Err(err).Str("type", string(kind)).Msg("backend unavailable during id scan")
	}
	return ids
}

// GetItem returns the decrypted entity blob, or nil when the entity is
// absent or the backend is unavailable. Decryption failures are returned;
// they mean the stored blob is corrupt or the crypt secret changed.
func (a *Adapter) GetItem(ctx context.Context, kind types.Kind, id string) ([]byte, error) {
	blob, err := a.client.Get(ctx, a.itemKey(kind, id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn().Err(err).Str("type", string(kind)).Str("id", id).Msg("backend unavailable during item read")
		}
		return nil, nil
	}

	plain, err := a.cipher.Decrypt(blob)
	if err != nil {
		a.logger.Error().Err(err).Str("type", string(kind)).Str("id", id).Msg("failed to decrypt item")
		return nil, err
	}
	return plain, nil
}

// ItemVersion returns the stored per-entity version, or "" when absent
func (a *Adapter) ItemVersion(ctx context.Context, kind types.Kind, id string) string {
	val, err := a.client.Get(ctx, a.versionKey(kind, id)).Result()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn().Err(err).Str("type", string(kind)).Str("id", id).Msg("backend unavailable during version read")
		}
		return ""
	}
	return val
}

// SaveItem stamps the entity with the new system version, encrypts it and
// writes data, version and system stamp in one transactional pipeline. On
// success a cache event is published and an audit entry appended, both
// best-effort.
func (a *Adapter) SaveItem(ctx context.Context, kind types.Kind, e Entity, newSysVersion string) error {
	e.SetVersion(newSysVersion)

	plain, err := json.Marshal(e)
	if err != nil {
		return errdefs.Newf(errdefs.CodeBackendError, "failed to serialize %s [%s]: %v", kind, e.EntityID(), err)
	}
	enc, err := a.cipher.Encrypt(plain)
	if err != nil {
		return errdefs.Newf(errdefs.CodeBackendError, "failed to encrypt %s [%s]: %v", kind, e.EntityID(), err)
	}

	id := e.EntityID()
	pipe := a.client.TxPipeline()
	pipe.Set(ctx, a.itemKey(kind, id), enc, 0)
	pipe.Set(ctx, a.versionKey(kind, id), newSysVersion, 0)
	pipe.Set(ctx, a.systemKey(kind), newSysVersion, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error().Err(err).Str("type", string(kind)).Str("id", id).Msg("pipeline error during item save")
		return errdefs.Newf(errdefs.CodeBackendError, "backend write failed for %s [%s]: %v", kind, id, err)
	}

	a.PublishEvent(ctx, "updated", kind, id, newSysVersion)
	a.Audit(ctx, "save", kind, id, map[string]any{"version": newSysVersion})
	return nil
}

// DeleteItem removes data and version and advances the system stamp in one
// transactional pipeline
func (a *Adapter) DeleteItem(ctx context.Context, kind types.Kind, id, newSysVersion string) error {
	pipe := a.client.TxPipeline()
	pipe.Del(ctx, a.itemKey(kind, id))
	pipe.Del(ctx, a.versionKey(kind, id))
	pipe.Set(ctx, a.systemKey(kind), newSysVersion, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		a.logger.Error().Err(err).Str("type", string(kind)).Str("id", id).Msg("pipeline error during item delete")
		return errdefs.Newf(errdefs.CodeBackendError, "backend delete failed for %s [%s]: %v", kind, id, err)
	}

	a.PublishEvent(ctx, "deleted", kind, id, newSysVersion)
	a.Audit(ctx, "delete", kind, id, nil)
	return nil
}

// PublishEvent announces a change on the cache channel. Best-effort; a lost
// event only delays eager reloads, consistency-on-read still holds.
func (a *Adapter) PublishEvent(ctx context.Context, op string, kind types.Kind, id, version string) {
	payload, _ := json.Marshal(map[string]string{
		"op":      op,
		"type":    string(kind),
		"id":      id,
		"version": version,
	})
	if err := a.client.Publish(ctx, a.CacheChannel(), payload).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to publish cache event")
	}
}

// Audit appends an entry to the capped audit stream. Best-effort.
func (a *Adapter) Audit(ctx context.Context, action string, kind types.Kind, id string, payload map[string]any) {
	values := map[string]any{
		"action": action,
		"type":   string(kind),
		"id":     id,
		"at":     time.Now().UTC().Format(time.RFC3339),
	}
	if len(payload) > 0 {
		if data, err := json.Marshal(payload); err == nil {
			values["payload"] = string(data)
		}
	}
	err := a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: a.AuditStream(),
		MaxLen: auditMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to append audit entry")
	}
}

// Subscribe opens a subscription on the cache channel
func (a *Adapter) Subscribe(ctx context.Context) *redis.PubSub {
	return a.client.Subscribe(ctx, a.CacheChannel())
}

// RateIncr bumps the fixed-window counter for (bucket, principal) and
// returns the running count plus the window's remaining TTL. The first
// increment arms the expiry.
func (a *Adapter) RateIncr(ctx context.Context, bucket, principal string, window time.Duration) (int64, time.Duration, error) {
	win := time.Now().Unix() / int64(window.Seconds())
	key := a.rateKey(bucket, principal, win)

	count, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := a.client.Expire(ctx, key, window).Err(); err != nil {
			a.logger.Warn().Err(err).Str("bucket", bucket).Msg("failed to arm rate-limit window expiry")
		}
	}
	ttl, err := a.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

// GetKeyRing reads the serialized key ring blob; nil when absent or the
// backend is unavailable
func (a *Adapter) GetKeyRing(ctx context.Context) []byte {
	blob, err := a.client.Get(ctx, a.ringKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn().Err(err).Msg("backend unavailable during key ring read")
		}
		return nil
	}
	return blob
}

// SaveKeyRing persists the serialized key ring blob
func (a *Adapter) SaveKeyRing(ctx context.Context, blob []byte) error {
	if err := a.client.Set(ctx, a.ringKey(), blob, 0).Err(); err != nil {
		return errdefs.Newf(errdefs.CodeBackendError, "backend write failed for key ring: %v", err)
	}
	return nil
}

// GetLegacyRSA reads the legacy single keypair. The private PEM is stored
// encrypted. Returns ok=false when either half is missing or unreadable.
func (a *Adapter) GetLegacyRSA(ctx context.Context) (publicPEM, privatePEM string, ok bool) {
	pub, err := a.client.Get(ctx, a.rsaLegacyKey("public")).Result()
	if err != nil {
		if err != redis.Nil {
			a.logger.Warn().Err(err).Msg("backend unavailable during legacy RSA read")
		}
		return "", "", false
	}
	encPriv, err := a.client.Get(ctx, a.rsaLegacyKey("private")).Bytes()
	if err != nil {
		return "", "", false
	}
	priv, err := a.cipher.Decrypt(encPriv)
	if err != nil {
		a.logger.Error().Err(err).Msg("legacy RSA private key decrypt failed")
		return "", "", false
	}
	return pub, string(priv), true
}

// SaveLegacyRSA persists the legacy single keypair. Best-effort: a down
// backend logs a warning and returns, keeping startup clean in degraded mode.
func (a *Adapter) SaveLegacyRSA(ctx context.Context, publicPEM, privatePEM string) {
	encPriv, err := a.cipher.Encrypt([]byte(privatePEM))
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to encrypt legacy RSA private key")
		return
	}
	if err := a.client.Set(ctx, a.rsaLegacyKey("public"), publicPEM, 0).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("backend unavailable during legacy RSA save")
		return
	}
	if err := a.client.Set(ctx, a.rsaLegacyKey("private"), encPriv, 0).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("backend unavailable during legacy RSA save")
	}
}
