package backend

import (
	"fmt"
	"strings"

	"github.com/authbridge/authbridge/pkg/types"
)

// Backend key layout, all under the configured namespace prefix:
//
//	{ns}:{type}:{id}:data        encrypted entity blob
//	{ns}:{type}:{id}:version     opaque entity version
//	{ns}:system:{type}:version   global stamp per entity type
//	{ns}:rsa:public:data         legacy single public PEM
//	{ns}:rsa:private:data        legacy single private PEM (encrypted)
//	{ns}:rsa:keys                serialized key ring (preferred)
//	{ns}:rl:{bucket}:{principal}:{window}  rate-limit counters
//	{ns}:audit                   capped audit stream
//	{ns}:caches                  pub/sub channel for cache events

func (a *Adapter) itemKey(kind types.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s:data", a.ns, kind, id)
}

func (a *Adapter) versionKey(kind types.Kind, id string) string {
	return fmt.Sprintf("%s:%s:%s:version", a.ns, kind, id)
}

func (a *Adapter) systemKey(kind types.Kind) string {
	return fmt.Sprintf("%s:system:%s:version", a.ns, kind)
}

func (a *Adapter) rsaLegacyKey(part string) string {
	return fmt.Sprintf("%s:rsa:%s:data", a.ns, part)
}

func (a *Adapter) ringKey() string {
	return a.ns + ":rsa:keys"
}

func (a *Adapter) rateKey(bucket, principal string, window int64) string {
	return fmt.Sprintf("%s:rl:%s:%s:%d", a.ns, bucket, principal, window)
}

// AuditStream returns the capped audit stream name
func (a *Adapter) AuditStream() string {
	return a.ns + ":audit"
}

// CacheChannel returns the pub/sub channel carrying cache events
func (a *Adapter) CacheChannel() string {
	return a.ns + ":caches"
}

// idFromItemKey extracts the entity id from a {ns}:{type}:{id}:data key.
// Entity ids themselves never contain ':' (they are hex or caller slugs),
// so splitting is safe.
func (a *Adapter) idFromItemKey(key string) (string, bool) {
	prefix := a.ns + ":"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	parts := strings.Split(strings.TrimPrefix(key, prefix), ":")
	if len(parts) != 3 || parts[2] != "data" {
		return "", false
	}
	return parts[1], true
}
