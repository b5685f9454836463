package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the environment leaves a knob unset
const (
	DefaultNamespace      = "authbridge"
	DefaultRedisAddr      = "localhost:6379"
	DefaultTokenTTLMin    = 10
	DefaultAdminLimit     = 120
	DefaultIssueLimit     = 120
	DefaultDiscoveryLimit = 240
	DefaultListenAddr     = ":8000"
)

// Config holds the process configuration, loaded from the environment
type Config struct {
	Environment string // dev|stage|qa|prod

	// AdminKeys is the set of admin API keys (JSON list in AUTHBRIDGE_API_KEYS)
	AdminKeys []string

	// CryptSecret keys the AES-GCM cipher for data at rest (>= 32 chars)
	CryptSecret string

	// Namespace prefixes every backend key
	Namespace string

	// Redis connection. When SentinelAddrs is set the client runs in
	// failover mode against MasterName.
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	SentinelAddrs []string
	MasterName    string

	// TokenTTLMin is the default token lifetime in minutes; services may
	// override it via info.token_ttl_min
	TokenTTLMin int

	// Rate limits, requests per minute
	AdminLimitPerMin     int
	IssueLimitPerMin     int
	DiscoveryLimitPerMin int

	ListenAddr string
}

// Load reads and validates configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Environment:          envOr("AUTHBRIDGE_ENVIRONMENT", "dev"),
		CryptSecret:          os.Getenv("AUTHBRIDGE_CRYPT_KEY"),
		Namespace:            envOr("AUTHBRIDGE_NAMESPACE", DefaultNamespace),
		RedisAddr:            envOr("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		MasterName:           os.Getenv("REDIS_MASTER_NAME"),
		TokenTTLMin:          envIntOr("ACCESS_TOKEN_EXPIRATION_MIN", DefaultTokenTTLMin),
		AdminLimitPerMin:     envIntOr("RL_ADMIN_LIMIT_PER_MIN", DefaultAdminLimit),
		IssueLimitPerMin:     envIntOr("RL_TOKEN_ISSUE_LIMIT_PER_MIN", DefaultIssueLimit),
		DiscoveryLimitPerMin: envIntOr("RL_DISCOVERY_LIMIT_PER_MIN", DefaultDiscoveryLimit),
		ListenAddr:           envOr("AUTHBRIDGE_LISTEN_ADDR", DefaultListenAddr),
	}

	switch cfg.Environment {
	case "dev", "stage", "qa", "prod":
	default:
		return nil, fmt.Errorf("AUTHBRIDGE_ENVIRONMENT must be one of dev|stage|qa|prod, got %q", cfg.Environment)
	}

	cfg.RedisDB = envIntOr("REDIS_DB", 0)
	if addrs := os.Getenv("REDIS_SENTINEL_ADDRS"); addrs != "" {
		for _, a := range strings.Split(addrs, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.SentinelAddrs = append(cfg.SentinelAddrs, a)
			}
		}
		if cfg.MasterName == "" {
			return nil, fmt.Errorf("REDIS_MASTER_NAME is required when REDIS_SENTINEL_ADDRS is set")
		}
	}

	if len(cfg.CryptSecret) < 32 {
		return nil, fmt.Errorf("AUTHBRIDGE_CRYPT_KEY must be provided (>= 32 chars)")
	}

	keys, err := ParseAdminKeys(os.Getenv("AUTHBRIDGE_API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.AdminKeys = keys

	if cfg.TokenTTLMin <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_EXPIRATION_MIN must be positive")
	}

	return cfg, nil
}

// TokenTTL returns the default token lifetime as a duration
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMin) * time.Minute
}

// ParseAdminKeys parses the admin key set from its JSON-list representation.
// Every key must be at least 16 characters.
func ParseAdminKeys(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf(`AUTHBRIDGE_API_KEYS must be a JSON list of strings, e.g. ["hex1","hex2"]`)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf(`AUTHBRIDGE_API_KEYS must be a JSON list of strings: %w`, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("AUTHBRIDGE_API_KEYS cannot be empty")
	}
	for _, k := range keys {
		if len(k) < 16 {
			return nil, fmt.Errorf("one or more AUTHBRIDGE_API_KEYS are too short (min 16 chars)")
		}
	}
	return keys, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envIntOr(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
