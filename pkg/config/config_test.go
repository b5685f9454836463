package config

import (
	"testing"
	"time"
)

func TestParseAdminKeys(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "valid list",
			raw:  `["0123456789abcdef0123456789abcdef"]`,
			want: 1,
		},
		{
			name: "two keys",
			raw:  `["0123456789abcdef","fedcba9876543210"]`,
			want: 2,
		},
		{
			name:    "empty string",
			raw:     "",
			wantErr: true,
		},
		{
			name:    "not JSON",
			raw:     "abcdef",
			wantErr: true,
		},
		{
			name:    "empty list",
			raw:     `[]`,
			wantErr: true,
		},
		{
			name:    "key too short",
			raw:     `["short"]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := ParseAdminKeys(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseAdminKeys() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(keys) != tt.want {
				t.Errorf("ParseAdminKeys() count = %d, want %d", len(keys), tt.want)
			}
		})
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTHBRIDGE_API_KEYS", `["0123456789abcdef0123456789abcdef"]`)
	t.Setenv("AUTHBRIDGE_CRYPT_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHBRIDGE_ENVIRONMENT", "dev")
	t.Setenv("REDIS_SENTINEL_ADDRS", "")
	t.Setenv("REDIS_MASTER_NAME", "")
	t.Setenv("ACCESS_TOKEN_EXPIRATION_MIN", "")
}

func TestLoadDefaults(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q, want %q", cfg.Namespace, DefaultNamespace)
	}
	if cfg.TokenTTLMin != DefaultTokenTTLMin {
		t.Errorf("TokenTTLMin = %d, want %d", cfg.TokenTTLMin, DefaultTokenTTLMin)
	}
	if cfg.TokenTTL() != time.Duration(DefaultTokenTTLMin)*time.Minute {
		t.Errorf("TokenTTL() = %v", cfg.TokenTTL())
	}
	if cfg.AdminLimitPerMin != DefaultAdminLimit || cfg.DiscoveryLimitPerMin != DefaultDiscoveryLimit {
		t.Errorf("rate limit defaults not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AUTHBRIDGE_ENVIRONMENT", "production")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted an unknown environment")
	}
}

func TestLoadRejectsShortCryptKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("AUTHBRIDGE_CRYPT_KEY", "too-short")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted a short crypt key")
	}
}

func TestLoadRequiresMasterNameWithSentinels(t *testing.T) {
	setValidEnv(t)
	t.Setenv("REDIS_SENTINEL_ADDRS", "s1:26379,s2:26379")

	if _, err := Load(); err == nil {
		t.Error("Load() accepted sentinels without a master name")
	}

	t.Setenv("REDIS_MASTER_NAME", "mymaster")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.SentinelAddrs) != 2 {
		t.Errorf("SentinelAddrs = %v, want 2 entries", cfg.SentinelAddrs)
	}
}
