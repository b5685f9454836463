package security

import (
	"encoding/hex"
	"testing"
)

func TestNewAPIKey(t *testing.T) {
	key := NewAPIKey()
	if len(key) != 64 {
		t.Errorf("NewAPIKey() length = %d, want 64 hex chars", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		t.Errorf("NewAPIKey() is not hex: %v", err)
	}
}

func TestNewVersion(t *testing.T) {
	v := NewVersion()
	if len(v) != 16 {
		t.Errorf("NewVersion() length = %d, want 16 hex chars", len(v))
	}
	if _, err := hex.DecodeString(v); err != nil {
		t.Errorf("NewVersion() is not hex: %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		v := NewVersion()
		if seen[v] {
			t.Fatalf("NewVersion() repeated %q", v)
		}
		seen[v] = true
	}
}
