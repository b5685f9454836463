package types

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry(nil)
	if got := r.Default(); got != "unknown" {
		t.Errorf("Default() = %q, want unknown", got)
	}
	if len(r.Types()) != len(DefaultServiceTypes) {
		t.Errorf("Types() count = %d, want %d", len(r.Types()), len(DefaultServiceTypes))
	}
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry([]string{"ai", "bi"})

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ai", want: "ai"},
		{in: "AI", want: "ai"},
		{in: " bi ", want: "bi"},
		{in: "", want: "ai"}, // first type when "unknown" absent
		{in: "nope", wantErr: true},
	}
	for _, tt := range tests {
		got, err := r.Validate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Validate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryDeduplicates(t *testing.T) {
	r := NewRegistry([]string{"ai", "AI", "bi", "", "bi"})
	if got := len(r.Types()); got != 2 {
		t.Errorf("Types() count = %d, want 2", got)
	}
}

func TestLoadServiceTypesFromEnv(t *testing.T) {
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES", "Alpha, beta ,")
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES_FILE", "")

	got := LoadServiceTypes()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "beta" {
		t.Errorf("LoadServiceTypes() = %v, want [alpha beta]", got)
	}
}

func TestLoadServiceTypesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(path, []byte("- gateway\n- worker\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES", "")
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES_FILE", path)

	got := LoadServiceTypes()
	if len(got) != 2 || got[0] != "gateway" || got[1] != "worker" {
		t.Errorf("LoadServiceTypes() = %v, want [gateway worker]", got)
	}
}

func TestLoadServiceTypesFallsBack(t *testing.T) {
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES", "")
	t.Setenv("AUTHBRIDGE_SERVICE_TYPES_FILE", "/does/not/exist.yaml")

	got := LoadServiceTypes()
	if len(got) != len(DefaultServiceTypes) {
		t.Errorf("LoadServiceTypes() = %v, want defaults", got)
	}
}
