package types

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultServiceTypes is the built-in registry used when neither the
// environment nor a registry file overrides it
var DefaultServiceTypes = []string{"unknown", "reflection", "supertable", "mirage", "ai", "bi", "email_api"}

// Registry validates service types against the configured set
type Registry struct {
	types []string
	set   map[string]struct{}
}

// NewRegistry creates a registry over the given types; empty input falls
// back to DefaultServiceTypes
func NewRegistry(serviceTypes []string) *Registry {
	if len(serviceTypes) == 0 {
		serviceTypes = DefaultServiceTypes
	}
	set := make(map[string]struct{}, len(serviceTypes))
	normalized := make([]string, 0, len(serviceTypes))
	for _, t := range serviceTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := set[t]; ok {
			continue
		}
		set[t] = struct{}{}
		normalized = append(normalized, t)
	}
	return &Registry{types: normalized, set: set}
}

// LoadServiceTypes resolves the registry contents.
//
// Priority:
//  1. AUTHBRIDGE_SERVICE_TYPES (comma-separated)
//  2. YAML list file named by AUTHBRIDGE_SERVICE_TYPES_FILE
//  3. DefaultServiceTypes
func LoadServiceTypes() []string {
	if env := os.Getenv("AUTHBRIDGE_SERVICE_TYPES"); env != "" {
		var out []string
		for _, t := range strings.Split(env, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, strings.ToLower(t))
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	if path := os.Getenv("AUTHBRIDGE_SERVICE_TYPES_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var out []string
			if err := yaml.Unmarshal(data, &out); err == nil && len(out) > 0 {
				for i := range out {
					out[i] = strings.ToLower(strings.TrimSpace(out[i]))
				}
				return out
			}
		}
		// invalid file falls back to the defaults
	}

	return DefaultServiceTypes
}

// Types returns the registered types in registration order
func (r *Registry) Types() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

// Default returns the type assigned when a service omits one
func (r *Registry) Default() string {
	if _, ok := r.set["unknown"]; ok {
		return "unknown"
	}
	return r.types[0]
}

// Validate normalizes t and returns it, or an error naming the valid set
func (r *Registry) Validate(t string) (string, error) {
	if t == "" {
		return r.Default(), nil
	}
	normalized := strings.ToLower(strings.TrimSpace(t))
	if _, ok := r.set[normalized]; !ok {
		return "", fmt.Errorf("invalid service type: %s. It must be one of: [%s]", t, strings.Join(r.types, ", "))
	}
	return normalized, nil
}
