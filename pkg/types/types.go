package types

import (
	"time"

	"github.com/authbridge/authbridge/pkg/security"
)

// Kind identifies an entity type in the backend key layout
type Kind string

const (
	KindService   Kind = "service"
	KindWorkspace Kind = "workspace"
)

// ServiceLink is a directed trust edge (issuer → audience) inside a
// workspace. Identity is the (issuer, audience) pair; Context is carried
// into issued tokens but is not part of identity.
type ServiceLink struct {
	IssuerID   string         `json:"issuer_id"`
	AudienceID string         `json:"audience_id"`
	Context    map[string]any `json:"context,omitempty"`
}

// SamePair reports whether two links share the same (issuer, audience) identity
func (l ServiceLink) SamePair(other ServiceLink) bool {
	return l.IssuerID == other.IssuerID && l.AudienceID == other.AudienceID
}

// Entity holds the fields shared by services and workspaces
type Entity struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	APIKey       string         `json:"api_key"`
	RegisteredAt string         `json:"registered_at"`
	Version      string         `json:"version"`
	Info         map[string]any `json:"info,omitempty"`
	Content      map[string]any `json:"content,omitempty"`
}

// EntityID returns the caller-visible id
func (e *Entity) EntityID() string {
	return e.ID
}

// SetVersion replaces the opaque version token
func (e *Entity) SetVersion(version string) {
	e.Version = version
}

// CurrentVersion returns the opaque version token
func (e *Entity) CurrentVersion() string {
	return e.Version
}

// ApplyDefaults fills id, api_key, registered_at and version when the caller
// left them empty
func (e *Entity) ApplyDefaults() {
	if e.ID == "" {
		e.ID = security.NewEntityID()
	}
	if e.APIKey == "" {
		e.APIKey = security.NewAPIKey()
	}
	if e.RegisteredAt == "" {
		e.RegisteredAt = time.Now().Format("2006-01-02 15:04:05")
	}
	if e.Version == "" {
		e.Version = security.NewVersion()
	}
}

// Service is an identified principal that may issue or receive tokens
type Service struct {
	Entity
	Type string `json:"type"`
}

// Clone returns a copy safe to mutate without touching cache state
func (s *Service) Clone() *Service {
	out := *s
	out.Info = copyMap(s.Info)
	out.Content = copyMap(s.Content)
	return &out
}

// Workspace is a scoping container holding a set of directed service links
type Workspace struct {
	Entity
	Services []ServiceLink `json:"services"`
}

// Clone returns a copy safe to mutate without touching cache state
func (w *Workspace) Clone() *Workspace {
	out := *w
	out.Info = copyMap(w.Info)
	out.Content = copyMap(w.Content)
	out.Services = make([]ServiceLink, len(w.Services))
	for i, l := range w.Services {
		out.Services[i] = ServiceLink{
			IssuerID:   l.IssuerID,
			AudienceID: l.AudienceID,
			Context:    copyMap(l.Context),
		}
	}
	return &out
}

// FindLink returns the link with the given (issuer, audience) identity, or nil
func (w *Workspace) FindLink(issuerID, audienceID string) *ServiceLink {
	for i := range w.Services {
		if w.Services[i].IssuerID == issuerID && w.Services[i].AudienceID == audienceID {
			return &w.Services[i]
		}
	}
	return nil
}

// ServiceLimited is the reduced service view returned by discovery
type ServiceLimited struct {
	Name    string         `json:"name"`
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Version string         `json:"version"`
	Info    map[string]any `json:"info,omitempty"`
}

// WorkspaceLimited is the reduced workspace view returned by discovery
type WorkspaceLimited struct {
	Name    string         `json:"name"`
	ID      string         `json:"id"`
	Version string         `json:"version"`
	Info    map[string]any `json:"info,omitempty"`
}

// Limited strips the service down to its discovery view
func (s *Service) Limited() ServiceLimited {
	return ServiceLimited{Name: s.Name, ID: s.ID, Type: s.Type, Version: s.Version, Info: s.Info}
}

// Limited strips the workspace down to its discovery view
func (w *Workspace) Limited() WorkspaceLimited {
	return WorkspaceLimited{Name: w.Name, ID: w.ID, Version: w.Version, Info: w.Info}
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
