package discovery

import (
	"context"
	"sort"

	"github.com/authbridge/authbridge/pkg/cache"
	"github.com/authbridge/authbridge/pkg/types"
)

// OutboundScope is one workspace in which an outbound link exists, with the
// link's context
type OutboundScope struct {
	Workspace types.WorkspaceLimited `json:"workspace"`
	Context   map[string]any         `json:"context,omitempty"`
}

// OutboundPeer is an audience the service may call, with every workspace
// scoping that trust
type OutboundPeer struct {
	Audience   types.ServiceLimited `json:"audience"`
	Workspaces []OutboundScope      `json:"workspaces"`
}

// InboundCaller is one directed link pointing at the service
type InboundCaller struct {
	Issuer    types.ServiceLimited   `json:"issuer"`
	Workspace types.WorkspaceLimited `json:"workspace"`
	Context   map[string]any         `json:"context,omitempty"`
}

// Outbound projects the audiences serviceID may issue tokens to, grouped by
// audience and sorted by audience id. Links whose audience no longer resolves
// are skipped.
func Outbound(ctx context.Context, c *cache.Cache, serviceID string) []OutboundPeer {
	byAudience := make(map[string]*OutboundPeer)
	for _, ws := range c.Workspaces(ctx) {
		for _, l := range ws.Services {
			if l.IssuerID != serviceID {
				continue
			}
			audience, ok := c.Service(ctx, l.AudienceID)
			if !ok {
				continue
			}
			peer, seen := byAudience[l.AudienceID]
			if !seen {
				peer = &OutboundPeer{Audience: audience.Limited()}
				byAudience[l.AudienceID] = peer
			}
			peer.Workspaces = append(peer.Workspaces, OutboundScope{
				Workspace: ws.Limited(),
				Context:   l.Context,
			})
		}
	}

	out := make([]OutboundPeer, 0, len(byAudience))
	for _, peer := range byAudience {
		sort.Slice(peer.Workspaces, func(i, j int) bool {
			return peer.Workspaces[i].Workspace.ID < peer.Workspaces[j].Workspace.ID
		})
		out = append(out, *peer)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Audience.ID < out[j].Audience.ID })
	return out
}

// Inbound projects the callers holding a link to serviceID, sorted by
// workspace then issuer
func Inbound(ctx context.Context, c *cache.Cache, serviceID string) []InboundCaller {
	var out []InboundCaller
	for _, ws := range c.Workspaces(ctx) {
		for _, l := range ws.Services {
			if l.AudienceID != serviceID {
				continue
			}
			issuer, ok := c.Service(ctx, l.IssuerID)
			if !ok {
				continue
			}
			out = append(out, InboundCaller{
				Issuer:    issuer.Limited(),
				Workspace: ws.Limited(),
				Context:   l.Context,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Workspace.ID != out[j].Workspace.ID {
			return out[i].Workspace.ID < out[j].Workspace.ID
		}
		return out[i].Issuer.ID < out[j].Issuer.ID
	})
	if out == nil {
		out = []InboundCaller{}
	}
	return out
}
