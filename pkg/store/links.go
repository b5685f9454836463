package store

import (
	"context"

	"github.com/authbridge/authbridge/pkg/errdefs"
	"github.com/authbridge/authbridge/pkg/security"
	"github.com/authbridge/authbridge/pkg/types"
)

// LinkAction selects what ChangeLink does with the (issuer, audience) pair
type LinkAction string

const (
	ActionLink   LinkAction = "link-service"
	ActionUnlink LinkAction = "unlink-service"
)

// ChangeLink adds or removes a directed link inside a workspace. Self-links
// are rejected, both endpoint services must exist, and the workspace link set
// never holds two links with the same (issuer, audience) pair.
func (s *Store) ChangeLink(ctx context.Context, workspaceID string, action LinkAction, link types.ServiceLink, ifMatch string) (*types.Workspace, error) {
	if link.IssuerID == "" || link.AudienceID == "" {
		return nil, errdefs.New(errdefs.CodeBadLink, "issuer_id and audience_id are required")
	}
	if link.IssuerID == link.AudienceID {
		return nil, errdefs.Newf(errdefs.CodeBadLink, "service [%s] cannot link to itself", link.IssuerID)
	}
	if _, ok := s.cache.Service(ctx, link.IssuerID); !ok {
		return nil, errdefs.NotFound("service", link.IssuerID)
	}
	if _, ok := s.cache.Service(ctx, link.AudienceID); !ok {
		return nil, errdefs.NotFound("service", link.AudienceID)
	}

	cur, ok := s.cache.Workspace(ctx, workspaceID)
	if !ok {
		return nil, errdefs.NotFound("workspace", workspaceID)
	}
	if err := s.checkVersions(ctx, types.KindWorkspace, workspaceID, cur.CurrentVersion(), ifMatch); err != nil {
		return nil, err
	}

	ws := cur.Clone()
	switch action {
	case ActionLink:
		if ws.FindLink(link.IssuerID, link.AudienceID) != nil {
			return nil, errdefs.Newf(errdefs.CodeAlreadyLinked,
				"link %s -> %s already present in workspace [%s]", link.IssuerID, link.AudienceID, workspaceID)
		}
		ws.Services = append(ws.Services, link)
	case ActionUnlink:
		idx := -1
		for i := range ws.Services {
			if ws.Services[i].SamePair(link) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errdefs.Newf(errdefs.CodeNotLinked,
				"link %s -> %s not present in workspace [%s]", link.IssuerID, link.AudienceID, workspaceID)
		}
		ws.Services = append(ws.Services[:idx], ws.Services[idx+1:]...)
	default:
		return nil, errdefs.Newf(errdefs.CodeBadRequest, "unknown link action %q", action)
	}

	stamp := security.NewVersion()
	if err := s.backend.SaveItem(ctx, types.KindWorkspace, ws, stamp); err != nil {
		return nil, err
	}
	s.cache.StoreWorkspace(ws, stamp)

	s.logger.Info().
		Str("workspace_id", workspaceID).
		Str("action", string(action)).
		Str("issuer_id", link.IssuerID).
		Str("audience_id", link.AudienceID).
		Msg("workspace links changed")
	return ws, nil
}

// removeServiceLinks strips every link mentioning serviceID from every
// workspace, rewriting each affected workspace with a fresh version
func (s *Store) removeServiceLinks(ctx context.Context, serviceID string) ([]RemovedLink, error) {
	var removed []RemovedLink
	for _, cur := range s.cache.Workspaces(ctx) {
		var kept []types.ServiceLink
		var dropped []RemovedLink
		for _, l := range cur.Services {
			if l.IssuerID == serviceID || l.AudienceID == serviceID {
				dropped = append(dropped, RemovedLink{
					WorkspaceID: cur.ID,
					IssuerID:    l.IssuerID,
					AudienceID:  l.AudienceID,
				})
				continue
			}
			kept = append(kept, l)
		}
		if len(dropped) == 0 {
			continue
		}

		ws := cur.Clone()
		if kept == nil {
			kept = []types.ServiceLink{}
		}
		ws.Services = kept
		stamp := security.NewVersion()
		if err := s.backend.SaveItem(ctx, types.KindWorkspace, ws, stamp); err != nil {
			return nil, err
		}
		s.cache.StoreWorkspace(ws, stamp)
		removed = append(removed, dropped...)
	}
	if removed == nil {
		removed = []RemovedLink{}
	}
	return removed, nil
}

// ServiceLinks returns every link across all workspaces that mentions the
// service, as either issuer or audience
func (s *Store) ServiceLinks(ctx context.Context, serviceID string) []RemovedLink {
	var out []RemovedLink
	for _, ws := range s.cache.Workspaces(ctx) {
		for _, l := range ws.Services {
			if l.IssuerID == serviceID || l.AudienceID == serviceID {
				out = append(out, RemovedLink{
					WorkspaceID: ws.ID,
					IssuerID:    l.IssuerID,
					AudienceID:  l.AudienceID,
				})
			}
		}
	}
	if out == nil {
		out = []RemovedLink{}
	}
	return out
}
