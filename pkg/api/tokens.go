package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/authbridge/authbridge/pkg/auth"
	"github.com/authbridge/authbridge/pkg/errdefs"
)

type issueRequest struct {
	// Iss is not accepted; the path parameter is the only issuer binding
	Iss    *string        `json:"iss"`
	Aud    string         `json:"aud"`
	Sub    string         `json:"sub"`
	Claims map[string]any `json:"claims"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

// handleTokenIssue mints a link-gated token. The issuer is bound by the path
// and authenticated by strict service-key match; admin keys cannot mint.
func (s *Server) handleTokenIssue(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "service_id")
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketIssue, auth.Principal(key), s.cfg.IssueLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeServiceStrict(r.Context(), key, serviceID); err != nil {
		respondError(w, err)
		return
	}

	var req issueRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Iss != nil {
		respondError(w, errdefs.New(errdefs.CodeBadRequest,
			"iss is not accepted in the body; the issuer is the service in the path"))
		return
	}

	signed, err := s.issuer.Issue(r.Context(), serviceID, req.Aud, req.Sub, req.Claims)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"access_token": signed})
}

func (s *Server) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	key := apiKey(r)
	if err := s.limiter.Allow(r.Context(), auth.BucketDiscovery, auth.Principal(key), s.cfg.DiscoveryLimitPerMin); err != nil {
		respondError(w, err)
		return
	}
	if err := s.authn.AuthorizeAnyEntity(r.Context(), key); err != nil {
		respondError(w, err)
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Token == "" {
		respondError(w, errdefs.New(errdefs.CodeBadRequest, "token is required"))
		return
	}

	claims, err := s.authority.Verify(r.Context(), req.Token)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"claims": claims})
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.authority.JWKS())
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	kid, pem, err := s.authority.PublicKey()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"kid": kid, "public_key": pem})
}
