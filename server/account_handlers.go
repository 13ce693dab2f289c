package server

import (
	"net/http"
	"time"

	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/token"
	"github.com/postloop/postloop/users"
)

type connectRequest struct {
	Code       string `json:"code"`
	ExternalID string `json:"external_id"`
	Username   string `json:"username,omitempty"`
	Label      string `json:"label,omitempty"`
}

// ConnectAccountHandler finishes an OAuth connect flow: it exchanges the
// authorization code with the provider and vaults the resulting secrets
// under the caller's user.
func (s *Server) ConnectAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		adapter, ok := s.adapter(provider)
		if !ok {
			writeErrorCode(w, http.StatusBadRequest, "unknown_provider", "no such provider: "+provider)
			return
		}

		var req connectRequest
		if err := decodeJSON(r, &req); err != nil || req.Code == "" || req.ExternalID == "" {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "code and external_id are required")
			return
		}

		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		tokenSet, err := adapter.ExchangeCode(r.Context(), req.Code)
		if err != nil {
			writeError(w, err)
			return
		}

		credential, err := s.vault.Save(r.Context(), tc, credentials.SaveInput{
			UserID:         claims.UserID,
			Provider:       provider,
			ExternalID:     req.ExternalID,
			Username:       req.Username,
			AccessToken:    tokenSet.AccessToken,
			RefreshToken:   tokenSet.RefreshToken,
			TokenExpiresAt: tokenSet.ExpiryTime(time.Now()),
			Label:          req.Label,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		credential.AccessSecret = ""
		credential.RefreshSecret = ""
		writeJSON(w, http.StatusCreated, credential)
	}
}

// ListAccountsHandler returns the caller's connected accounts, metadata
// only. Secrets never leave the vault through this endpoint.
func (s *Server) ListAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		list, err := s.vault.ListForUser(r.Context(), tc, claims.UserID, r.URL.Query().Get("provider"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": list})
	}
}

type relabelRequest struct {
	Label string `json:"label"`
}

// RelabelAccountHandler renames a connected account.
func (s *Server) RelabelAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req relabelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "malformed request body")
			return
		}

		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		if _, err := s.ownedCredential(r, tc, claims); err != nil {
			writeError(w, err)
			return
		}
		if err := s.vault.Relabel(r.Context(), tc, r.PathValue("id"), req.Label); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RefreshAccountHandler forces an on-demand credential refresh.
func (s *Server) RefreshAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		credential, err := s.ownedCredential(r, tc, claims)
		if err != nil {
			writeError(w, err)
			return
		}

		adapter, ok := s.adapter(credential.Provider)
		if !ok {
			writeErrorCode(w, http.StatusBadRequest, "unknown_provider", "no adapter configured for "+credential.Provider)
			return
		}

		if err := s.orchestrator.Refresh(r.Context(), tc, credential.ID, adapter); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AccountHealthHandler validates a stored credential against the provider.
func (s *Server) AccountHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		credential, err := s.ownedCredential(r, tc, claims)
		if err != nil {
			writeError(w, err)
			return
		}

		adapter, ok := s.adapter(credential.Provider)
		if !ok {
			writeErrorCode(w, http.StatusBadRequest, "unknown_provider", "no adapter configured for "+credential.Provider)
			return
		}

		healthy, err := s.orchestrator.HealthCheck(r.Context(), tc, credential.ID, adapter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"healthy": healthy})
	}
}

// DisconnectAccountHandler removes a connected account, revoking upstream on
// a best-effort basis.
func (s *Server) DisconnectAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		credential, err := s.ownedCredential(r, tc, claims)
		if err != nil {
			writeError(w, err)
			return
		}

		// A missing adapter only skips upstream revocation; the local row
		// still goes.
		adapter, _ := s.adapter(credential.Provider)
		if err := s.vault.Disconnect(r.Context(), tc, credential.ID, adapter); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ownedCredential loads the metadata of the credential named by the path
// and enforces that the caller owns it (admins can act on any account in
// the workspace). A foreign credential reads as not found. Only metadata is
// read here, so a row with unusable ciphertext can still be disconnected.
func (s *Server) ownedCredential(r *http.Request, tc tenants.Context, claims *token.Claims) (*credentials.Credential, error) {
	credential, err := s.vault.Describe(r.Context(), tc, r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	if credential.UserID != claims.UserID && claims.Role != string(users.RoleAdmin) {
		return nil, credentials.ErrNotFound
	}
	return credential, nil
}
