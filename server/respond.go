package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/postloop/postloop/auth"
	"github.com/postloop/postloop/credentials"
	"github.com/postloop/postloop/platforms"
	"github.com/postloop/postloop/secrets"
	"github.com/postloop/postloop/sessions"
	"github.com/postloop/postloop/tenants"
	"github.com/postloop/postloop/token"
	"github.com/postloop/postloop/users"
)

const contentTypeJSON = "application/json; charset=utf-8"

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}

// writeError maps the domain error taxonomy onto status codes. Unknown
// errors become an opaque 500; the detail goes to the log, not the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrExpired):
		writeErrorCode(w, http.StatusUnauthorized, "token_expired", "token has expired")
	case errors.Is(err, token.ErrWrongKind):
		writeErrorCode(w, http.StatusUnauthorized, "invalid_token", "token kind not accepted here")
	case errors.Is(err, token.ErrInvalid):
		writeErrorCode(w, http.StatusUnauthorized, "invalid_token", "token is not valid")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "email or password incorrect")
	case errors.Is(err, auth.ErrMFARequired):
		writeErrorCode(w, http.StatusUnauthorized, "mfa_required", "a valid one-time code is required")
	case errors.Is(err, users.ErrWeakPassword):
		writeErrorCode(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.Is(err, auth.ErrSubdomainTaken):
		writeErrorCode(w, http.StatusConflict, "subdomain_taken", "subdomain already belongs to a workspace")
	case errors.Is(err, tenants.ErrContextMissing):
		writeErrorCode(w, http.StatusForbidden, "tenant_required", "request could not be pinned to a workspace")
	case errors.Is(err, credentials.ErrRefreshConflict):
		writeErrorCode(w, http.StatusConflict, "refresh_conflict", "credential was updated concurrently, retry")
	case errors.Is(err, secrets.ErrDecryptionFailed):
		writeErrorCode(w, http.StatusConflict, "needs_reconnect", "stored credential is unusable, reconnect the account")
	case errors.Is(err, platforms.ErrProviderRefreshFailed):
		writeErrorCode(w, http.StatusBadGateway, "provider_refresh_failed", "the provider rejected the refresh")
	case errors.Is(err, credentials.ErrNotFound),
		errors.Is(err, sessions.ErrNotFound),
		errors.Is(err, tenants.ErrNotFound),
		errors.Is(err, users.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "resource not found")
	default:
		log.Error().Err(err).Msg("unhandled request error")
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(r *http.Request, into any) error {
	defer func() { _ = r.Body.Close() }()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}
