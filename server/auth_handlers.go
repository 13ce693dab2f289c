package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/postloop/postloop/sessions"
	"github.com/postloop/postloop/tenants"
)

// HealthHandler is the liveness probe.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	WorkspaceName string `json:"workspace_name"`
	Subdomain     string `json:"subdomain"`
}

// RegisterHandler provisions a workspace with its first admin user and
// returns a logged-in token pair.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "malformed request body")
			return
		}
		if req.Email == "" || req.Password == "" || req.Subdomain == "" {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "email, password and subdomain are required")
			return
		}

		tenant, pair, err := s.auth.Register(r.Context(), req.Email, req.Password,
			req.WorkspaceName, strings.ToLower(req.Subdomain), deviceFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"tenant_id": tenant.ID,
			"subdomain": tenant.Subdomain,
			"tokens":    pair,
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// LoginHandler authenticates against the workspace named by the Host
// subdomain.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "malformed request body")
			return
		}

		tc, err := s.tenantFromHost(r)
		if err != nil {
			writeError(w, err)
			return
		}

		pair, err := s.auth.Login(r.Context(), tc, req.Email, req.Password, req.TOTPCode, deviceFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshHandler rotates a refresh token. The old token is dead on return.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
			return
		}

		tc, err := s.tenantFromHost(r)
		if err != nil {
			writeError(w, err)
			return
		}

		pair, err := s.auth.Rotate(r.Context(), tc, req.RefreshToken, deviceFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

// LogoutHandler revokes the session behind a refresh token. Always 204:
// logging out an already-dead session is not an error.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil || req.RefreshToken == "" {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
			return
		}

		tc, err := s.tenantFromHost(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if err := s.auth.Logout(r.Context(), tc, req.RefreshToken); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SessionsHandler lists the caller's live sessions for the devices view.
func (s *Server) SessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		list, err := s.auth.ListSessions(r.Context(), tc, claims.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
	}
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// ResetPasswordHandler changes the caller's password and revokes every
// session they own, including the one making this request.
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if err := decodeJSON(r, &req); err != nil || req.NewPassword == "" {
			writeErrorCode(w, http.StatusBadRequest, "invalid_request", "new_password is required")
			return
		}

		claims, _ := requestClaims(r)
		tc, _ := requestTenant(r)

		if err := s.auth.ResetPassword(r.Context(), tc, claims.UserID, req.NewPassword); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// tenantFromHost resolves the workspace for unauthenticated session calls,
// where the subdomain is the only signal available.
func (s *Server) tenantFromHost(r *http.Request) (tenants.Context, error) {
	tc, err := s.resolver.Resolve(r.Context(), "", r.Host)
	if err != nil {
		return tenants.Context{}, err
	}
	if err := tc.Require(); err != nil {
		return tenants.Context{}, err
	}
	return tc, nil
}

func deviceFromRequest(r *http.Request) sessions.DeviceInfo {
	return sessions.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
