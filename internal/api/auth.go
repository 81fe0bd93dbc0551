package api

import (
	"errors"
	"net/http"
	"strings"

	"pickbatch/internal/auth"
)

var errUnauthenticated = errors.New("missing bearer token")

const devTenant = "t_demo"

// getPrincipal extracts tenant and role from the request.
//   - Authorization: Bearer goes through the configured verifier.
//   - access_token in the query serves WebSocket clients that cannot set
//     headers.
//   - In dev mode X-Tenant-Id and X-Role are trusted, defaulting to an admin
//     of the demo tenant.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return s.Auth.Verify(strings.TrimSpace(authz[7:]))
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return s.Auth.Verify(tok)
	}
	if s.Auth.Mode != "dev" {
		return auth.Principal{}, errUnauthenticated
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if tenant == "" {
		tenant = devTenant
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, nil
}

// require writes 401 or 403 and returns false unless the caller holds at
// least role min.
func (s *Server) require(w http.ResponseWriter, r *http.Request, min string) (auth.Principal, bool) {
	p, err := s.getPrincipal(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="pickbatch"`)
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return p, false
	}
	if !p.Can(min) {
		writeProblem(w, http.StatusForbidden, "Forbidden", min+" role required", r.URL.Path)
		return p, false
	}
	return p, true
}

// tenantFor resolves the tenant a request body names against the caller.
// Only admins may act for another tenant.
func tenantFor(p auth.Principal, bodyTenant string) (string, bool) {
	if bodyTenant == "" || bodyTenant == p.Tenant {
		return p.Tenant, true
	}
	return bodyTenant, p.Role == auth.RoleAdmin
}
