package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/ballot-engine/ballot"
)

// The auth gateway verifies the caller's token and forwards the claims in
// these headers. Requests that bypass the gateway must be blocked at the network.
const (
	HeaderPrincipalID     = "X-Principal-Id"
	HeaderPrincipalRole   = "X-Principal-Role"
	HeaderPrincipalRegion = "X-Principal-Region"
	HeaderPrincipalZone   = "X-Principal-Zone"
)

type principalKey struct{}

var knownRoles = map[ballot.Role]bool{
	ballot.RoleVoter:         true,
	ballot.RoleCandidate:     true,
	ballot.RoleRegionAdmin:   true,
	ballot.RoleZoneAdmin:     true,
	ballot.RoleNationalAdmin: true,
	ballot.RoleSystemAdmin:   true,
}

// Authenticate rejects requests without a principal and stores it in the
// request context.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ballot.Principal{
			ID:     ballot.VoterID(strings.TrimSpace(r.Header.Get(HeaderPrincipalID))),
			Role:   ballot.Role(strings.TrimSpace(r.Header.Get(HeaderPrincipalRole))),
			Region: strings.TrimSpace(r.Header.Get(HeaderPrincipalRegion)),
			Zone:   strings.TrimSpace(r.Header.Get(HeaderPrincipalZone)),
		}
		if p.ID == "" || p.Role == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing principal", nil)
			return
		}
		if !knownRoles[p.Role] {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Unknown role", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(ctx context.Context) (ballot.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(ballot.Principal)
	return p, ok
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...ballot.Role) func(http.Handler) http.Handler {
	allowed := make(map[ballot.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing principal", nil)
				return
			}
			if !allowed[p.Role] {
				writeError(w, http.StatusForbidden, "forbidden", "Role not permitted", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
