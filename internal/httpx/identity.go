package httpx

import (
	"context"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's "role" claim. A token without one acts only
// for its own subject.
const (
	RoleAdmin   = "admin"
	RoleGateway = "gateway"
)

type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type identity struct {
	Subject string
	Role    string
}

type identityKey struct{}

// Identity validates an HS256 bearer token and stores its subject and role in
// the request context. With an empty secret every request passes
// unauthenticated and handlers trust the user in the path.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			parts := strings.Split(raw, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or malformed bearer token"})
				return
			}
			var c claims
			token, err := jwt.ParseWithClaims(parts[1], &c, func(*jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				log.Printf("token validation failed: %v", err)
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			if strings.TrimSpace(c.Subject) == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "token has no subject"})
				return
			}
			id := identity{Subject: c.Subject, Role: c.Role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}

// authorized reports whether the caller may act for userID, writing 403 if
// not. Admins may act for any user.
func authorized(w http.ResponseWriter, r *http.Request, userID string) bool {
	id, ok := r.Context().Value(identityKey{}).(identity)
	if !ok || id.Subject == userID || id.Role == RoleAdmin {
		return true
	}
	writeJSON(w, http.StatusForbidden, errorBody{Error: "token subject does not match user"})
	return false
}

// hasRole reports whether the caller holds one of roles, writing 403 if not.
func hasRole(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	id, ok := r.Context().Value(identityKey{}).(identity)
	if !ok || slices.Contains(roles, id.Role) {
		return true
	}
	writeJSON(w, http.StatusForbidden, errorBody{Error: "operation needs role " + strings.Join(roles, " or ")})
	return false
}
