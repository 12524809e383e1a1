package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"schoollib/internal/apperr"
	"schoollib/internal/web"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

func (p Principal) Can(c Capability) bool { return Can(p.Role, c) }

// PrincipalLoader resolves a token subject to a live, active account.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, id uuid.UUID) (Principal, error)
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

var errCredentials = apperr.Unauthorized("Invalid authentication credentials")

// Authenticate requires a valid bearer token and stores the caller's
// principal in the request context. The role is re-read from the account
// so that role changes and deactivation apply immediately.
func Authenticate(issuer *Issuer, loader PrincipalLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				web.Error(w, r, apperr.Unauthorized("Not authenticated"))
				return
			}
			id, _, err := issuer.Parse(raw)
			if err != nil {
				web.Error(w, r, errCredentials)
				return
			}
			p, err := loader.LoadPrincipal(r.Context(), id)
			if err != nil {
				web.Error(w, r, errCredentials)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Require rejects callers lacking c with 403.
func Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				web.Error(w, r, apperr.Unauthorized("Not authenticated"))
				return
			}
			if !p.Can(c) {
				web.Error(w, r, apperr.Forbidden("Not enough permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
