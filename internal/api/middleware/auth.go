package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"algoverse/internal/common"
	"algoverse/internal/domain/model"
)

type contextKey string

const IdentityCtxKey contextKey = "identity"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Identity, error)
}

type AdminChecker interface {
	RequireAdmin(ctx context.Context, id *model.Identity) (*model.Profile, error)
}

// RequireAuth resolves the "Authorization: Bearer" token and stores the
// caller's identity on the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				common.RespondWithDomainError(w, fmt.Errorf("missing or invalid authorization header: %w", common.ErrUnauthorized))
				return
			}

			identity, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				common.RespondWithDomainError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityCtxKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after RequireAuth.
func AdminOnly(checker AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentityFromContext(r.Context())
			if !ok {
				common.RespondWithDomainError(w, fmt.Errorf("missing user context: %w", common.ErrUnauthorized))
				return
			}
			if _, err := checker.RequireAdmin(r.Context(), identity); err != nil {
				common.RespondWithDomainError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetIdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(IdentityCtxKey).(*model.Identity)
	return identity, ok && identity != nil
}
