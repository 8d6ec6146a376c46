package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/gemchat/backend/internal/handler/apierror"
	"github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/pkg/utils"
)

type identityKey struct{}

// TokenVerifier checks a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Anything else yields "".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified identity in the request context.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.Verify(BearerToken(r))
			if err != nil {
				status, message := apierror.Resolve(err)
				utils.RespondError(w, status, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity set by RequireAuth.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok
}
