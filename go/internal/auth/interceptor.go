package auth

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/gavel/go/internal/apperr"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller attached by the interceptor or middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequirePrincipal returns the caller or an Auth error.
func RequirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, apperr.Auth("authentication required")
	}
	return p, nil
}

// RequireAdmin fails with Forbidden unless the caller holds the admin role.
func RequireAdmin(ctx context.Context) (Principal, error) {
	p, err := RequirePrincipal(ctx)
	if err != nil {
		return p, err
	}
	if !p.IsAdmin() {
		return p, apperr.Forbidden("admin role required")
	}
	return p, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// NewInterceptor authenticates every unary call from its Authorization header.
func NewInterceptor(iss *Issuer) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			p, err := iss.Verify(BearerToken(req.Header().Get("Authorization")))
			if err != nil {
				return nil, apperr.ToConnect(err)
			}
			return next(WithPrincipal(ctx, p), req)
		}
	}
}

// Middleware authenticates plain HTTP requests the same way.
func Middleware(iss *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := iss.Verify(BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
