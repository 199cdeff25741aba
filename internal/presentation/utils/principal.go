package utils

import (
	"context"
	"net/http"

	"github.com/hilthontt/haven/internal/domain"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal of ctx, if any.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p.ID != ""
}

// RequestPrincipal is PrincipalFrom on the request context.
func RequestPrincipal(r *http.Request) (domain.Principal, bool) {
	return PrincipalFrom(r.Context())
}
