package utils

import (
	"context"

	"github.com/hilthontt/reelsync/internal/infrastructure/auth"
)

type claimsKey struct{}

func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// ActorID is empty for unauthenticated requests.
func ActorID(ctx context.Context) string {
	if claims, ok := ClaimsFrom(ctx); ok {
		return claims.ActorID()
	}
	return ""
}
