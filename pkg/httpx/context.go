package httpx

import (
	"context"

	"github.com/aussiebroadwan/stepup/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUser   ctxKey = "user"
	CtxKeyClaims ctxKey = "claims"
)

// ContextWithUser stores the session-resolved user in the context.
func ContextWithUser[T any](ctx context.Context, user T) context.Context {
	return context.WithValue(ctx, CtxKeyUser, user)
}

// UserFromContext returns the user stored by ContextWithUser.
func UserFromContext[T any](ctx context.Context) (T, bool) {
	u, ok := ctx.Value(CtxKeyUser).(T)
	return u, ok
}

// ContextWithClaims stores verified step-up claims in the context.
func ContextWithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, CtxKeyClaims, c)
}

// ClaimsFromContext returns the claims stored by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}
