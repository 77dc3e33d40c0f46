package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
)

type principalKey struct{}

// Principal is the back-office user a request was authenticated as.
type Principal struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	SessionID string
}

// WithPrincipal stores p on ctx. Auth calls it after verifying a token; tests
// call it directly.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext is false for anonymous requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}

// ActorFromContext returns the principal as an outbox actor, or nil.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil
	}
	return &outbox.ActorRef{UserID: p.UserID, Role: string(p.Role)}
}
