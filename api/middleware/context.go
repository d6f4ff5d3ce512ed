package middleware

import "context"

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxRole    contextKey = "actor_role"
	ctxStoreID contextKey = "store_id"
)

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// StoreIDFromContext returns the active store carried by a seller token, or
// "" for actors without one.
func StoreIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxStoreID)
}

// WithActor seeds the identity values normally set by Auth. Handler tests use
// it to skip token minting.
func WithActor(ctx context.Context, userID, role, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if storeID != "" {
		ctx = context.WithValue(ctx, ctxStoreID, storeID)
	}
	return ctx
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
