// Package ctxkeys holds the request context keys shared by middleware and
// handlers. It is a leaf package so both can import it.
package ctxkeys

import "context"

// Key is a named type so values never collide with plain string keys.
type Key string

// UserID is set by the auth middleware from the token's user claim.
const UserID Key = "user_id"

const userIDHolderKey Key = "user_id_holder"

type userIDHolder struct{ id string }

func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// String returns the value stored under key; ok is false when absent or empty.
func String(ctx context.Context, key Key) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// UserIDFrom is String(ctx, UserID).
func UserIDFrom(ctx context.Context) (string, bool) {
	return String(ctx, UserID)
}

// WithUserIDHolder returns a context carrying an empty holder. WithUserID on
// this context or any context derived from it fills the holder, so outer
// middleware can read a user id attached further down the chain.
func WithUserIDHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, userIDHolderKey, &userIDHolder{})
}

// WithUserID stores id under UserID and records it in the holder, if any.
func WithUserID(ctx context.Context, id string) context.Context {
	if h, ok := ctx.Value(userIDHolderKey).(*userIDHolder); ok {
		h.id = id
	}
	return WithValue(ctx, UserID, id)
}

// HeldUserID returns the id recorded in ctx's holder.
func HeldUserID(ctx context.Context) (string, bool) {
	h, ok := ctx.Value(userIDHolderKey).(*userIDHolder)
	if !ok || h.id == "" {
		return "", false
	}
	return h.id, true
}
