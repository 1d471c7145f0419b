package identity

import (
	"context"

	"github.com/goliatone/go-router"
)

var snapshotCtxKey = &contextKey{"identity_snapshot"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithSnapshot sets the identity snapshot in the given context
func WithSnapshot(r context.Context, snap Snapshot) context.Context {
	return context.WithValue(r, snapshotCtxKey, snap)
}

// SnapshotFromContext finds the identity snapshot from the context.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// WithProfile sets the Profile in the given context
func WithProfile(r context.Context, profile *Profile) context.Context {
	return context.WithValue(r, profileCtxKey, profile)
}

// ProfileFromContext finds the profile from the context.
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok
}

// SnapshotFromRouter extracts the identity snapshot stashed in router locals.
func SnapshotFromRouter(ctx router.Context, key string) (Snapshot, bool) {
	if key == "" {
		key = "identity"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return Snapshot{}, false
	}
	snap, ok := raw.(Snapshot)
	return snap, ok
}

// CanRenderPrivileged reports whether the snapshot in the standard context
// allows privileged rendering. Unknown or missing status reads as false.
func CanRenderPrivileged(ctx context.Context) bool {
	snap, ok := SnapshotFromContext(ctx)
	if !ok {
		return false
	}
	return snap.CanRenderPrivileged()
}
