// Package auth carries the authenticated actor through context.Context.
//
// The identity provider itself is an external collaborator; this package
// only defines the capability surface the engine needs: who is acting,
// and whether they hold the admin role. Privileged checks resolve through
// the role, never through specific identity values.
package auth

import "context"

type contextKey struct{}

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

type Actor struct {
	ID   string
	Role Role
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// IsAdmin reports whether the calling context holds the admin role.
func IsAdmin(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	return ok && a.Role == RoleAdmin
}

// ActorID returns the acting identity, defaulting to "system" when the
// context carries no actor (internal engine paths).
func ActorID(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok || a.ID == "" {
		return "system"
	}
	return a.ID
}
