package generic

import "context"

// Role is the staff role supplied by the identity layer.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleFinance    Role = "finance"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleFinance:
		return true
	}
	return false
}

// Actor is the identity performing an operation. It is passed explicitly to
// every state-changing call rather than looked up from ambient session state.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// System is the actor used for automated work (webhooks, sweeper).
var System = Actor{ID: "system", Name: "system"}

// HasRole reports whether the actor holds one of roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Require returns a *ForbiddenError unless the actor holds one of roles.
func (a Actor) Require(action string, roles ...Role) error {
	if a.HasRole(roles...) {
		return nil
	}
	return &ForbiddenError{Action: action, Role: a.Role, Allowed: roles}
}

type actorKey struct{}

// WithActor stores the actor on ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored on ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
