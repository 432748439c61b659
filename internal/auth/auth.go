package auth

import "context"

// Claim names the core cares about. The policy that grants them lives in the
// external authorizer; the core only checks membership.
const (
	ClaimManageColumns = "columns:manage"
	ClaimManageSprints = "sprints:manage"
)

// Identity describes the acting user as resolved by the upstream identity
// source.
type Identity struct {
	ID     int64
	Email  string
	Name   string
	Claims Claims
}

// Claims is the opaque capability set attached to an identity.
type Claims map[string]struct{}

// NewClaims builds a claim set from a list of capability strings.
func NewClaims(names ...string) Claims {
	c := make(Claims, len(names))
	for _, n := range names {
		if n != "" {
			c[n] = struct{}{}
		}
	}
	return c
}

// Has reports whether the capability is present.
func (c Claims) Has(name string) bool {
	_, ok := c[name]
	return ok
}

type contextKey struct{}

// WithIdentity returns a context carrying the acting identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the acting identity. The zero Identity (anonymous, no
// claims) is returned when none was attached.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(contextKey{}).(Identity); ok {
		return id
	}
	return Identity{}
}
