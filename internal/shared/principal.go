// Package shared holds cross-cutting types used by every domain package:
// the authenticated principal, role references and the audit trail.
package shared

import "context"

// RoleRef is the normalized reference to a role held by a principal.
// It is the only representation of an assigned role in the codebase;
// raw role IDs never travel on their own.
type RoleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RoleID extracts the numeric identifier from a role reference.
func RoleID(ref RoleRef) int64 {
	return ref.ID
}

// Principal describes the authenticated actor making a request. It is
// resolved once per request from a bearer credential and passed explicitly
// into services; it is never read from ambient state below the handler layer.
type Principal struct {
	ID     int64     `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
	Roles  []RoleRef `json:"roles"`
}

// RoleIDs returns the identifiers of all roles assigned to the principal.
func (p Principal) RoleIDs() []int64 {
	ids := make([]int64, len(p.Roles))
	for i, ref := range p.Roles {
		ids[i] = RoleID(ref)
	}
	return ids
}

// HasRole reports whether the principal holds the given role ID.
func (p Principal) HasRole(roleID int64) bool {
	for _, ref := range p.Roles {
		if RoleID(ref) == roleID {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context. Only the
// HTTP middleware writes it; handlers read it once and pass it on by value.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
