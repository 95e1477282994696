package rental

import "github.com/bookstore/services/rental/internal/db"

// Policy decides who may borrow.
type Policy interface {
	CanBorrow(member *db.Member) bool
}

// RolePolicy admits members whose role is in the configured set.
type RolePolicy struct {
	roles map[db.Role]struct{}
}

// NewRolePolicy returns a policy admitting the given roles.
func NewRolePolicy(roles ...db.Role) RolePolicy {
	p := RolePolicy{roles: make(map[db.Role]struct{}, len(roles))}
	for _, r := range roles {
		p.roles[r] = struct{}{}
	}
	return p
}

// CanBorrow implements Policy.
func (p RolePolicy) CanBorrow(member *db.Member) bool {
	if member == nil {
		return false
	}
	_, ok := p.roles[member.Role]
	return ok
}
