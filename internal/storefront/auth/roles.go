package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of storefront roles.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ErrUnknownRole is returned when a role string is not one of the supported roles.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole normalizes a role read from a token, a database row or a request
// body. The legacy spelling "super admin" maps to RoleSuperAdmin.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer":
		return RoleCustomer, nil
	case "admin":
		return RoleAdmin, nil
	case "super_admin", "super admin", "superadmin":
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether r bypasses ownership checks.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string { return string(r) }

// UnmarshalText parses r with ParseRole so JSON and YAML decoding reject
// unknown roles.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AdminRoles is the allow-list for back-office endpoints.
var AdminRoles = []Role{RoleAdmin, RoleSuperAdmin}
