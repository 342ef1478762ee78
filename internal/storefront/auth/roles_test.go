package auth

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"customer":    RoleCustomer,
		"admin":       RoleAdmin,
		"super_admin": RoleSuperAdmin,
		"super admin": RoleSuperAdmin,
		" Admin ":     RoleAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseRole("owner"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestRoleIsAdmin(t *testing.T) {
	if RoleCustomer.IsAdmin() {
		t.Fatal("customer must not be admin")
	}
	if !RoleAdmin.IsAdmin() || !RoleSuperAdmin.IsAdmin() {
		t.Fatal("admin roles must bypass ownership")
	}
}

func TestRoleUnmarshalJSON(t *testing.T) {
	var body struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal([]byte(`{"role":"super admin"}`), &body); err != nil {
		t.Fatal(err)
	}
	if body.Role != RoleSuperAdmin {
		t.Fatalf("expected super_admin, got %q", body.Role)
	}
	if err := json.Unmarshal([]byte(`{"role":"god"}`), &body); err == nil {
		t.Fatal("expected unknown role to fail decoding")
	}
}
