package auth

import (
	"context"
	"testing"
)

func TestRolePermissionsSubset(t *testing.T) {
	allowed := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		allowed[perm] = struct{}{}
	}

	for role, perms := range RolePermissions {
		if len(perms) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
		if !ValidRole(role) {
			t.Fatalf("role %s is not a known role", role)
		}
		for _, perm := range perms {
			if _, ok := allowed[perm]; !ok {
				t.Fatalf("role %s has unknown permission %s", role, perm)
			}
		}
	}
}

func TestDefaultPermissionsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for _, perm := range DefaultPermissions {
		if _, ok := seen[perm]; ok {
			t.Fatalf("duplicate permission %s", perm)
		}
		seen[perm] = struct{}{}
	}
}

func TestEveryRoleHasPermissions(t *testing.T) {
	for _, role := range Roles {
		if len(RolePermissions[role]) == 0 {
			t.Fatalf("role %s missing from RolePermissions", role)
		}
	}
}

func TestStaticPermissions(t *testing.T) {
	perms := StaticPermissions{}
	ok, err := perms.HasPermission(context.Background(), RoleLeader, PermLeaveApprove)
	if err != nil || !ok {
		t.Fatalf("expected leader to approve, got %v %v", ok, err)
	}
	ok, _ = perms.HasPermission(context.Background(), RoleCollaborator, PermLeaveApprove)
	if ok {
		t.Fatal("collaborator must not hold leave.approve")
	}
	ok, _ = perms.HasPermission(context.Background(), RoleAdmin, PermLeaveApprove)
	if ok {
		t.Fatal("admin must not hold leave.approve")
	}
}

func TestNormalizeRole(t *testing.T) {
	cases := map[string]string{
		"":                RoleCollaborator,
		"Project Manager": RoleProjectManager,
		"ProjectManager":  RoleProjectManager,
		"HR":              RoleHR,
		"Janitor":         RoleCollaborator,
	}
	for in, want := range cases {
		if got := NormalizeRole(in); got != want {
			t.Fatalf("NormalizeRole(%q) = %q, want %q", in, got, want)
		}
	}
}
