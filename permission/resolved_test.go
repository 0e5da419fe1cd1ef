package permission

import (
	"reflect"
	"testing"

	"github.com/MrEthical07/challengeAuth/identity"
)

func TestResolveIsUnionOfDirectAndRoleGrants(t *testing.T) {
	ident := &identity.Identity{
		Permissions: []identity.Permission{{Name: "billing.view"}, {Name: "posts.read"}},
		Roles: []identity.Role{
			{Name: "editor", Permissions: []identity.Permission{{Name: "posts.read"}, {Name: "posts.write"}}},
			{Name: "auditor", Permissions: []identity.Permission{{Name: "logs.read"}}},
		},
	}

	got := Resolve(ident)
	wantPerms := []string{"billing.view", "logs.read", "posts.read", "posts.write"}
	if !reflect.DeepEqual(got.Permissions, wantPerms) {
		t.Fatalf("permissions = %v, want %v", got.Permissions, wantPerms)
	}
	if !reflect.DeepEqual(got.Roles, []string{"auditor", "editor"}) {
		t.Fatalf("roles = %v", got.Roles)
	}
}

func TestResolveAddingSupersetRole(t *testing.T) {
	ident := &identity.Identity{Permissions: []identity.Permission{{Name: "a"}}}
	before := Resolve(ident)

	ident.Roles = append(ident.Roles, identity.Role{Name: "r", Permissions: []identity.Permission{{Name: "a"}, {Name: "b"}}})
	after := Resolve(ident)

	if !reflect.DeepEqual(before.Permissions, []string{"a"}) || !reflect.DeepEqual(after.Permissions, []string{"a", "b"}) {
		t.Fatalf("before=%v after=%v", before.Permissions, after.Permissions)
	}
}

func TestResolveNilIdentity(t *testing.T) {
	got := Resolve(nil)
	if got.Roles == nil || got.Permissions == nil || len(got.Permissions) != 0 {
		t.Fatalf("expected empty non-nil slices, got %+v", got)
	}
}

func TestHasAnyPermissionORSemantics(t *testing.T) {
	r := Resolved{Permissions: []string{"posts.read"}, Roles: []string{"editor"}}

	cases := []struct {
		req  string
		want bool
	}{
		{"posts.read", true},
		{"posts.write,posts.read", true},
		{" posts.write , posts.read ", true},
		{"posts.write", false},
		{"", false},
		{",,", false},
	}
	for _, tc := range cases {
		if got := r.HasAnyPermission(ParseRequirement(tc.req)); got != tc.want {
			t.Fatalf("HasAnyPermission(%q) = %v, want %v", tc.req, got, tc.want)
		}
	}

	if !r.HasAnyRole(ParseRequirement("admin,editor")) {
		t.Fatal("expected editor role to satisfy requirement")
	}
	if r.HasAnyRole(ParseRequirement("admin")) {
		t.Fatal("expected admin requirement to fail")
	}
}
