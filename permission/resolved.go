package permission

import (
	"sort"
	"strings"

	"github.com/MrEthical07/challengeAuth/identity"
)

// Resolved is the effective grant set of one identity. Both slices are
// sorted and free of duplicates.
type Resolved struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Resolve applies the union law to an identity loaded with its grants.
func Resolve(ident *identity.Identity) Resolved {
	if ident == nil {
		return Resolved{Roles: []string{}, Permissions: []string{}}
	}

	perms := make(map[string]struct{}, len(ident.Permissions))
	for _, p := range ident.Permissions {
		perms[p.Name] = struct{}{}
	}
	roles := make(map[string]struct{}, len(ident.Roles))
	for _, r := range ident.Roles {
		roles[r.Name] = struct{}{}
		for _, p := range r.Permissions {
			perms[p.Name] = struct{}{}
		}
	}

	return Resolved{Roles: sortedKeys(roles), Permissions: sortedKeys(perms)}
}

// HasPermission reports whether name is in the effective set.
func (r Resolved) HasPermission(name string) bool {
	return contains(r.Permissions, name)
}

// HasRole reports whether the identity holds the named role.
func (r Resolved) HasRole(name string) bool {
	return contains(r.Roles, name)
}

// HasAnyPermission is OR semantics: true when at least one required name is held.
// An empty requirement is never satisfied.
func (r Resolved) HasAnyPermission(required []string) bool {
	for _, name := range required {
		if r.HasPermission(name) {
			return true
		}
	}
	return false
}

// HasAnyRole is the role counterpart of HasAnyPermission.
func (r Resolved) HasAnyRole(required []string) bool {
	for _, name := range required {
		if r.HasRole(name) {
			return true
		}
	}
	return false
}

// ParseRequirement splits a comma-delimited list such as "posts.read, posts.write"
// into trimmed, non-empty names.
func ParseRequirement(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
