// Package memstore is an in-memory identity.Store used by tests, the
// handshake example and local runs without a database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/challengeAuth/identity"
)

type Store struct {
	mu sync.RWMutex

	nextID      int64
	identities  map[int64]*identity.Identity
	roles       map[int64]*identity.Role
	permissions map[int64]*identity.Permission

	identityRoles       map[int64]map[int64]struct{}
	identityPermissions map[int64]map[int64]struct{}
	rolePermissions     map[int64]map[int64]struct{}
}

func New() *Store {
	return &Store{
		identities:          make(map[int64]*identity.Identity),
		roles:               make(map[int64]*identity.Role),
		permissions:         make(map[int64]*identity.Permission),
		identityRoles:       make(map[int64]map[int64]struct{}),
		identityPermissions: make(map[int64]map[int64]struct{}),
		rolePermissions:     make(map[int64]map[int64]struct{}),
	}
}

var _ identity.Store = (*Store)(nil)

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) FindByNameOrEmail(_ context.Context, identifier string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ident := range s.identities {
		if ident.Name == identifier || strings.EqualFold(ident.Email, identifier) {
			return s.loadLocked(ident.ID), nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Store) FindByEmail(_ context.Context, email string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ident := range s.identities {
		if strings.EqualFold(ident.Email, email) {
			return s.loadLocked(ident.ID), nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Store) FindByID(_ context.Context, id int64) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.identities[id]; !ok {
		return nil, identity.ErrNotFound
	}
	return s.loadLocked(id), nil
}

func (s *Store) Create(_ context.Context, ident *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Name == ident.Name || strings.EqualFold(existing.Email, ident.Email) {
			return identity.ErrDuplicate
		}
	}
	now := time.Now()
	ident.ID = s.id()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	stored := *ident
	stored.Roles = nil
	stored.Permissions = nil
	s.identities[ident.ID] = &stored
	return nil
}

func (s *Store) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return identity.ErrNotFound
	}
	ident.EmailVerifiedAt = &at
	ident.UpdatedAt = at
	return nil
}

func (s *Store) SetMFASecret(_ context.Context, id int64, secret *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[id]
	if !ok {
		return identity.ErrNotFound
	}
	if secret != nil {
		v := *secret
		secret = &v
	}
	ident.MFASecret = secret
	ident.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AddRole(_ context.Context, identityID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return identity.ErrNotFound
	}
	link(s.identityRoles, identityID, roleID)
	return nil
}

func (s *Store) RemoveRole(_ context.Context, identityID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return identity.ErrNotFound
	}
	delete(s.identityRoles[identityID], roleID)
	return nil
}

func (s *Store) AddPermission(_ context.Context, identityID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return identity.ErrNotFound
	}
	link(s.identityPermissions, identityID, permissionID)
	return nil
}

func (s *Store) RemovePermission(_ context.Context, identityID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return identity.ErrNotFound
	}
	delete(s.identityPermissions[identityID], permissionID)
	return nil
}

func (s *Store) AddRolePermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return identity.ErrNotFound
	}
	link(s.rolePermissions, roleID, permissionID)
	return nil
}

func (s *Store) RemoveRolePermission(_ context.Context, roleID, permissionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return identity.ErrNotFound
	}
	if _, ok := s.permissions[permissionID]; !ok {
		return identity.ErrNotFound
	}
	delete(s.rolePermissions[roleID], permissionID)
	return nil
}

func (s *Store) ListRoles(_ context.Context) ([]identity.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Role, 0, len(s.roles))
	for id := range s.roles {
		out = append(out, s.roleLocked(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateRole(_ context.Context, name string, permissions []string) (*identity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return nil, identity.ErrDuplicate
		}
	}
	role := &identity.Role{ID: s.id(), Name: name}
	s.roles[role.ID] = role
	s.syncRolePermissionsLocked(role.ID, permissions)
	out := s.roleLocked(role.ID)
	return &out, nil
}

func (s *Store) UpdateRole(_ context.Context, roleID int64, update identity.RoleUpdate) (*identity.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	if update.Name != "" && update.Name != role.Name {
		for _, r := range s.roles {
			if r.Name == update.Name {
				return nil, identity.ErrDuplicate
			}
		}
		role.Name = update.Name
	}
	if update.Permissions != nil {
		s.syncRolePermissionsLocked(roleID, update.Permissions)
	}
	out := s.roleLocked(roleID)
	return &out, nil
}

func (s *Store) DeleteRole(_ context.Context, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return identity.ErrNotFound
	}
	delete(s.roles, roleID)
	delete(s.rolePermissions, roleID)
	for _, held := range s.identityRoles {
		delete(held, roleID)
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context) ([]identity.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreatePermission(_ context.Context, name string) (*identity.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return nil, identity.ErrDuplicate
		}
	}
	p := &identity.Permission{ID: s.id(), Name: name}
	s.permissions[p.ID] = p
	out := *p
	return &out, nil
}

func (s *Store) IdentityIDsWithRole(_ context.Context, roleID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for identityID, held := range s.identityRoles {
		if _, ok := held[roleID]; ok {
			ids = append(ids, identityID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// syncRolePermissionsLocked replaces the role's grants with the named
// permissions. Unknown names are skipped.
func (s *Store) syncRolePermissionsLocked(roleID int64, names []string) {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	set := make(map[int64]struct{})
	for id, p := range s.permissions {
		if _, ok := wanted[p.Name]; ok {
			set[id] = struct{}{}
		}
	}
	s.rolePermissions[roleID] = set
}

func (s *Store) roleLocked(roleID int64) identity.Role {
	role := *s.roles[roleID]
	role.Permissions = s.permissionsLocked(s.rolePermissions[roleID])
	return role
}

func (s *Store) permissionsLocked(ids map[int64]struct{}) []identity.Permission {
	out := make([]identity.Permission, 0, len(ids))
	for id := range ids {
		if p, ok := s.permissions[id]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) loadLocked(id int64) *identity.Identity {
	out := *s.identities[id]
	roleIDs := make([]int64, 0, len(s.identityRoles[id]))
	for roleID := range s.identityRoles[id] {
		roleIDs = append(roleIDs, roleID)
	}
	sort.Slice(roleIDs, func(i, j int) bool { return roleIDs[i] < roleIDs[j] })
	out.Roles = make([]identity.Role, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if _, ok := s.roles[roleID]; ok {
			out.Roles = append(out.Roles, s.roleLocked(roleID))
		}
	}
	out.Permissions = s.permissionsLocked(s.identityPermissions[id])
	return &out
}

func link(m map[int64]map[int64]struct{}, from, to int64) {
	set, ok := m[from]
	if !ok {
		set = make(map[int64]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}
