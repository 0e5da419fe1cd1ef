// Package identity holds the credential data model shared by the engine and
// its storage backends.
//
// # Architecture boundaries
//
// identity is a leaf package: it declares [Identity], [Role], [Permission] and
// the [Store] contract. Concrete relational and in-memory stores live in the
// sqlstore and memstore subpackages.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("identity: not found")
	// ErrDuplicate is returned when a unique column (name or email) is already taken.
	ErrDuplicate = errors.New("identity: duplicate")
)

// Permission is a named capability. Names are unique.
type Permission struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Role is a named bundle of permissions.
type Role struct {
	ID          int64        `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	Permissions []Permission `db:"-" json:"permissions,omitempty"`
}

// Identity is a registered account.
//
// PasswordHash, Salt and MFASecret never leave the server; they are tagged
// out of JSON so an Identity can be returned to clients directly.
type Identity struct {
	ID                int64        `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	Email             string       `db:"email" json:"email"`
	PasswordHash      string       `db:"password_hash" json:"-"`
	Salt              string       `db:"salt" json:"-"`
	MFASecret         *string      `db:"mfa_secret" json:"-"`
	EmailVerifiedAt   *time.Time   `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	PasswordExpiresAt time.Time    `db:"password_expires_at" json:"passwordExpiresAt"`
	CreatedAt         time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updatedAt"`
	Roles             []Role       `db:"-" json:"roles,omitempty"`
	Permissions       []Permission `db:"-" json:"permissions,omitempty"`
}

// MFAEnabled reports whether a permanent TOTP secret is set.
func (i *Identity) MFAEnabled() bool {
	return i != nil && i.MFASecret != nil && *i.MFASecret != ""
}

// EmailVerified reports whether the email verification timestamp is set.
func (i *Identity) EmailVerified() bool {
	return i != nil && i.EmailVerifiedAt != nil
}

// PasswordExpired reports whether the password validity window ended before now.
func (i *Identity) PasswordExpired(now time.Time) bool {
	return i != nil && i.PasswordExpiresAt.Before(now)
}

// RoleUpdate carries the mutable fields of a role. A nil Permissions slice
// leaves the role's grants untouched; a non-nil slice replaces them.
type RoleUpdate struct {
	Name        string
	Permissions []string
}

// Store is the relational credential store.
//
// Lookups that load an Identity with grants (FindByNameOrEmail, FindByEmail,
// FindByID) populate Roles, each Role's Permissions, and direct Permissions.
// Multi-row grant changes (CreateRole, UpdateRole) are transactional.
type Store interface {
	FindByNameOrEmail(ctx context.Context, identifier string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id int64) (*Identity, error)
	Create(ctx context.Context, ident *Identity) error
	MarkEmailVerified(ctx context.Context, id int64, at time.Time) error
	SetMFASecret(ctx context.Context, id int64, secret *string) error

	AddRole(ctx context.Context, identityID, roleID int64) error
	RemoveRole(ctx context.Context, identityID, roleID int64) error
	AddPermission(ctx context.Context, identityID, permissionID int64) error
	RemovePermission(ctx context.Context, identityID, permissionID int64) error
	AddRolePermission(ctx context.Context, roleID, permissionID int64) error
	RemoveRolePermission(ctx context.Context, roleID, permissionID int64) error

	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name string, permissions []string) (*Role, error)
	UpdateRole(ctx context.Context, roleID int64, update RoleUpdate) (*Role, error)
	DeleteRole(ctx context.Context, roleID int64) error
	ListPermissions(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, name string) (*Permission, error)

	// IdentityIDsWithRole lists every identity holding roleID. Used to fan out
	// permission-cache invalidation when a role's grants change.
	IdentityIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}
