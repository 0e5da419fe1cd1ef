package challengeAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/internal/stores"
	"github.com/MrEthical07/challengeAuth/permission"
	"go.uber.org/zap"
)

// Resolve returns the effective grants of identityID: its direct permissions
// plus the permissions of every role it holds. Results are cached for
// Permission.CacheTTL; grant changes made through the engine drop the entry.
func (e *Engine) Resolve(ctx context.Context, identityID int64) (permission.Resolved, error) {
	if err := e.ready(); err != nil {
		return permission.Resolved{}, err
	}

	cached, err := e.permCache.Get(ctx, identityID)
	switch {
	case err == nil:
		e.metrics.inc(EventPermissionCacheHit)
		return *cached, nil
	case errors.Is(err, stores.ErrPermissionCacheMiss):
		e.metrics.inc(EventPermissionCacheMiss)
	default:
		e.logger.Warn("permission cache read failed, using store", zap.Int64("identity_id", identityID), zap.Error(err))
	}

	// Read before loading: a grant change landing mid-load bumps it and the
	// write below is skipped.
	gen, genErr := e.permCache.Generation(ctx, identityID)

	ident, err := e.store.FindByID(ctx, identityID)
	if err != nil {
		return permission.Resolved{}, err
	}
	resolved := permission.Resolve(ident)
	if genErr != nil {
		e.logger.Warn("permission cache generation read failed", zap.Int64("identity_id", identityID), zap.Error(genErr))
		return resolved, nil
	}
	written, err := e.permCache.SetIfGeneration(ctx, identityID, resolved, e.config.Permission.CacheTTL, gen)
	switch {
	case err != nil:
		e.logger.Warn("permission cache write failed", zap.Int64("identity_id", identityID), zap.Error(err))
	case !written:
		e.logger.Debug("grants changed during resolve, not caching", zap.Int64("identity_id", identityID))
	}
	return resolved, nil
}

// Authenticate turns a bearer token into a principal with resolved grants.
// Invalid tokens and tokens for deleted identities return ErrUnauthorized.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	resolved, err := e.Resolve(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return &Principal{IdentityID: claims.ID, Resolved: resolved}, nil
}

// Authorize passes when identityID holds any permission in the
// comma-delimited list. An empty list always passes.
func (e *Engine) Authorize(ctx context.Context, identityID int64, requiredPermissions string) error {
	required := permission.ParseRequirement(requiredPermissions)
	if len(required) == 0 {
		return nil
	}
	resolved, err := e.Resolve(ctx, identityID)
	if err != nil {
		return err
	}
	if !resolved.HasAnyPermission(required) {
		e.metrics.inc(EventPermissionDenied)
		e.emit(ctx, EventPermissionDenied, identityID, requiredPermissions, ErrPermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}

// AuthorizeRoles passes when identityID holds any role in the
// comma-delimited list.
func (e *Engine) AuthorizeRoles(ctx context.Context, identityID int64, requiredRoles string) error {
	required := permission.ParseRequirement(requiredRoles)
	if len(required) == 0 {
		return nil
	}
	resolved, err := e.Resolve(ctx, identityID)
	if err != nil {
		return err
	}
	if !resolved.HasAnyRole(required) {
		e.metrics.inc(EventPermissionDenied)
		e.emit(ctx, EventPermissionDenied, identityID, requiredRoles, ErrPermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}

/*
====================================
GRANT MUTATIONS
====================================
*/

// Every mutation below returns only after the cached grants of each
// affected identity are gone.

func (e *Engine) AddRoleToIdentity(ctx context.Context, identityID, roleID int64) error {
	if err := e.store.AddRole(ctx, identityID, roleID); err != nil {
		return err
	}
	return e.invalidate(ctx, identityID)
}

func (e *Engine) RemoveRoleFromIdentity(ctx context.Context, identityID, roleID int64) error {
	if err := e.store.RemoveRole(ctx, identityID, roleID); err != nil {
		return err
	}
	return e.invalidate(ctx, identityID)
}

func (e *Engine) AddPermissionToIdentity(ctx context.Context, identityID, permissionID int64) error {
	if err := e.store.AddPermission(ctx, identityID, permissionID); err != nil {
		return err
	}
	return e.invalidate(ctx, identityID)
}

func (e *Engine) RemovePermissionFromIdentity(ctx context.Context, identityID, permissionID int64) error {
	if err := e.store.RemovePermission(ctx, identityID, permissionID); err != nil {
		return err
	}
	return e.invalidate(ctx, identityID)
}

func (e *Engine) AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	if err := e.store.AddRolePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	return e.invalidateRoleHolders(ctx, roleID)
}

func (e *Engine) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := e.store.RemoveRolePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	return e.invalidateRoleHolders(ctx, roleID)
}

func (e *Engine) ListRoles(ctx context.Context) ([]identity.Role, error) {
	return e.store.ListRoles(ctx)
}

// CreateRole creates a role granting the named permissions. Unknown names
// are ignored. A new role has no holders, so no cache entry changes.
func (e *Engine) CreateRole(ctx context.Context, name string, permissions []string) (*identity.Role, error) {
	if name == "" {
		return nil, ErrInvalidRequest
	}
	return e.store.CreateRole(ctx, name, permissions)
}

// UpdateRole renames the role and, when update.Permissions is non-nil,
// replaces its grants in one transaction.
func (e *Engine) UpdateRole(ctx context.Context, roleID int64, update identity.RoleUpdate) (*identity.Role, error) {
	role, err := e.store.UpdateRole(ctx, roleID, update)
	if err != nil {
		return nil, err
	}
	if err := e.invalidateRoleHolders(ctx, roleID); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes the role. Holders are collected first because the
// cascade drops their memberships.
func (e *Engine) DeleteRole(ctx context.Context, roleID int64) error {
	holders, err := e.store.IdentityIDsWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	return e.invalidate(ctx, holders...)
}

func (e *Engine) ListPermissions(ctx context.Context) ([]identity.Permission, error) {
	return e.store.ListPermissions(ctx)
}

func (e *Engine) CreatePermission(ctx context.Context, name string) (*identity.Permission, error) {
	if name == "" {
		return nil, ErrInvalidRequest
	}
	return e.store.CreatePermission(ctx, name)
}

func (e *Engine) invalidateRoleHolders(ctx context.Context, roleID int64) error {
	holders, err := e.store.IdentityIDsWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	return e.invalidate(ctx, holders...)
}

func (e *Engine) invalidate(ctx context.Context, identityIDs ...int64) error {
	e.metrics.inc(EventGrantChanged)
	for _, id := range identityIDs {
		e.emit(ctx, EventGrantChanged, id, "", nil)
	}
	if len(identityIDs) == 0 {
		return nil
	}
	if err := e.permCache.Invalidate(ctx, identityIDs...); err != nil {
		e.logger.Error("permission cache invalidation failed", zap.Int64s("identity_ids", identityIDs), zap.Error(err))
		return backend(err)
	}
	return nil
}
