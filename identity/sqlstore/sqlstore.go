// Package sqlstore implements identity.Store on a relational database through
// sqlx. Both the lib/pq ("postgres") and pgx ("pgx") drivers are registered.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MrEthical07/challengeAuth/identity"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Config describes how to reach the database.
type Config struct {
	Driver          string // "postgres" (lib/pq) or "pgx"
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// Open connects and verifies connectivity with a ping.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Store is the sqlx-backed identity.Store.
type Store struct {
	db *sqlx.DB
}

var _ identity.Store = (*Store)(nil)

func New(db *sqlx.DB) *Store { return &Store{db: db} }

// EnsureSchema creates the tables if they do not exist. Prefer migrations in
// production.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

const identityColumns = `id, name, email, password_hash, salt, mfa_secret, email_verified_at, password_expires_at, created_at, updated_at`

func (s *Store) FindByNameOrEmail(ctx context.Context, identifier string) (*identity.Identity, error) {
	return s.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE name = $1 OR lower(email) = lower($1) LIMIT 1`, identifier)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	return s.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
}

func (s *Store) FindByID(ctx context.Context, id int64) (*identity.Identity, error) {
	return s.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*identity.Identity, error) {
	var ident identity.Identity
	if err := s.db.GetContext(ctx, &ident, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("sqlstore: load identity: %w", err)
	}
	if err := loadGrants(ctx, s.db, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

type rolePermissionRow struct {
	RoleID int64  `db:"role_id"`
	ID     int64  `db:"id"`
	Name   string `db:"name"`
}

func loadGrants(ctx context.Context, q sqlx.QueryerContext, ident *identity.Identity) error {
	var roles []identity.Role
	if err := sqlx.SelectContext(ctx, q, &roles,
		`SELECT r.id, r.name FROM roles r JOIN identity_role ir ON ir.role_id = r.id WHERE ir.identity_id = $1 ORDER BY r.id`,
		ident.ID); err != nil {
		return fmt.Errorf("sqlstore: load roles: %w", err)
	}

	var rows []rolePermissionRow
	if err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT rp.role_id, p.id, p.name FROM permissions p
		   JOIN role_permission rp ON rp.permission_id = p.id
		   JOIN identity_role ir ON ir.role_id = rp.role_id
		  WHERE ir.identity_id = $1 ORDER BY p.id`,
		ident.ID); err != nil {
		return fmt.Errorf("sqlstore: load role permissions: %w", err)
	}
	attachRolePermissions(roles, rows)

	var direct []identity.Permission
	if err := sqlx.SelectContext(ctx, q, &direct,
		`SELECT p.id, p.name FROM permissions p JOIN identity_permission ip ON ip.permission_id = p.id WHERE ip.identity_id = $1 ORDER BY p.id`,
		ident.ID); err != nil {
		return fmt.Errorf("sqlstore: load permissions: %w", err)
	}

	ident.Roles = roles
	ident.Permissions = direct
	return nil
}

func attachRolePermissions(roles []identity.Role, rows []rolePermissionRow) {
	index := make(map[int64]int, len(roles))
	for i := range roles {
		index[roles[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.RoleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, identity.Permission{ID: row.ID, Name: row.Name})
		}
	}
}

func (s *Store) Create(ctx context.Context, ident *identity.Identity) error {
	const q = `INSERT INTO identities (name, email, password_hash, salt, mfa_secret, email_verified_at, password_expires_at)
		VALUES (:name, :email, :password_hash, :salt, :mfa_secret, :email_verified_at, :password_expires_at)
		RETURNING id, created_at, updated_at`
	rows, err := s.db.NamedQueryContext(ctx, q, ident)
	if err != nil {
		return translate(err, "create identity")
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return translate(err, "create identity")
		}
		return errors.New("sqlstore: create identity: no id returned")
	}
	return rows.Scan(&ident.ID, &ident.CreatedAt, &ident.UpdatedAt)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET email_verified_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err, "mark email verified")
	}
	return requireAffected(res)
}

func (s *Store) SetMFASecret(ctx context.Context, id int64, secret *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET mfa_secret = $2, updated_at = NOW() WHERE id = $1`, id, secret)
	if err != nil {
		return translate(err, "set mfa secret")
	}
	return requireAffected(res)
}

func (s *Store) AddRole(ctx context.Context, identityID, roleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_role (identity_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, identityID, roleID)
	return translate(err, "add role")
}

func (s *Store) RemoveRole(ctx context.Context, identityID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM identity_role WHERE identity_id = $1 AND role_id = $2`, identityID, roleID)
	return translate(err, "remove role")
}

func (s *Store) AddPermission(ctx context.Context, identityID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_permission (identity_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, identityID, permissionID)
	return translate(err, "add permission")
}

func (s *Store) RemovePermission(ctx context.Context, identityID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_permission WHERE identity_id = $1 AND permission_id = $2`, identityID, permissionID)
	return translate(err, "remove permission")
}

func (s *Store) AddRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_permission (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return translate(err, "add role permission")
}

func (s *Store) RemoveRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_permission WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return translate(err, "remove role permission")
}

func (s *Store) ListRoles(ctx context.Context) ([]identity.Role, error) {
	var roles []identity.Role
	if err := s.db.SelectContext(ctx, &roles, `SELECT id, name FROM roles ORDER BY id`); err != nil {
		return nil, translate(err, "list roles")
	}
	var rows []rolePermissionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT rp.role_id, p.id, p.name FROM permissions p JOIN role_permission rp ON rp.permission_id = p.id ORDER BY p.id`); err != nil {
		return nil, translate(err, "list role permissions")
	}
	attachRolePermissions(roles, rows)
	return roles, nil
}

// CreateRole inserts the role and grants the named permissions in one
// transaction. Unknown permission names are ignored.
func (s *Store) CreateRole(ctx context.Context, name string, permissions []string) (*identity.Role, error) {
	var role *identity.Role
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var id int64
		if err := tx.GetContext(ctx, &id, `INSERT INTO roles (name) VALUES ($1) RETURNING id`, name); err != nil {
			return translate(err, "create role")
		}
		if err := syncRolePermissions(ctx, tx, id, permissions); err != nil {
			return err
		}
		loaded, err := loadRole(ctx, tx, id)
		role = loaded
		return err
	})
	return role, err
}

// UpdateRole renames the role and, when update.Permissions is non-nil,
// replaces its grants. Either everything applies or nothing does.
func (s *Store) UpdateRole(ctx context.Context, roleID int64, update identity.RoleUpdate) (*identity.Role, error) {
	var role *identity.Role
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if update.Name != "" {
			res, err := tx.ExecContext(ctx, `UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1`, roleID, update.Name)
			if err != nil {
				return translate(err, "update role")
			}
			if err := requireAffected(res); err != nil {
				return err
			}
		} else {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID); err != nil {
				return translate(err, "update role")
			}
			if !exists {
				return identity.ErrNotFound
			}
		}
		if update.Permissions != nil {
			if err := syncRolePermissions(ctx, tx, roleID, update.Permissions); err != nil {
				return err
			}
		}
		loaded, err := loadRole(ctx, tx, roleID)
		role = loaded
		return err
	})
	return role, err
}

func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return translate(err, "delete role")
	}
	return requireAffected(res)
}

func (s *Store) ListPermissions(ctx context.Context) ([]identity.Permission, error) {
	var perms []identity.Permission
	if err := s.db.SelectContext(ctx, &perms, `SELECT id, name FROM permissions ORDER BY id`); err != nil {
		return nil, translate(err, "list permissions")
	}
	return perms, nil
}

func (s *Store) CreatePermission(ctx context.Context, name string) (*identity.Permission, error) {
	p := &identity.Permission{Name: name}
	if err := s.db.GetContext(ctx, &p.ID, `INSERT INTO permissions (name) VALUES ($1) RETURNING id`, name); err != nil {
		return nil, translate(err, "create permission")
	}
	return p, nil
}

func (s *Store) IdentityIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT identity_id FROM identity_role WHERE role_id = $1 ORDER BY identity_id`, roleID); err != nil {
		return nil, translate(err, "list role holders")
	}
	return ids, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

func syncRolePermissions(ctx context.Context, tx *sqlx.Tx, roleID int64, names []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permission WHERE role_id = $1`, roleID); err != nil {
		return translate(err, "clear role permissions")
	}
	if len(names) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`INSERT INTO role_permission (role_id, permission_id) SELECT ?, id FROM permissions WHERE name IN (?)`,
		roleID, names)
	if err != nil {
		return fmt.Errorf("sqlstore: build grant query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return translate(err, "grant role permissions")
	}
	return nil
}

func loadRole(ctx context.Context, q sqlx.QueryerContext, roleID int64) (*identity.Role, error) {
	var role identity.Role
	if err := sqlx.GetContext(ctx, q, &role, `SELECT id, name FROM roles WHERE id = $1`, roleID); err != nil {
		return nil, translate(err, "load role")
	}
	if err := sqlx.SelectContext(ctx, q, &role.Permissions,
		`SELECT p.id, p.name FROM permissions p JOIN role_permission rp ON rp.permission_id = p.id WHERE rp.role_id = $1 ORDER BY p.id`,
		roleID); err != nil {
		return nil, translate(err, "load role permissions")
	}
	return &role, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// translate maps driver errors onto identity sentinels. Both lib/pq and pgx
// error shapes are recognised.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ErrNotFound
	}
	code := ""
	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	case errors.As(err, &pgErr):
		code = pgErr.Code
	}
	switch code {
	case pgUniqueViolation:
		return identity.ErrDuplicate
	case pgForeignKeyViolation:
		return identity.ErrNotFound
	}
	return fmt.Errorf("sqlstore: %s: %w", op, err)
}
