package authz

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

// Registry handles role and permission persistence
type Registry struct {
	db *sql.DB
}

// NewRegistry creates a new role and permission registry
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// CreateRole creates a new role. System-wide roles carry the global
// scope; organization-scoped roles are private to their organization.
func (r *Registry) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return apperrors.New(apperrors.ValidationFailed, "role name must not be empty")
	}

	query := `
		INSERT INTO roles (name, description, organization_id, is_built_in, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		role.Name,
		role.Description,
		scopeColumn(role.Scope),
		role.IsBuiltIn,
		role.CreatedBy,
		now,
	).Scan(&role.ID)

	if err != nil {
		return apperrors.Translate("create role", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID, including soft-deleted ones; callers
// on the evaluation path filter deleted roles in their queries.
func (r *Registry) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, description, organization_id, is_built_in, created_by, created_at, updated_at, deleted_at
		FROM roles
		WHERE id = $1
	`
	return r.scanRole(r.db.QueryRowContext(ctx, query, roleID))
}

// GetRoleByName resolves a role name within an organization. An
// organization-scoped role shadows a system-wide role of the same name.
func (r *Registry) GetRoleByName(ctx context.Context, name string, orgID *int64) (*Role, error) {
	query := `
		SELECT id, name, description, organization_id, is_built_in, created_by, created_at, updated_at, deleted_at
		FROM roles
		WHERE name = $1
		  AND (organization_id = $2 OR organization_id IS NULL)
		  AND deleted_at IS NULL
		ORDER BY organization_id DESC NULLS LAST
		LIMIT 1
	`
	return r.scanRole(r.db.QueryRowContext(ctx, query, name, orgID))
}

// ListRoles lists the roles visible to an organization: its own plus
// every system-wide role. Soft-deleted roles are excluded.
func (r *Registry) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	query := `
		SELECT id, name, description, organization_id, is_built_in, created_by, created_at, updated_at, deleted_at
		FROM roles
		WHERE (organization_id = $1 OR organization_id IS NULL)
		  AND deleted_at IS NULL
		ORDER BY is_built_in DESC, name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Translate("list roles", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := r.scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list roles", err)
	}
	return roles, nil
}

// UpdateRole updates a role's description. Names are immutable once
// assignments may reference them.
func (r *Registry) UpdateRole(ctx context.Context, role *Role) error {
	query := `
		UPDATE roles
		SET description = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	role.UpdatedAt = time.Now()
	result, err := r.db.ExecContext(ctx, query, role.Description, role.UpdatedAt, role.ID)
	if err != nil {
		return apperrors.Translate("update role", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "role %d not found", role.ID)
	}

	return nil
}

// DeleteRole soft-deletes a role, hiding it and its permissions from
// evaluation without removing history. Built-in roles cannot be deleted.
func (r *Registry) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := r.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return apperrors.New(apperrors.ValidationFailed, "cannot delete built-in role")
	}

	query := `UPDATE roles SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), roleID); err != nil {
		return apperrors.Translate("delete role", err)
	}
	return nil
}

// DefinePermission attaches a permission to a role
func (r *Registry) DefinePermission(ctx context.Context, perm *Permission) error {
	if err := perm.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ValidationFailed, err.Error(), err)
	}

	query := `
		INSERT INTO role_permissions (role_id, resource_kind, action, org_wide, workspace_wide, entity_type_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		perm.RoleID,
		perm.Resource,
		perm.Action,
		perm.OrgWide,
		perm.WorkspaceWide,
		perm.EntityTypeID,
		now,
	).Scan(&perm.ID)

	if err != nil {
		return apperrors.Translate("define permission", err)
	}

	perm.CreatedAt = now
	return nil
}

// ListPermissions returns all permissions defined on a role
func (r *Registry) ListPermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	query := `
		SELECT id, role_id, resource_kind, action, org_wide, workspace_wide, entity_type_id, created_at
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, apperrors.Translate("list permissions", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		var entityTypeID sql.NullInt64

		if err := rows.Scan(&p.ID, &p.RoleID, &p.Resource, &p.Action, &p.OrgWide, &p.WorkspaceWide, &entityTypeID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}

		if entityTypeID.Valid {
			id := entityTypeID.Int64
			p.EntityTypeID = &id
		}

		perms = append(perms, p)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list permissions", err)
	}
	return perms, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *Registry) scanRole(s scanner) (*Role, error) {
	var role Role
	var orgID, createdBy sql.NullInt64
	var deletedAt sql.NullTime

	err := s.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&orgID,
		&role.IsBuiltIn,
		&createdBy,
		&role.CreatedAt,
		&role.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, apperrors.Translate("get role", err)
	}

	if orgID.Valid {
		role.Scope = OrganizationScope(orgID.Int64)
	} else {
		role.Scope = GlobalScope()
	}
	if createdBy.Valid {
		id := createdBy.Int64
		role.CreatedBy = &id
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		role.DeletedAt = &t
	}

	return &role, nil
}

// scopeColumn maps a RoleScope onto the nullable organization_id column
func scopeColumn(scope RoleScope) *int64 {
	if orgID, ok := scope.OrganizationID(); ok {
		return &orgID
	}
	return nil
}
