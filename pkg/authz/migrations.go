package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all authorization migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_organizations_deleted_at ON organizations(deleted_at);
			`,
		},
		{
			Version:     2,
			Description: "Create workspaces table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspaces (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_workspaces_org_name
					ON workspaces(organization_id, LOWER(name))
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_workspaces_organization_id ON workspaces(organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create teams and team_members tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_teams_org_name
					ON teams(organization_id, LOWER(name))
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_teams_organization_id ON teams(organization_id);

				CREATE TABLE IF NOT EXISTS team_members (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					added_by BIGINT,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, user_id)
				);

				CREATE INDEX idx_team_members_team_id ON team_members(team_id);
				CREATE INDEX idx_team_members_user_id ON team_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create org_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_memberships (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					invitation_id BIGINT,
					added_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_org_memberships_user_org
					ON org_memberships(user_id, organization_id)
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_org_memberships_user_id ON org_memberships(user_id);
				CREATE INDEX idx_org_memberships_organization_id ON org_memberships(organization_id);
				CREATE INDEX idx_org_memberships_invitation_id ON org_memberships(invitation_id);
			`,
		},
		{
			Version:     5,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL CHECK (name <> ''),
					description TEXT,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE CASCADE,
					is_built_in BOOLEAN NOT NULL DEFAULT FALSE,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_roles_name_scope
					ON roles(name, COALESCE(organization_id, 0))
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_roles_organization_id ON roles(organization_id);
				CREATE INDEX idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     6,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					resource_kind VARCHAR(50) NOT NULL,
					action VARCHAR(50) NOT NULL,
					org_wide BOOLEAN NOT NULL DEFAULT FALSE,
					workspace_wide BOOLEAN NOT NULL DEFAULT FALSE,
					entity_type_id BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (
						(org_wide::int + workspace_wide::int +
						 (entity_type_id IS NOT NULL)::int) <= 1
					)
				);

				CREATE UNIQUE INDEX idx_role_permissions_scope
					ON role_permissions(role_id, resource_kind, action, org_wide, workspace_wide, COALESCE(entity_type_id, 0));
				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     7,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					principal_type VARCHAR(20) NOT NULL CHECK (principal_type IN ('user', 'team')),
					principal_id BIGINT NOT NULL,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					workspace_id BIGINT REFERENCES workspaces(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					invitation_id BIGINT,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE UNIQUE INDEX idx_role_assignments_unique
					ON role_assignments(principal_type, principal_id, organization_id, COALESCE(workspace_id, 0), role_id)
					WHERE deleted_at IS NULL;
				CREATE INDEX idx_role_assignments_principal ON role_assignments(principal_type, principal_id);
				CREATE INDEX idx_role_assignments_organization_id ON role_assignments(organization_id);
				CREATE INDEX idx_role_assignments_role_id ON role_assignments(role_id);
				CREATE INDEX idx_role_assignments_invitation_id ON role_assignments(invitation_id);
			`,
		},
		{
			Version:     8,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL CHECK (email <> ''),
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					role_id BIGINT REFERENCES roles(id) ON DELETE SET NULL,
					invited_by BIGINT,
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					accepted_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_invitations_email ON invitations(LOWER(email));
				CREATE INDEX idx_invitations_organization_id ON invitations(organization_id);
				CREATE INDEX idx_invitations_expires_at ON invitations(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gatehouse_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM gatehouse_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO gatehouse_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// InitializeBuiltInRoles seeds the built-in role definitions. Safe to
// call on every startup; existing roles are left untouched.
func InitializeBuiltInRoles(ctx context.Context, registry *Registry) error {
	for _, def := range BuiltInRoles() {
		existing, err := registry.GetRoleByName(ctx, def.Name, nil)
		if err == nil && existing != nil {
			continue
		}

		role := &Role{
			Name:        def.Name,
			Description: def.Description,
			Scope:       GlobalScope(),
			IsBuiltIn:   true,
		}
		if err := registry.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("failed to create built-in role %s: %w", def.Name, err)
		}

		for _, perm := range def.Permissions {
			perm.RoleID = role.ID
			if err := registry.DefinePermission(ctx, &perm); err != nil {
				return fmt.Errorf("failed to define permission for role %s: %w", def.Name, err)
			}
		}
	}

	return nil
}
