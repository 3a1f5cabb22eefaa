package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Service manages organizations and workspaces
type Service struct {
	db *sql.DB
}

// NewService creates a new organization service
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateOrganization creates a new organization
func (s *Service) CreateOrganization(ctx context.Context, org *Organization) error {
	return s.createOrganization(ctx, s.db, org)
}

// CreateOrganizationTx is CreateOrganization inside an existing
// transaction.
func (s *Service) CreateOrganizationTx(ctx context.Context, tx *sql.Tx, org *Organization) error {
	return s.createOrganization(ctx, tx, org)
}

func (s *Service) createOrganization(ctx context.Context, q querier, org *Organization) error {
	if strings.TrimSpace(org.Name) == "" {
		return apperrors.New(apperrors.ValidationFailed, "organization name must not be empty")
	}

	query := `
		INSERT INTO organizations (name, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		RETURNING id
	`

	now := time.Now()
	if err := q.QueryRowContext(ctx, query, org.Name, org.CreatedBy, now).Scan(&org.ID); err != nil {
		return apperrors.Translate("create organization", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetOrganization retrieves a live organization by ID
func (s *Service) GetOrganization(ctx context.Context, orgID int64) (*Organization, error) {
	query := `
		SELECT id, name, created_by, created_at, updated_at
		FROM organizations
		WHERE id = $1 AND deleted_at IS NULL
	`

	var org Organization
	var createdBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&org.ID, &org.Name, &createdBy, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Translate("get organization", err)
	}

	if createdBy.Valid {
		id := createdBy.Int64
		org.CreatedBy = &id
	}
	return &org, nil
}

// DeleteOrganization soft-deletes an organization. Memberships and
// assignments inside it stop mattering immediately: the membership
// gate fails once the organization is gone from every lookup path.
func (s *Service) DeleteOrganization(ctx context.Context, orgID int64) error {
	query := `UPDATE organizations SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, time.Now(), orgID)
	if err != nil {
		return apperrors.Translate("delete organization", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "organization %d not found", orgID)
	}
	return nil
}

// CreateWorkspace creates a workspace. Workspace names are unique per
// organization case-insensitively among live workspaces; recreating a
// deleted workspace's name is allowed.
func (s *Service) CreateWorkspace(ctx context.Context, ws *Workspace) error {
	return s.createWorkspace(ctx, s.db, ws)
}

// CreateWorkspaceTx is CreateWorkspace inside an existing transaction.
func (s *Service) CreateWorkspaceTx(ctx context.Context, tx *sql.Tx, ws *Workspace) error {
	return s.createWorkspace(ctx, tx, ws)
}

func (s *Service) createWorkspace(ctx context.Context, q querier, ws *Workspace) error {
	if strings.TrimSpace(ws.Name) == "" {
		return apperrors.New(apperrors.ValidationFailed, "workspace name must not be empty")
	}

	query := `
		INSERT INTO workspaces (organization_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`

	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		ws.OrganizationID, ws.Name, ws.Description, ws.CreatedBy, now,
	).Scan(&ws.ID)
	if err != nil {
		return apperrors.Translate("create workspace", err)
	}

	ws.CreatedAt = now
	ws.UpdatedAt = now
	return nil
}

// GetWorkspace retrieves a live workspace by ID
func (s *Service) GetWorkspace(ctx context.Context, workspaceID int64) (*Workspace, error) {
	query := `
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM workspaces
		WHERE id = $1 AND deleted_at IS NULL
	`
	return s.scanWorkspace(s.db.QueryRowContext(ctx, query, workspaceID))
}

// ListWorkspaces lists an organization's live workspaces
func (s *Service) ListWorkspaces(ctx context.Context, orgID int64) ([]Workspace, error) {
	query := `
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM workspaces
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Translate("list workspaces", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		ws, err := s.scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, *ws)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list workspaces", err)
	}
	return workspaces, nil
}

// DeleteWorkspace soft-deletes a workspace. Assignments pinned to it
// stay on the books but stop matching queries for other workspaces by
// construction.
func (s *Service) DeleteWorkspace(ctx context.Context, workspaceID int64) error {
	query := `UPDATE workspaces SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, time.Now(), workspaceID)
	if err != nil {
		return apperrors.Translate("delete workspace", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "workspace %d not found", workspaceID)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Service) scanWorkspace(sc scanner) (*Workspace, error) {
	var ws Workspace
	var description sql.NullString
	var createdBy sql.NullInt64

	err := sc.Scan(
		&ws.ID, &ws.OrganizationID, &ws.Name, &description, &createdBy, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.Translate("get workspace", err)
	}

	ws.Description = description.String
	if createdBy.Valid {
		id := createdBy.Int64
		ws.CreatedBy = &id
	}
	return &ws, nil
}
