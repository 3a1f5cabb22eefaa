package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

// AssignmentStore records which principal holds which role at which
// organization and workspace scope.
type AssignmentStore struct {
	db *sql.DB
}

// NewAssignmentStore creates a new assignment store
func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

// Grant records a role assignment. Granting a tuple that already exists
// is a no-op returning the existing assignment id, never an error. The
// created return value reports whether a new row was written.
func (s *AssignmentStore) Grant(ctx context.Context, a *Assignment) (created bool, err error) {
	return grant(ctx, s.db, a)
}

// GrantTx is Grant inside an existing transaction; the provisioning
// state machine uses it so initial grants commit atomically with the
// rest of a branch.
func (s *AssignmentStore) GrantTx(ctx context.Context, tx *sql.Tx, a *Assignment) (created bool, err error) {
	return grant(ctx, tx, a)
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func grant(ctx context.Context, q querier, a *Assignment) (bool, error) {
	if !a.Principal.Valid() {
		return false, apperrors.New(apperrors.ValidationFailed, "invalid principal")
	}

	insert := `
		INSERT INTO role_assignments (principal_type, principal_id, organization_id, workspace_id, role_id, invitation_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (principal_type, principal_id, organization_id, COALESCE(workspace_id, 0), role_id)
			WHERE deleted_at IS NULL
			DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := q.QueryRowContext(ctx, insert,
		a.Principal.Type,
		a.Principal.ID,
		a.OrgID,
		a.WorkspaceID,
		a.RoleID,
		a.InvitationID,
		a.GrantedBy,
		now,
	).Scan(&a.ID)

	if err == nil {
		a.GrantedAt = now
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, apperrors.Translate("grant role", err)
	}

	// Conflict with a live row: resolve the existing assignment id so
	// the grant stays a visible no-op rather than an error.
	lookup := `
		SELECT id, granted_at
		FROM role_assignments
		WHERE principal_type = $1 AND principal_id = $2 AND organization_id = $3
		  AND COALESCE(workspace_id, 0) = COALESCE($4, 0)
		  AND role_id = $5
		  AND deleted_at IS NULL
	`
	err = q.QueryRowContext(ctx, lookup,
		a.Principal.Type,
		a.Principal.ID,
		a.OrgID,
		a.WorkspaceID,
		a.RoleID,
	).Scan(&a.ID, &a.GrantedAt)
	if err != nil {
		return false, apperrors.Translate("grant role", err)
	}

	return false, nil
}

// Revoke soft-deletes an assignment
func (s *AssignmentStore) Revoke(ctx context.Context, assignmentID int64) error {
	query := `UPDATE role_assignments SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, time.Now(), assignmentID)
	if err != nil {
		return apperrors.Translate("revoke assignment", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "assignment %d not found", assignmentID)
	}

	return nil
}

// RevokeByInvitation soft-deletes every assignment a given invitation
// produced, used when an accepted invitation is revoked.
func (s *AssignmentStore) RevokeByInvitation(ctx context.Context, tx *sql.Tx, invitationID, orgID int64) error {
	query := `
		UPDATE role_assignments
		SET deleted_at = $1
		WHERE invitation_id = $2 AND organization_id = $3 AND deleted_at IS NULL
	`
	if _, err := tx.ExecContext(ctx, query, time.Now(), invitationID, orgID); err != nil {
		return apperrors.Translate("revoke invitation grants", err)
	}
	return nil
}

// ListAssignments returns the live assignments a principal holds within
// an organization.
func (s *AssignmentStore) ListAssignments(ctx context.Context, principal Principal, orgID int64) ([]Assignment, error) {
	query := `
		SELECT id, principal_type, principal_id, organization_id, workspace_id, role_id, invitation_id, granted_by, granted_at
		FROM role_assignments
		WHERE principal_type = $1 AND principal_id = $2 AND organization_id = $3 AND deleted_at IS NULL
		ORDER BY granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, principal.Type, principal.ID, orgID)
	if err != nil {
		return nil, apperrors.Translate("list assignments", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var workspaceID, invitationID, grantedBy sql.NullInt64

		err := rows.Scan(
			&a.ID,
			&a.Principal.Type,
			&a.Principal.ID,
			&a.OrgID,
			&workspaceID,
			&a.RoleID,
			&invitationID,
			&grantedBy,
			&a.GrantedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		if workspaceID.Valid {
			id := workspaceID.Int64
			a.WorkspaceID = &id
		}
		if invitationID.Valid {
			id := invitationID.Int64
			a.InvitationID = &id
		}
		if grantedBy.Valid {
			id := grantedBy.Int64
			a.GrantedBy = &id
		}

		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list assignments", err)
	}
	return assignments, nil
}
