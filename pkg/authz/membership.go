package authz

import (
	"context"
	"database/sql"
	"fmt"
)

// MembershipValidator answers the single question "is this user a
// member of this organization" with one indexed existence check.
//
// It is deliberately narrow and non-recursive: the evaluation engine
// calls it internally instead of re-entering the enforcement path, so
// that "who may see organization X" never queries the permission tables
// the check itself protects.
type MembershipValidator struct {
	db *sql.DB
}

// NewMembershipValidator creates a new membership validator
func NewMembershipValidator(db *sql.DB) *MembershipValidator {
	return &MembershipValidator{db: db}
}

// IsMember reports whether a live membership row exists for the user in
// the organization. Soft-deleted memberships do not count.
func (v *MembershipValidator) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM org_memberships
			WHERE user_id = $1 AND organization_id = $2 AND deleted_at IS NULL
		)
	`

	var exists bool
	if err := v.db.QueryRowContext(ctx, query, userID, orgID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return exists, nil
}
