package provisioning

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
)

// DefaultInvitationTTL applies when SendInvitation gets no explicit
// expiry.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationStore is the invitation ledger. It is the single source of
// truth for whether a new account was invited; provisioning reads it,
// and revocation unwinds through the provenance it leaves behind.
type InvitationStore struct {
	db          *sql.DB
	assignments *authz.AssignmentStore
	members     *orgs.Service
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewInvitationStore creates a new invitation store
func NewInvitationStore(db *sql.DB, assignments *authz.AssignmentStore, members *orgs.Service, metrics *observability.Metrics, logger *observability.Logger) *InvitationStore {
	return &InvitationStore{
		db:          db,
		assignments: assignments,
		members:     members,
		metrics:     metrics,
		logger:      logger,
	}
}

// SendInvitation creates a pending invitation. A zero ttl falls back to
// the 7-day default.
func (s *InvitationStore) SendInvitation(ctx context.Context, inv *Invitation, ttl time.Duration) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	if inv.Email == "" {
		return apperrors.New(apperrors.ValidationFailed, "invitation email must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}

	query := `
		INSERT INTO invitations (email, organization_id, role_id, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	expiresAt := now.Add(ttl)
	err := s.db.QueryRowContext(ctx, query,
		inv.Email, inv.OrganizationID, inv.RoleID, inv.InvitedBy, expiresAt, now,
	).Scan(&inv.ID)
	if err != nil {
		return apperrors.Translate("send invitation", err)
	}

	inv.ExpiresAt = expiresAt
	inv.CreatedAt = now

	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues("sent").Inc()
	}
	return nil
}

// GetInvitation retrieves an invitation by id, including revoked ones
func (s *InvitationStore) GetInvitation(ctx context.Context, invitationID int64) (*Invitation, error) {
	query := `
		SELECT id, email, organization_id, role_id, invited_by, expires_at, accepted_at, accepted_by, created_at, deleted_at
		FROM invitations
		WHERE id = $1
	`
	return s.scanInvitation(s.db.QueryRowContext(ctx, query, invitationID))
}

// LatestPendingForEmail returns the most recent live, unaccepted,
// unexpired invitation for an email, or nil when there is none. When
// multiple invitations exist for the same email, the latest wins.
func (s *InvitationStore) LatestPendingForEmail(ctx context.Context, email string) (*Invitation, error) {
	query := `
		SELECT id, email, organization_id, role_id, invited_by, expires_at, accepted_at, accepted_by, created_at, deleted_at
		FROM invitations
		WHERE LOWER(email) = LOWER($1)
		  AND deleted_at IS NULL
		  AND accepted_at IS NULL
		  AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	inv, err := s.scanInvitation(s.db.QueryRowContext(ctx, query, email, time.Now()))
	if apperrors.IsKind(err, apperrors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// AcceptInvitation marks an invitation accepted. Accepting an already
// accepted invitation succeeds without side effects; accepting an
// expired or revoked one fails.
func (s *InvitationStore) AcceptInvitation(ctx context.Context, invitationID, userID int64) (*Invitation, error) {
	inv, err := s.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	switch inv.Status(time.Now()) {
	case StatusAccepted:
		return inv, nil
	case StatusExpired:
		return nil, apperrors.Newf(apperrors.ValidationFailed, "invitation %d has expired", invitationID)
	case StatusRevoked:
		return nil, apperrors.Newf(apperrors.ValidationFailed, "invitation %d has been revoked", invitationID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.acceptTx(ctx, tx, inv, userID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}

	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues("accepted").Inc()
	}
	return inv, nil
}

// acceptTx marks the invitation accepted inside an existing
// transaction. The guard on accepted_at keeps concurrent acceptances
// from double-applying.
func (s *InvitationStore) acceptTx(ctx context.Context, tx *sql.Tx, inv *Invitation, userID int64) error {
	query := `
		UPDATE invitations
		SET accepted_at = $1, accepted_by = $2
		WHERE id = $3 AND accepted_at IS NULL AND deleted_at IS NULL AND expires_at > $1
	`

	now := time.Now()
	result, err := tx.ExecContext(ctx, query, now, userID, inv.ID)
	if err != nil {
		return apperrors.Translate("accept invitation", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ValidationFailed, "invitation %d is no longer pending", inv.ID)
	}

	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID
	return nil
}

// RevokeInvitation soft-deletes an invitation and unwinds everything
// it granted: the membership and every role assignment carrying its
// provenance, all in one transaction.
func (s *InvitationStore) RevokeInvitation(ctx context.Context, invitationID, orgID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE invitations SET deleted_at = $1
		WHERE id = $2 AND organization_id = $3 AND deleted_at IS NULL
	`
	result, err := tx.ExecContext(ctx, query, time.Now(), invitationID, orgID)
	if err != nil {
		return apperrors.Translate("revoke invitation", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "invitation %d not found in organization %d", invitationID, orgID)
	}

	if err := s.assignments.RevokeByInvitation(ctx, tx, invitationID, orgID); err != nil {
		return err
	}
	if err := s.members.RemoveMemberByInvitation(ctx, tx, invitationID, orgID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation revocation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues("revoked").Inc()
	}
	return nil
}

// ListInvitations lists an organization's live invitations
func (s *InvitationStore) ListInvitations(ctx context.Context, orgID int64) ([]Invitation, error) {
	query := `
		SELECT id, email, organization_id, role_id, invited_by, expires_at, accepted_at, accepted_by, created_at, deleted_at
		FROM invitations
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Translate("list invitations", err)
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		inv, err := s.scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list invitations", err)
	}
	return invitations, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic
type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *InvitationStore) scanInvitation(sc scanner) (*Invitation, error) {
	var inv Invitation
	var roleID, invitedBy, acceptedBy sql.NullInt64
	var acceptedAt, deletedAt sql.NullTime

	err := sc.Scan(
		&inv.ID,
		&inv.Email,
		&inv.OrganizationID,
		&roleID,
		&invitedBy,
		&inv.ExpiresAt,
		&acceptedAt,
		&acceptedBy,
		&inv.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, apperrors.Translate("get invitation", err)
	}

	if roleID.Valid {
		id := roleID.Int64
		inv.RoleID = &id
	}
	if invitedBy.Valid {
		id := invitedBy.Int64
		inv.InvitedBy = &id
	}
	if acceptedBy.Valid {
		id := acceptedBy.Int64
		inv.AcceptedBy = &id
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		inv.DeletedAt = &t
	}
	return &inv, nil
}
