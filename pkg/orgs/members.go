package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/apperrors"
)

// AddMember records a user's membership in an organization. Adding an
// existing live member reports the existing membership rather than
// failing.
func (s *Service) AddMember(ctx context.Context, m *Membership) (created bool, err error) {
	return addMember(ctx, s.db, m)
}

// AddMemberTx is AddMember inside an existing transaction; the
// provisioning state machine uses it so membership commits atomically
// with the rest of a branch.
func (s *Service) AddMemberTx(ctx context.Context, tx *sql.Tx, m *Membership) (created bool, err error) {
	return addMember(ctx, tx, m)
}

func addMember(ctx context.Context, q querier, m *Membership) (bool, error) {
	insert := `
		INSERT INTO org_memberships (user_id, organization_id, invitation_id, added_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, organization_id) WHERE deleted_at IS NULL DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := q.QueryRowContext(ctx, insert,
		m.UserID, m.OrganizationID, m.InvitationID, m.AddedBy, now,
	).Scan(&m.ID)

	if err == nil {
		m.CreatedAt = now
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, apperrors.Translate("add member", err)
	}

	lookup := `
		SELECT id, created_at
		FROM org_memberships
		WHERE user_id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`
	err = q.QueryRowContext(ctx, lookup, m.UserID, m.OrganizationID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return false, apperrors.Translate("add member", err)
	}
	return false, nil
}

// GetMembership returns a user's live membership in an organization,
// or NotFound.
func (s *Service) GetMembership(ctx context.Context, userID, orgID int64) (*Membership, error) {
	query := `
		SELECT id, user_id, organization_id, invitation_id, added_by, created_at
		FROM org_memberships
		WHERE user_id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`

	var m Membership
	var invitationID, addedBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(
		&m.ID, &m.UserID, &m.OrganizationID, &invitationID, &addedBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Translate("get membership", err)
	}

	if invitationID.Valid {
		id := invitationID.Int64
		m.InvitationID = &id
	}
	if addedBy.Valid {
		id := addedBy.Int64
		m.AddedBy = &id
	}
	return &m, nil
}

// RemoveMember soft-deletes a user's membership. The membership gate
// denies all of the user's access in the organization from the next
// evaluation on, regardless of surviving role assignments.
func (s *Service) RemoveMember(ctx context.Context, userID, orgID int64) error {
	query := `
		UPDATE org_memberships SET deleted_at = $1
		WHERE user_id = $2 AND organization_id = $3 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, time.Now(), userID, orgID)
	if err != nil {
		return apperrors.Translate("remove member", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "user %d is not a member of organization %d", userID, orgID)
	}
	return nil
}

// RemoveMemberByInvitation soft-deletes the membership an invitation
// produced, used when an accepted invitation is revoked.
func (s *Service) RemoveMemberByInvitation(ctx context.Context, tx *sql.Tx, invitationID, orgID int64) error {
	query := `
		UPDATE org_memberships SET deleted_at = $1
		WHERE invitation_id = $2 AND organization_id = $3 AND deleted_at IS NULL
	`
	if _, err := tx.ExecContext(ctx, query, time.Now(), invitationID, orgID); err != nil {
		return apperrors.Translate("remove member by invitation", err)
	}
	return nil
}

// ListMembers lists an organization's live memberships
func (s *Service) ListMembers(ctx context.Context, orgID int64) ([]Membership, error) {
	query := `
		SELECT id, user_id, organization_id, invitation_id, added_by, created_at
		FROM org_memberships
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Translate("list members", err)
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		var invitationID, addedBy sql.NullInt64

		err := rows.Scan(&m.ID, &m.UserID, &m.OrganizationID, &invitationID, &addedBy, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}

		if invitationID.Valid {
			id := invitationID.Int64
			m.InvitationID = &id
		}
		if addedBy.Valid {
			id := addedBy.Int64
			m.AddedBy = &id
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list members", err)
	}
	return members, nil
}

// CreateTeam creates a team inside an organization
func (s *Service) CreateTeam(ctx context.Context, team *Team) error {
	if strings.TrimSpace(team.Name) == "" {
		return apperrors.New(apperrors.ValidationFailed, "team name must not be empty")
	}

	query := `
		INSERT INTO teams (organization_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		team.OrganizationID, team.Name, team.Description, team.CreatedBy, now,
	).Scan(&team.ID)
	if err != nil {
		return apperrors.Translate("create team", err)
	}

	team.CreatedAt = now
	team.UpdatedAt = now
	return nil
}

// DeleteTeam soft-deletes a team. Its assignments stop contributing to
// member decisions as soon as the team drops out of the live set.
func (s *Service) DeleteTeam(ctx context.Context, teamID int64) error {
	query := `UPDATE teams SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, time.Now(), teamID)
	if err != nil {
		return apperrors.Translate("delete team", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "team %d not found", teamID)
	}
	return nil
}

// ListTeams lists an organization's live teams
func (s *Service) ListTeams(ctx context.Context, orgID int64) ([]Team, error) {
	query := `
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM teams
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, apperrors.Translate("list teams", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		var description sql.NullString
		var createdBy sql.NullInt64

		err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &description, &createdBy, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}

		t.Description = description.String
		if createdBy.Valid {
			id := createdBy.Int64
			t.CreatedBy = &id
		}
		teams = append(teams, t)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list teams", err)
	}
	return teams, nil
}

// AddTeamMember adds a user to a team. The user must already be a
// member of the team's organization.
func (s *Service) AddTeamMember(ctx context.Context, tm *TeamMember) error {
	memberCheck := `
		SELECT EXISTS (
			SELECT 1 FROM org_memberships om
			JOIN teams t ON t.organization_id = om.organization_id
			WHERE t.id = $1 AND om.user_id = $2 AND om.deleted_at IS NULL AND t.deleted_at IS NULL
		)
	`
	var isMember bool
	if err := s.db.QueryRowContext(ctx, memberCheck, tm.TeamID, tm.UserID).Scan(&isMember); err != nil {
		return apperrors.Translate("add team member", err)
	}
	if !isMember {
		return apperrors.Newf(apperrors.ValidationFailed,
			"user %d is not a member of team %d's organization", tm.UserID, tm.TeamID)
	}

	query := `
		INSERT INTO team_members (team_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query, tm.TeamID, tm.UserID, tm.AddedBy, now).Scan(&tm.ID)
	if err == sql.ErrNoRows {
		// Already a member; nothing to do.
		return nil
	}
	if err != nil {
		return apperrors.Translate("add team member", err)
	}

	tm.AddedAt = now
	return nil
}

// RemoveTeamMember removes a user from a team
func (s *Service) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`

	result, err := s.db.ExecContext(ctx, query, teamID, userID)
	if err != nil {
		return apperrors.Translate("remove team member", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.NotFound, "user %d is not in team %d", userID, teamID)
	}
	return nil
}

// ListTeamMembers lists a team's members
func (s *Service) ListTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error) {
	query := `
		SELECT id, team_id, user_id, added_by, added_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY added_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, apperrors.Translate("list team members", err)
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var tm TeamMember
		var addedBy sql.NullInt64

		if err := rows.Scan(&tm.ID, &tm.TeamID, &tm.UserID, &addedBy, &tm.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}

		if addedBy.Valid {
			id := addedBy.Int64
			tm.AddedBy = &id
		}
		members = append(members, tm)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Translate("list team members", err)
	}
	return members, nil
}
