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

// Provisioner is the account provisioning state machine. On every new
// account it either lands the user in the organization that invited
// them or stands up a personal organization from scratch.
type Provisioner struct {
	db          *sql.DB
	orgs        *orgs.Service
	registry    *authz.Registry
	assignments *authz.AssignmentStore
	invitations *InvitationStore
	metrics     *observability.Metrics
	logger      *observability.Logger
}

// NewProvisioner creates a new account provisioner
func NewProvisioner(db *sql.DB, orgService *orgs.Service, registry *authz.Registry, assignments *authz.AssignmentStore, invitations *InvitationStore, metrics *observability.Metrics, logger *observability.Logger) *Provisioner {
	return &Provisioner{
		db:          db,
		orgs:        orgService,
		registry:    registry,
		assignments: assignments,
		invitations: invitations,
		metrics:     metrics,
		logger:      logger,
	}
}

// ProvisionOnAccountCreated runs the provisioning state machine for a
// newly created account.
//
// If a pending invitation exists for the account's email (latest wins),
// the invited branch lands the user in the inviting organization:
// a workspace named from the email, a membership, the invitation's role
// (or the default member role) organization-wide, and a workspace-owner
// grant pinned to the new workspace, all in one transaction, with the
// invitation marked accepted. Any failure on that branch falls back to
// self-provisioning instead of failing account creation.
//
// The self branch creates a personal organization, a workspace, a
// membership and owner grants at both scopes in one transaction.
// Failure here is fatal and surfaces to the caller: an account with no
// organizational context is unusable.
//
// Invoking the machine again for an already provisioned account is a
// no-op returning the existing context.
func (p *Provisioner) ProvisionOnAccountCreated(ctx context.Context, userID int64, email string) (*Result, error) {
	if userID <= 0 {
		return nil, apperrors.New(apperrors.ValidationFailed, "user id must be positive")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.New(apperrors.ValidationFailed, "email must not be empty")
	}

	logger := p.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"email":   email,
	})

	// Idempotency guard: a retried account-creation event must not
	// produce a second organization or membership.
	if existing, err := p.existingContext(ctx, userID); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Info("account already provisioned")
		p.observe(BranchNoop, "success", time.Time{})
		return existing, nil
	}

	inv, err := p.invitations.LatestPendingForEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if inv != nil {
		start := time.Now()
		result, err := p.provisionInvited(ctx, userID, email, inv)
		if err == nil {
			logger.WithField("organization_id", result.OrganizationID).Info("provisioned invited account")
			p.observe(BranchInvited, "success", start)
			return result, nil
		}

		// Recoverable: abandon the invited branch and fall through to
		// self-provisioning.
		logger.WithError(err).Warn("invited provisioning failed, falling back to self provisioning")
		p.observe(BranchInvited, "failure", start)
	}

	start := time.Now()
	result, err := p.provisionSelf(ctx, userID, email)
	if err != nil {
		logger.WithError(err).Error("self provisioning failed")
		p.observe(BranchSelf, "failure", start)
		return nil, err
	}

	logger.WithField("organization_id", result.OrganizationID).Info("provisioned personal organization")
	p.observe(BranchSelf, "success", start)
	return result, nil
}

// existingContext returns the user's earliest provisioned context, or
// nil when the user holds no live membership anywhere.
func (p *Provisioner) existingContext(ctx context.Context, userID int64) (*Result, error) {
	query := `
		SELECT om.organization_id, COALESCE(MIN(w.id), 0)
		FROM org_memberships om
		LEFT JOIN workspaces w ON w.organization_id = om.organization_id AND w.deleted_at IS NULL
		WHERE om.user_id = $1 AND om.deleted_at IS NULL
		GROUP BY om.organization_id, om.created_at
		ORDER BY om.created_at ASC
		LIMIT 1
	`

	var result Result
	err := p.db.QueryRowContext(ctx, query, userID).Scan(&result.OrganizationID, &result.WorkspaceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing provisioning context: %w", err)
	}

	result.Branch = BranchNoop
	return &result, nil
}

func (p *Provisioner) provisionInvited(ctx context.Context, userID int64, email string, inv *Invitation) (*Result, error) {
	roleID := inv.RoleID
	if roleID == nil {
		role, err := p.registry.GetRoleByName(ctx, authz.RoleMember, &inv.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve default member role: %w", err)
		}
		roleID = &role.ID
	}

	wsOwner, err := p.registry.GetRoleByName(ctx, authz.RoleWorkspaceOwner, &inv.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace owner role: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	ws := &orgs.Workspace{
		OrganizationID: inv.OrganizationID,
		Name:           workspaceNameFromEmail(email, userID),
		CreatedBy:      &userID,
	}
	if err := p.orgs.CreateWorkspaceTx(ctx, tx, ws); err != nil {
		return nil, err
	}

	membership := &orgs.Membership{
		UserID:         userID,
		OrganizationID: inv.OrganizationID,
		InvitationID:   &inv.ID,
		AddedBy:        inv.InvitedBy,
	}
	if _, err := p.orgs.AddMemberTx(ctx, tx, membership); err != nil {
		return nil, err
	}

	orgGrant := &authz.Assignment{
		Principal:    authz.UserPrincipal(userID),
		OrgID:        inv.OrganizationID,
		RoleID:       *roleID,
		InvitationID: &inv.ID,
		GrantedBy:    inv.InvitedBy,
	}
	if _, err := p.assignments.GrantTx(ctx, tx, orgGrant); err != nil {
		return nil, err
	}

	wsGrant := &authz.Assignment{
		Principal:    authz.UserPrincipal(userID),
		OrgID:        inv.OrganizationID,
		WorkspaceID:  &ws.ID,
		RoleID:       wsOwner.ID,
		InvitationID: &inv.ID,
		GrantedBy:    inv.InvitedBy,
	}
	if _, err := p.assignments.GrantTx(ctx, tx, wsGrant); err != nil {
		return nil, err
	}

	if err := p.invitations.acceptTx(ctx, tx, inv, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invited provisioning: %w", err)
	}

	if p.metrics != nil {
		p.metrics.InvitationsTotal.WithLabelValues("accepted").Inc()
	}

	return &Result{
		OrganizationID: inv.OrganizationID,
		WorkspaceID:    ws.ID,
		Branch:         BranchInvited,
	}, nil
}

func (p *Provisioner) provisionSelf(ctx context.Context, userID int64, email string) (*Result, error) {
	owner, err := p.registry.GetRoleByName(ctx, authz.RoleOwner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner role: %w", err)
	}
	wsOwner, err := p.registry.GetRoleByName(ctx, authz.RoleWorkspaceOwner, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace owner role: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	org := &orgs.Organization{
		Name:      organizationNameFromEmail(email, userID),
		CreatedBy: &userID,
	}
	if err := p.orgs.CreateOrganizationTx(ctx, tx, org); err != nil {
		return nil, err
	}

	ws := &orgs.Workspace{
		OrganizationID: org.ID,
		Name:           workspaceNameFromEmail(email, userID),
		CreatedBy:      &userID,
	}
	if err := p.orgs.CreateWorkspaceTx(ctx, tx, ws); err != nil {
		return nil, err
	}

	membership := &orgs.Membership{UserID: userID, OrganizationID: org.ID}
	if _, err := p.orgs.AddMemberTx(ctx, tx, membership); err != nil {
		return nil, err
	}

	orgGrant := &authz.Assignment{
		Principal: authz.UserPrincipal(userID),
		OrgID:     org.ID,
		RoleID:    owner.ID,
	}
	if _, err := p.assignments.GrantTx(ctx, tx, orgGrant); err != nil {
		return nil, err
	}

	wsGrant := &authz.Assignment{
		Principal:   authz.UserPrincipal(userID),
		OrgID:       org.ID,
		WorkspaceID: &ws.ID,
		RoleID:      wsOwner.ID,
	}
	if _, err := p.assignments.GrantTx(ctx, tx, wsGrant); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit self provisioning: %w", err)
	}

	return &Result{
		OrganizationID: org.ID,
		WorkspaceID:    ws.ID,
		Branch:         BranchSelf,
	}, nil
}

func (p *Provisioner) observe(branch Branch, outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.ProvisioningTotal.WithLabelValues(string(branch), outcome).Inc()
	if !start.IsZero() {
		p.metrics.ProvisioningDuration.WithLabelValues(string(branch)).Observe(time.Since(start).Seconds())
	}
}

// workspaceNameFromEmail derives a deterministic workspace name from
// the account's email local part, so a retried invited branch targets
// the same name instead of accreting workspaces.
func workspaceNameFromEmail(email string, userID int64) string {
	return nameStem(email, userID) + "-workspace"
}

func organizationNameFromEmail(email string, userID int64) string {
	return nameStem(email, userID)
}

// nameStem slugifies the email local part. Quoted or non-Latin local
// parts can slugify to nothing; fall back to the user id so the name
// stays deterministic and non-empty.
func nameStem(email string, userID int64) string {
	if slug := slugify(localPart(email)); slug != "" {
		return slug
	}
	return fmt.Sprintf("user-%d", userID)
}

func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
