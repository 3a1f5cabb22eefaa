package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Denial reasons, kept internal for diagnostics and metrics. Callers of
// Evaluate only ever see the boolean.
const (
	reasonAllowed         = "allowed"
	reasonUnauthenticated = "unauthenticated"
	reasonNotMember       = "not_member"
	reasonNoMatch         = "no_match"
)

// Evaluator is the permission decision function consumed on every
// access check. It is read-only and safe for unlimited concurrent use.
type Evaluator struct {
	db          *sql.DB
	memberships *MembershipValidator
	cache       DecisionCache
	metrics     *observability.Metrics
}

// NewEvaluator creates a new permission evaluator. The db handle should
// point at a reader connection; evaluation never writes. cache and
// metrics may be nil.
func NewEvaluator(db *sql.DB, cache DecisionCache, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		db:          db,
		memberships: NewMembershipValidator(db),
		cache:       cache,
		metrics:     metrics,
	}
}

// IsMember exposes the membership gate for collaborators that need a
// cheap membership check without a full evaluation.
func (e *Evaluator) IsMember(ctx context.Context, userID, orgID int64) (bool, error) {
	return e.memberships.IsMember(ctx, userID, orgID)
}

// Evaluate decides whether the principal may perform the action on the
// resource kind within the organization, honoring the optional workspace
// and entity-type qualifiers.
//
// The decision composes four steps: the authenticated-identity check,
// the membership hard gate, expansion of the principal into its
// effective principal set (itself plus its teams), and a single pass
// over the permissions of every role assigned to that set at a matching
// scope. At least one matching permission allows; everything else
// denies.
func (e *Evaluator) Evaluate(ctx context.Context, q Query) (bool, error) {
	start := time.Now()
	allowed, reason, err := e.evaluate(ctx, q)
	if err != nil {
		return false, err
	}

	if e.metrics != nil {
		outcome := "denied"
		if allowed {
			outcome = "allowed"
		}
		e.metrics.EvaluationsTotal.WithLabelValues(outcome, reason).Inc()
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}

	if !allowed {
		observability.FromContext(ctx).WithFields(map[string]interface{}{
			"principal": q.Principal.String(),
			"action":    string(q.Action),
			"resource":  string(q.Resource),
			"org_id":    q.OrgID,
			"reason":    reason,
		}).Debug("permission denied")
	}

	return allowed, nil
}

func (e *Evaluator) evaluate(ctx context.Context, q Query) (bool, string, error) {
	if !q.Principal.Valid() {
		return false, reasonUnauthenticated, nil
	}

	if e.cache != nil {
		if allowed, ok := e.cache.Get(ctx, cacheKey(q)); ok {
			if allowed {
				return true, reasonAllowed, nil
			}
			return false, reasonNoMatch, nil
		}
	}

	// Membership is a hard gate, independent of any assignment that
	// might otherwise appear to match.
	member, err := e.isRecognized(ctx, q.Principal, q.OrgID)
	if err != nil {
		return false, "", err
	}
	if !member {
		return false, reasonNotMember, nil
	}

	teamIDs, err := e.teamsForUser(ctx, q.Principal, q.OrgID)
	if err != nil {
		return false, "", err
	}

	perms, err := e.assignedPermissions(ctx, q, teamIDs)
	if err != nil {
		return false, "", err
	}

	allowed := false
	for _, p := range perms {
		if p.Matches(q) {
			allowed = true
			break
		}
	}

	if e.cache != nil {
		e.cache.Set(ctx, cacheKey(q), q.Principal, allowed)
	}

	if allowed {
		return true, reasonAllowed, nil
	}
	return false, reasonNoMatch, nil
}

// isRecognized applies the membership gate for user principals; a team
// principal is recognized when the team itself lives in the queried
// organization.
func (e *Evaluator) isRecognized(ctx context.Context, p Principal, orgID int64) (bool, error) {
	if p.Type == PrincipalUser {
		return e.memberships.IsMember(ctx, p.ID, orgID)
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM teams
			WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		)
	`
	var exists bool
	if err := e.db.QueryRowContext(ctx, query, p.ID, orgID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check team organization: %w", err)
	}
	return exists, nil
}

// teamsForUser returns the ids of the organization's live teams the
// user belongs to. Teams are first-class principals for assignment
// purposes, so their assignments count toward the user's decisions.
func (e *Evaluator) teamsForUser(ctx context.Context, p Principal, orgID int64) ([]int64, error) {
	if p.Type != PrincipalUser {
		return nil, nil
	}

	query := `
		SELECT tm.team_id
		FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.user_id = $1 AND t.organization_id = $2 AND t.deleted_at IS NULL
	`

	rows, err := e.db.QueryContext(ctx, query, p.ID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team memberships: %w", err)
	}
	defer rows.Close()

	var teamIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		teamIDs = append(teamIDs, id)
	}

	return teamIDs, rows.Err()
}

// assignedPermissions returns every permission of every live role
// assigned to any principal in the effective set, restricted to the
// organization and to assignments that are either organization-wide or
// scoped to the queried workspace.
func (e *Evaluator) assignedPermissions(ctx context.Context, q Query, teamIDs []int64) ([]Permission, error) {
	query := `
		SELECT rp.id, rp.role_id, rp.resource_kind, rp.action, rp.org_wide, rp.workspace_wide, rp.entity_type_id, rp.created_at
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id AND r.deleted_at IS NULL
		JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ra.organization_id = $1
		  AND ra.deleted_at IS NULL
		  AND (ra.workspace_id IS NULL OR ra.workspace_id = $2)
		  AND (r.organization_id IS NULL OR r.organization_id = ra.organization_id)
		  AND (
		        (ra.principal_type = $3 AND ra.principal_id = $4)
		     OR (ra.principal_type = 'team' AND ra.principal_id = ANY($5))
		  )
	`

	rows, err := e.db.QueryContext(ctx, query,
		q.OrgID,
		q.WorkspaceID,
		q.Principal.Type,
		q.Principal.ID,
		pq.Array(teamIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query assigned permissions: %w", err)
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

	return perms, rows.Err()
}

// cacheKey builds the decision cache key for a query. The principal is
// embedded first so per-principal invalidation can match on prefix.
func cacheKey(q Query) string {
	ws := int64(0)
	if q.WorkspaceID != nil {
		ws = *q.WorkspaceID
	}
	et := int64(0)
	if q.EntityTypeID != nil {
		et = *q.EntityTypeID
	}
	return fmt.Sprintf("%s|%d|%s|%s|%d|%d", q.Principal.String(), q.OrgID, q.Resource, q.Action, ws, et)
}
