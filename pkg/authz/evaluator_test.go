package authz

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockEvaluator(t *testing.T) (*Evaluator, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewEvaluator(db, nil, nil), mock, db
}

func expectMembership(mock sqlmock.Sqlmock, userID, orgID int64, member bool) {
	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM org_memberships`).
		WithArgs(userID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(member))
}

func expectTeams(mock sqlmock.Sqlmock, userID, orgID int64, teamIDs ...int64) {
	rows := sqlmock.NewRows([]string{"team_id"})
	for _, id := range teamIDs {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`SELECT tm\.team_id\s*FROM team_members tm`).
		WithArgs(userID, orgID).
		WillReturnRows(rows)
}

func permissionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "role_id", "resource_kind", "action", "org_wide", "workspace_wide", "entity_type_id", "created_at",
	})
}

func expectPermissions(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(`FROM role_assignments ra\s*JOIN roles r`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func TestEvaluateMembershipGate(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	// No membership row: denied before any assignment is consulted,
	// even though grants may still reference the user.
	expectMembership(mock, 1, 10, false)

	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     10,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateInvalidPrincipal(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Resource: ResourceEntity,
		Action:   ActionRead,
		OrgID:    10,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateOrgWidePermission(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()
	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10)
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceEntity, ActionRead, true, false, nil, now))

	// An org-wide permission matches with or without a workspace
	// qualifier in the query.
	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal:   UserPrincipal(1),
		Resource:    ResourceEntity,
		Action:      ActionRead,
		OrgID:       10,
		WorkspaceID: int64Ptr(3),
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateWorkspaceWideNeedsWorkspace(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()
	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10)
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceEntity, ActionRead, false, true, nil, now))

	// A workspace-wide permission cannot satisfy an org-level query.
	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     10,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateEntityTypeScoping(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()

	t.Run("matching entity type allows", func(t *testing.T) {
		expectMembership(mock, 1, 10, true)
		expectTeams(mock, 1, 10)
		expectPermissions(mock, permissionRows().
			AddRow(1, 5, ResourceEntity, ActionUpdate, false, false, 7, now))

		allowed, err := evaluator.Evaluate(context.Background(), Query{
			Principal:    UserPrincipal(1),
			Resource:     ResourceEntity,
			Action:       ActionUpdate,
			OrgID:        10,
			EntityTypeID: int64Ptr(7),
		})
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("different entity type denies", func(t *testing.T) {
		expectMembership(mock, 1, 10, true)
		expectTeams(mock, 1, 10)
		expectPermissions(mock, permissionRows().
			AddRow(1, 5, ResourceEntity, ActionUpdate, false, false, 7, now))

		allowed, err := evaluator.Evaluate(context.Background(), Query{
			Principal:    UserPrincipal(1),
			Resource:     ResourceEntity,
			Action:       ActionUpdate,
			OrgID:        10,
			EntityTypeID: int64Ptr(8),
		})
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateTeamDerivedPermission(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()
	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10, 21)
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceWorkflow, ActionExecute, true, false, nil, now))

	// The permission row came through a team assignment; the user
	// still gets it as part of their effective principal set.
	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceWorkflow,
		Action:    ActionExecute,
		OrgID:     10,
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateNoMatchingPermission(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()
	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10)
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceEntity, ActionRead, true, false, nil, now))

	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceEntity,
		Action:    ActionDelete,
		OrgID:     10,
	})
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateTeamPrincipal(t *testing.T) {
	evaluator, mock, db := newMockEvaluator(t)
	defer db.Close()

	now := time.Now()

	// A team principal gates on the team living in the organization
	// instead of the user membership check.
	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM teams`).
		WithArgs(int64(21), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceEntity, ActionRead, true, false, nil, now))

	allowed, err := evaluator.Evaluate(context.Background(), Query{
		Principal: TeamPrincipal(21),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     10,
	})
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateUsesDecisionCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cache := NewLRUDecisionCache(16, time.Minute, nil)
	evaluator := NewEvaluator(db, cache, nil)

	now := time.Now()
	q := Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     10,
	}

	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10)
	expectPermissions(mock, permissionRows().
		AddRow(1, 5, ResourceEntity, ActionRead, true, false, nil, now))

	allowed, err := evaluator.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Second evaluation is served from the cache; no queries expected.
	allowed, err = evaluator.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Invalidation forces a fresh evaluation.
	cache.InvalidatePrincipal(context.Background(), q.Principal)

	expectMembership(mock, 1, 10, true)
	expectTeams(mock, 1, 10)
	expectPermissions(mock, permissionRows())

	allowed, err = evaluator.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}
