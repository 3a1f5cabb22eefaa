package authz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Exercises the full path against a real database: migrations, built-in
// role seeding, grant, and evaluation. Skips unless TEST_POSTGRES_PRIMARY
// is set.
func TestPostgresMigrateGrantEvaluate(t *testing.T) {
	db := RequireDatabase(t)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	require.NoError(t, RunMigrations(ctx, db))
	// re-running must be a noop
	require.NoError(t, RunMigrations(ctx, db))

	registry := NewRegistry(db)
	require.NoError(t, InitializeBuiltInRoles(ctx, registry))

	var orgID int64
	orgName := fmt.Sprintf("it-org-%d", time.Now().UnixNano())
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO organizations (name) VALUES ($1) RETURNING id`,
		orgName,
	).Scan(&orgID))

	userID := time.Now().UnixNano() % 1_000_000_000
	_, err := db.ExecContext(ctx,
		`INSERT INTO org_memberships (user_id, organization_id) VALUES ($1, $2)`,
		userID, orgID)
	require.NoError(t, err)

	member, err := registry.GetRoleByName(ctx, RoleMember, nil)
	require.NoError(t, err)
	require.True(t, member.IsBuiltIn)

	store := NewAssignmentStore(db)
	assignment := &Assignment{
		Principal: UserPrincipal(userID),
		OrgID:     orgID,
		RoleID:    member.ID,
	}

	created, err := store.Grant(ctx, assignment)
	require.NoError(t, err)
	require.True(t, created)

	created, err = store.Grant(ctx, &Assignment{
		Principal: UserPrincipal(userID),
		OrgID:     orgID,
		RoleID:    member.ID,
	})
	require.NoError(t, err)
	require.False(t, created, "repeated grant of the same tuple should be a noop")

	evaluator := NewEvaluator(db, nil, nil)

	allowed, err := evaluator.Evaluate(ctx, Query{
		Principal: UserPrincipal(userID),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     orgID,
	})
	require.NoError(t, err)
	require.True(t, allowed, "member should read entities org-wide")

	allowed, err = evaluator.Evaluate(ctx, Query{
		Principal: UserPrincipal(userID),
		Resource:  ResourceEntity,
		Action:    ActionDelete,
		OrgID:     orgID,
	})
	require.NoError(t, err)
	require.False(t, allowed, "member must not delete entities")

	allowed, err = evaluator.Evaluate(ctx, Query{
		Principal: UserPrincipal(userID + 1),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     orgID,
	})
	require.NoError(t, err)
	require.False(t, allowed, "non-members are denied regardless of assignments")
}
