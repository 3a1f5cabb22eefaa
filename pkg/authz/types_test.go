package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPermissionValidate(t *testing.T) {
	tests := []struct {
		name    string
		perm    Permission
		wantErr bool
	}{
		{
			name: "org wide",
			perm: Permission{Resource: ResourceEntity, Action: ActionRead, OrgWide: true},
		},
		{
			name: "workspace wide",
			perm: Permission{Resource: ResourceEntity, Action: ActionRead, WorkspaceWide: true},
		},
		{
			name: "entity type scoped",
			perm: Permission{Resource: ResourceEntity, Action: ActionRead, EntityTypeID: int64Ptr(7)},
		},
		{
			name: "unscoped",
			perm: Permission{Resource: ResourceEntity, Action: ActionRead},
		},
		{
			name:    "org wide and workspace wide",
			perm:    Permission{Resource: ResourceEntity, Action: ActionRead, OrgWide: true, WorkspaceWide: true},
			wantErr: true,
		},
		{
			name:    "org wide and entity type",
			perm:    Permission{Resource: ResourceEntity, Action: ActionRead, OrgWide: true, EntityTypeID: int64Ptr(7)},
			wantErr: true,
		},
		{
			name:    "non-positive entity type",
			perm:    Permission{Resource: ResourceEntity, Action: ActionRead, EntityTypeID: int64Ptr(0)},
			wantErr: true,
		},
		{
			name:    "missing resource",
			perm:    Permission{Action: ActionRead, OrgWide: true},
			wantErr: true,
		},
		{
			name:    "missing action",
			perm:    Permission{Resource: ResourceEntity, OrgWide: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.perm.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPermissionMatches(t *testing.T) {
	base := Query{
		Principal: UserPrincipal(1),
		Resource:  ResourceEntity,
		Action:    ActionRead,
		OrgID:     10,
	}

	t.Run("resource and action must match", func(t *testing.T) {
		perm := Permission{Resource: ResourceEntity, Action: ActionRead, OrgWide: true}

		assert.True(t, perm.Matches(base))

		q := base
		q.Action = ActionDelete
		assert.False(t, perm.Matches(q))

		q = base
		q.Resource = ResourceWorkflow
		assert.False(t, perm.Matches(q))
	})

	t.Run("org wide matches regardless of workspace", func(t *testing.T) {
		perm := Permission{Resource: ResourceEntity, Action: ActionRead, OrgWide: true}

		assert.True(t, perm.Matches(base))

		q := base
		q.WorkspaceID = int64Ptr(3)
		assert.True(t, perm.Matches(q))
	})

	t.Run("workspace wide requires a workspace in the query", func(t *testing.T) {
		perm := Permission{Resource: ResourceEntity, Action: ActionRead, WorkspaceWide: true}

		assert.False(t, perm.Matches(base))

		q := base
		q.WorkspaceID = int64Ptr(3)
		assert.True(t, perm.Matches(q))
	})

	t.Run("entity type scoped requires the exact entity type", func(t *testing.T) {
		perm := Permission{Resource: ResourceEntity, Action: ActionRead, EntityTypeID: int64Ptr(7)}

		assert.False(t, perm.Matches(base))

		q := base
		q.EntityTypeID = int64Ptr(7)
		assert.True(t, perm.Matches(q))

		q.EntityTypeID = int64Ptr(8)
		assert.False(t, perm.Matches(q))
	})

	t.Run("unscoped matches any context", func(t *testing.T) {
		perm := Permission{Resource: ResourceEntity, Action: ActionRead}

		assert.True(t, perm.Matches(base))

		q := base
		q.WorkspaceID = int64Ptr(3)
		q.EntityTypeID = int64Ptr(7)
		assert.True(t, perm.Matches(q))
	})
}

func TestRoleScope(t *testing.T) {
	global := GlobalScope()
	assert.True(t, global.IsGlobal())
	_, ok := global.OrganizationID()
	assert.False(t, ok)

	scoped := OrganizationScope(42)
	assert.False(t, scoped.IsGlobal())
	orgID, ok := scoped.OrganizationID()
	require.True(t, ok)
	assert.Equal(t, int64(42), orgID)
}

func TestPrincipalValid(t *testing.T) {
	assert.True(t, UserPrincipal(1).Valid())
	assert.True(t, TeamPrincipal(2).Valid())
	assert.False(t, Principal{}.Valid())
	assert.False(t, Principal{Type: PrincipalUser, ID: 0}.Valid())
	assert.False(t, Principal{Type: "service", ID: 1}.Valid())
}

func TestBuiltInRoles(t *testing.T) {
	defs := BuiltInRoles()
	require.Len(t, defs, 3)

	byName := make(map[string]RoleDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
		for _, perm := range def.Permissions {
			assert.NoError(t, perm.Validate(), "role %s", def.Name)
		}
	}

	require.Contains(t, byName, RoleOwner)
	require.Contains(t, byName, RoleMember)
	require.Contains(t, byName, RoleWorkspaceOwner)

	// The workspace owner role is entirely workspace scoped so a
	// pinned assignment never leaks outside its workspace.
	for _, perm := range byName[RoleWorkspaceOwner].Permissions {
		assert.True(t, perm.WorkspaceWide)
	}

	// Owner covers everything member does.
	ownerPerms := make(map[string]bool)
	for _, perm := range byName[RoleOwner].Permissions {
		ownerPerms[string(perm.Resource)+"/"+string(perm.Action)] = true
	}
	for _, perm := range byName[RoleMember].Permissions {
		assert.True(t, ownerPerms[string(perm.Resource)+"/"+string(perm.Action)],
			"owner should cover member permission %s %s", perm.Resource, perm.Action)
	}
}
