package authz

import (
	"fmt"
	"time"
)

// PrincipalType distinguishes the two kinds of role-holding principals
type PrincipalType string

const (
	PrincipalUser PrincipalType = "user"
	PrincipalTeam PrincipalType = "team"
)

// Principal identifies an entity that can hold role assignments
type Principal struct {
	Type PrincipalType `json:"type"`
	ID   int64         `json:"id"`
}

// UserPrincipal returns a user principal
func UserPrincipal(id int64) Principal {
	return Principal{Type: PrincipalUser, ID: id}
}

// TeamPrincipal returns a team principal
func TeamPrincipal(id int64) Principal {
	return Principal{Type: PrincipalTeam, ID: id}
}

// Valid reports whether the principal names a real identity
func (p Principal) Valid() bool {
	return p.ID > 0 && (p.Type == PrincipalUser || p.Type == PrincipalTeam)
}

func (p Principal) String() string {
	return fmt.Sprintf("%s:%d", p.Type, p.ID)
}

// ResourceKind is the category of object being protected
type ResourceKind string

const (
	ResourceOrganization ResourceKind = "organization"
	ResourceWorkspace    ResourceKind = "workspace"
	ResourceEntity       ResourceKind = "entity"
	ResourceEntityType   ResourceKind = "entity_type"
	ResourceWorkflow     ResourceKind = "workflow"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionManageMembers Action = "manage_members"
	ActionManageTeams   Action = "manage_teams"
	ActionManageRoles   Action = "manage_roles"
	ActionExecute       Action = "execute"
)

// RoleScope is a tagged union over the two role visibility tiers:
// system-wide roles usable in any organization, and roles private to a
// single organization.
type RoleScope struct {
	orgID int64 // zero means system-wide
}

// GlobalScope returns the system-wide role scope
func GlobalScope() RoleScope {
	return RoleScope{}
}

// OrganizationScope returns a scope private to one organization
func OrganizationScope(orgID int64) RoleScope {
	return RoleScope{orgID: orgID}
}

// IsGlobal reports whether the role is system-wide
func (s RoleScope) IsGlobal() bool {
	return s.orgID == 0
}

// OrganizationID returns the owning organization, ok=false for
// system-wide roles
func (s RoleScope) OrganizationID() (int64, bool) {
	if s.orgID == 0 {
		return 0, false
	}
	return s.orgID, true
}

func (s RoleScope) String() string {
	if s.orgID == 0 {
		return "global"
	}
	return fmt.Sprintf("organization:%d", s.orgID)
}

// Role is a named permission bundle
type Role struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Scope       RoleScope  `json:"-"`
	IsBuiltIn   bool       `json:"is_built_in"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Built-in role names, seeded at startup and granted by the provisioning
// state machine
const (
	RoleOwner          = "owner"
	RoleMember         = "member"
	RoleWorkspaceOwner = "workspace-owner"
)

// Permission grants one action on one resource kind, qualified by
// exactly one scope mode: organization-wide, workspace-wide,
// entity-type-specific, or unscoped.
type Permission struct {
	ID            int64        `json:"id"`
	RoleID        int64        `json:"role_id"`
	Resource      ResourceKind `json:"resource"`
	Action        Action       `json:"action"`
	OrgWide       bool         `json:"org_wide"`
	WorkspaceWide bool         `json:"workspace_wide"`
	EntityTypeID  *int64       `json:"entity_type_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Validate checks the mutual exclusion of the scope modes
func (p Permission) Validate() error {
	modes := 0
	if p.OrgWide {
		modes++
	}
	if p.WorkspaceWide {
		modes++
	}
	if p.EntityTypeID != nil {
		if *p.EntityTypeID <= 0 {
			return fmt.Errorf("entity type reference must be positive, got %d", *p.EntityTypeID)
		}
		modes++
	}
	if modes > 1 {
		return fmt.Errorf("permission scope modes are mutually exclusive")
	}
	if p.Resource == "" {
		return fmt.Errorf("permission resource kind is required")
	}
	if p.Action == "" {
		return fmt.Errorf("permission action is required")
	}
	return nil
}

// Query is one permission evaluation request
type Query struct {
	Principal    Principal
	Action       Action
	Resource     ResourceKind
	OrgID        int64
	WorkspaceID  *int64
	EntityTypeID *int64
}

// Matches reports whether this permission satisfies the query. Resource
// kind and action must match exactly; the scope modes then apply:
// organization-wide always matches, workspace-wide requires a workspace
// qualifier on the query, entity-type-specific requires the exact entity
// type, and an unscoped permission matches unconditionally as a fallback.
func (p Permission) Matches(q Query) bool {
	if p.Resource != q.Resource || p.Action != q.Action {
		return false
	}

	switch {
	case p.OrgWide:
		return true
	case p.WorkspaceWide:
		return q.WorkspaceID != nil
	case p.EntityTypeID != nil:
		return q.EntityTypeID != nil && *q.EntityTypeID == *p.EntityTypeID
	default:
		return true
	}
}

// Assignment ties a principal to a role within an organization, with an
// optional workspace qualifier. A nil WorkspaceID applies the role to
// every workspace in the organization.
type Assignment struct {
	ID           int64      `json:"id"`
	Principal    Principal  `json:"principal"`
	OrgID        int64      `json:"organization_id"`
	WorkspaceID  *int64     `json:"workspace_id,omitempty"`
	RoleID       int64      `json:"role_id"`
	InvitationID *int64     `json:"invitation_id,omitempty"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	GrantedAt    time.Time  `json:"granted_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// RoleDefinition describes a built-in role before it is persisted
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []Permission
}

// BuiltInRoles returns the role definitions seeded into every deployment.
// They are system-wide so the provisioning state machine can grant them
// in any organization.
func BuiltInRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleOwner,
			Description: "Full access to an organization and everything in it",
			Permissions: []Permission{
				{Resource: ResourceOrganization, Action: ActionRead, OrgWide: true},
				{Resource: ResourceOrganization, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceOrganization, Action: ActionDelete, OrgWide: true},
				{Resource: ResourceOrganization, Action: ActionManageMembers, OrgWide: true},
				{Resource: ResourceOrganization, Action: ActionManageTeams, OrgWide: true},
				{Resource: ResourceOrganization, Action: ActionManageRoles, OrgWide: true},
				{Resource: ResourceWorkspace, Action: ActionRead, OrgWide: true},
				{Resource: ResourceWorkspace, Action: ActionCreate, OrgWide: true},
				{Resource: ResourceWorkspace, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceWorkspace, Action: ActionDelete, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionRead, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionCreate, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionDelete, OrgWide: true},
				{Resource: ResourceEntityType, Action: ActionRead, OrgWide: true},
				{Resource: ResourceEntityType, Action: ActionCreate, OrgWide: true},
				{Resource: ResourceEntityType, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceEntityType, Action: ActionDelete, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionRead, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionCreate, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionDelete, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionExecute, OrgWide: true},
			},
		},
		{
			Name:        RoleMember,
			Description: "Baseline read and contribute access within an organization",
			Permissions: []Permission{
				{Resource: ResourceOrganization, Action: ActionRead, OrgWide: true},
				{Resource: ResourceWorkspace, Action: ActionRead, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionRead, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionCreate, OrgWide: true},
				{Resource: ResourceEntity, Action: ActionUpdate, OrgWide: true},
				{Resource: ResourceEntityType, Action: ActionRead, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionRead, OrgWide: true},
				{Resource: ResourceWorkflow, Action: ActionExecute, OrgWide: true},
			},
		},
		{
			Name:        RoleWorkspaceOwner,
			Description: "Full access within the workspaces an assignment names",
			Permissions: []Permission{
				{Resource: ResourceWorkspace, Action: ActionRead, WorkspaceWide: true},
				{Resource: ResourceWorkspace, Action: ActionUpdate, WorkspaceWide: true},
				{Resource: ResourceWorkspace, Action: ActionDelete, WorkspaceWide: true},
				{Resource: ResourceWorkspace, Action: ActionManageMembers, WorkspaceWide: true},
				{Resource: ResourceEntity, Action: ActionRead, WorkspaceWide: true},
				{Resource: ResourceEntity, Action: ActionCreate, WorkspaceWide: true},
				{Resource: ResourceEntity, Action: ActionUpdate, WorkspaceWide: true},
				{Resource: ResourceEntity, Action: ActionDelete, WorkspaceWide: true},
				{Resource: ResourceWorkflow, Action: ActionRead, WorkspaceWide: true},
				{Resource: ResourceWorkflow, Action: ActionCreate, WorkspaceWide: true},
				{Resource: ResourceWorkflow, Action: ActionUpdate, WorkspaceWide: true},
				{Resource: ResourceWorkflow, Action: ActionDelete, WorkspaceWide: true},
				{Resource: ResourceWorkflow, Action: ActionExecute, WorkspaceWide: true},
			},
		},
	}
}
