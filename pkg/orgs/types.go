package orgs

import "time"

// Organization is a tenant boundary. Everything else in the system
// hangs off an organization.
type Organization struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedBy *int64     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Workspace is a named partition inside an organization. Names are
// unique per organization, case-insensitively, among live workspaces.
type Workspace struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Membership records that a user belongs to an organization. The user
// registry lives outside this system, so user ids carry no foreign key.
type Membership struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	OrganizationID int64      `json:"organization_id"`
	InvitationID   *int64     `json:"invitation_id,omitempty"`
	AddedBy        *int64     `json:"added_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Team is a named group of users inside an organization that can hold
// role assignments of its own.
type Team struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	CreatedBy      *int64     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// TeamMember records a user's team membership
type TeamMember struct {
	ID      int64     `json:"id"`
	TeamID  int64     `json:"team_id"`
	UserID  int64     `json:"user_id"`
	AddedBy *int64    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}
