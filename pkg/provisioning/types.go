package provisioning

import "time"

// State is a provisioning state machine state
type State string

const (
	StateNewAccount          State = "new_account"
	StateInvitedProvisioning State = "invited_provisioning"
	StateSelfProvisioning    State = "self_provisioning"
	StateProvisioned         State = "provisioned"
	StateFailed              State = "failed"
)

// Branch names which provisioning path produced a result
type Branch string

const (
	BranchInvited Branch = "invited"
	BranchSelf    Branch = "self"
	BranchNoop    Branch = "noop"
)

// Result is the organizational context a provisioned account lands in
type Result struct {
	OrganizationID int64  `json:"organization_id"`
	WorkspaceID    int64  `json:"workspace_id"`
	Branch         Branch `json:"branch"`
}

// InvitationStatus is derived from an invitation's timestamps at read
// time; nothing transitions rows in the background.
type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
	StatusExpired  InvitationStatus = "expired"
	StatusRevoked  InvitationStatus = "revoked"
)

// Invitation invites an email address into an organization, optionally
// carrying the role to grant on acceptance.
type Invitation struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	OrganizationID int64      `json:"organization_id"`
	RoleID         *int64     `json:"role_id,omitempty"`
	InvitedBy      *int64     `json:"invited_by,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy     *int64     `json:"accepted_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Status derives the invitation's lifecycle state at the given instant
func (i *Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.DeletedAt != nil:
		return StatusRevoked
	case i.AcceptedAt != nil:
		return StatusAccepted
	case now.After(i.ExpiresAt):
		return StatusExpired
	default:
		return StatusPending
	}
}
