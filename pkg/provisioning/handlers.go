package provisioning

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

// Handlers provides HTTP handlers for the invitation surface and the
// account-creation hook.
type Handlers struct {
	provisioner *Provisioner
	invitations *InvitationStore
}

// NewHandlers creates new provisioning handlers
func NewHandlers(provisioner *Provisioner, invitations *InvitationStore) *Handlers {
	return &Handlers{provisioner: provisioner, invitations: invitations}
}

// RegisterRoutes registers all provisioning routes. The router is
// expected to already carry the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router, boundary *authz.EnforcementBoundary) {
	manageMembers := boundary.RequirePermission(authz.ResourceOrganization, authz.ActionManageMembers)

	router.HandleFunc("/accounts/provision", h.ProvisionAccount).Methods("POST")

	router.Handle("/orgs/{org_id}/invitations", manageMembers(http.HandlerFunc(h.SendInvitation))).Methods("POST")
	router.Handle("/orgs/{org_id}/invitations", manageMembers(http.HandlerFunc(h.ListInvitations))).Methods("GET")
	router.Handle("/orgs/{org_id}/invitations/{invitation_id}", manageMembers(http.HandlerFunc(h.RevokeInvitation))).Methods("DELETE")

	router.HandleFunc("/invitations/{invitation_id}/accept", h.AcceptInvitation).Methods("POST")
}

// ProvisionAccount runs the provisioning state machine for a new
// account. Called once per account-creation event by the identity
// layer; retries are safe.
func (h *Handlers) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		Email  string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.provisioner.ProvisionOnAccountCreated(r.Context(), req.UserID, req.Email)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, result)
}

// SendInvitation creates a pending invitation into an organization
func (h *Handlers) SendInvitation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Email    string `json:"email"`
		RoleID   *int64 `json:"role_id"`
		TTLHours int    `json:"ttl_hours"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv := &Invitation{
		Email:          req.Email,
		OrganizationID: orgID,
		RoleID:         req.RoleID,
	}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		inv.InvitedBy = &authCtx.UserID
	}

	if err := h.invitations.SendInvitation(r.Context(), inv, time.Duration(req.TTLHours)*time.Hour); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, inv)
}

// ListInvitations lists an organization's live invitations with their
// derived status.
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	invitations, err := h.invitations.ListInvitations(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	now := time.Now()
	type invitationView struct {
		Invitation
		Status InvitationStatus `json:"status"`
	}
	views := make([]invitationView, 0, len(invitations))
	for _, inv := range invitations {
		views = append(views, invitationView{Invitation: inv, Status: inv.Status(now)})
	}

	httputil.WriteSuccess(w, map[string]interface{}{"invitations": views})
}

// AcceptInvitation marks an invitation accepted for the authenticated
// user. Idempotent.
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	inv, err := h.invitations.AcceptInvitation(r.Context(), invitationID, authCtx.UserID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, inv)
}

// RevokeInvitation revokes an invitation and everything it granted
func (h *Handlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.invitations.RevokeInvitation(r.Context(), invitationID, orgID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
