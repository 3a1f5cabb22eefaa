package orgs

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
)

// Handlers provides HTTP handlers for organization, workspace, team
// and membership management.
type Handlers struct {
	service *Service
	cache   authz.DecisionCache
}

// NewHandlers creates new organization handlers. cache may be nil.
func NewHandlers(service *Service, cache authz.DecisionCache) *Handlers {
	return &Handlers{service: service, cache: cache}
}

// RegisterRoutes registers all organization routes. The router is
// expected to already carry the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router, boundary *authz.EnforcementBoundary) {
	member := boundary.RequireMembership()
	deleteOrg := boundary.RequirePermission(authz.ResourceOrganization, authz.ActionDelete)
	manageMembers := boundary.RequirePermission(authz.ResourceOrganization, authz.ActionManageMembers)
	manageTeams := boundary.RequirePermission(authz.ResourceOrganization, authz.ActionManageTeams)
	createWorkspace := boundary.RequirePermission(authz.ResourceWorkspace, authz.ActionCreate)
	deleteWorkspace := boundary.RequirePermission(authz.ResourceWorkspace, authz.ActionDelete)

	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.Handle("/orgs/{org_id}", member(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	router.Handle("/orgs/{org_id}", deleteOrg(http.HandlerFunc(h.DeleteOrganization))).Methods("DELETE")

	router.Handle("/orgs/{org_id}/workspaces", createWorkspace(http.HandlerFunc(h.CreateWorkspace))).Methods("POST")
	router.Handle("/orgs/{org_id}/workspaces", member(http.HandlerFunc(h.ListWorkspaces))).Methods("GET")
	router.Handle("/orgs/{org_id}/workspaces/{workspace_id}", member(http.HandlerFunc(h.GetWorkspace))).Methods("GET")
	router.Handle("/orgs/{org_id}/workspaces/{workspace_id}", deleteWorkspace(http.HandlerFunc(h.DeleteWorkspace))).Methods("DELETE")

	router.Handle("/orgs/{org_id}/members", manageMembers(http.HandlerFunc(h.AddMember))).Methods("POST")
	router.Handle("/orgs/{org_id}/members", member(http.HandlerFunc(h.ListMembers))).Methods("GET")
	router.Handle("/orgs/{org_id}/members/{user_id}", manageMembers(http.HandlerFunc(h.RemoveMember))).Methods("DELETE")

	router.Handle("/orgs/{org_id}/teams", manageTeams(http.HandlerFunc(h.CreateTeam))).Methods("POST")
	router.Handle("/orgs/{org_id}/teams", member(http.HandlerFunc(h.ListTeams))).Methods("GET")
	router.Handle("/orgs/{org_id}/teams/{team_id}", manageTeams(http.HandlerFunc(h.DeleteTeam))).Methods("DELETE")
	router.Handle("/orgs/{org_id}/teams/{team_id}/members", manageTeams(http.HandlerFunc(h.AddTeamMember))).Methods("POST")
	router.Handle("/orgs/{org_id}/teams/{team_id}/members", member(http.HandlerFunc(h.ListTeamMembers))).Methods("GET")
	router.Handle("/orgs/{org_id}/teams/{team_id}/members/{user_id}", manageTeams(http.HandlerFunc(h.RemoveTeamMember))).Methods("DELETE")
}

// CreateOrganization creates an organization owned by the caller. The
// caller becomes a member and organization owner in one transaction at
// the provisioning layer; this endpoint covers the bare create for
// administrative use.
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org := &Organization{Name: req.Name, CreatedBy: &authCtx.UserID}
	if err := h.service.CreateOrganization(r.Context(), org); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, org)
}

// GetOrganization retrieves an organization
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	org, err := h.service.GetOrganization(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, org)
}

// DeleteOrganization soft-deletes an organization
func (h *Handlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	if err := h.service.DeleteOrganization(r.Context(), orgID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// CreateWorkspace creates a workspace in an organization
func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ws := &Workspace{OrganizationID: orgID, Name: req.Name, Description: req.Description}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		ws.CreatedBy = &authCtx.UserID
	}

	if err := h.service.CreateWorkspace(r.Context(), ws); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, ws)
}

// ListWorkspaces lists an organization's workspaces
func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	workspaces, err := h.service.ListWorkspaces(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"workspaces": workspaces})
}

// GetWorkspace retrieves a workspace
func (h *Handlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "workspace_id")
	if !ok {
		return
	}

	ws, err := h.service.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, ws)
}

// DeleteWorkspace soft-deletes a workspace
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := httputil.ParsePathInt64OrError(w, r, "workspace_id")
	if !ok {
		return
	}

	if err := h.service.DeleteWorkspace(r.Context(), workspaceID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AddMember adds a user to an organization
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	m := &Membership{UserID: req.UserID, OrganizationID: orgID}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		m.AddedBy = &authCtx.UserID
	}

	created, err := h.service.AddMember(r.Context(), m)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.invalidateUser(r, req.UserID)

	if created {
		httputil.WriteCreated(w, m)
		return
	}
	httputil.WriteSuccess(w, m)
}

// ListMembers lists an organization's members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	members, err := h.service.ListMembers(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// RemoveMember removes a user from an organization
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveMember(r.Context(), userID, orgID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.invalidateUser(r, userID)
	httputil.WriteNoContent(w)
}

// CreateTeam creates a team
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	team := &Team{OrganizationID: orgID, Name: req.Name, Description: req.Description}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		team.CreatedBy = &authCtx.UserID
	}

	if err := h.service.CreateTeam(r.Context(), team); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, team)
}

// ListTeams lists an organization's teams
func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	teams, err := h.service.ListTeams(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"teams": teams})
}

// DeleteTeam soft-deletes a team
func (h *Handlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	if err := h.service.DeleteTeam(r.Context(), teamID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AddTeamMember adds a user to a team
func (h *Handlers) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	var req struct {
		UserID int64 `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	tm := &TeamMember{TeamID: teamID, UserID: req.UserID}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		tm.AddedBy = &authCtx.UserID
	}

	if err := h.service.AddTeamMember(r.Context(), tm); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.invalidateUser(r, req.UserID)
	httputil.WriteCreated(w, tm)
}

// ListTeamMembers lists a team's members
func (h *Handlers) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	members, err := h.service.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

// RemoveTeamMember removes a user from a team
func (h *Handlers) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	h.invalidateUser(r, userID)
	httputil.WriteNoContent(w)
}

func (h *Handlers) invalidateUser(r *http.Request, userID int64) {
	if h.cache != nil {
		h.cache.InvalidatePrincipal(r.Context(), authz.UserPrincipal(userID))
	}
}
