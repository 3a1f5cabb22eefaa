package authz

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Handlers provides HTTP handlers for role, permission and assignment
// management plus the permission check endpoint.
type Handlers struct {
	registry    *Registry
	assignments *AssignmentStore
	evaluator   *Evaluator
	cache       DecisionCache
	metrics     *observability.Metrics
}

// NewHandlers creates new authorization handlers. cache may be nil.
func NewHandlers(registry *Registry, assignments *AssignmentStore, evaluator *Evaluator, cache DecisionCache, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		registry:    registry,
		assignments: assignments,
		evaluator:   evaluator,
		cache:       cache,
		metrics:     metrics,
	}
}

// RegisterRoutes registers all authorization routes. The router is
// expected to already carry the authentication middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router, boundary *EnforcementBoundary) {
	manageRoles := boundary.RequirePermission(ResourceOrganization, ActionManageRoles)
	member := boundary.RequireMembership()

	// Role management
	router.Handle("/orgs/{org_id}/roles", manageRoles(http.HandlerFunc(h.CreateRole))).Methods("POST")
	router.Handle("/orgs/{org_id}/roles", member(http.HandlerFunc(h.ListRoles))).Methods("GET")
	router.Handle("/orgs/{org_id}/roles/{role_id}", member(http.HandlerFunc(h.GetRole))).Methods("GET")
	router.Handle("/orgs/{org_id}/roles/{role_id}", manageRoles(http.HandlerFunc(h.UpdateRole))).Methods("PUT")
	router.Handle("/orgs/{org_id}/roles/{role_id}", manageRoles(http.HandlerFunc(h.DeleteRole))).Methods("DELETE")

	// Permission management
	router.Handle("/orgs/{org_id}/roles/{role_id}/permissions", manageRoles(http.HandlerFunc(h.DefinePermission))).Methods("POST")
	router.Handle("/orgs/{org_id}/roles/{role_id}/permissions", member(http.HandlerFunc(h.ListPermissions))).Methods("GET")

	// Assignments
	router.Handle("/orgs/{org_id}/assignments", manageRoles(http.HandlerFunc(h.Grant))).Methods("POST")
	router.Handle("/orgs/{org_id}/assignments", member(http.HandlerFunc(h.ListAssignments))).Methods("GET")
	router.Handle("/orgs/{org_id}/assignments/{assignment_id}", manageRoles(http.HandlerFunc(h.Revoke))).Methods("DELETE")

	// Permission checking
	router.HandleFunc("/orgs/{org_id}/check", h.Check).Methods("POST")
}

// CreateRole creates a custom organization-scoped role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
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

	role := &Role{
		Name:        req.Name,
		Description: req.Description,
		Scope:       OrganizationScope(orgID),
	}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		role.CreatedBy = &authCtx.UserID
	}

	if err := h.registry.CreateRole(r.Context(), role); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// ListRoles lists the roles visible to the organization
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	roles, err := h.registry.ListRoles(r.Context(), orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// GetRole retrieves a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	role, err := h.registry.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// UpdateRole updates a role's description
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role := &Role{ID: roleID, Description: req.Description}
	if err := h.registry.UpdateRole(r.Context(), role); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, role)
}

// DeleteRole soft-deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	if err := h.registry.DeleteRole(r.Context(), roleID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// DefinePermission attaches a permission to a role
func (h *Handlers) DefinePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	var req struct {
		Resource      ResourceKind `json:"resource"`
		Action        Action       `json:"action"`
		OrgWide       bool         `json:"org_wide"`
		WorkspaceWide bool         `json:"workspace_wide"`
		EntityTypeID  *int64       `json:"entity_type_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm := &Permission{
		RoleID:        roleID,
		Resource:      req.Resource,
		Action:        req.Action,
		OrgWide:       req.OrgWide,
		WorkspaceWide: req.WorkspaceWide,
		EntityTypeID:  req.EntityTypeID,
	}
	if err := h.registry.DefinePermission(r.Context(), perm); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, perm)
}

// ListPermissions lists a role's permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "role_id")
	if !ok {
		return
	}

	perms, err := h.registry.ListPermissions(r.Context(), roleID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms})
}

// Grant assigns a role to a principal. Granting an assignment that
// already exists succeeds without creating a duplicate.
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		PrincipalType PrincipalType `json:"principal_type"`
		PrincipalID   int64         `json:"principal_id"`
		RoleID        int64         `json:"role_id"`
		WorkspaceID   *int64        `json:"workspace_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	a := &Assignment{
		Principal:   Principal{Type: req.PrincipalType, ID: req.PrincipalID},
		OrgID:       orgID,
		WorkspaceID: req.WorkspaceID,
		RoleID:      req.RoleID,
	}
	if !a.Principal.Valid() {
		httputil.WriteBadRequest(w, "invalid principal")
		return
	}
	if authCtx := middleware.GetAuthContext(r); authCtx != nil {
		a.GrantedBy = &authCtx.UserID
	}

	created, err := h.assignments.Grant(r.Context(), a)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		result := "existing"
		if created {
			result = "created"
		}
		h.metrics.GrantsTotal.WithLabelValues(result).Inc()
	}
	if h.cache != nil {
		h.cache.InvalidatePrincipal(r.Context(), a.Principal)
	}

	if created {
		httputil.WriteCreated(w, a)
		return
	}
	httputil.WriteSuccess(w, a)
}

// ListAssignments lists a principal's assignments in the organization
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	principalType := PrincipalType(httputil.ParseQueryString(r, "principal_type", string(PrincipalUser)))
	principalID, err := httputil.ParseQueryInt64(r, "principal_id")
	if err != nil || principalID == nil {
		httputil.WriteBadRequest(w, "principal_id query parameter is required")
		return
	}

	principal := Principal{Type: principalType, ID: *principalID}
	if !principal.Valid() {
		httputil.WriteBadRequest(w, "invalid principal")
		return
	}

	assignments, err := h.assignments.ListAssignments(r.Context(), principal, orgID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

// Revoke removes an assignment
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	assignmentID, ok := httputil.ParsePathInt64OrError(w, r, "assignment_id")
	if !ok {
		return
	}

	if err := h.assignments.Revoke(r.Context(), assignmentID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RevokesTotal.Inc()
	}

	httputil.WriteNoContent(w)
}

// Check evaluates a permission query for the authenticated user and
// returns the boolean outcome. Evaluation errors are not distinguished
// from denials in the response body.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	var req struct {
		Resource     ResourceKind `json:"resource"`
		Action       Action       `json:"action"`
		WorkspaceID  *int64       `json:"workspace_id"`
		EntityTypeID *int64       `json:"entity_type_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	q := Query{
		Principal:    UserPrincipal(authCtx.UserID),
		Resource:     req.Resource,
		Action:       req.Action,
		OrgID:        orgID,
		WorkspaceID:  req.WorkspaceID,
		EntityTypeID: req.EntityTypeID,
	}

	allowed, err := h.evaluator.Evaluate(r.Context(), q)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"allowed": allowed})
}
