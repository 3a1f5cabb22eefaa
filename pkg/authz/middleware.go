package authz

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// EnforcementBoundary adapts the evaluator onto the HTTP surface. It is
// the only place request handling and permission evaluation meet: route
// variables supply the organization, workspace and entity-type context,
// the authenticated user supplies the principal, and the guarded route
// declares the resource kind and action it requires.
type EnforcementBoundary struct {
	evaluator *Evaluator
	logger    *observability.Logger
}

// NewEnforcementBoundary creates a new enforcement boundary around the
// given evaluator.
func NewEnforcementBoundary(evaluator *Evaluator, logger *observability.Logger) *EnforcementBoundary {
	return &EnforcementBoundary{evaluator: evaluator, logger: logger}
}

// RequirePermission guards a route with a permission requirement. The
// route must carry an {org_id} variable; {workspace_id} and
// {entity_type_id} variables qualify the query when present. Requests
// without an authenticated user are rejected before evaluation.
func (b *EnforcementBoundary) RequirePermission(resource ResourceKind, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := middleware.GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			vars := mux.Vars(r)
			orgID, err := strconv.ParseInt(vars["org_id"], 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "invalid organization id")
				return
			}

			q := Query{
				Principal: UserPrincipal(authCtx.UserID),
				Resource:  resource,
				Action:    action,
				OrgID:     orgID,
			}
			if id, ok := pathInt64(vars, "workspace_id"); ok {
				q.WorkspaceID = &id
			}
			if id, ok := pathInt64(vars, "entity_type_id"); ok {
				q.EntityTypeID = &id
			}

			allowed, err := b.evaluator.Evaluate(r.Context(), q)
			if err != nil {
				b.logger.WithError(err).Error("permission evaluation failed")
				httputil.WriteInternalError(w, err)
				return
			}

			if !allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireMembership guards a route with the membership gate alone, for
// surfaces any member may see regardless of role.
func (b *EnforcementBoundary) RequireMembership() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := middleware.GetAuthContext(r)
			if authCtx == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			orgID, err := strconv.ParseInt(mux.Vars(r)["org_id"], 10, 64)
			if err != nil {
				httputil.WriteBadRequest(w, "invalid organization id")
				return
			}

			member, err := b.evaluator.IsMember(r.Context(), authCtx.UserID, orgID)
			if err != nil {
				b.logger.WithError(err).Error("membership check failed")
				httputil.WriteInternalError(w, err)
				return
			}
			if !member {
				httputil.WriteForbidden(w, "not a member of this organization")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func pathInt64(vars map[string]string, name string) (int64, bool) {
	raw, ok := vars[name]
	if !ok || raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
