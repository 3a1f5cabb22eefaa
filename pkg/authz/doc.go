// Package authz is the authorization core: the role and permission
// registry, the assignment store, the membership validator and the
// permission evaluation engine, plus the HTTP enforcement boundary
// that ties them onto guarded routes.
//
// # Model
//
// A principal (a user or a team) holds role assignments inside an
// organization. A role bundles permissions; each permission grants one
// action on one resource kind at exactly one scope: organization-wide,
// workspace-wide, entity-type-specific, or unscoped. An assignment may
// further pin a role to a single workspace, in which case its
// workspace-wide permissions apply only there.
//
// Every decision starts with the membership hard gate: a user with no
// live membership in the organization is denied regardless of any
// assignments that may still reference them. Past the gate, the user's
// effective principal set is the user plus the organization's live
// teams they belong to, and one matching permission across that set is
// enough to allow.
//
// # Lifecycle
//
// Roles, assignments and memberships are soft-deleted; revocation and
// removal never destroy the audit trail. Grants are idempotent: a
// duplicate grant reports the existing assignment instead of failing.
package authz
