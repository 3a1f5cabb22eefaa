// Package orgs manages the tenancy structures authorization is scoped
// to: organizations, their workspaces, org memberships and teams.
//
// Organizations, workspaces and teams are soft-deleted; memberships
// likewise, so removal revokes access without destroying history. User
// identities live in an external registry and are referenced by id
// only, with no foreign keys onto a users table.
package orgs
