// Package provisioning turns new accounts into usable tenants.
//
// The invitation ledger is the single source of truth for whether an
// account was invited. On account creation the provisioner consults it
// and runs one of two transactional branches: the invited branch lands
// the user in the inviting organization, the self branch stands up a
// personal organization. Invited failures fall back to self; self
// failures are fatal and surface to the caller.
//
// Invitation expiry is derived from timestamps at read time. The
// janitor only enforces retention, sweeping invitations that expired
// long ago without ever being accepted.
package provisioning
