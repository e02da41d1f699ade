// Package access holds the domain model for federated guest access:
// institutions, the applications they register, the roles applications
// define, users and their role memberships. It also provides the
// PostgreSQL store the rest of the system reads and writes through.
package access
