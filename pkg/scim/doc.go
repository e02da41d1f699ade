// Package scim defines the SCIM 2.0 wire payloads sent to remote
// provisioning endpoints, the builders that shape domain entities into
// those payloads, and the group URN convention used as the stable
// external identifier for roles.
package scim
