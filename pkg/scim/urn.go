package scim

import (
	"fmt"
	"strings"
)

// BuildGroupURN derives the stable external identifier for a role from
// the institution home domain, application name and role name. All
// segments are lower-cased and joined with colons.
func BuildGroupURN(prefix, institutionDomain, applicationName, roleName string) string {
	return strings.ToLower(strings.Join([]string{prefix, institutionDomain, applicationName, roleName}, ":"))
}

// ParseGroupURN splits a group URN and returns the institution home
// domain, application name and role name. The prefix may itself contain
// colons, so the three trailing segments are taken positionally and
// returned raw.
func ParseGroupURN(urn string) (institutionDomain, applicationName, roleName string, err error) {
	parts := strings.Split(urn, ":")
	if len(parts) < 4 {
		return "", "", "", fmt.Errorf("invalid group urn %q: expected at least 4 segments, got %d", urn, len(parts))
	}
	n := len(parts)
	return parts[n-3], parts[n-2], parts[n-1], nil
}
