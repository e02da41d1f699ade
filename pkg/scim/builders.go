package scim

import (
	"github.com/fedid/guestsync/pkg/access"
)

// BuildUserRequest shapes a user into the create payload: external id
// and username are the principal's stable login identifier, with a
// structured name and a single email.
func BuildUserRequest(user *access.User) UserRequest {
	return UserRequest{
		Schemas:    []string{UserSchema},
		ExternalID: user.PrincipalName,
		UserName:   user.PrincipalName,
		Name: Name{
			FamilyName: user.FamilyName,
			GivenName:  user.GivenName,
		},
		DisplayName: user.DisplayName(),
		Emails:      []Email{{Value: user.Email}},
	}
}

// BuildUserRequestWithID shapes a user into the update/delete payload,
// which additionally carries the remote member identifier.
func BuildUserRequestWithID(user *access.User, remoteID string) UserRequest {
	req := BuildUserRequest(user)
	req.ID = remoteID
	return req
}

// BuildMembers turns memberships into a group's member list. Members
// with a blank remote identifier are excluded, and the list is
// de-duplicated by identifier value: two memberships resolving to the
// same remote account yield one entry.
func BuildMembers(memberships []*access.UserRole) []Member {
	members := make([]Member, 0, len(memberships))
	seen := make(map[string]bool, len(memberships))
	for _, ur := range memberships {
		if ur.RemoteMemberID == "" || seen[ur.RemoteMemberID] {
			continue
		}
		seen[ur.RemoteMemberID] = true
		member := Member{Value: ur.RemoteMemberID}
		if ur.User != nil {
			member.Display = ur.User.DisplayName()
		}
		members = append(members, member)
	}
	return members
}

// BuildGroupRequest shapes a role and its membership into the
// full-replace group payload. The group URN goes into externalId; the
// remote group identifier, when already assigned, into id.
func BuildGroupRequest(urn string, role *access.Role, memberships []*access.UserRole) GroupRequest {
	return GroupRequest{
		Schemas:     []string{GroupSchema},
		ID:          role.RemoteGroupID,
		ExternalID:  urn,
		DisplayName: role.Name,
		Members:     BuildMembers(memberships),
	}
}

// BuildGroupPatchRequest shapes a single membership change into the
// incremental patch payload with exactly one add or remove operation.
func BuildGroupPatchRequest(remoteGroupID string, op PatchOperationType, members []Member) GroupPatchRequest {
	return GroupPatchRequest{
		Schemas: []string{PatchOpSchema},
		ID:      remoteGroupID,
		Operations: []Operation{
			{Op: op, Path: "members", Value: members},
		},
	}
}
