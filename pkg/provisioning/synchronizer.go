package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fedid/guestsync/pkg/access"
	"github.com/fedid/guestsync/pkg/scim"
)

// Synchronizer computes the minimal set of remote operations for a
// user/role mutation and drives them through the delivery channel.
// Callers serialize mutations to one user's role set; the synchronizer
// itself holds no locks.
type Synchronizer struct {
	directory Directory
	channel   Deliverer
	urnPrefix string
	log       *logrus.Entry
}

// NewSynchronizer creates a new Synchronizer. urnPrefix heads every
// group URN (e.g. "urn:collab:group").
func NewSynchronizer(directory Directory, channel Deliverer, urnPrefix string, log *logrus.Entry) *Synchronizer {
	return &Synchronizer{
		directory: directory,
		channel:   channel,
		urnPrefix: urnPrefix,
		log:       log,
	}
}

// appGroup is one user's memberships under a single application.
type appGroup struct {
	app         *access.Application
	memberships []*access.UserRole
}

// groupByApplication buckets provisioning-enabled memberships per
// application, preserving first-seen order so call sequences are
// deterministic.
func groupByApplication(memberships []*access.UserRole) []*appGroup {
	var groups []*appGroup
	index := make(map[int64]*appGroup)
	for _, ur := range memberships {
		if ur.Role == nil || ur.Role.Application == nil || !ur.Role.Application.ProvisioningEnabled() {
			continue
		}
		app := ur.Role.Application
		group, ok := index[app.ID]
		if !ok {
			group = &appGroup{app: app}
			index[app.ID] = group
			groups = append(groups, group)
		}
		group.memberships = append(group.memberships, ur)
	}
	return groups
}

// sharedRemoteID returns the remote member identifier already assigned
// to any membership of the group. All memberships of one user under one
// application share it.
func sharedRemoteID(memberships []*access.UserRole) string {
	for _, ur := range memberships {
		if ur.RemoteMemberID != "" {
			return ur.RemoteMemberID
		}
	}
	return ""
}

func membershipIDs(memberships []*access.UserRole) []int64 {
	ids := make([]int64, 0, len(memberships))
	for _, ur := range memberships {
		ids = append(ids, ur.ID)
	}
	return ids
}

func (s *Synchronizer) userURI(app *access.Application, remoteID string) string {
	uri := strings.TrimRight(app.EndpointURL, "/") + "/Users"
	if remoteID != "" {
		uri += "/" + remoteID
	}
	return uri
}

func (s *Synchronizer) groupURI(app *access.Application, remoteID string) string {
	uri := strings.TrimRight(app.EndpointURL, "/") + "/Groups"
	if remoteID != "" {
		uri += "/" + remoteID
	}
	return uri
}

func (s *Synchronizer) groupURN(role *access.Role) string {
	app := role.Application
	return scim.BuildGroupURN(s.urnPrefix, app.Institution.HomeDomain, app.Name, role.Name)
}

// NewUserRequest provisions a remote account for the user on every
// application their memberships touch. Within one application all
// memberships converge on a single remote account: an existing sibling
// identifier is reused without a remote call, otherwise exactly one
// create is issued and its identifier assigned to the whole group.
func (s *Synchronizer) NewUserRequest(ctx context.Context, user *access.User) error {
	for _, group := range groupByApplication(user.Roles) {
		if err := s.provisionUserGroup(ctx, user, group); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) provisionUserGroup(ctx context.Context, user *access.User, group *appGroup) error {
	if existing := sharedRemoteID(group.memberships); existing != "" {
		// The remote account already exists; converge local state only.
		var missing []int64
		for _, ur := range group.memberships {
			if ur.RemoteMemberID == "" {
				missing = append(missing, ur.ID)
			}
			ur.RemoteMemberID = existing
		}
		if len(missing) == 0 {
			return nil
		}
		return s.directory.SetRemoteMemberID(ctx, missing, existing)
	}

	body, err := json.Marshal(scim.BuildUserRequest(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user payload: %w", err)
	}

	// Under email-hook no remote system replies, so the identifier is
	// fabricated locally. HTTP mode always lets the service provider
	// assign it from the create response.
	var preassigned string
	if group.app.Mode == access.ProvisioningEmailHook {
		preassigned = uuid.NewString()
	}

	returned, err := s.channel.Deliver(ctx, group.app, APIUsers, OpCreate, http.MethodPost, s.userURI(group.app, ""), body, "")
	if err != nil {
		return err
	}

	remoteID := returned
	if remoteID == "" {
		remoteID = preassigned
	}
	if remoteID == "" {
		// Captured webhook failure: no identifier produced. A later
		// update self-heals by falling back to create.
		return nil
	}

	for _, ur := range group.memberships {
		ur.RemoteMemberID = remoteID
	}
	s.log.WithFields(logrus.Fields{
		"user":        user.PrincipalName,
		"application": group.app.Name,
		"remote_id":   remoteID,
	}).Info("remote account provisioned")
	return s.directory.SetRemoteMemberID(ctx, membershipIDs(group.memberships), remoteID)
}

// UpdateUserRequest pushes the user's current profile to every
// application that already knows them. A group without a remote
// identifier falls back to the create flow instead; the original update
// is abandoned, not retried afterward.
func (s *Synchronizer) UpdateUserRequest(ctx context.Context, user *access.User) error {
	for _, group := range groupByApplication(user.Roles) {
		remoteID := sharedRemoteID(group.memberships)
		if remoteID == "" {
			if err := s.provisionUserGroup(ctx, user, group); err != nil {
				return err
			}
			continue
		}

		body, err := json.Marshal(scim.BuildUserRequestWithID(user, remoteID))
		if err != nil {
			return fmt.Errorf("failed to marshal user payload: %w", err)
		}
		_, err = s.channel.Deliver(ctx, group.app, APIUsers, OpUpdate, group.app.UpdateVerb(), s.userURI(group.app, remoteID), body, remoteID)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteUserRequest removes the user remotely: first every remote group
// drops the member, then each application's account is deleted. Group
// membership converges even when a subsequent account delete fails.
func (s *Synchronizer) DeleteUserRequest(ctx context.Context, user *access.User) error {
	return s.deleteMemberships(ctx, user, user.Roles)
}

// DeleteUserByInstitutionRequest is DeleteUserRequest scoped to the
// memberships whose application belongs to the given institution;
// unrelated applications are left untouched.
func (s *Synchronizer) DeleteUserByInstitutionRequest(ctx context.Context, user *access.User, institutionID int64) error {
	var scoped []*access.UserRole
	for _, ur := range user.Roles {
		if ur.Role != nil && ur.Role.Application != nil && ur.Role.Application.InstitutionID == institutionID {
			scoped = append(scoped, ur)
		}
	}
	return s.deleteMemberships(ctx, user, scoped)
}

func (s *Synchronizer) deleteMemberships(ctx context.Context, user *access.User, memberships []*access.UserRole) error {
	groups := groupByApplication(memberships)

	// Phase one: remove the member from every remote group. The whole
	// removal set is excluded from full-replace recomputations so
	// rows not yet deleted locally do not reappear.
	var removing []*access.UserRole
	for _, group := range groups {
		removing = append(removing, group.memberships...)
	}
	for _, group := range groups {
		for _, ur := range group.memberships {
			if err := s.UpdateRoleRequest(ctx, ur, scim.PatchRemove, removing); err != nil {
				return err
			}
		}
	}

	// Phase two: delete the accounts.
	for _, group := range groups {
		remoteID := sharedRemoteID(group.memberships)
		if remoteID == "" {
			continue
		}
		body, err := json.Marshal(scim.BuildUserRequestWithID(user, remoteID))
		if err != nil {
			return fmt.Errorf("failed to marshal user payload: %w", err)
		}
		_, err = s.channel.Deliver(ctx, group.app, APIUsers, OpDelete, http.MethodDelete, s.userURI(group.app, remoteID), body, remoteID)
		if err != nil {
			return err
		}
	}
	return nil
}

// NewRoleRequest creates the role's remote group via a full-replace
// payload holding whatever members currently exist, minus the excluded
// memberships (used when the create fires mid-flight from a membership
// change). Under email-hook the group identifier is fabricated before
// delivery; HTTP mode takes it from the create response.
func (s *Synchronizer) NewRoleRequest(ctx context.Context, role *access.Role, excluded []*access.UserRole) error {
	app := role.Application
	if app == nil || !app.ProvisioningEnabled() {
		return nil
	}

	if app.Mode == access.ProvisioningEmailHook && role.RemoteGroupID == "" {
		remoteID := uuid.NewString()
		if err := s.directory.SetRemoteGroupID(ctx, role.ID, remoteID); err != nil {
			return err
		}
		role.RemoteGroupID = remoteID
	}

	memberships, err := s.roleMembers(ctx, role, excluded)
	if err != nil {
		return err
	}
	body, err := json.Marshal(scim.BuildGroupRequest(s.groupURN(role), role, memberships))
	if err != nil {
		return fmt.Errorf("failed to marshal group payload: %w", err)
	}

	returned, err := s.channel.Deliver(ctx, app, APIGroups, OpCreate, http.MethodPost, s.groupURI(app, ""), body, role.RemoteGroupID)
	if err != nil {
		return err
	}
	if returned != "" && role.RemoteGroupID == "" {
		role.RemoteGroupID = returned
		return s.directory.SetRemoteGroupID(ctx, role.ID, returned)
	}
	return nil
}

// UpdateRoleRequest pushes one membership change on a role. A role
// without a remote group yet falls back to NewRoleRequest, after which
// the original update is abandoned. Otherwise the application's update
// mode decides between a full member-list replacement and a single
// add/remove patch for the triggering membership.
func (s *Synchronizer) UpdateRoleRequest(ctx context.Context, userRole *access.UserRole, op scim.PatchOperationType, excluded []*access.UserRole) error {
	role := userRole.Role
	app := role.Application
	if app == nil || !app.ProvisioningEnabled() {
		return nil
	}

	if role.RemoteGroupID == "" {
		if op == scim.PatchRemove {
			excluded = append(excluded, userRole)
		}
		return s.NewRoleRequest(ctx, role, excluded)
	}

	if app.UpdateMode == access.UpdateFullReplace {
		if op == scim.PatchRemove {
			excluded = append(excluded, userRole)
		}
		memberships, err := s.roleMembers(ctx, role, excluded)
		if err != nil {
			return err
		}
		body, err := json.Marshal(scim.BuildGroupRequest(s.groupURN(role), role, memberships))
		if err != nil {
			return fmt.Errorf("failed to marshal group payload: %w", err)
		}
		_, err = s.channel.Deliver(ctx, app, APIGroups, OpUpdate, app.UpdateVerb(), s.groupURI(app, role.RemoteGroupID), body, role.RemoteGroupID)
		return err
	}

	// Incremental: one patch naming exactly the triggering membership.
	if userRole.RemoteMemberID == "" {
		// Nothing to add or remove remotely without an identifier.
		return nil
	}
	member := scim.Member{Value: userRole.RemoteMemberID}
	if userRole.User != nil {
		member.Display = userRole.User.DisplayName()
	}
	body, err := json.Marshal(scim.BuildGroupPatchRequest(role.RemoteGroupID, op, []scim.Member{member}))
	if err != nil {
		return fmt.Errorf("failed to marshal group patch payload: %w", err)
	}
	_, err = s.channel.Deliver(ctx, app, APIGroups, OpUpdate, app.UpdateVerb(), s.groupURI(app, role.RemoteGroupID), body, role.RemoteGroupID)
	return err
}

// DeleteRoleRequest deletes the role's remote group. A role never
// provisioned remotely needs no call.
func (s *Synchronizer) DeleteRoleRequest(ctx context.Context, role *access.Role) error {
	app := role.Application
	if app == nil || !app.ProvisioningEnabled() || role.RemoteGroupID == "" {
		return nil
	}

	payload := scim.GroupRequest{
		Schemas:     []string{scim.GroupSchema},
		ID:          role.RemoteGroupID,
		ExternalID:  s.groupURN(role),
		DisplayName: role.Name,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal group payload: %w", err)
	}
	_, err = s.channel.Deliver(ctx, app, APIGroups, OpDelete, http.MethodDelete, s.groupURI(app, role.RemoteGroupID), body, role.RemoteGroupID)
	return err
}

// roleMembers loads a role's current memberships minus the excluded
// ones (matched by membership id).
func (s *Synchronizer) roleMembers(ctx context.Context, role *access.Role, excluded []*access.UserRole) ([]*access.UserRole, error) {
	memberships, err := s.directory.RoleMemberships(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	if len(excluded) == 0 {
		return memberships, nil
	}
	skip := make(map[int64]bool, len(excluded))
	for _, ur := range excluded {
		skip[ur.ID] = true
	}
	kept := memberships[:0]
	for _, ur := range memberships {
		if !skip[ur.ID] {
			kept = append(kept, ur)
		}
	}
	return kept, nil
}
