package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedid/guestsync/pkg/access"
	"github.com/fedid/guestsync/pkg/mail"
	"github.com/fedid/guestsync/pkg/scim"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// delivery records one call into the fake channel.
type delivery struct {
	app      *access.Application
	api      APIKind
	op       OperationType
	method   string
	uri      string
	body     []byte
	remoteID string
}

// fakeChannel implements Deliverer, recording deliveries and returning
// a configured identifier for creates.
type fakeChannel struct {
	deliveries []delivery
	createID   string
	err        error
	suppressed []bool
}

func (c *fakeChannel) Deliver(ctx context.Context, app *access.Application, api APIKind, op OperationType, method, uri string, body []byte, remoteID string) (string, error) {
	c.deliveries = append(c.deliveries, delivery{app: app, api: api, op: op, method: method, uri: uri, body: body, remoteID: remoteID})
	c.suppressed = append(c.suppressed, ReplaySuppressed(ctx))
	if c.err != nil {
		return "", c.err
	}
	if op == OpCreate {
		return c.createID, nil
	}
	return "", nil
}

type memberAssign struct {
	ids      []int64
	remoteID string
}

// fakeDirectory implements Directory from in-memory fixtures.
type fakeDirectory struct {
	apps         map[int64]*access.Application
	memberships  map[int64][]*access.UserRole
	users        map[string]*access.User
	roles        map[string]*access.Role
	memberWrites []memberAssign
	groupWrites  map[int64]string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		apps:        make(map[int64]*access.Application),
		memberships: make(map[int64][]*access.UserRole),
		users:       make(map[string]*access.User),
		roles:       make(map[string]*access.Role),
		groupWrites: make(map[int64]string),
	}
}

func (d *fakeDirectory) ApplicationByID(_ context.Context, id int64) (*access.Application, error) {
	app, ok := d.apps[id]
	if !ok {
		return nil, fmt.Errorf("application not found")
	}
	return app, nil
}

func (d *fakeDirectory) RoleMemberships(_ context.Context, roleID int64) ([]*access.UserRole, error) {
	return d.memberships[roleID], nil
}

func (d *fakeDirectory) UserByPrincipalName(_ context.Context, principalName string) (*access.User, error) {
	user, ok := d.users[principalName]
	if !ok {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

func (d *fakeDirectory) RoleByName(_ context.Context, institutionDomain, applicationName, roleName string) (*access.Role, error) {
	role, ok := d.roles[institutionDomain+"/"+applicationName+"/"+roleName]
	if !ok {
		return nil, fmt.Errorf("role not found")
	}
	return role, nil
}

func (d *fakeDirectory) SetRemoteMemberID(_ context.Context, userRoleIDs []int64, remoteID string) error {
	d.memberWrites = append(d.memberWrites, memberAssign{ids: userRoleIDs, remoteID: remoteID})
	return nil
}

func (d *fakeDirectory) SetRemoteGroupID(_ context.Context, roleID int64, remoteID string) error {
	d.groupWrites[roleID] = remoteID
	return nil
}

// fixture is one institution with a webhook application carrying two
// roles and a user holding both.
type fixture struct {
	directory *fakeDirectory
	channel   *fakeChannel
	sync      *Synchronizer
	app       *access.Application
	editors   *access.Role
	viewers   *access.Role
	user      *access.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inst := &access.Institution{ID: 1, Name: "example", HomeDomain: "example.edu"}
	app := &access.Application{
		ID: 1, InstitutionID: 1, Name: "wiki",
		Mode: access.ProvisioningWebhook, UpdateMode: access.UpdateFullReplace,
		EndpointURL:      "https://wiki.example.org/scim/v2",
		EndpointUsername: "sync", EndpointPassword: "secret",
		Institution: inst,
	}
	editors := &access.Role{ID: 10, ApplicationID: 1, Name: "editors", RemoteGroupID: "g-ed", Application: app}
	viewers := &access.Role{ID: 11, ApplicationID: 1, Name: "viewers", RemoteGroupID: "g-vw", Application: app}

	user := &access.User{ID: 7, PrincipalName: "jane@guest.example.org", Email: "jane@example.org", GivenName: "Jane", FamilyName: "Doe"}
	user.Roles = []*access.UserRole{
		{ID: 101, UserID: 7, RoleID: 10, User: user, Role: editors},
		{ID: 102, UserID: 7, RoleID: 11, User: user, Role: viewers},
	}

	directory := newFakeDirectory()
	directory.apps[app.ID] = app
	directory.users[user.PrincipalName] = user
	directory.roles["example.edu/wiki/editors"] = editors
	directory.memberships[editors.ID] = []*access.UserRole{user.Roles[0]}
	directory.memberships[viewers.ID] = []*access.UserRole{user.Roles[1]}

	channel := &fakeChannel{}
	return &fixture{
		directory: directory,
		channel:   channel,
		sync:      NewSynchronizer(directory, channel, "urn:collab:group", testLogEntry()),
		app:       app,
		editors:   editors,
		viewers:   viewers,
		user:      user,
	}
}

func TestNewUserRequest(t *testing.T) {
	t.Run("one create covers every role on the application", func(t *testing.T) {
		f := newFixture(t)
		f.channel.createID = "m-1"

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, APIUsers, d.api)
		assert.Equal(t, OpCreate, d.op)
		assert.Equal(t, "POST", d.method)
		assert.Equal(t, "https://wiki.example.org/scim/v2/Users", d.uri)

		assert.Equal(t, "m-1", f.user.Roles[0].RemoteMemberID)
		assert.Equal(t, "m-1", f.user.Roles[1].RemoteMemberID)
		require.Len(t, f.directory.memberWrites, 1)
		assert.ElementsMatch(t, []int64{101, 102}, f.directory.memberWrites[0].ids)
		assert.Equal(t, "m-1", f.directory.memberWrites[0].remoteID)
	})

	t.Run("sibling identifier is reused without a remote call", func(t *testing.T) {
		f := newFixture(t)
		f.user.Roles[0].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))

		assert.Empty(t, f.channel.deliveries)
		assert.Equal(t, "m-1", f.user.Roles[1].RemoteMemberID)
		require.Len(t, f.directory.memberWrites, 1)
		assert.Equal(t, []int64{102}, f.directory.memberWrites[0].ids)
	})

	t.Run("fully converged group writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.user.Roles[0].RemoteMemberID = "m-1"
		f.user.Roles[1].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))
		assert.Empty(t, f.channel.deliveries)
		assert.Empty(t, f.directory.memberWrites)
	})

	t.Run("disabled application is skipped", func(t *testing.T) {
		f := newFixture(t)
		f.app.Mode = access.ProvisioningDisabled

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))
		assert.Empty(t, f.channel.deliveries)
	})

	t.Run("email hook fabricates the identifier locally", func(t *testing.T) {
		f := newFixture(t)
		f.app.Mode = access.ProvisioningEmailHook
		f.app.EndpointURL = ""
		f.app.EmailHookAddress = "admin@example.edu"

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))

		require.Len(t, f.channel.deliveries, 1)
		remoteID := f.user.Roles[0].RemoteMemberID
		_, err := uuid.Parse(remoteID)
		assert.NoError(t, err)
		assert.Equal(t, remoteID, f.user.Roles[1].RemoteMemberID)
	})

	t.Run("captured create failure leaves memberships unassigned", func(t *testing.T) {
		f := newFixture(t)
		f.channel.createID = "" // captured failure: no identifier produced

		require.NoError(t, f.sync.NewUserRequest(context.Background(), f.user))

		require.Len(t, f.channel.deliveries, 1)
		assert.Empty(t, f.user.Roles[0].RemoteMemberID)
		assert.Empty(t, f.directory.memberWrites)
	})
}

func TestUpdateUserRequest(t *testing.T) {
	t.Run("known account gets a profile push", func(t *testing.T) {
		f := newFixture(t)
		f.user.Roles[0].RemoteMemberID = "m-1"
		f.user.Roles[1].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.UpdateUserRequest(context.Background(), f.user))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, OpUpdate, d.op)
		assert.Equal(t, "PUT", d.method)
		assert.Equal(t, "https://wiki.example.org/scim/v2/Users/m-1", d.uri)
		assert.Equal(t, "m-1", d.remoteID)

		var req scim.UserRequest
		require.NoError(t, json.Unmarshal(d.body, &req))
		assert.Equal(t, "m-1", req.ID)
	})

	t.Run("unknown account falls back to create", func(t *testing.T) {
		f := newFixture(t)
		f.channel.createID = "m-1"

		require.NoError(t, f.sync.UpdateUserRequest(context.Background(), f.user))

		require.Len(t, f.channel.deliveries, 1)
		assert.Equal(t, OpCreate, f.channel.deliveries[0].op)
		assert.Equal(t, "m-1", f.user.Roles[0].RemoteMemberID)
	})
}

func TestDeleteUserRequest(t *testing.T) {
	f := newFixture(t)
	john := &access.User{ID: 8, PrincipalName: "john@guest.example.org", GivenName: "John", FamilyName: "Smith"}
	other := &access.UserRole{ID: 103, UserID: 8, RoleID: 10, RemoteMemberID: "m-2", User: john, Role: f.editors}
	f.directory.memberships[f.editors.ID] = []*access.UserRole{f.user.Roles[0], other}
	f.user.Roles[0].RemoteMemberID = "m-1"
	f.user.Roles[1].RemoteMemberID = "m-1"

	require.NoError(t, f.sync.DeleteUserRequest(context.Background(), f.user))

	require.Len(t, f.channel.deliveries, 3)

	// Group membership converges strictly before the account delete.
	first, second, third := f.channel.deliveries[0], f.channel.deliveries[1], f.channel.deliveries[2]
	assert.Equal(t, APIGroups, first.api)
	assert.Equal(t, "https://wiki.example.org/scim/v2/Groups/g-ed", first.uri)
	assert.Equal(t, APIGroups, second.api)
	assert.Equal(t, "https://wiki.example.org/scim/v2/Groups/g-vw", second.uri)
	assert.Equal(t, APIUsers, third.api)
	assert.Equal(t, OpDelete, third.op)
	assert.Equal(t, "DELETE", third.method)
	assert.Equal(t, "https://wiki.example.org/scim/v2/Users/m-1", third.uri)

	// The recomputed member list drops the departing user but keeps
	// everyone else.
	var group scim.GroupRequest
	require.NoError(t, json.Unmarshal(first.body, &group))
	require.Len(t, group.Members, 1)
	assert.Equal(t, "m-2", group.Members[0].Value)

	require.NoError(t, json.Unmarshal(second.body, &group))
	assert.Empty(t, group.Members)

	// The delete body still carries the external id for later replay.
	var user scim.UserRequest
	require.NoError(t, json.Unmarshal(third.body, &user))
	assert.Equal(t, "m-1", user.ID)
	assert.Equal(t, "jane@guest.example.org", user.ExternalID)
}

func TestDeleteUserByInstitutionRequest(t *testing.T) {
	f := newFixture(t)
	f.user.Roles[0].RemoteMemberID = "m-1"
	f.user.Roles[1].RemoteMemberID = "m-1"

	otherInst := &access.Institution{ID: 2, Name: "other", HomeDomain: "other.edu"}
	otherApp := &access.Application{
		ID: 2, InstitutionID: 2, Name: "lms",
		Mode: access.ProvisioningWebhook, UpdateMode: access.UpdateFullReplace,
		EndpointURL: "https://lms.other.edu/scim", EndpointUsername: "sync", EndpointPassword: "secret",
		Institution: otherInst,
	}
	otherRole := &access.Role{ID: 20, ApplicationID: 2, Name: "students", RemoteGroupID: "g-st", Application: otherApp}
	f.user.Roles = append(f.user.Roles, &access.UserRole{ID: 110, UserID: 7, RoleID: 20, RemoteMemberID: "m-x", User: f.user, Role: otherRole})

	require.NoError(t, f.sync.DeleteUserByInstitutionRequest(context.Background(), f.user, 1))

	for _, d := range f.channel.deliveries {
		assert.Equal(t, f.app, d.app, "only the scoped institution's application may be touched")
	}
}

func TestNewRoleRequest(t *testing.T) {
	t.Run("webhook create records the returned group id", func(t *testing.T) {
		f := newFixture(t)
		f.editors.RemoteGroupID = ""
		f.channel.createID = "g-new"

		require.NoError(t, f.sync.NewRoleRequest(context.Background(), f.editors, nil))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, APIGroups, d.api)
		assert.Equal(t, OpCreate, d.op)
		assert.Equal(t, "https://wiki.example.org/scim/v2/Groups", d.uri)

		var group scim.GroupRequest
		require.NoError(t, json.Unmarshal(d.body, &group))
		assert.Equal(t, "urn:collab:group:example.edu:wiki:editors", group.ExternalID)
		assert.Equal(t, "editors", group.DisplayName)

		assert.Equal(t, "g-new", f.editors.RemoteGroupID)
		assert.Equal(t, "g-new", f.directory.groupWrites[f.editors.ID])
	})

	t.Run("email hook fabricates the group id before delivery", func(t *testing.T) {
		f := newFixture(t)
		f.app.Mode = access.ProvisioningEmailHook
		f.app.EndpointURL = ""
		f.app.EmailHookAddress = "admin@example.edu"
		f.editors.RemoteGroupID = ""

		require.NoError(t, f.sync.NewRoleRequest(context.Background(), f.editors, nil))

		_, err := uuid.Parse(f.editors.RemoteGroupID)
		assert.NoError(t, err)
		require.Len(t, f.channel.deliveries, 1)
		assert.Equal(t, f.editors.RemoteGroupID, f.channel.deliveries[0].remoteID)
	})

	t.Run("disabled application is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.app.Mode = access.ProvisioningDisabled

		require.NoError(t, f.sync.NewRoleRequest(context.Background(), f.editors, nil))
		assert.Empty(t, f.channel.deliveries)
	})
}

func TestUpdateRoleRequest(t *testing.T) {
	t.Run("full replace recomputes the member list", func(t *testing.T) {
		f := newFixture(t)
		f.user.Roles[0].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.UpdateRoleRequest(context.Background(), f.user.Roles[0], scim.PatchAdd, nil))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, "PUT", d.method)
		assert.Equal(t, "https://wiki.example.org/scim/v2/Groups/g-ed", d.uri)

		var group scim.GroupRequest
		require.NoError(t, json.Unmarshal(d.body, &group))
		require.Len(t, group.Members, 1)
		assert.Equal(t, "m-1", group.Members[0].Value)
	})

	t.Run("full replace remove excludes the departing membership", func(t *testing.T) {
		f := newFixture(t)
		f.user.Roles[0].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.UpdateRoleRequest(context.Background(), f.user.Roles[0], scim.PatchRemove, nil))

		require.Len(t, f.channel.deliveries, 1)
		var group scim.GroupRequest
		require.NoError(t, json.Unmarshal(f.channel.deliveries[0].body, &group))
		assert.Empty(t, group.Members)
	})

	t.Run("incremental sends a single member patch", func(t *testing.T) {
		f := newFixture(t)
		f.app.UpdateMode = access.UpdateIncremental
		f.user.Roles[0].RemoteMemberID = "m-1"

		require.NoError(t, f.sync.UpdateRoleRequest(context.Background(), f.user.Roles[0], scim.PatchAdd, nil))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, "PATCH", d.method)

		var patch scim.GroupPatchRequest
		require.NoError(t, json.Unmarshal(d.body, &patch))
		require.Len(t, patch.Operations, 1)
		assert.Equal(t, scim.PatchAdd, patch.Operations[0].Op)
		require.Len(t, patch.Operations[0].Value, 1)
		assert.Equal(t, "m-1", patch.Operations[0].Value[0].Value)
	})

	t.Run("incremental without a member id is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.app.UpdateMode = access.UpdateIncremental

		require.NoError(t, f.sync.UpdateRoleRequest(context.Background(), f.user.Roles[0], scim.PatchAdd, nil))
		assert.Empty(t, f.channel.deliveries)
	})

	t.Run("missing remote group falls back to create", func(t *testing.T) {
		f := newFixture(t)
		f.editors.RemoteGroupID = ""
		f.user.Roles[0].RemoteMemberID = "m-1"
		f.channel.createID = "g-new"

		require.NoError(t, f.sync.UpdateRoleRequest(context.Background(), f.user.Roles[0], scim.PatchRemove, nil))

		// The create already reflects the removal; the abandoned update
		// never fires a second delivery.
		require.Len(t, f.channel.deliveries, 1)
		assert.Equal(t, OpCreate, f.channel.deliveries[0].op)

		var group scim.GroupRequest
		require.NoError(t, json.Unmarshal(f.channel.deliveries[0].body, &group))
		assert.Empty(t, group.Members)
	})
}

func TestDeleteRoleRequest(t *testing.T) {
	t.Run("deletes the remote group without members", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.sync.DeleteRoleRequest(context.Background(), f.editors))

		require.Len(t, f.channel.deliveries, 1)
		d := f.channel.deliveries[0]
		assert.Equal(t, OpDelete, d.op)
		assert.Equal(t, "https://wiki.example.org/scim/v2/Groups/g-ed", d.uri)

		var group scim.GroupRequest
		require.NoError(t, json.Unmarshal(d.body, &group))
		assert.Equal(t, "urn:collab:group:example.edu:wiki:editors", group.ExternalID)
		assert.Empty(t, group.Members)
	})

	t.Run("never provisioned role needs no call", func(t *testing.T) {
		f := newFixture(t)
		f.editors.RemoteGroupID = ""

		require.NoError(t, f.sync.DeleteRoleRequest(context.Background(), f.editors))
		assert.Empty(t, f.channel.deliveries)
	})
}

// The email-hook lifecycle of one guest with two roles produces exactly
// six notifications: account create plus two membership adds on accept,
// two membership removals plus the account delete on removal.
func TestEmailHookLifecycleNotifications(t *testing.T) {
	f := newFixture(t)
	f.app.Mode = access.ProvisioningEmailHook
	f.app.UpdateMode = access.UpdateIncremental
	f.app.EndpointURL = ""
	f.app.EndpointUsername = ""
	f.app.EndpointPassword = ""
	f.app.EmailHookAddress = "admin@example.edu"

	sender := mail.NewRecordingSender()
	channel := NewChannel(&memFailureStore{}, sender, "operator@example.edu", testLogEntry())
	sync := NewSynchronizer(f.directory, channel, "urn:collab:group", testLogEntry())

	ctx := context.Background()
	require.NoError(t, sync.NewUserRequest(ctx, f.user))
	for _, ur := range f.user.Roles {
		require.NoError(t, sync.UpdateRoleRequest(ctx, ur, scim.PatchAdd, nil))
	}
	require.NoError(t, sync.DeleteUserRequest(ctx, f.user))

	messages := sender.Messages()
	require.Len(t, messages, 6)
	assert.Equal(t, "SCIM users: CREATE", messages[0].Subject)
	assert.Equal(t, "SCIM groups: UPDATE", messages[1].Subject)
	assert.Equal(t, "SCIM groups: UPDATE", messages[2].Subject)
	assert.Equal(t, "SCIM groups: UPDATE", messages[3].Subject)
	assert.Equal(t, "SCIM groups: UPDATE", messages[4].Subject)
	assert.Equal(t, "SCIM users: DELETE", messages[5].Subject)
	for _, msg := range messages {
		assert.Equal(t, []string{"admin@example.edu"}, msg.To)
	}
}
