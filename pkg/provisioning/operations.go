package provisioning

import (
	"context"

	"github.com/fedid/guestsync/pkg/access"
)

// APIKind identifies the remote resource collection a delivery targets.
type APIKind string

const (
	APIUsers  APIKind = "users"
	APIGroups APIKind = "groups"
)

// OperationType identifies the change a delivery carries. It shapes the
// email-hook subject line and the metrics labels.
type OperationType string

const (
	OpCreate OperationType = "CREATE"
	OpUpdate OperationType = "UPDATE"
	OpDelete OperationType = "DELETE"
)

// Deliverer sends one payload to one application, over whichever
// channel the application is configured for. A create delivery returns
// the remote identifier the service provider assigned, when there is
// one. A captured failure returns ("", nil): the caller treats it as
// success with no identifier produced.
type Deliverer interface {
	Deliver(ctx context.Context, app *access.Application, api APIKind, op OperationType, method, uri string, body []byte, remoteID string) (string, error)
}

// Directory is the slice of the access store the synchronizer needs.
// *access.PostgresService satisfies it.
type Directory interface {
	ApplicationByID(ctx context.Context, id int64) (*access.Application, error)
	RoleMemberships(ctx context.Context, roleID int64) ([]*access.UserRole, error)
	UserByPrincipalName(ctx context.Context, principalName string) (*access.User, error)
	RoleByName(ctx context.Context, institutionDomain, applicationName, roleName string) (*access.Role, error)
	SetRemoteMemberID(ctx context.Context, userRoleIDs []int64, remoteID string) error
	SetRemoteGroupID(ctx context.Context, roleID int64, remoteID string) error
}
