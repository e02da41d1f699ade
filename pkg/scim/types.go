package scim

// Schema identifiers for the payload types we emit.
const (
	UserSchema    = "urn:ietf:params:scim:schemas:core:2.0:User"
	GroupSchema   = "urn:ietf:params:scim:schemas:core:2.0:Group"
	PatchOpSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"
)

// Name maps to the SCIM "name" object.
type Name struct {
	FamilyName string `json:"familyName"`
	GivenName  string `json:"givenName"`
}

// Email maps to one entry of the SCIM "emails" array.
type Email struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// UserRequest is the body of a user create/update/delete call.
// ID is only set on the update/delete variants, once the service
// provider has assigned a remote identifier.
type UserRequest struct {
	Schemas     []string `json:"schemas"`
	ID          string   `json:"id,omitempty"`
	ExternalID  string   `json:"externalId"`
	UserName    string   `json:"userName"`
	Name        Name     `json:"name"`
	DisplayName string   `json:"displayName"`
	Emails      []Email  `json:"emails"`
}

// Member is one entry of a group's "members" array. Value carries the
// remote member identifier of the user.
type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// GroupRequest is the full-replace body of a group create/update call.
// ExternalID carries the group URN for the role.
type GroupRequest struct {
	Schemas     []string `json:"schemas"`
	ID          string   `json:"id,omitempty"`
	ExternalID  string   `json:"externalId"`
	DisplayName string   `json:"displayName"`
	Members     []Member `json:"members"`
}

// PatchOperationType is the "op" field of a patch operation.
type PatchOperationType string

const (
	PatchAdd    PatchOperationType = "add"
	PatchRemove PatchOperationType = "remove"
)

// Operation is one entry of a patch request's "Operations" array.
type Operation struct {
	Op    PatchOperationType `json:"op"`
	Path  string             `json:"path"`
	Value []Member           `json:"value"`
}

// GroupPatchRequest is the incremental body of a group membership
// update, carrying exactly one add or remove operation.
type GroupPatchRequest struct {
	Schemas    []string    `json:"schemas"`
	ID         string      `json:"id"`
	Operations []Operation `json:"Operations"`
}

// CreateResponse is the subset of a service provider's create response
// we care about: the identifier it assigned.
type CreateResponse struct {
	ID string `json:"id"`
}
