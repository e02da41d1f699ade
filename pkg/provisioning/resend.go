package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fedid/guestsync/pkg/scim"
)

// ResendFailure replays a captured failure with capture suppressed: a
// second failure surfaces to the caller instead of re-entering the
// store. The caller deletes the original record regardless of the
// replay outcome.
//
// Create and update replays re-resolve the local entity (the user by
// the stored external id, the role by decoding the stored group URN)
// and re-run the corresponding synchronizer path, so the replay
// reflects current local state rather than the stale payload. Delete
// replays re-issue the stored request as captured.
func (s *Synchronizer) ResendFailure(ctx context.Context, failure *SCIMFailure) error {
	ctx = WithSuppressedReplay(ctx)

	err := s.replay(ctx, failure)
	if err != nil {
		replaysTotal.WithLabelValues("failed").Inc()
		return err
	}
	replaysTotal.WithLabelValues("succeeded").Inc()
	return nil
}

func (s *Synchronizer) replay(ctx context.Context, failure *SCIMFailure) error {
	switch failure.API {
	case APIUsers:
		return s.replayUser(ctx, failure)
	case APIGroups:
		return s.replayGroup(ctx, failure)
	default:
		return fmt.Errorf("cannot replay failure %d: unknown api kind %q", failure.ID, failure.API)
	}
}

func (s *Synchronizer) replayUser(ctx context.Context, failure *SCIMFailure) error {
	switch failure.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		var req struct {
			ExternalID string `json:"externalId"`
		}
		if err := json.Unmarshal([]byte(failure.Body), &req); err != nil {
			return fmt.Errorf("cannot replay failure %d: undecodable body: %w", failure.ID, err)
		}
		user, err := s.directory.UserByPrincipalName(ctx, req.ExternalID)
		if err != nil {
			return fmt.Errorf("cannot replay failure %d: %w", failure.ID, err)
		}
		if failure.Method == http.MethodPost {
			return s.NewUserRequest(ctx, user)
		}
		return s.UpdateUserRequest(ctx, user)
	case http.MethodDelete:
		return s.redeliver(ctx, failure, OpDelete)
	default:
		return fmt.Errorf("cannot replay failure %d: unknown method %q for users api", failure.ID, failure.Method)
	}
}

func (s *Synchronizer) replayGroup(ctx context.Context, failure *SCIMFailure) error {
	switch failure.Method {
	case http.MethodPost:
		var req struct {
			ExternalID string `json:"externalId"`
		}
		if err := json.Unmarshal([]byte(failure.Body), &req); err != nil {
			return fmt.Errorf("cannot replay failure %d: undecodable body: %w", failure.ID, err)
		}
		institutionDomain, applicationName, roleName, err := scim.ParseGroupURN(req.ExternalID)
		if err != nil {
			return fmt.Errorf("cannot replay failure %d: %w", failure.ID, err)
		}
		role, err := s.directory.RoleByName(ctx, institutionDomain, applicationName, roleName)
		if err != nil {
			return fmt.Errorf("cannot replay failure %d: %w", failure.ID, err)
		}
		return s.NewRoleRequest(ctx, role, nil)
	case http.MethodPut, http.MethodPatch:
		return s.redeliver(ctx, failure, OpUpdate)
	case http.MethodDelete:
		return s.redeliver(ctx, failure, OpDelete)
	default:
		return fmt.Errorf("cannot replay failure %d: unknown method %q for groups api", failure.ID, failure.Method)
	}
}

// redeliver re-issues a stored request verbatim.
func (s *Synchronizer) redeliver(ctx context.Context, failure *SCIMFailure, op OperationType) error {
	app, err := s.directory.ApplicationByID(ctx, failure.ApplicationID)
	if err != nil {
		return fmt.Errorf("cannot replay failure %d: %w", failure.ID, err)
	}
	_, err = s.channel.Deliver(ctx, app, failure.API, op, failure.Method, failure.URI, []byte(failure.Body), failure.RemoteID)
	return err
}
