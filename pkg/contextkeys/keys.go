// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/fedid/guestsync/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.AuthorityKey, principal)
//   principal := ctx.Value(contextkeys.AuthorityKey).(*authority.Principal)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthorityKey contains *authority.Principal
	// Set by: authority middleware after token verification
	// Required by: All protected endpoints, authority checks
	// Type: *authority.Principal
	AuthorityKey Key = "authority_principal"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware, observability layer
	// Used by: Logger, request tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: Observability middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// SuppressReplayKey marks a manual failure replay in flight
	// Set by: provisioning.Synchronizer.ResendFailure, for the duration
	//         of one replay only
	// Used by: the delivery channel to propagate errors instead of
	//          capturing them, so a failed replay never re-captures itself
	// Type: bool
	SuppressReplayKey Key = "suppress_replay"
)
