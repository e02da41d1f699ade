package provisioning

import (
	"context"

	"github.com/fedid/guestsync/pkg/contextkeys"
)

// WithSuppressedReplay marks the context as a manual failure replay.
// While set, the delivery channel propagates errors to the caller
// instead of capturing them, so a failed replay never re-enters the
// failure store. The mark lives and dies with the derived context.
func WithSuppressedReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextkeys.SuppressReplayKey, true)
}

// ReplaySuppressed reports whether the context carries the replay mark.
func ReplaySuppressed(ctx context.Context) bool {
	suppressed, _ := ctx.Value(contextkeys.SuppressReplayKey).(bool)
	return suppressed
}
