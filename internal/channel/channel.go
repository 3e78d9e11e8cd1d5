// Package channel defines the adapter contract for external messaging
// surfaces. Adapters are external collaborators: they send outbound text
// and emit normalized ActivityEvents for inbound traffic. The core never
// depends on channel-specific protocol details.
package channel

import (
	"context"

	"twind/internal/types"
)

// Adapter is one messaging surface (chat, email).
type Adapter interface {
	// Name identifies the channel ("telegram", "email").
	Name() string

	// Send delivers text to a channel-specific target and returns a
	// short status string.
	Send(ctx context.Context, target, text string) (string, error)

	// Subscribe returns the stream of inbound activity events, or nil
	// when the adapter has no inbound side.
	Subscribe() <-chan types.ActivityEvent

	// Close releases the adapter's resources and stops its streams.
	Close() error
}
