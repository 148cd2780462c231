// ABOUTME: Client contract the connection core consumes for upstream conversations.
// ABOUTME: Defines lazy activity streams for greeting and send-and-stream round trips.

package upstream

import (
	"context"

	"github.com/2389/chatbridge/internal/activity"
)

// StreamEvent is one element of a lazy upstream activity stream. Exactly one
// of Activity or Err is set; an Err element is terminal for its stream.
type StreamEvent struct {
	Activity *activity.Activity
	Err      error
}

// Client is the upstream conversational agent the adapter drives. Both
// methods return finite lazy streams: the returned channel is closed when
// the upstream response is exhausted or after a terminal error element.
//
// StartConversation opens a fresh conversation and streams the greeting
// activities. SendActivity delivers one outbound activity (with the known
// conversation id, if any) and streams the agent's response.
type Client interface {
	StartConversation(ctx context.Context) (<-chan StreamEvent, error)
	SendActivity(ctx context.Context, a *activity.Activity, conversationID string) (<-chan StreamEvent, error)
}
