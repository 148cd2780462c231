// ABOUTME: Synthetic typing indicator injection around greeting and send round trips.
// ABOUTME: Uses the best-known agent identity from the server, with a fixed fallback.

package bridge

import "github.com/2389/chatbridge/internal/activity"

// fallbackAgent is the typing-indicator identity used until the server has
// revealed who is on the other end of the conversation.
var fallbackAgent = activity.ChannelAccount{ID: "agent", Name: "Agent"}

// synthesizeTyping emits one typing activity through the normal stamping
// path. No-op when typing indication is disabled.
func (c *Connection) synthesizeTyping() {
	if !c.showTyping {
		return
	}

	c.mu.Lock()
	from := fallbackAgent
	if c.agentFrom != nil {
		from = *c.agentFrom
	}
	c.mu.Unlock()

	c.stampAndForward(&activity.Activity{
		Type: activity.TypeTyping,
		From: &from,
	})
}
