// ABOUTME: Tracks the conversation identifier for one adapter connection.
// ABOUTME: First non-empty observation wins; whitespace-only input counts as absent.

package session

import (
	"strings"
	"sync"
)

// State holds the resolved conversation identity for one connection. The
// identifier is first-writer-wins: once a non-empty value is known, later
// observations are ignored. Safe for concurrent use.
type State struct {
	mu             sync.RWMutex
	conversationID string
	startGreeting  bool
}

// Resolve normalizes the caller-supplied conversation id and decides whether
// the connection should start a greeting stream. A whitespace-only id is
// treated as absent. When startConversation is nil the default applies:
// greet when starting fresh, skip when resuming a known conversation.
func Resolve(conversationID string, startConversation *bool) *State {
	id := strings.TrimSpace(conversationID)

	greet := id == ""
	if startConversation != nil {
		greet = *startConversation
	}

	return &State{
		conversationID: id,
		startGreeting:  greet,
	}
}

// ConversationID returns the latest-known conversation id, or "" if none has
// been observed yet.
func (s *State) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversationID
}

// ShouldStartGreeting reports whether the connection starts a greeting
// stream on first subscription.
func (s *State) ShouldStartGreeting() bool {
	return s.startGreeting
}

// Observe records a conversation id seen in an upstream response. Returns
// true if the value was taken. Empty or whitespace-only values never take,
// and an already-set id is immutable.
func (s *State) Observe(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID != "" {
		return false
	}
	s.conversationID = id
	return true
}
