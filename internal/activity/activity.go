// ABOUTME: Core Activity type exchanged between the chat UI and the upstream agent.
// ABOUTME: Loosely-shaped payload with a required type discriminator and open channel data.

package activity

import (
	"encoding/json"
	"time"
)

// Activity type discriminators. The adapter only ever inspects the
// discriminator; everything else is carried opaquely.
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
	TypeEvent   = "event"
)

// SequenceIDKey is the channel-data key carrying the adapter-assigned
// monotonic sequence number.
const SequenceIDKey = "sequence-id"

// ChannelAccount identifies a participant (user or agent) in a conversation.
type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ConversationReference identifies the server-side conversation session an
// activity belongs to.
type ConversationReference struct {
	ID string `json:"id,omitempty"`
}

// Attachment is a piece of binary or structured content carried alongside a
// message activity. ContentURL may reference a locally-scoped handle (blob:
// or file: scheme) before normalization rewrites it to an inline data URL.
type Attachment struct {
	ContentType string `json:"contentType,omitempty"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Name        string `json:"name,omitempty"`
	Content     any    `json:"content,omitempty"`
}

// Activity is a single unit of conversational exchange: a message, a typing
// indicator, or an event. The shape follows the upstream wire format; only
// Type is required. ChannelData is an open map for channel-specific metadata
// and is where the adapter records its sequence number.
type Activity struct {
	Type         string                 `json:"type"`
	ID           string                 `json:"id,omitempty"`
	ReplyToID    string                 `json:"replyToId,omitempty"`
	Timestamp    *time.Time             `json:"timestamp,omitempty"`
	Text         string                 `json:"text,omitempty"`
	From         *ChannelAccount        `json:"from,omitempty"`
	Conversation *ConversationReference `json:"conversation,omitempty"`
	Attachments  []Attachment           `json:"attachments,omitempty"`
	ChannelData  map[string]any         `json:"channelData,omitempty"`
}

// ConversationID returns the conversation reference id, or "" if absent.
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// SequenceID reads the adapter-assigned sequence number from channel data.
// Tolerates the numeric types a JSON round trip can produce.
func (a *Activity) SequenceID() (int64, bool) {
	if a == nil || a.ChannelData == nil {
		return 0, false
	}
	switch v := a.ChannelData[SequenceIDKey].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// SetSequenceID records the sequence number in channel data, merging into
// any existing map without touching unrelated keys.
func (a *Activity) SetSequenceID(n int64) {
	if a.ChannelData == nil {
		a.ChannelData = make(map[string]any, 1)
	}
	a.ChannelData[SequenceIDKey] = n
}
