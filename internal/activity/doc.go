// Package activity defines the Activity payload exchanged between the chat
// UI, the adapter, and the upstream conversational agent.
//
// Activities are deliberately loosely shaped: the upstream service owns the
// schema, and the adapter forwards payloads opaquely. The only field the
// adapter requires is the Type discriminator. ChannelData is an open map for
// channel-specific metadata; the adapter uses it to attach its own monotonic
// sequence number under SequenceIDKey.
package activity
