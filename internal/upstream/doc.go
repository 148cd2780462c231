// Package upstream defines the conversational agent client the adapter
// drives, along with an HTTP implementation.
//
// # Contract
//
// The Client interface exposes two operations, both returning finite lazy
// activity streams:
//
//   - StartConversation: opens a fresh conversation and streams the
//     greeting activities.
//   - SendActivity: delivers one outbound activity and streams the agent's
//     response.
//
// Streams are channels of StreamEvent. An event carries either an Activity
// or a terminal Err; the channel is closed when the stream is exhausted.
// Streams are not restartable: a new exchange means a new call.
//
// # HTTP implementation
//
// HTTPClient posts JSON requests and parses text/event-stream responses.
// Frame types:
//
//   - activity: JSON-encoded Activity payload
//   - error: terminal stream failure
//   - end: normal stream completion
//
// Bearer tokens that parse as JWTs are checked for expiry before dialing,
// so a stale token fails fast instead of after a round trip.
package upstream
