// Package bridge implements the connection core of the chat adapter: a
// state machine that presents one stable streaming conversation surface
// over an upstream conversational agent client.
//
// # Lifecycle
//
// A Connection is idle after New. The first Subscribe call fires the start
// sequence exactly once:
//
//  1. History replay (optional): stored activities for a resumed
//     conversation are emitted verbatim, and the sequence counter advances
//     past the highest stored sequence id. Fetch failures are swallowed.
//  2. Status transition: the status channel, seeded with
//     StatusUninitialized, receives StatusOnline.
//  3. Greeting stream (optional): for fresh conversations the upstream
//     greeting activities are stamped and forwarded. A greeting failure is
//     a terminal error on the activity feed.
//
// After that the connection is in steady state: PostActivity echoes the
// outbound activity, injects a typing indicator when enabled, and streams
// the agent's response through the shared feed. End closes everything,
// permanently.
//
// # Ordering and sequencing
//
// Every live activity leaving the connection carries an assignment-time
// timestamp and a strictly increasing sequence id in its channel data.
// Stamping and forwarding are synchronous with respect to each other, so
// activities arrive in stamp order: within one send the echo, the typing
// indicator, and the first response chunk are totally ordered.
//
// Ordering across concurrent PostActivity calls is undefined; the sequence
// counter is shared and interleaving depends on upstream timing.
//
// # Subscribers
//
// The feed has one logical subscriber slot. A second Subscribe replaces the
// forwarding target (completing the previous channel) without re-running
// the start sequence. Unsubscribing or replacing a subscriber does not
// cancel in-flight upstream iteration; its output is silently discarded at
// the stamping gate once no subscriber remains. End is the only true
// cancellation primitive, and even it only gates emission: it does not
// abort an upstream stream already mid-flight.
//
// No timeouts are enforced here. A stalled upstream stream stalls its
// operation indefinitely; resilience belongs to the calling application.
package bridge
