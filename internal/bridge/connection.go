// ABOUTME: Connection core multiplexing history replay, greeting, sends, and typing
// ABOUTME: into one ordered activity feed with a single active subscriber.

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatbridge/internal/activity"
	"github.com/2389/chatbridge/internal/attachment"
	"github.com/2389/chatbridge/internal/session"
	"github.com/2389/chatbridge/internal/upstream"
)

// Precondition errors surfaced synchronously by PostActivity.
var (
	ErrNilActivity     = errors.New("activity cannot be nil")
	ErrConnectionEnded = errors.New("connection has been ended")
	ErrNoSubscriber    = errors.New("activity subscriber is not initialized")
)

// Status is the connection lifecycle value observable by the caller. The
// numbering leaves room for intermediate states the upstream protocol may
// grow; today the connection only ever moves from uninitialized to online.
type Status int

const (
	StatusUninitialized Status = 0
	StatusOnline        Status = 2
)

// Event is one element of the activity feed. Exactly one of Activity or Err
// is set; an Err element is terminal and the channel closes after it.
type Event struct {
	Activity *activity.Activity
	Err      error
}

const (
	// subscriberBufferSize is the channel buffer for the activity feed.
	subscriberBufferSize = 64
	// statusBufferSize holds the full status history of one connection.
	statusBufferSize = 4
)

// Options configures a Connection at construction time.
type Options struct {
	// ConversationID resumes a known conversation. Whitespace-only is
	// treated as absent.
	ConversationID string

	// StartConversation overrides the greeting default: greet when starting
	// fresh, skip when resuming. Nil applies the default.
	StartConversation *bool

	// ShowTyping injects synthetic typing activities before the greeting
	// and before each outbound send.
	ShowTyping bool

	// FetchHistory, when set together with a resumed ConversationID, is
	// called once on first subscription to replay stored activities before
	// anything live is emitted. Errors are swallowed: replay degrades to an
	// empty history.
	FetchHistory func(ctx context.Context, conversationID string) ([]*activity.Activity, error)

	// Attachments optionally inlines locally-referenced attachments on
	// outbound sends.
	Attachments *attachment.Normalizer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Connection adapts one upstream conversation into a single ordered,
// sequence-numbered activity feed. It owns the sequence counter and the
// conversation identity, and supports exactly one active subscriber at a
// time.
type Connection struct {
	client       upstream.Client
	session      *session.State
	showTyping   bool
	fetchHistory func(ctx context.Context, conversationID string) ([]*activity.Activity, error)
	attachments  *attachment.Normalizer
	logger       *slog.Logger

	status chan Status

	mu           sync.Mutex
	subscriber   chan Event
	started      bool
	ended        bool
	nextSequence int64
	agentFrom    *activity.ChannelAccount
}

// New creates a Connection over the given upstream client. The connection
// is idle until the first Subscribe call attaches a consumer.
func New(client upstream.Client, opts Options) *Connection {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		client:       client,
		session:      session.Resolve(opts.ConversationID, opts.StartConversation),
		showTyping:   opts.ShowTyping,
		fetchHistory: opts.FetchHistory,
		attachments:  opts.Attachments,
		logger:       logger.With("component", "bridge"),
		status:       make(chan Status, statusBufferSize),
	}
	c.status <- StatusUninitialized
	return c
}

// Status returns the connection status channel. It is seeded with the
// current value, receives future transitions, and closes on End.
func (c *Connection) Status() <-chan Status {
	return c.status
}

// ConversationID returns the latest-known conversation id, or "" if none
// has been assigned or observed yet.
func (c *Connection) ConversationID() string {
	return c.session.ConversationID()
}

// Subscribe attaches a consumer to the activity feed. The first call fires
// the start sequence: history replay (if configured), the online status
// transition, and the greeting stream (if applicable). Later calls never
// re-run the start sequence; they replace the forwarding target, completing
// the previous subscriber's channel. Cancelling ctx detaches the subscriber
// but does not cancel in-flight upstream work.
func (c *Connection) Subscribe(ctx context.Context) <-chan Event {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, subscriberBufferSize)
	if c.subscriber != nil {
		close(c.subscriber)
	}
	c.subscriber = ch

	startNow := !c.started
	if startNow {
		c.started = true
	}
	c.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			c.detach(ch)
		}()
	}

	if startNow {
		go c.start()
	}
	return ch
}

// detach clears the subscriber reference if ch is still the active target.
// Upstream iteration keeps running; its output is discarded at the stamping
// gate once no subscriber remains.
func (c *Connection) detach(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriber == ch {
		close(c.subscriber)
		c.subscriber = nil
	}
}

// start runs once, on the first subscription: history replay, the online
// transition, then the greeting stream. Upstream work deliberately uses a
// background context: unsubscribing must not cancel in-flight iteration.
func (c *Connection) start() {
	ctx := context.Background()

	c.replayHistory(ctx)
	c.announceOnline()

	if c.session.ShouldStartGreeting() {
		c.synthesizeTyping()
		c.runGreeting(ctx)
	}
}

// replayHistory loads stored activities for a resumed conversation and
// emits them verbatim, then advances the sequence counter past the highest
// stored sequence id. Fetch failures degrade to an empty history.
func (c *Connection) replayHistory(ctx context.Context) {
	conversationID := c.session.ConversationID()
	if c.fetchHistory == nil || conversationID == "" {
		return
	}

	stored, err := c.fetchHistory(ctx, conversationID)
	if err != nil {
		c.logger.Warn("history fetch failed, continuing without replay",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	var maxSeq int64 = -1
	for _, a := range stored {
		if a == nil {
			continue
		}
		c.emitStored(a)
		if seq, ok := a.SequenceID(); ok && seq > maxSeq {
			maxSeq = seq
		}
	}

	if maxSeq >= 0 {
		c.mu.Lock()
		if maxSeq+1 > c.nextSequence {
			c.nextSequence = maxSeq + 1
		}
		c.mu.Unlock()
	}

	c.logger.Debug("history replayed",
		"conversation_id", conversationID,
		"count", len(stored),
		"watermark", maxSeq)
}

// emitStored forwards a replayed activity exactly as stored: no
// re-timestamping, no re-sequencing.
func (c *Connection) emitStored(a *activity.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended || c.subscriber == nil {
		return
	}
	c.deliverLocked(Event{Activity: a})
}

// announceOnline pushes the one-time transition to online status.
func (c *Connection) announceOnline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.status <- StatusOnline
}

// runGreeting consumes the upstream greeting stream. A failure before or
// during the stream is terminal for the activity feed.
func (c *Connection) runGreeting(ctx context.Context) {
	stream, err := c.client.StartConversation(ctx)
	if err != nil {
		c.failFeed(err)
		return
	}

	for ev := range stream {
		if ev.Err != nil {
			c.failFeed(ev.Err)
			return
		}
		c.handleInbound(ev.Activity)
	}
}

// handleInbound processes one live upstream chunk: capture the conversation
// identity and agent account if still unknown, strip the unreliable
// reply-to reference, then stamp and forward.
func (c *Connection) handleInbound(a *activity.Activity) {
	if a == nil {
		return
	}

	if id := a.ConversationID(); id != "" {
		if c.session.Observe(id) {
			c.logger.Debug("conversation id captured", "conversation_id", id)
		}
	}

	if a.From != nil && (a.From.ID != "" || a.From.Name != "") {
		c.mu.Lock()
		c.agentFrom = &activity.ChannelAccount{ID: a.From.ID, Name: a.From.Name}
		c.mu.Unlock()
	}

	// Upstream reply-to ids are stale relative to the adapter's own echo
	// ids and stall the rendering widget if forwarded.
	a.ReplyToID = ""

	c.stampAndForward(a)
}

// stampAndForward assigns the next sequence number and current timestamp,
// then forwards to the active subscriber. Discards silently when the
// connection has ended, no subscriber is attached, or the activity lacks a
// type discriminator.
func (c *Connection) stampAndForward(a *activity.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended || c.subscriber == nil || a == nil || a.Type == "" {
		c.logger.Debug("discarding activity at stamping gate",
			"ended", c.ended,
			"has_subscriber", c.subscriber != nil)
		return
	}

	now := time.Now().UTC()
	a.Timestamp = &now
	a.SetSequenceID(c.nextSequence)
	c.nextSequence++

	c.deliverLocked(Event{Activity: a})
}

// deliverLocked sends to the subscriber without blocking. Callers hold c.mu.
// A full buffer means a stalled consumer; the event is dropped rather than
// stalling every upstream stream behind it.
func (c *Connection) deliverLocked(ev Event) {
	select {
	case c.subscriber <- ev:
	default:
		c.logger.Warn("subscriber buffer full, dropping activity")
	}
}

// failFeed delivers a terminal error on the activity feed and completes it.
func (c *Connection) failFeed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Error("upstream stream failed", "error", err)
	if c.ended || c.subscriber == nil {
		return
	}
	c.deliverLocked(Event{Err: err})
	close(c.subscriber)
	c.subscriber = nil
}

// PostActivity sends one outbound activity. It returns the assigned
// activity id immediately; the done channel reports the terminal outcome of
// the send's response stream (an error value, then close, on failure;
// close alone on success). The response activities themselves arrive on the
// shared feed. Ordering across concurrent PostActivity calls is undefined;
// within one call the echo, the typing indicator, and the first response
// chunk arrive in that order.
func (c *Connection) PostActivity(ctx context.Context, a *activity.Activity) (string, <-chan error, error) {
	if a == nil {
		return "", nil, ErrNilActivity
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return "", nil, ErrConnectionEnded
	}
	if c.subscriber == nil {
		c.mu.Unlock()
		return "", nil, ErrNoSubscriber
	}
	c.mu.Unlock()

	a.ID = uuid.New().String()
	conversationID := c.session.ConversationID()
	if conversationID != "" {
		a.Conversation = &activity.ConversationReference{ID: conversationID}
	}

	c.attachments.Normalize(ctx, a)

	// Echo the caller's own activity so the widget renders it, then signal
	// that the agent is working on a reply.
	c.stampAndForward(a)
	c.synthesizeTyping()

	done := make(chan error, 1)
	go c.runSend(a, conversationID, done)

	return a.ID, done, nil
}

// runSend opens the upstream send stream and forwards its response chunks.
// Failures surface on this send's done channel only; the shared feed is
// unaffected.
func (c *Connection) runSend(a *activity.Activity, conversationID string, done chan<- error) {
	defer close(done)

	stream, err := c.client.SendActivity(context.Background(), a, conversationID)
	if err != nil {
		done <- err
		return
	}

	for ev := range stream {
		if ev.Err != nil {
			done <- ev.Err
			return
		}
		c.handleInbound(ev.Activity)
	}
}

// End permanently closes the connection. Idempotent. The status channel and
// the active subscriber complete normally; in-flight upstream chunks are
// discarded at the stamping gate from here on.
func (c *Connection) End() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return
	}
	c.ended = true

	close(c.status)
	if c.subscriber != nil {
		close(c.subscriber)
		c.subscriber = nil
	}

	c.logger.Debug("connection ended")
}
