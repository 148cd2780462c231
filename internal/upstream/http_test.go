// ABOUTME: Tests for the HTTP upstream client and its SSE stream parsing.
// ABOUTME: Uses httptest servers emitting activity, error, and end frames.

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatbridge/internal/activity"
)

// writeFrame writes one SSE frame and flushes.
func writeFrame(t *testing.T, w http.ResponseWriter, event string, data any) {
	t.Helper()
	fmt.Fprintf(w, "event: %s\n", event)
	if data != nil {
		payload, err := json.Marshal(data)
		require.NoError(t, err)
		fmt.Fprintf(w, "data: %s\n", payload)
	}
	fmt.Fprint(w, "\n")
	w.(http.Flusher).Flush()
}

// collect drains a stream with a timeout guard.
func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining stream")
		}
	}
}

func TestStartConversation_StreamsGreeting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/conversations", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "activity", &activity.Activity{
			Type:         activity.TypeMessage,
			Text:         "Hello! How can I help?",
			Conversation: &activity.ConversationReference{ID: "conv-1"},
		})
		writeFrame(t, w, "end", nil)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok-123", nil)
	stream, err := c.StartConversation(context.Background())
	require.NoError(t, err)

	events := collect(t, stream)
	require.Len(t, events, 1)
	require.NoError(t, events[0].Err)
	assert.Equal(t, "Hello! How can I help?", events[0].Activity.Text)
	assert.Equal(t, "conv-1", events[0].Activity.ConversationID())
}

func TestSendActivity_PostsBodyAndStreamsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/send", r.URL.Path)

		var req sendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "conv-1", req.ConversationID)
		assert.Equal(t, "hi there", req.Activity.Text)

		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "activity", &activity.Activity{Type: activity.TypeMessage, Text: "chunk one"})
		writeFrame(t, w, "activity", &activity.Activity{Type: activity.TypeMessage, Text: "chunk two"})
		writeFrame(t, w, "end", nil)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	stream, err := c.SendActivity(context.Background(), &activity.Activity{
		Type: activity.TypeMessage,
		Text: "hi there",
	}, "conv-1")
	require.NoError(t, err)

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "chunk one", events[0].Activity.Text)
	assert.Equal(t, "chunk two", events[1].Activity.Text)
}

func TestStream_ErrorFrameIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "activity", &activity.Activity{Type: activity.TypeMessage, Text: "partial"})
		writeFrame(t, w, "error", map[string]string{"error": "agent unavailable"})
		// Nothing after an error frame should be surfaced.
		writeFrame(t, w, "activity", &activity.Activity{Type: activity.TypeMessage, Text: "late"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	stream, err := c.StartConversation(context.Background())
	require.NoError(t, err)

	events := collect(t, stream)
	require.Len(t, events, 2)
	assert.Equal(t, "partial", events[0].Activity.Text)
	require.Error(t, events[1].Err)
	assert.Contains(t, events[1].Err.Error(), "agent unavailable")
}

func TestStream_UnknownFramesSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrame(t, w, "started", map[string]string{"conversation_id": "conv-1"})
		fmt.Fprint(w, ": keepalive\n\n")
		writeFrame(t, w, "activity", &activity.Activity{Type: activity.TypeMessage, Text: "real"})
		writeFrame(t, w, "end", nil)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	stream, err := c.StartConversation(context.Background())
	require.NoError(t, err)

	events := collect(t, stream)
	require.Len(t, events, 1)
	assert.Equal(t, "real", events[0].Activity.Text)
}

func TestStream_NonOKStatusFailsCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "backend down"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	_, err := c.StartConversation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestStream_MalformedActivityFrameErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: activity\ndata: {not json\n\n")
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	stream, err := c.StartConversation(context.Background())
	require.NoError(t, err)

	events := collect(t, stream)
	require.Len(t, events, 1)
	require.Error(t, events[0].Err)
	assert.Contains(t, events[0].Err.Error(), "malformed activity frame")
}
