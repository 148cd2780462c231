// ABOUTME: HTTP implementation of the upstream Client using SSE response streaming.
// ABOUTME: Posts JSON requests and parses event-stream frames into activity streams.

package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/chatbridge/internal/activity"
)

const (
	// streamBufferSize is the channel buffer for parsed stream events.
	streamBufferSize = 16
	// maxFrameSize bounds a single SSE data frame.
	maxFrameSize = 1 << 20
)

// sendRequest is the JSON body for the send-and-stream endpoint.
type sendRequest struct {
	Activity       *activity.Activity `json:"activity"`
	ConversationID string             `json:"conversationId,omitempty"`
}

// HTTPClient talks to the upstream conversational service over HTTP,
// receiving activities as Server-Sent Events. It implements Client.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates an upstream client for the given base URL. The token
// is sent as a bearer Authorization header when non-empty; pass nil logger
// for the default. No request timeout is set on the underlying client:
// response streams are long-lived and cancellation belongs to the caller's
// context.
func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
		logger:     logger.With("component", "upstream"),
	}
}

// StartConversation opens a new conversation and returns the greeting
// activity stream.
func (c *HTTPClient) StartConversation(ctx context.Context) (<-chan StreamEvent, error) {
	return c.stream(ctx, c.baseURL+"/api/conversations", nil)
}

// SendActivity delivers one activity and returns the response activity
// stream. The conversation id may be empty for the first exchange of a
// fresh conversation.
func (c *HTTPClient) SendActivity(ctx context.Context, a *activity.Activity, conversationID string) (<-chan StreamEvent, error) {
	return c.stream(ctx, c.baseURL+"/api/conversations/send", &sendRequest{
		Activity:       a,
		ConversationID: conversationID,
	})
}

// stream issues the request and hands the response body to a parser
// goroutine. The returned channel is closed when the stream ends.
func (c *HTTPClient) stream(ctx context.Context, url string, body any) (<-chan StreamEvent, error) {
	if err := checkToken(c.token, time.Now()); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
			var errResp map[string]string
			if decErr := json.NewDecoder(resp.Body).Decode(&errResp); decErr == nil {
				if msg, ok := errResp["error"]; ok {
					return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, msg)
				}
			}
		}
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	out := make(chan StreamEvent, streamBufferSize)
	go c.parseSSE(resp.Body, out)
	return out, nil
}

// parseSSE reads SSE frames from the response body and forwards activity
// frames until the body is exhausted, a terminal "end" frame arrives, or an
// error frame is seen. Closes the body and the output channel on return.
func (c *HTTPClient) parseSSE(body io.ReadCloser, out chan<- StreamEvent) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var eventType string
	var dataLines []string

	flush := func() bool {
		defer func() {
			eventType = ""
			dataLines = nil
		}()

		data := strings.Join(dataLines, "\n")
		switch eventType {
		case "activity":
			var a activity.Activity
			if err := json.Unmarshal([]byte(data), &a); err != nil {
				out <- StreamEvent{Err: fmt.Errorf("malformed activity frame: %w", err)}
				return false
			}
			out <- StreamEvent{Activity: &a}
		case "error":
			var errResp map[string]string
			msg := data
			if err := json.Unmarshal([]byte(data), &errResp); err == nil && errResp["error"] != "" {
				msg = errResp["error"]
			}
			out <- StreamEvent{Err: fmt.Errorf("upstream stream error: %s", msg)}
			return false
		case "end":
			return false
		default:
			// Unknown frame types are skipped; the upstream may add
			// keepalives or metadata frames at any time.
			c.logger.Debug("skipping unknown SSE frame", "event", eventType)
		}
		return true
	}

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line terminates a frame.
		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				if !flush() {
					return
				}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Comment / keepalive line.
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamEvent{Err: fmt.Errorf("reading stream: %w", err)}
	}
}
