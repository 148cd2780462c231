// ABOUTME: HTML transcript export of stored conversation history.
// ABOUTME: Renders message markdown through goldmark into a standalone page.

package main

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/chatbridge/internal/activity"
	"github.com/2389/chatbridge/internal/bridge"
	"github.com/2389/chatbridge/internal/history"
)

// exportTranscript writes the stored history of the current conversation to
// an HTML file. Message text is treated as markdown.
func exportTranscript(ctx context.Context, conn *bridge.Connection, store *history.SQLiteStore, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /export <file>")
	}
	if store == nil {
		return fmt.Errorf("no history store configured")
	}
	conversationID := conn.ConversationID()
	if conversationID == "" {
		return fmt.Errorf("no conversation to export")
	}

	activities, err := store.Fetch(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	if len(activities) == 0 {
		return fmt.Errorf("no stored history for %s", conversationID)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>Conversation %s</title>\n</head>\n<body>\n", html.EscapeString(conversationID))
	fmt.Fprintf(&buf, "<h1>Conversation %s</h1>\n", html.EscapeString(conversationID))

	for _, a := range activities {
		if a.Type != activity.TypeMessage {
			continue
		}

		author := "you"
		if a.From != nil && a.From.Name != "" {
			author = a.From.Name
		}

		timestamp := ""
		if a.Timestamp != nil {
			timestamp = a.Timestamp.Format(time.RFC3339)
		}

		var rendered bytes.Buffer
		if err := goldmark.Convert([]byte(a.Text), &rendered); err != nil {
			// Fall back to escaped plain text for markdown that won't parse.
			rendered.Reset()
			fmt.Fprintf(&rendered, "<p>%s</p>", html.EscapeString(a.Text))
		}

		fmt.Fprintf(&buf, "<div class=\"message\">\n<p><strong>%s</strong> <em>%s</em></p>\n%s</div>\n",
			html.EscapeString(author), html.EscapeString(timestamp), rendered.String())
	}

	fmt.Fprint(&buf, "</body>\n</html>\n")

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	fmt.Printf("transcript written to %s (%d activities)\n", path, len(activities))
	return nil
}
