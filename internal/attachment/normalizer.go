// ABOUTME: Best-effort rewriting of locally-referenced attachments into inline data URLs.
// ABOUTME: Per-attachment failures keep the original reference and never fail the send.

package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/chatbridge/internal/activity"
)

// ByteSource resolves a locally-scoped content URL to its raw bytes and
// content type.
type ByteSource interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// ByteSourceFunc adapts a function to the ByteSource interface.
type ByteSourceFunc func(ctx context.Context, url string) ([]byte, string, error)

// Fetch implements ByteSource.
func (f ByteSourceFunc) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	return f(ctx, url)
}

// localSchemes are content-URL schemes that reference handles only valid in
// the local renderer scope. These cannot travel over the wire and must be
// inlined before sending.
var localSchemes = []string{"blob:", "file:"}

// Normalizer rewrites locally-referenced binary attachments on outbound
// message activities into self-contained data URLs.
type Normalizer struct {
	source ByteSource
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. Pass nil logger for the default.
func NewNormalizer(source ByteSource, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		source: source,
		logger: logger.With("component", "attachment"),
	}
}

// Normalize inlines every locally-referenced attachment on a message
// activity. Non-message activities, attachment-free activities, and
// attachments that already carry transport-safe URLs pass through untouched.
// An attachment whose bytes cannot be fetched keeps its original reference;
// the failure is logged and the activity is still considered normalized.
func (n *Normalizer) Normalize(ctx context.Context, a *activity.Activity) {
	if n == nil || n.source == nil || a == nil {
		return
	}
	if a.Type != activity.TypeMessage || len(a.Attachments) == 0 {
		return
	}

	for i := range a.Attachments {
		att := &a.Attachments[i]
		if !isLocalRef(att.ContentURL) {
			continue
		}

		data, contentType, err := n.source.Fetch(ctx, att.ContentURL)
		if err != nil {
			n.logger.Warn("attachment fetch failed, keeping original reference",
				"url", att.ContentURL,
				"name", att.Name,
				"error", err)
			continue
		}

		if contentType == "" {
			contentType = att.ContentType
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		att.ContentURL = fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
		if att.ContentType == "" {
			att.ContentType = contentType
		}
	}
}

// isLocalRef reports whether a content URL references a locally-scoped
// binary handle.
func isLocalRef(url string) bool {
	for _, scheme := range localSchemes {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
