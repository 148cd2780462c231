// ABOUTME: Tests for best-effort attachment inlining on outbound message activities.
// ABOUTME: Covers data-URL rewriting, per-attachment failure recovery, and pass-through.

package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatbridge/internal/activity"
)

func TestNormalize_InlinesLocalRefs(t *testing.T) {
	source := ByteSourceFunc(func(_ context.Context, url string) ([]byte, string, error) {
		assert.Equal(t, "blob:local-handle-1", url)
		return []byte("image bytes"), "image/png", nil
	})

	n := NewNormalizer(source, nil)
	a := &activity.Activity{
		Type: activity.TypeMessage,
		Attachments: []activity.Attachment{
			{Name: "photo.png", ContentURL: "blob:local-handle-1"},
		},
	}

	n.Normalize(context.Background(), a)

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("image bytes"))
	assert.Equal(t, want, a.Attachments[0].ContentURL)
	assert.Equal(t, "image/png", a.Attachments[0].ContentType)
}

func TestNormalize_FailureKeepsOriginalReference(t *testing.T) {
	calls := 0
	source := ByteSourceFunc(func(_ context.Context, url string) ([]byte, string, error) {
		calls++
		if url == "blob:broken" {
			return nil, "", errors.New("handle revoked")
		}
		return []byte("ok"), "text/plain", nil
	})

	n := NewNormalizer(source, nil)
	a := &activity.Activity{
		Type: activity.TypeMessage,
		Attachments: []activity.Attachment{
			{ContentURL: "blob:broken"},
			{ContentURL: "file:///tmp/notes.txt"},
		},
	}

	n.Normalize(context.Background(), a)

	assert.Equal(t, 2, calls)
	// Failed attachment keeps its reference; the other is inlined.
	assert.Equal(t, "blob:broken", a.Attachments[0].ContentURL)
	assert.Contains(t, a.Attachments[1].ContentURL, "data:text/plain;base64,")
}

func TestNormalize_RemoteURLsUntouched(t *testing.T) {
	source := ByteSourceFunc(func(_ context.Context, _ string) ([]byte, string, error) {
		t.Fatal("fetch must not be called for transport-safe URLs")
		return nil, "", nil
	})

	n := NewNormalizer(source, nil)
	a := &activity.Activity{
		Type: activity.TypeMessage,
		Attachments: []activity.Attachment{
			{ContentURL: "https://cdn.example.com/doc.pdf"},
			{ContentURL: "data:text/plain;base64,aGk="},
		},
	}

	n.Normalize(context.Background(), a)
	assert.Equal(t, "https://cdn.example.com/doc.pdf", a.Attachments[0].ContentURL)
}

func TestNormalize_NonMessageActivitiesPassThrough(t *testing.T) {
	source := ByteSourceFunc(func(_ context.Context, _ string) ([]byte, string, error) {
		t.Fatal("fetch must not be called for non-message activities")
		return nil, "", nil
	})

	n := NewNormalizer(source, nil)
	a := &activity.Activity{
		Type: activity.TypeEvent,
		Attachments: []activity.Attachment{
			{ContentURL: "blob:handle"},
		},
	}

	n.Normalize(context.Background(), a)
	assert.Equal(t, "blob:handle", a.Attachments[0].ContentURL)
}

func TestNormalize_NilSafe(t *testing.T) {
	var n *Normalizer
	n.Normalize(context.Background(), &activity.Activity{Type: activity.TypeMessage})

	withSource := NewNormalizer(nil, nil)
	withSource.Normalize(context.Background(), nil)
}

func TestNormalize_DefaultContentType(t *testing.T) {
	source := ByteSourceFunc(func(_ context.Context, _ string) ([]byte, string, error) {
		return []byte{0x1, 0x2}, "", nil
	})

	n := NewNormalizer(source, nil)
	a := &activity.Activity{
		Type:        activity.TypeMessage,
		Attachments: []activity.Attachment{{ContentURL: "blob:raw"}},
	}

	n.Normalize(context.Background(), a)
	require.Contains(t, a.Attachments[0].ContentURL, "data:application/octet-stream;base64,")
}
