// ABOUTME: History store contract for persisting and replaying conversation activities.
// ABOUTME: The adapter core only fetches; save and clear are consumer responsibilities.

package history

import (
	"context"

	"github.com/2389/chatbridge/internal/activity"
)

// Store persists enriched activities keyed by conversation id. Fetch returns
// activities in their original stored order, already enriched with
// timestamps and sequence ids; the adapter replays them verbatim.
//
// The connection core only ever calls Fetch. Save and Clear exist for the
// consuming application, which observes the adapter's output feed and
// decides what to persist.
type Store interface {
	Fetch(ctx context.Context, conversationID string) ([]*activity.Activity, error)
	Save(ctx context.Context, conversationID string, a *activity.Activity) error
	Clear(ctx context.Context, conversationID string) error
}
