// ABOUTME: SQLite-backed implementation of the history Store.
// ABOUTME: Stores activities as JSON payloads ordered by sequence id and timestamp.

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/2389/chatbridge/internal/activity"
)

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite history store at the given
// path. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "history")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the activities table if it doesn't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS activities (
			conversation_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			sequence_id INTEGER,
			timestamp DATETIME,
			payload TEXT NOT NULL,
			PRIMARY KEY (conversation_id, activity_id)
		);

		CREATE INDEX IF NOT EXISTS idx_activities_conversation_seq
			ON activities(conversation_id, sequence_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Fetch returns all stored activities for a conversation, ordered by
// sequence id then timestamp. An unknown conversation yields an empty
// slice, not an error: the adapter treats "no history" as a normal start.
func (s *SQLiteStore) Fetch(ctx context.Context, conversationID string) ([]*activity.Activity, error) {
	query := `
		SELECT payload FROM activities
		WHERE conversation_id = ?
		ORDER BY sequence_id ASC, timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var activities []*activity.Activity
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		var a activity.Activity
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decoding activity payload: %w", err)
		}
		activities = append(activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}

	return activities, nil
}

// Save upserts one activity under a conversation id.
func (s *SQLiteStore) Save(ctx context.Context, conversationID string, a *activity.Activity) error {
	if a == nil {
		return fmt.Errorf("activity cannot be nil")
	}
	if a.ID == "" {
		return fmt.Errorf("activity id required for persistence")
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	var seq sql.NullInt64
	if n, ok := a.SequenceID(); ok {
		seq = sql.NullInt64{Int64: n, Valid: true}
	}

	var ts sql.NullTime
	if a.Timestamp != nil {
		ts = sql.NullTime{Time: a.Timestamp.UTC(), Valid: true}
	}

	query := `
		INSERT INTO activities (conversation_id, activity_id, sequence_id, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, activity_id) DO UPDATE SET
			sequence_id = excluded.sequence_id,
			timestamp = excluded.timestamp,
			payload = excluded.payload
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, a.ID, seq, ts, string(payload)); err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}

	s.logger.Debug("activity saved",
		"conversation_id", conversationID,
		"activity_id", a.ID)
	return nil
}

// Clear removes all stored activities for a conversation.
func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
