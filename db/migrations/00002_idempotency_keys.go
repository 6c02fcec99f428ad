package migrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

func init() {
	goose.AddMigrationContext(upIdempotencyKeys, downIdempotencyKeys)
}

// upIdempotencyKeys adds the idempotency key to dead letters and backfills a key
// into every queued entry persisted before keys were issued.
func upIdempotencyKeys(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE dead_letter ADD COLUMN idempotency_key TEXT NOT NULL DEFAULT ''`)
	if err != nil {
		return fmt.Errorf("adding idempotency_key column : %w", err)
	}

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, domain.QueueKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading queue : %w", err)
	}

	// Decode loosely so fields unknown to this migration survive the rewrite.
	var entries []map[string]any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return fmt.Errorf("decoding queue : %w", err)
	}

	for i, entry := range entries {
		if key, ok := entry["idempotency_key"].(string); ok && key != "" {
			continue
		}
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating idempotency key for entry %d: %w", i, err)
		}
		entry["idempotency_key"] = id.String()
	}

	updated, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding queue : %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE kv SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ?`, string(updated), domain.QueueKey)
	if err != nil {
		return fmt.Errorf("writing queue : %w", err)
	}
	return nil
}

// downIdempotencyKeys drops the dead letter column. Keys already written into
// queued entries are left in place; older readers ignore them.
func downIdempotencyKeys(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `ALTER TABLE dead_letter DROP COLUMN idempotency_key`)
	if err != nil {
		return fmt.Errorf("dropping idempotency_key column : %w", err)
	}
	return nil
}
