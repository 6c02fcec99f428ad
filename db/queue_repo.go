package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
)

var _ domain.QueueRepository = (*Repository)(nil)

// Enqueue implements the domain.QueueRepository interface.
// The entry is appended to the JSON array in a single statement so a concurrent
// ReplaceAll never interleaves with a half-applied append.
func (repo *Repository) Enqueue(ctx context.Context, req domain.QueuedRequest) error {
	entry, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding queued request %s: %w", req.ID, err)
	}

	query := `INSERT INTO kv(key, value, updated_at)
	          VALUES (?, json_array(json(?)), CURRENT_TIMESTAMP)
	          ON CONFLICT(key) DO UPDATE SET value = json_insert(kv.value, '$[#]', json(?)), updated_at = CURRENT_TIMESTAMP`

	_, err = repo.dbConn.ExecContext(ctx, query, domain.QueueKey, string(entry), string(entry))
	if err != nil {
		return fmt.Errorf("enqueuing request %s: %w", req.ID, err)
	}
	return nil
}

// All implements the domain.QueueRepository interface.
// It returns the queued requests in the order they were enqueued.
func (repo *Repository) All(ctx context.Context) ([]domain.QueuedRequest, error) {
	var queue queueValue
	query := `SELECT value FROM kv WHERE key = ?`

	err := repo.dbConn.GetContext(ctx, &queue, query, domain.QueueKey)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.QueuedRequest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting queued requests: %w", err)
	}

	return []domain.QueuedRequest(queue), nil
}

// ReplaceAll implements the domain.QueueRepository interface.
// The whole sequence is written in one upsert.
func (repo *Repository) ReplaceAll(ctx context.Context, reqs []domain.QueuedRequest) error {
	query := `INSERT INTO kv(key, value, updated_at)
	          VALUES (?, ?, CURRENT_TIMESTAMP)
	          ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	_, err := repo.dbConn.ExecContext(ctx, query, domain.QueueKey, queueValue(reqs))
	if err != nil {
		return fmt.Errorf("replacing %d queued requests: %w", len(reqs), err)
	}
	return nil
}
