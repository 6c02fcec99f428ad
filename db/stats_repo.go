package db

import (
	"context"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountQueued returns the number of requests waiting in the queue.
func (repo *Repository) CountQueued(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COALESCE((SELECT json_array_length(value) FROM kv WHERE key = ?), 0)`

	err := repo.dbConn.GetContext(ctx, &count, query, domain.QueueKey)
	if err != nil {
		return 0, fmt.Errorf("getting queued count: %w", err)
	}

	return count, nil
}

// CountDeadLetters returns the number of dropped requests recorded.
func (repo *Repository) CountDeadLetters(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM dead_letter`

	err := repo.dbConn.GetContext(ctx, &count, query)
	if err != nil {
		return 0, fmt.Errorf("getting dead letter count: %w", err)
	}

	return count, nil
}
