package db

import (
	"context"
	"fmt"
	"time"

	"github.com/MODJayden/jobcue/domain"
	"github.com/google/uuid"
)

var _ domain.DeadLetterRepository = (*Repository)(nil)

// dbDeadLetter represents a dropped queue entry as stored in the database.
type dbDeadLetter struct {
	ID             uuid.UUID `db:"id"`              // Identifier of the original queued request.
	Method         string    `db:"method"`          // HTTP method of the request.
	Path           string    `db:"path"`            // Target path of the request.
	IdempotencyKey string    `db:"idempotency_key"` // Idempotency key the request was sent with.
	RetryCount     int       `db:"retry_count"`     // Failed replays before the drop.
	Reason         string    `db:"reason"`          // Drop reason.
	EnqueuedAt     time.Time `db:"enqueued_at"`     // When the request was deferred.
	DroppedAt      time.Time `db:"dropped_at"`      // When the drainer dropped it.
}

// toDomainDeadLetter converts a dbDeadLetter to a domain.DeadLetter.
func toDomainDeadLetter(dbLetter *dbDeadLetter) *domain.DeadLetter {
	return &domain.DeadLetter{
		ID:             dbLetter.ID,
		Method:         dbLetter.Method,
		Path:           dbLetter.Path,
		IdempotencyKey: dbLetter.IdempotencyKey,
		RetryCount:     dbLetter.RetryCount,
		Reason:         domain.DropReason(dbLetter.Reason),
		EnqueuedAt:     dbLetter.EnqueuedAt,
		DroppedAt:      dbLetter.DroppedAt,
	}
}

// fromDomainDeadLetter converts a domain.DeadLetter to a dbDeadLetter.
func fromDomainDeadLetter(letter *domain.DeadLetter) *dbDeadLetter {
	return &dbDeadLetter{
		ID:             letter.ID,
		Method:         letter.Method,
		Path:           letter.Path,
		IdempotencyKey: letter.IdempotencyKey,
		RetryCount:     letter.RetryCount,
		Reason:         string(letter.Reason),
		EnqueuedAt:     letter.EnqueuedAt.UTC(),
		DroppedAt:      letter.DroppedAt.UTC(),
	}
}

// InsertDeadLetter saves a record of a dropped queue entry.
// Recording the same entry twice keeps the latest drop.
func (repo *Repository) InsertDeadLetter(ctx context.Context, letter *domain.DeadLetter) error {
	dbLetter := fromDomainDeadLetter(letter)
	query := `INSERT INTO dead_letter (id, method, path, idempotency_key, retry_count, reason, enqueued_at, dropped_at)
	          VALUES (:id, :method, :path, :idempotency_key, :retry_count, :reason, :enqueued_at, :dropped_at)
	          ON CONFLICT(id) DO UPDATE SET retry_count = excluded.retry_count, reason = excluded.reason, dropped_at = excluded.dropped_at`

	_, err := repo.dbConn.NamedExecContext(ctx, query, dbLetter)
	if err != nil {
		return fmt.Errorf("inserting dead letter %s: %w", letter.ID, err)
	}

	return nil
}

// GetDeadLetters retrieves all dropped entries, oldest drop first.
func (repo *Repository) GetDeadLetters(ctx context.Context) ([]*domain.DeadLetter, error) {
	var dbLetters []*dbDeadLetter
	query := `SELECT id, method, path, idempotency_key, retry_count, reason, enqueued_at, dropped_at
	          FROM dead_letter ORDER BY dropped_at, id`

	err := repo.dbConn.SelectContext(ctx, &dbLetters, query)
	if err != nil {
		return nil, fmt.Errorf("fetching dead letters: %w", err)
	}

	letters := make([]*domain.DeadLetter, len(dbLetters))
	for i, dbLetter := range dbLetters {
		letters[i] = toDomainDeadLetter(dbLetter)
	}

	return letters, nil
}
