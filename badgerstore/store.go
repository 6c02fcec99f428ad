// Package badgerstore keeps the request queue and the credential in an
// embedded BadgerDB.
//
// The queue is stored as one JSON array under domain.QueueKey and is
// rewritten inside a read-write transaction on every change, so concurrent
// writers in the same process serialise on badger's conflict detection.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MODJayden/jobcue/domain"
	"github.com/dgraph-io/badger/v4"
)

var (
	_ domain.QueueRepository      = (*Store)(nil)
	_ domain.CredentialRepository = (*Store)(nil)
)

// maxConflictRetries bounds the read-modify-write retries on ErrConflict.
const maxConflictRetries = 5

// Config configures the database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path     string
	InMemory bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Store is a BadgerDB backed queue and credential repository.
type Store struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens or creates the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("creating store directory %s : %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store : %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func readQueue(txn *badger.Txn) ([]domain.QueuedRequest, error) {
	item, err := txn.Get([]byte(domain.QueueKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []domain.QueuedRequest{}, nil
	}
	if err != nil {
		return nil, err
	}

	var queue []domain.QueuedRequest
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &queue)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding queue : %w", err)
	}
	if queue == nil {
		queue = []domain.QueuedRequest{}
	}
	return queue, nil
}

func writeQueue(txn *badger.Txn, queue []domain.QueuedRequest) error {
	if queue == nil {
		queue = []domain.QueuedRequest{}
	}
	data, err := json.Marshal(queue)
	if err != nil {
		return fmt.Errorf("encoding queue : %w", err)
	}
	return txn.Set([]byte(domain.QueueKey), data)
}

// Enqueue appends req to the stored array.
func (s *Store) Enqueue(ctx context.Context, req domain.QueuedRequest) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		queue, err := readQueue(txn)
		if err != nil {
			return err
		}
		return writeQueue(txn, append(queue, req))
	})
	if err != nil {
		return fmt.Errorf("enqueueing request %s : %w", req.ID, err)
	}
	return nil
}

// All returns the stored array in FIFO order.
func (s *Store) All(ctx context.Context) ([]domain.QueuedRequest, error) {
	var queue []domain.QueuedRequest
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		queue, err = readQueue(txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading queue : %w", err)
	}
	return queue, nil
}

// ReplaceAll overwrites the stored array.
func (s *Store) ReplaceAll(ctx context.Context, reqs []domain.QueuedRequest) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return writeQueue(txn, reqs)
	})
	if err != nil {
		return fmt.Errorf("replacing queue : %w", err)
	}
	return nil
}

// CountQueued returns the number of stored entries.
func (s *Store) CountQueued(ctx context.Context) (int, error) {
	queue, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

// GetToken returns domain.ErrNoCredential when no token is stored.
func (s *Store) GetToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(domain.CredentialKey))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		token = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", domain.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("reading token : %w", err)
	}
	return token, nil
}

// SetToken stores the token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(domain.CredentialKey), []byte(token))
	})
	if err != nil {
		return fmt.Errorf("storing token : %w", err)
	}
	return nil
}

// ClearToken removes the token. Clearing an absent token is not an error.
func (s *Store) ClearToken(ctx context.Context) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(domain.CredentialKey))
	})
	if err != nil {
		return fmt.Errorf("clearing token : %w", err)
	}
	return nil
}
