// Package redisstore keeps the request queue and the credential in Redis.
//
// The queue is a Redis list under domain.QueueKey holding one JSON document
// per entry, oldest first. The credential is a plain string key.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MODJayden/jobcue/domain"
	"github.com/redis/go-redis/v9"
)

var (
	_ domain.QueueRepository      = (*Store)(nil)
	_ domain.CredentialRepository = (*Store)(nil)
)

// Store is a Redis backed queue and credential repository.
type Store struct {
	client *redis.Client
	prefix string
}

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key, e.g. "jobcue:".
	Prefix string
}

// Open connects to Redis and verifies the connection with a PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s : %w", opts.Addr, err)
	}

	return New(client, opts.Prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Enqueue appends the entry to the tail of the list.
func (s *Store) Enqueue(ctx context.Context, req domain.QueuedRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling queued request %s : %w", req.ID, err)
	}
	if err := s.client.RPush(ctx, s.key(domain.QueueKey), data).Err(); err != nil {
		return fmt.Errorf("pushing queued request %s : %w", req.ID, err)
	}
	return nil
}

// All returns the whole list in FIFO order.
func (s *Store) All(ctx context.Context) ([]domain.QueuedRequest, error) {
	values, err := s.client.LRange(ctx, s.key(domain.QueueKey), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading queue : %w", err)
	}

	queue := make([]domain.QueuedRequest, 0, len(values))
	for i, value := range values {
		var req domain.QueuedRequest
		if err := json.Unmarshal([]byte(value), &req); err != nil {
			return nil, fmt.Errorf("decoding queue entry %d : %w", i, err)
		}
		queue = append(queue, req)
	}
	return queue, nil
}

// ReplaceAll swaps the list for reqs inside a MULTI/EXEC block.
func (s *Store) ReplaceAll(ctx context.Context, reqs []domain.QueuedRequest) error {
	values := make([]any, 0, len(reqs))
	for _, req := range reqs {
		data, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshalling queued request %s : %w", req.ID, err)
		}
		values = append(values, data)
	}

	key := s.key(domain.QueueKey)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing queue : %w", err)
	}
	return nil
}

// CountQueued returns the list length.
func (s *Store) CountQueued(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key(domain.QueueKey)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting queue : %w", err)
	}
	return int(n), nil
}

// GetToken returns domain.ErrNoCredential when no token is stored.
func (s *Store) GetToken(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key(domain.CredentialKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("reading token : %w", err)
	}
	return token, nil
}

// SetToken stores the token without expiry.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(domain.CredentialKey), token, 0).Err(); err != nil {
		return fmt.Errorf("storing token : %w", err)
	}
	return nil
}

// ClearToken deletes the token. Clearing an absent token is not an error.
func (s *Store) ClearToken(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(domain.CredentialKey)).Err(); err != nil {
		return fmt.Errorf("clearing token : %w", err)
	}
	return nil
}
