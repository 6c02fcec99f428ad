package domain

import "context"

// StatsRepository reports counts about the persisted client state.
type StatsRepository interface {
	// CountQueued returns the number of requests waiting in the queue.
	CountQueued(ctx context.Context) (int, error)
	// CountDeadLetters returns the number of dropped requests recorded.
	CountDeadLetters(ctx context.Context) (int, error)
}
