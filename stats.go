package jobcue

import (
	"context"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
)

// QueueStats counts the persisted client state.
type QueueStats struct {
	Queued      int  `json:"queued"`
	DeadLetters int  `json:"dead_letters"`
	Draining    bool `json:"draining"`
}

// Stats reports the queue depth and the number of dead letters. Stores that
// implement domain.StatsRepository answer with a count query, others are read
// in full.
func (client *Client) Stats(ctx context.Context) (QueueStats, error) {
	stats := QueueStats{Draining: client.draining.Load()}

	if counter, ok := client.queue.(domain.StatsRepository); ok {
		queued, err := counter.CountQueued(ctx)
		if err != nil {
			return stats, fmt.Errorf("counting queued requests : %w", err)
		}
		stats.Queued = queued
	} else {
		queue, err := client.queue.All(ctx)
		if err != nil {
			return stats, fmt.Errorf("reading queue : %w", err)
		}
		stats.Queued = len(queue)
	}

	if client.deadLetters == nil {
		return stats, nil
	}
	if counter, ok := client.deadLetters.(domain.StatsRepository); ok {
		count, err := counter.CountDeadLetters(ctx)
		if err != nil {
			return stats, fmt.Errorf("counting dead letters : %w", err)
		}
		stats.DeadLetters = count
		return stats, nil
	}
	letters, err := client.deadLetters.GetDeadLetters(ctx)
	if err != nil {
		return stats, fmt.Errorf("reading dead letters : %w", err)
	}
	stats.DeadLetters = len(letters)
	return stats, nil
}
