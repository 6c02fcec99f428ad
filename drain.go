package jobcue

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MODJayden/jobcue/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DrainReport summarises one drain pass.
type DrainReport struct {
	Succeeded int // replayed with a 2xx
	Retried   int // failed and kept with an incremented retry count
	Exhausted int // failed on the last allowed attempt and dropped
	Expired   int // dropped unsent because they were too old
	Skipped   int // left untouched because the pass was cancelled
	Remaining int // entries in the queue after the write-back
}

// Visited is the number of entries the pass acted on.
func (r DrainReport) Visited() int {
	return r.Succeeded + r.Retried + r.Exhausted + r.Expired
}

// RetryQueuedRequests drains the queue on demand.
func (client *Client) RetryQueuedRequests(ctx context.Context) (DrainReport, error) {
	return client.Drain(ctx)
}

// Drain replays the queued requests in FIFO order.
//
// Only one drain runs at a time; a concurrent call returns
// ErrDrainInProgress without touching the queue. Entries older than
// queue.max_age are dropped without a network call. A failed replay
// increments the entry's retry count and the entry is dropped once the count
// reaches queue.max_retries. Entries enqueued while the pass was running are
// kept after the residual. When ctx is cancelled the entries not yet visited
// are written back unchanged.
func (client *Client) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	if !client.draining.CompareAndSwap(false, true) {
		return report, ErrDrainInProgress
	}
	defer client.draining.Store(false)

	snapshot, err := client.queue.All(ctx)
	if err != nil {
		return report, fmt.Errorf("reading queue : %w", err)
	}
	if len(snapshot) == 0 {
		return report, nil
	}

	maxAge := client.Config.Queue.MaxAge
	maxRetries := client.Config.Queue.MaxRetries
	residual := make([]domain.QueuedRequest, 0, len(snapshot))

	for i, entry := range snapshot {
		if ctx.Err() != nil {
			report.Skipped = len(snapshot) - i
			residual = append(residual, snapshot[i:]...)
			break
		}

		now := client.clock.Now()
		if entry.Expired(now, maxAge) {
			report.Expired++
			client.drop(ctx, entry, domain.DropExpired)
			continue
		}

		if client.limiter != nil {
			if err := client.limiter.Wait(ctx); err != nil {
				report.Skipped = len(snapshot) - i
				residual = append(residual, snapshot[i:]...)
				break
			}
		}

		if err := client.replay(ctx, entry); err != nil {
			if ctx.Err() != nil {
				report.Skipped = len(snapshot) - i
				residual = append(residual, snapshot[i:]...)
				break
			}
			client.metrics.replays.WithLabelValues(replayFailed).Inc()

			entry.RetryCount++
			if entry.RetryCount >= maxRetries {
				report.Exhausted++
				client.drop(ctx, entry, domain.DropRetriesExhausted)
				continue
			}
			client.logger.Info("replay failed, keeping entry",
				"id", entry.ID, "method", entry.Method, "path", entry.Path,
				"retry_count", entry.RetryCount, "error", err)
			report.Retried++
			residual = append(residual, entry)
			continue
		}

		client.metrics.replays.WithLabelValues(replaySucceeded).Inc()
		report.Succeeded++
	}

	remaining, err := client.writeBack(context.WithoutCancel(ctx), snapshot, residual)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining
	return report, nil
}

// writeBack replaces the queue with residual followed by any entry that was
// not part of snapshot, i.e. enqueued while the pass was running.
func (client *Client) writeBack(ctx context.Context, snapshot, residual []domain.QueuedRequest) (int, error) {
	client.queueMu.Lock()
	defer client.queueMu.Unlock()

	current, err := client.queue.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("re-reading queue : %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(snapshot))
	for _, entry := range snapshot {
		seen[entry.ID] = struct{}{}
	}
	for _, entry := range current {
		if _, ok := seen[entry.ID]; !ok {
			residual = append(residual, entry)
		}
	}

	if err := client.queue.ReplaceAll(ctx, residual); err != nil {
		return 0, fmt.Errorf("writing back queue : %w", err)
	}
	client.metrics.depth.Set(float64(len(residual)))
	return len(residual), nil
}

// replay sends entry through the shared transport with the current
// credential. It never takes the offline branch of Execute.
func (client *Client) replay(ctx context.Context, entry domain.QueuedRequest) error {
	ctx, span := client.tracer.Start(ctx, "jobcue.Replay", trace.WithAttributes(
		attribute.String("jobcue.queue.id", entry.ID.String()),
		attribute.String("http.request.method", entry.Method),
		attribute.Int("jobcue.queue.retry_count", entry.RetryCount),
	))
	defer span.End()

	err := client.replayRequest(ContextWithReplay(ctx, entry.ID), entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replay failed")
	}
	return err
}

func (client *Client) replayRequest(ctx context.Context, entry domain.QueuedRequest) error {
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if entry.IdempotencyKey != "" {
		header.Set(IdempotencyKeyHeader, entry.IdempotencyKey)
	}

	req, _, err := client.newRequest(ctx, entry.Method, entry.Path, header, entry.Body)
	if err != nil {
		return err
	}
	if err := client.modifiers.ModifyRequest(req); err != nil {
		return fmt.Errorf("running request modifiers : %w", err)
	}

	res, err := client.send(req)
	if errors.Is(err, ErrIncompleteResponse) && res.StatusCode >= 200 && res.StatusCode < 300 {
		client.logger.Warn("replayed request accepted with an unreadable body",
			"id", entry.ID, "status", res.StatusCode, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &StatusError{StatusCode: res.StatusCode, Body: res.Body}
	}
	return nil
}

// drop removes entry for good, recording a dead letter when the store keeps them.
func (client *Client) drop(ctx context.Context, entry domain.QueuedRequest, reason domain.DropReason) {
	client.metrics.dropped.WithLabelValues(string(reason)).Inc()
	client.logger.Warn("dropping queued request",
		"id", entry.ID, "method", entry.Method, "path", entry.Path,
		"retry_count", entry.RetryCount, "reason", string(reason))

	if client.deadLetters == nil {
		return
	}
	letter := domain.NewDeadLetter(entry, reason, client.clock.Now().UTC())
	if err := client.deadLetters.InsertDeadLetter(context.WithoutCancel(ctx), letter); err != nil {
		client.logger.Error("recording dead letter", "id", entry.ID, "error", err)
	}
}

// refreshDepth sets the queue depth gauge from the store.
func (client *Client) refreshDepth(ctx context.Context) {
	queue, err := client.queue.All(ctx)
	if err != nil {
		client.logger.Warn("reading queue depth", "error", err)
		return
	}
	client.metrics.depth.Set(float64(len(queue)))
}
