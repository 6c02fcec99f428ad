package jobcue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MODJayden/jobcue/connectivity"
	"github.com/MODJayden/jobcue/domain"
	"golang.org/x/time/rate"
)

// queueOffline defers one POST per path while offline and returns the entries.
func queueOffline(t *testing.T, env *testEnv, paths ...string) []domain.QueuedRequest {
	t.Helper()
	env.offline()
	defer env.online()

	for _, path := range paths {
		result, err := env.client.Execute(context.Background(), RequestSpec{
			Method: http.MethodPost,
			Path:   path,
			Body:   []byte(`{"path":"` + path + `"}`),
		})
		if err != nil {
			t.Fatalf("queueing %s: %v", path, err)
		}
		if result.Status != StatusQueued {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", StatusQueued, result.Status)
		}
	}
	return env.store.snapshot()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("should not write when the queue is empty", func(t *testing.T) {
		env := newTestEnv(t)

		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report != (DrainReport{}) {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", DrainReport{}, report)
		}
		if env.store.writes() != 0 || env.rt.calls() != 0 {
			t.Fatalf("expected no writes and no calls, got %d writes %d calls", env.store.writes(), env.rt.calls())
		}
	})

	t.Run("should replay in order and empty the queue", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs/1", "/jobs/2", "/jobs/3")

		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Succeeded != 3 || report.Remaining != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
		if len(env.store.snapshot()) != 0 {
			t.Fatalf("expected an empty queue")
		}

		env.rt.mu.Lock()
		defer env.rt.mu.Unlock()
		for i, want := range []string{"/v1/jobs/1", "/v1/jobs/2", "/v1/jobs/3"} {
			if got := env.rt.requests[i].URL.Path; got != want {
				t.Fatalf("replay %d\nwanted:\n%s\ngot:\n%s", i, want, got)
			}
		}
	})

	t.Run("should keep a failed entry until its retries are exhausted", func(t *testing.T) {
		env := newTestEnv(t)
		queued := queueOffline(t, env, "/jobs")
		env.rt.setHandler(respond(http.StatusServiceUnavailable, `{}`))

		for attempt := 1; attempt < env.client.Config.Queue.MaxRetries; attempt++ {
			report, err := env.client.Drain(ctx)
			if err != nil {
				t.Fatalf("drain %d: %v", attempt, err)
			}
			queue := env.store.snapshot()
			if report.Retried != 1 || len(queue) != 1 {
				t.Fatalf("drain %d: unexpected report %+v", attempt, report)
			}
			if queue[0].RetryCount != attempt {
				t.Fatalf("drain %d\nwanted:\n%d\ngot:\n%d", attempt, attempt, queue[0].RetryCount)
			}
		}

		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Exhausted != 1 || report.Remaining != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
		if env.rt.calls() != env.client.Config.Queue.MaxRetries {
			t.Fatalf("\nwanted:\n%d replays\ngot:\n%d", env.client.Config.Queue.MaxRetries, env.rt.calls())
		}

		letters := env.store.deadLetters()
		if len(letters) != 1 {
			t.Fatalf("\nwanted:\n1 dead letter\ngot:\n%d", len(letters))
		}
		if letters[0].ID != queued[0].ID || letters[0].Reason != domain.DropRetriesExhausted || letters[0].RetryCount != 3 {
			t.Fatalf("unexpected dead letter %+v", letters[0])
		}
	})

	t.Run("should succeed on a later drain after a failure", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs")

		env.rt.setHandler(respond(http.StatusBadGateway, `{}`))
		env.client.Drain(ctx)
		if queue := env.store.snapshot(); len(queue) != 1 || queue[0].RetryCount != 1 {
			t.Fatalf("expected one entry with retry count 1, got %+v", queue)
		}

		env.rt.setHandler(respond(http.StatusOK, `{}`))
		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Succeeded != 1 || len(env.store.snapshot()) != 0 {
			t.Fatalf("unexpected report %+v", report)
		}
	})

	t.Run("should count a replay answered with an unreadable body by its status", func(t *testing.T) {
		cutShort := func(status int) func(*http.Request) (*http.Response, error) {
			return func(req *http.Request) (*http.Response, error) {
				res, _ := respond(status, "")(req)
				res.Body = io.NopCloser(io.MultiReader(strings.NewReader(`{"id"`), &erroringReader{}))
				res.ContentLength = 100
				return res, nil
			}
		}

		env := newTestEnv(t)
		queueOffline(t, env, "/accepted", "/failed")
		env.rt.setHandler(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/v1/accepted" {
				return cutShort(http.StatusCreated)(req)
			}
			return cutShort(http.StatusInternalServerError)(req)
		})

		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Succeeded != 1 || report.Retried != 1 {
			t.Fatalf("unexpected report %+v", report)
		}
		if queue := env.store.snapshot(); len(queue) != 1 || queue[0].Path != "/failed" {
			t.Fatalf("expected only /failed to remain, got %+v", queue)
		}
	})

	t.Run("should drop expired entries without sending them", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs")
		env.clock.Advance(env.client.Config.Queue.MaxAge + time.Minute)

		report, err := env.client.Drain(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Expired != 1 || env.rt.calls() != 0 {
			t.Fatalf("unexpected report %+v with %d calls", report, env.rt.calls())
		}
		letters := env.store.deadLetters()
		if len(letters) != 1 || letters[0].Reason != domain.DropExpired {
			t.Fatalf("expected one expired dead letter, got %+v", letters)
		}
	})

	t.Run("should replay with the current token and the original idempotency key", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.Credentials().SetToken(ctx, "old")
		queued := queueOffline(t, env, "/jobs?notify=false")
		env.client.Credentials().SetToken(ctx, "new")

		if _, err := env.client.Drain(ctx); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		req, body := env.rt.last()
		if got := req.Header.Get("Authorization"); got != "Bearer new" {
			t.Fatalf("\nwanted:\nBearer new\ngot:\n%s", got)
		}
		if got := req.Header.Get(IdempotencyKeyHeader); got != queued[0].IdempotencyKey {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", queued[0].IdempotencyKey, got)
		}
		if req.Header.Get(RequestIDHeader) == "" {
			t.Fatalf("expected a fresh request id")
		}
		if req.URL.RawQuery != "notify=false" || string(body) != string(queued[0].Body) {
			t.Fatalf("unexpected replay %s %s", req.URL, body)
		}
	})

	t.Run("should return ErrDrainInProgress while another drain runs", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs")

		release := make(chan struct{})
		env.rt.setHandler(func(req *http.Request) (*http.Response, error) {
			<-release
			return respond(http.StatusOK, `{}`)(req)
		})

		done := make(chan error, 1)
		go func() {
			_, err := env.client.Drain(ctx)
			done <- err
		}()
		waitFor(t, "first replay", func() bool { return env.rt.calls() == 1 })

		_, err := env.client.Drain(ctx)
		if !errors.Is(err, ErrDrainInProgress) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", ErrDrainInProgress, err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if env.rt.calls() != 1 {
			t.Fatalf("\nwanted:\n1 replay\ngot:\n%d", env.rt.calls())
		}
	})

	t.Run("should keep entries enqueued during the drain", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs/1")

		release := make(chan struct{})
		env.rt.setHandler(func(req *http.Request) (*http.Response, error) {
			<-release
			return respond(http.StatusOK, `{}`)(req)
		})

		done := make(chan DrainReport, 1)
		go func() {
			report, _ := env.client.Drain(ctx)
			done <- report
		}()
		waitFor(t, "first replay", func() bool { return env.rt.calls() == 1 })

		queueOffline(t, env, "/jobs/2")
		close(release)

		report := <-done
		if report.Succeeded != 1 || report.Remaining != 1 {
			t.Fatalf("unexpected report %+v", report)
		}
		queue := env.store.snapshot()
		if len(queue) != 1 || queue[0].Path != "/jobs/2" {
			t.Fatalf("expected /jobs/2 to remain, got %+v", queue)
		}
	})

	t.Run("should leave unvisited entries unchanged when cancelled", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs/1", "/jobs/2")

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		env.rt.setHandler(func(req *http.Request) (*http.Response, error) {
			cancel()
			return respond(http.StatusInternalServerError, `{}`)(req)
		})

		report, err := env.client.Drain(cctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Skipped != 2 || report.Remaining != 2 {
			t.Fatalf("unexpected report %+v", report)
		}
		for _, entry := range env.store.snapshot() {
			if entry.RetryCount != 0 {
				t.Fatalf("expected retry count to be unchanged, got %d", entry.RetryCount)
			}
		}
	})

	t.Run("should pace replays with the limiter", func(t *testing.T) {
		env := newTestEnv(t, WithReplayLimiter(rate.NewLimiter(rate.Inf, 1)))
		queueOffline(t, env, "/jobs/1", "/jobs/2")

		report, err := env.client.RetryQueuedRequests(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report.Succeeded != 2 {
			t.Fatalf("unexpected report %+v", report)
		}
	})
}

func TestStart(t *testing.T) {
	t.Run("should drain at startup when reachable", func(t *testing.T) {
		env := newTestEnv(t)
		queueOffline(t, env, "/jobs")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- env.client.Start(ctx) }()

		waitFor(t, "startup drain", func() bool { return len(env.store.snapshot()) == 0 })
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})

	t.Run("should drain when connectivity returns", func(t *testing.T) {
		monitor, err := connectivity.New(connectivity.WithInitialState(connectivity.Disconnected))
		if err != nil {
			t.Fatalf("creating monitor: %v", err)
		}
		env := newTestEnv(t, WithMonitor(monitor))
		env.monitor = monitor

		// no transition is recorded before Start since the monitor begins offline
		result, err := env.client.Execute(context.Background(), RequestSpec{Method: http.MethodPost, Path: "/jobs"})
		if err != nil || result.Status != StatusQueued {
			t.Fatalf("queueing: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- env.client.Start(ctx) }()

		time.Sleep(20 * time.Millisecond)
		if env.rt.calls() != 0 {
			t.Fatalf("expected no replay while offline")
		}

		env.online()
		waitFor(t, "reconnect drain", func() bool { return len(env.store.snapshot()) == 0 })
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})

	t.Run("should drain again after a burst of transitions during a drain", func(t *testing.T) {
		monitor, err := connectivity.New(connectivity.WithInitialState(connectivity.Disconnected))
		if err != nil {
			t.Fatalf("creating monitor: %v", err)
		}
		env := newTestEnv(t, WithMonitor(monitor))
		env.monitor = monitor

		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		env.rt.setHandler(func(req *http.Request) (*http.Response, error) {
			select {
			case entered <- struct{}{}:
				<-release
			default:
			}
			return respond(http.StatusCreated, `{}`)(req)
		})

		if _, err := env.client.Execute(context.Background(), RequestSpec{Method: http.MethodPost, Path: "/first"}); err != nil {
			t.Fatalf("queueing: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- env.client.Start(ctx) }()

		env.online()
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for the first drain")
		}

		// more transitions than any subscriber buffer while the drain is stuck
		env.offline()
		if _, err := env.client.Execute(context.Background(), RequestSpec{Method: http.MethodPost, Path: "/second"}); err != nil {
			t.Fatalf("queueing: %v", err)
		}
		for i := 0; i < 20; i++ {
			env.online()
			env.offline()
		}
		env.online()
		close(release)

		waitFor(t, "drain after burst", func() bool { return len(env.store.snapshot()) == 0 })
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
	})
}
