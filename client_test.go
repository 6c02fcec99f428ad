package jobcue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MODJayden/jobcue/connectivity"
	"github.com/MODJayden/jobcue/domain"
)

const testBaseURL = "https://api.jobcue.test/v1"

// memoryStore is an in-memory queue, credential and dead-letter repository
// that counts writes.
type memoryStore struct {
	mu       sync.Mutex
	queue    []domain.QueuedRequest
	token    string
	letters  []*domain.DeadLetter
	enqueues int
	replaces int
	getErr   error
}

func (s *memoryStore) Enqueue(ctx context.Context, req domain.QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueues++
	s.queue = append(s.queue, req.Clone())
	return nil
}

func (s *memoryStore) All(ctx context.Context) ([]domain.QueuedRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.QueuedRequest, 0, len(s.queue))
	for _, req := range s.queue {
		out = append(out, req.Clone())
	}
	return out, nil
}

func (s *memoryStore) ReplaceAll(ctx context.Context, reqs []domain.QueuedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	s.queue = make([]domain.QueuedRequest, 0, len(reqs))
	for _, req := range reqs {
		s.queue = append(s.queue, req.Clone())
	}
	return nil
}

func (s *memoryStore) GetToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return "", s.getErr
	}
	if s.token == "" {
		return "", domain.ErrNoCredential
	}
	return s.token, nil
}

func (s *memoryStore) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memoryStore) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func (s *memoryStore) InsertDeadLetter(ctx context.Context, letter *domain.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	return nil
}

func (s *memoryStore) GetDeadLetters(ctx context.Context) ([]*domain.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.DeadLetter(nil), s.letters...), nil
}

func (s *memoryStore) snapshot() []domain.QueuedRequest {
	queue, _ := s.All(context.Background())
	return queue
}

func (s *memoryStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueues + s.replaces
}

func (s *memoryStore) deadLetters() []*domain.DeadLetter {
	letters, _ := s.GetDeadLetters(context.Background())
	return letters
}

// testRoundTripper records every request and answers with handler.
type testRoundTripper struct {
	mu       sync.Mutex
	handler  func(req *http.Request) (*http.Response, error)
	requests []*http.Request
	bodies   [][]byte
}

func (rt *testRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	rt.mu.Lock()
	rt.requests = append(rt.requests, req)
	rt.bodies = append(rt.bodies, body)
	handler := rt.handler
	rt.mu.Unlock()

	if handler == nil {
		return respond(http.StatusOK, `{}`)(req)
	}
	return handler(req)
}

func (rt *testRoundTripper) calls() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.requests)
}

func (rt *testRoundTripper) last() (*http.Request, []byte) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.requests) == 0 {
		return nil, nil
	}
	return rt.requests[len(rt.requests)-1], rt.bodies[len(rt.bodies)-1]
}

func (rt *testRoundTripper) setHandler(handler func(req *http.Request) (*http.Response, error)) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.handler = handler
}

func respond(status int, body string) func(req *http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    status,
			Status:        http.StatusText(status),
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Header:        http.Header{"Content-Type": {"application/json"}},
			Body:          io.NopCloser(bytes.NewReader([]byte(body))),
			ContentLength: int64(len(body)),
			Request:       req,
		}, nil
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	client  *Client
	store   *memoryStore
	rt      *testRoundTripper
	monitor *connectivity.Monitor
	clock   *testClock
}

func newTestEnv(t *testing.T, options ...func(*Client) error) *testEnv {
	t.Helper()

	env := &testEnv{
		store: &memoryStore{},
		rt:    &testRoundTripper{},
		clock: &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	monitor, err := connectivity.New()
	if err != nil {
		t.Fatalf("creating monitor: %v", err)
	}
	env.monitor = monitor

	base := []func(*Client) error{
		WithBaseURL(testBaseURL),
		WithQueueRepository(env.store),
		WithTransport(env.rt),
		WithMonitor(monitor),
		WithClock(env.clock),
	}
	client, err := New(append(base, options...)...)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	env.client = client
	return env
}

func (env *testEnv) offline() {
	env.monitor.Update(connectivity.Disconnected)
}

func (env *testEnv) online() {
	env.monitor.Update(connectivity.Connected)
}
