// Package jobcue provides a resilient API client for the JobCue marketplace.
//
// Requests go through a modifier pipeline that authenticates them and tags
// mutating calls with an idempotency key. When the network is unreachable,
// mutating requests are persisted to a durable queue instead of failing and
// are replayed once connectivity returns, with bounded retries and expiry.
//
// The core functionality includes:
//   - Bearer credential handling with automatic clearing on 401
//   - Connectivity tracking through the connectivity package
//   - Durable queues on SQLite, Redis or BadgerDB
//   - A single-flight queue drainer with dead-letter records
//   - Prometheus metrics and OpenTelemetry spans
package jobcue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/MODJayden/jobcue/badgerstore"
	"github.com/MODJayden/jobcue/connectivity"
	"github.com/MODJayden/jobcue/db"
	"github.com/MODJayden/jobcue/domain"
	"github.com/MODJayden/jobcue/redisstore"
	"github.com/google/martian/fifo"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const tracerName = "github.com/MODJayden/jobcue"

// Client is the resilient API client. It is safe for concurrent use.
type Client struct {
	Config      *Config
	baseURL     *url.URL
	httpClient  *http.Client
	transport   http.RoundTripper
	modifiers   *fifo.Group
	queue       domain.QueueRepository
	deadLetters domain.DeadLetterRepository // optional
	credRepo    domain.CredentialRepository
	credentials *CredentialProvider
	monitor     *connectivity.Monitor
	scope       *Scope
	clock       Clock
	logger      *slog.Logger
	registerer  prometheus.Registerer
	metrics     *metrics
	tracer      trace.Tracer
	limiter     *rate.Limiter

	draining atomic.Bool
	queueMu  sync.Mutex // serialises enqueue with the drain write-back
	closers  []io.Closer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New creates a Client and applies options. Anything not injected is built
// from Config: the store from store.*, the transport from http.*, the
// monitor from connectivity.* and the queue scope from queue.exclude.
func New(options ...func(*Client) error) (*Client, error) {
	client := &Client{
		modifiers: fifo.NewGroup(),
		scope:     NewScope(true),
		clock:     systemClock{},
		logger:    discardLogger(),
		metrics:   newMetrics(),
	}

	if err := client.WithOptions(options...); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.init(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// WithOptions applies a series of configuration functions to the client.
func (client *Client) WithOptions(options ...func(*Client) error) error {
	for _, option := range options {
		if err := option(client); err != nil {
			return fmt.Errorf("applying option on jobcue : %w", err)
		}
	}
	return nil
}

func (client *Client) init() error {
	if client.Config == nil {
		cfg, err := DefaultConfig()
		if err != nil {
			return err
		}
		client.Config = cfg
	}
	if err := client.Config.Validate(); err != nil {
		return err
	}

	if client.Config.BaseURL == "" {
		return errors.New("base_url is required")
	}
	baseURL, err := url.Parse(client.Config.BaseURL)
	if err != nil {
		return fmt.Errorf("parsing base url : %w", err)
	}
	client.baseURL = baseURL

	for _, pattern := range client.Config.Queue.Exclude {
		if err := client.scope.AddRule(pattern, true); err != nil && !errors.Is(err, ErrRuleExists) {
			return fmt.Errorf("adding queue exclusion %s : %w", pattern, err)
		}
	}

	if client.queue == nil {
		if err := client.openStore(); err != nil {
			return err
		}
	}
	if client.credRepo == nil {
		if repo, ok := client.queue.(domain.CredentialRepository); ok {
			client.credRepo = repo
		}
	}
	if client.deadLetters == nil {
		if repo, ok := client.queue.(domain.DeadLetterRepository); ok {
			client.deadLetters = repo
		}
	}
	client.credentials = NewCredentialProvider(client.credRepo, client.logger)

	if client.httpClient == nil {
		if client.transport == nil {
			transport, err := newTransport(client.Config.HTTP.TLSFingerprint)
			if err != nil {
				return err
			}
			client.transport = transport
		}
		client.httpClient = &http.Client{
			Transport: client.transport,
			Timeout:   client.Config.HTTP.Timeout,
		}
	}

	if client.monitor == nil {
		monitor, err := client.newMonitor()
		if err != nil {
			return err
		}
		client.monitor = monitor
	}

	if client.Config.Drain.ReplayRate > 0 && client.limiter == nil {
		burst := max(client.Config.Drain.ReplayBurst, 1)
		client.limiter = rate.NewLimiter(rate.Limit(client.Config.Drain.ReplayRate), burst)
	}

	if client.registerer != nil {
		if err := client.metrics.register(client.registerer); err != nil {
			return err
		}
	}
	if client.tracer == nil {
		client.tracer = otel.Tracer(tracerName)
	}

	client.defaultModifiers()
	return nil
}

// openStore opens the repository named by store.driver.
func (client *Client) openStore() error {
	cfg := client.Config
	switch cfg.Store.Driver {
	case DriverRedis:
		store, err := redisstore.Open(context.Background(), redisstore.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			Prefix:   cfg.Store.RedisPrefix,
		})
		if err != nil {
			return err
		}
		client.queue = store
		client.closers = append(client.closers, store)
	case DriverBadger:
		path, err := cfg.storePath()
		if err != nil {
			return err
		}
		store, err := badgerstore.Open(badgerstore.Config{Path: path, Logger: client.logger})
		if err != nil {
			return err
		}
		client.queue = store
		client.closers = append(client.closers, store)
	default:
		path, err := cfg.storePath()
		if err != nil {
			return err
		}
		repo, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("opening sqlite store : %w", err)
		}
		client.queue = repo
		client.closers = append(client.closers, repo)
	}
	client.logger.Debug("store opened", "driver", cfg.Store.Driver)
	return nil
}

func (client *Client) newMonitor() (*connectivity.Monitor, error) {
	options := []func(*connectivity.Monitor) error{
		connectivity.WithLogger(client.logger),
		connectivity.WithClock(client.clock.Now),
	}
	if probeURL := client.Config.Connectivity.ProbeURL; probeURL != "" {
		probe := connectivity.NewProbe(probeURL, &http.Client{Transport: client.transport})
		options = append(options, connectivity.WithProbe(probe))
	}
	if interval := client.Config.Connectivity.Interval; interval > 0 {
		options = append(options, connectivity.WithInterval(interval))
	}
	return connectivity.New(options...)
}

// Credentials returns the credential provider.
func (client *Client) Credentials() *CredentialProvider {
	return client.credentials
}

// Monitor returns the connectivity monitor.
func (client *Client) Monitor() *connectivity.Monitor {
	return client.monitor
}

// Scope returns the queue scope.
func (client *Client) Scope() *Scope {
	return client.scope
}

// Queue returns the queue repository.
func (client *Client) Queue() domain.QueueRepository {
	return client.queue
}

// DeadLetters returns the dead-letter repository, nil when the store keeps none.
func (client *Client) DeadLetters() domain.DeadLetterRepository {
	return client.deadLetters
}

// Start runs the connectivity monitor and drains the queue at startup when
// reachable and on every transition back online. It blocks until ctx is done.
func (client *Client) Start(ctx context.Context) error {
	// A pending wake already guarantees a later drain, so extra ones coalesce.
	wake := make(chan struct{}, 1)
	unregister := client.monitor.OnChange(func(transition connectivity.Transition) {
		if !transition.Online() {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	defer unregister()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.monitor.Run(ctx)
		if errors.Is(err, connectivity.ErrRunning) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		client.refreshDepth(ctx)
		if client.monitor.Check(ctx).Reachable() {
			client.drainAndLog(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				client.drainAndLog(ctx)
			}
		}
	})
	return g.Wait()
}

func (client *Client) drainAndLog(ctx context.Context) {
	report, err := client.Drain(ctx)
	switch {
	case errors.Is(err, ErrDrainInProgress):
		client.logger.Debug("drain skipped, another drain is running")
	case err != nil:
		client.logger.Error("draining queue", "error", err)
	default:
		if report.Visited() > 0 {
			client.logger.Info("queue drained",
				"succeeded", report.Succeeded,
				"retried", report.Retried,
				"expired", report.Expired,
				"exhausted", report.Exhausted,
				"remaining", report.Remaining)
		}
	}
}

// Close releases the stores opened by New. Injected repositories are left open.
func (client *Client) Close() error {
	var errs []error
	for _, closer := range client.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	client.closers = nil
	return errors.Join(errs...)
}
