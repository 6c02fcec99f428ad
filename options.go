package jobcue

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MODJayden/jobcue/connectivity"
	"github.com/MODJayden/jobcue/db"
	"github.com/MODJayden/jobcue/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// WithConfigDir loads config.yaml from appConfigDir, creating the directory
// and a default file on first run. The store defaults to a location inside
// the directory.
func WithConfigDir(appConfigDir string) func(*Client) error {
	return func(client *Client) error {
		cfg, err := LoadConfig(appConfigDir)
		if err != nil {
			return err
		}
		client.Config = cfg
		return nil
	}
}

// WithConfig uses cfg as is.
func WithConfig(cfg *Config) func(*Client) error {
	return func(client *Client) error {
		if cfg == nil {
			return errors.New("config cannot be nil")
		}
		client.Config = cfg
		return nil
	}
}

// WithBaseURL overrides base_url. It must be applied after WithConfigDir or WithConfig.
func WithBaseURL(baseURL string) func(*Client) error {
	return func(client *Client) error {
		if client.Config == nil {
			cfg, err := DefaultConfig()
			if err != nil {
				return err
			}
			client.Config = cfg
		}
		client.Config.BaseURL = baseURL
		return nil
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) func(*Client) error {
	return func(client *Client) error {
		if logger == nil {
			logger = discardLogger()
		}
		client.logger = logger
		return nil
	}
}

// WithTransport sets the RoundTripper used for every request, replays and
// connectivity probes included.
func WithTransport(transport http.RoundTripper) func(*Client) error {
	return func(client *Client) error {
		if transport == nil {
			return errors.New("transport cannot be nil")
		}
		client.transport = transport
		return nil
	}
}

// WithHTTPClient sets the http.Client used to send requests. It takes
// precedence over WithTransport and http.timeout.
func WithHTTPClient(httpClient *http.Client) func(*Client) error {
	return func(client *Client) error {
		if httpClient == nil {
			return errors.New("http client cannot be nil")
		}
		client.httpClient = httpClient
		if client.transport == nil {
			client.transport = httpClient.Transport
		}
		return nil
	}
}

// WithQueueRepository sets the durable queue. When repo also implements
// domain.CredentialRepository or domain.DeadLetterRepository it is used for
// those too unless they are set explicitly.
func WithQueueRepository(repo domain.QueueRepository) func(*Client) error {
	return func(client *Client) error {
		if repo == nil {
			return errors.New("queue repository cannot be nil")
		}
		client.queue = repo
		return nil
	}
}

// WithCredentialRepository sets where the bearer token is stored.
func WithCredentialRepository(repo domain.CredentialRepository) func(*Client) error {
	return func(client *Client) error {
		client.credRepo = repo
		return nil
	}
}

// WithDeadLetterRepository sets where dropped entries are recorded.
func WithDeadLetterRepository(repo domain.DeadLetterRepository) func(*Client) error {
	return func(client *Client) error {
		client.deadLetters = repo
		return nil
	}
}

// WithDatabase opens the SQLite store at path and closes it with the client.
func WithDatabase(path string) func(*Client) error {
	return func(client *Client) error {
		repo, err := db.Open(path)
		if err != nil {
			return err
		}
		client.queue = repo
		client.closers = append(client.closers, repo)
		return nil
	}
}

// WithMonitor sets the connectivity monitor.
func WithMonitor(monitor *connectivity.Monitor) func(*Client) error {
	return func(client *Client) error {
		if monitor == nil {
			return errors.New("monitor cannot be nil")
		}
		client.monitor = monitor
		return nil
	}
}

// WithClock sets the time source.
func WithClock(clock Clock) func(*Client) error {
	return func(client *Client) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		client.clock = clock
		return nil
	}
}

// WithMetrics registers the client metrics on reg.
func WithMetrics(reg prometheus.Registerer) func(*Client) error {
	return func(client *Client) error {
		client.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the provider for execute and replay spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) func(*Client) error {
	return func(client *Client) error {
		if tp == nil {
			return errors.New("tracer provider cannot be nil")
		}
		client.tracer = tp.Tracer(tracerName)
		return nil
	}
}

// WithReplayLimiter paces replays during a drain. It overrides drain.replay_rate.
func WithReplayLimiter(limiter *rate.Limiter) func(*Client) error {
	return func(client *Client) error {
		client.limiter = limiter
		return nil
	}
}

// WithScopeRule adds a queue scope rule, see Scope.AddRule.
func WithScopeRule(pattern string, exclude bool) func(*Client) error {
	return func(client *Client) error {
		return client.scope.AddRule(pattern, exclude)
	}
}
