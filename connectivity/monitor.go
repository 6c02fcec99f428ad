package connectivity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRunning is returned by Run when the monitor is already running.
var ErrRunning = errors.New("monitor is already running")

// DefaultInterval is the probe period used when none is configured.
const DefaultInterval = 15 * time.Second

// Monitor tracks connectivity and notifies listeners on reachability edges.
//
// Transitions are queued and delivered in order by a single dispatch goroutine
// started by Run, so listeners are never invoked concurrently with each other.
// Transitions observed before Run starts are delivered once it does.
type Monitor struct {
	mu          sync.Mutex
	status      Status
	listeners   map[int]func(Transition)
	subscribers map[int]chan Transition
	nextID      int
	pending     []Transition
	signal      chan struct{} // buffered, size 1
	running     atomic.Bool

	probe    Probe
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Monitor. Without options it starts in the Connected state,
// has no probe and only changes through Update.
func New(options ...func(*Monitor) error) (*Monitor, error) {
	m := &Monitor{
		listeners:   make(map[int]func(Transition)),
		subscribers: make(map[int]chan Transition),
		signal:      make(chan struct{}, 1),
		interval:    DefaultInterval,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	m.status = Status{State: Connected, Reachable: true}

	for _, option := range options {
		if err := option(m); err != nil {
			return nil, fmt.Errorf("applying option on monitor : %w", err)
		}
	}
	m.status.CheckedAt = m.now()
	return m, nil
}

// WithProbe sets the probe polled by Run.
func WithProbe(probe Probe) func(*Monitor) error {
	return func(m *Monitor) error {
		m.probe = probe
		return nil
	}
}

// WithInterval sets the probe period.
func WithInterval(interval time.Duration) func(*Monitor) error {
	return func(m *Monitor) error {
		if interval <= 0 {
			return fmt.Errorf("invalid probe interval %s", interval)
		}
		m.interval = interval
		return nil
	}
}

// WithInitialState sets the state reported before the first observation.
func WithInitialState(state State) func(*Monitor) error {
	return func(m *Monitor) error {
		m.status.State = state
		m.status.Reachable = state.Reachable()
		return nil
	}
}

// WithLogger sets the logger. A nil logger keeps the discarding default.
func WithLogger(logger *slog.Logger) func(*Monitor) error {
	return func(m *Monitor) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithClock overrides the time source used to stamp statuses and transitions.
func WithClock(now func() time.Time) func(*Monitor) error {
	return func(m *Monitor) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		m.now = now
		return nil
	}
}

// Current returns the last observed status.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Update records an observed state. A transition is queued for delivery only
// when reachability changes; moving between Disconnected and ConnectedNoInternet
// is recorded silently.
func (m *Monitor) Update(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	previous := m.status.State
	m.status = Status{State: state, Reachable: state.Reachable(), CheckedAt: now}

	if previous.Reachable() == state.Reachable() {
		return
	}

	m.pending = append(m.pending, Transition{From: previous, To: state, At: now})
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// OnChange registers fn to be called, in order, for every reachability
// transition. Unlike Subscribe nothing is dropped; fn runs on the dispatcher
// and should return quickly. The returned function unregisters it.
func (m *Monitor) OnChange(fn func(Transition)) (unregister func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Subscribe returns a channel receiving reachability transitions on a best
// effort basis. Delivery never blocks the dispatcher: when the buffer is full
// the transition is dropped for that subscriber only. Callers that must see
// every transition, such as the queue drain trigger, register with OnChange.
// cancel closes the channel.
func (m *Monitor) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Transition, buffer)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Check runs the probe once and records the result.
// It returns the current state unchanged when no probe is configured.
func (m *Monitor) Check(ctx context.Context) State {
	if m.probe == nil {
		return m.Current().State
	}
	state := m.probe.Check(ctx)
	m.Update(state)
	return state
}

// Run delivers transitions until ctx is done. When a probe is configured it is
// checked immediately and then every interval. Only one Run may be active.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.running.Store(false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.dispatch(ctx)
	}()
	defer wg.Wait()

	if m.probe == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		state := m.Check(ctx)
		m.logger.Debug("connectivity checked", "state", state.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context) {
	for {
		for {
			transition, ok := m.next()
			if !ok {
				break
			}
			m.deliver(transition)
		}

		select {
		case <-ctx.Done():
			return
		case <-m.signal:
		}
	}
}

// next pops the oldest pending transition.
func (m *Monitor) next() (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return Transition{}, false
	}
	transition := m.pending[0]
	m.pending[0] = Transition{}
	m.pending = m.pending[1:]
	return transition, true
}

func (m *Monitor) deliver(transition Transition) {
	m.mu.Lock()
	listeners := make([]func(Transition), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- transition:
		default:
			m.logger.Warn("connectivity subscriber is full, dropping transition",
				"from", transition.From.String(), "to", transition.To.String())
		}
	}
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "from", transition.From.String(), "to", transition.To.String())
	for _, fn := range listeners {
		fn(transition)
	}
}
