package connectivity

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Probe observes the current connectivity state.
type Probe interface {
	Check(ctx context.Context) State
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) State

// Check calls f(ctx).
func (f ProbeFunc) Check(ctx context.Context) State {
	return f(ctx)
}

// HTTPClient is the subset of *http.Client used by HTTPProbe.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProbe reports Connected when a HEAD request against URL returns any
// HTTP response, Disconnected otherwise.
type HTTPProbe struct {
	URL     string
	Client  HTTPClient
	Timeout time.Duration
}

// Check performs the HEAD request.
func (p *HTTPProbe) Check(ctx context.Context) State {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return Disconnected
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return Disconnected
	}
	res.Body.Close()
	return Connected
}

// InterfaceProbe reports ConnectedNoInternet when at least one non-loopback
// interface is up and running, Disconnected otherwise.
type InterfaceProbe struct {
	// Interfaces lists the host interfaces. Defaults to net.Interfaces.
	Interfaces func() ([]net.Interface, error)
}

// Check inspects the interface flags.
func (p *InterfaceProbe) Check(context.Context) State {
	list := p.Interfaces
	if list == nil {
		list = net.Interfaces
	}
	ifaces, err := list()
	if err != nil {
		return Disconnected
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0 {
			return ConnectedNoInternet
		}
	}
	return Disconnected
}

// Chain combines a link probe with an internet probe. The internet probe is
// only consulted when the link probe finds a usable link.
func Chain(link, internet Probe) Probe {
	return ProbeFunc(func(ctx context.Context) State {
		if link.Check(ctx) == Disconnected {
			return Disconnected
		}
		if internet.Check(ctx) == Connected {
			return Connected
		}
		return ConnectedNoInternet
	})
}

// NewProbe returns the default probe: host interfaces first, then a HEAD
// request against url.
func NewProbe(url string, client HTTPClient) Probe {
	return Chain(&InterfaceProbe{}, &HTTPProbe{URL: url, Client: client})
}
