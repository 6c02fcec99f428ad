package jobcue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// newTransport builds the base RoundTripper for fingerprint.
func newTransport(fingerprint string) (http.RoundTripper, error) {
	switch fingerprint {
	case "", FingerprintNone:
		transport := http.DefaultTransport.(*http.Transport).Clone()
		// response decompression is handled by CompressedResponseModifier
		transport.DisableCompression = true
		return transport, nil
	case FingerprintChrome:
		return newChromeTransport(), nil
	default:
		return nil, fmt.Errorf("unknown tls fingerprint %q", fingerprint)
	}
}

// newChromeTransport returns a transport whose TLS handshake mimics Chrome
// using utls. ALPN is pinned to http/1.1 since net/http cannot speak h2 over
// a utls connection.
func newChromeTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		sniHost, _, err := net.SplitHostPort(addr)
		if err != nil {
			sniHost = addr
		}

		config := &utls.Config{ServerName: sniHost}
		if transport.TLSClientConfig != nil {
			config.InsecureSkipVerify = transport.TLSClientConfig.InsecureSkipVerify
			config.RootCAs = transport.TLSClientConfig.RootCAs
		}

		uConn := utls.UClient(tcpConn, config, utls.HelloChrome_Auto)
		if err := uConn.BuildHandshakeState(); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("building handshake state : %w", err)
		}

		// HelloChrome_Auto ignores config.NextProtos, the extension has to be
		// rewritten before the handshake
		foundALPN := false
		for _, ext := range uConn.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
				foundALPN = true
				break
			}
		}
		if !foundALPN {
			tcpConn.Close()
			return nil, errors.New("could not find ALPNExtension")
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			tcpConn.Close()
			return nil, err
		}
		return uConn, nil
	}
	return transport
}
