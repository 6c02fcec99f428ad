package jobcue

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/MODJayden/jobcue/domain"
	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
)

const (
	// IdempotencyKeyHeader carries the key the server uses to recognise replays
	IdempotencyKeyHeader = "Idempotency-Key"
	// RequestIDHeader carries the per attempt request ID
	RequestIDHeader = "X-Request-ID"
)

// RequestModifierFunc is a signature for outbound request modifiers, it takes in the request and *Client
type RequestModifierFunc func(client *Client, req *http.Request) error

// ResponseModifierFunc is a signature for response modifiers, it takes in the response and *Client
type ResponseModifierFunc func(client *Client, res *http.Response) error

// reqAdapter adapts the `RequestModifierFunc` and implements the `martian.RequestModifier` interface.
type reqAdapter struct {
	client   *Client
	modifier RequestModifierFunc
}

// ModifyRequest implements the `martian.RequestModifier` interface and allows the modifier to access the *Client
func (adapter *reqAdapter) ModifyRequest(req *http.Request) error {
	return adapter.modifier(adapter.client, req)
}

// resAdapter adapts the `ResponseModifierFunc` and implements the `martian.ResponseModifier` interface.
type resAdapter struct {
	client   *Client
	modifier ResponseModifierFunc
}

// ModifyResponse implements the `martian.ResponseModifier` interface and allows the modifier to access the *Client
func (adapter *resAdapter) ModifyResponse(res *http.Response) error {
	return adapter.modifier(adapter.client, res)
}

// AddRequestModifier appends modifier to the request pipeline. Modifiers run
// in insertion order on every attempt, replays included.
func (client *Client) AddRequestModifier(modifier RequestModifierFunc) {
	client.modifiers.AddRequestModifier(&reqAdapter{client: client, modifier: modifier})
}

// AddResponseModifier appends modifier to the response pipeline.
func (client *Client) AddResponseModifier(modifier ResponseModifierFunc) {
	client.modifiers.AddResponseModifier(&resAdapter{client: client, modifier: modifier})
}

// SetupRequestModifier stamps the request with a fresh request ID and the
// request time, in the context and in the X-Request-ID header.
func SetupRequestModifier(client *Client, req *http.Request) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating uuid for request : %w", err)
	}
	*req = *ContextWithRequestTime(req, client.clock.Now())
	*req = *ContextWithRequestID(req, id)
	req.Header.Set(RequestIDHeader, id.String())
	return nil
}

// UserAgentModifier sets the configured User-Agent unless the caller set one.
func UserAgentModifier(client *Client, req *http.Request) error {
	if req.Header.Get("User-Agent") == "" && client.Config.UserAgent != "" {
		req.Header.Set("User-Agent", client.Config.UserAgent)
	}
	return nil
}

// AcceptEncodingModifier advertises the encodings CompressedResponseModifier understands.
func AcceptEncodingModifier(client *Client, req *http.Request) error {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}
	return nil
}

// IdempotencyModifier gives every mutating request an Idempotency-Key.
// An existing key is kept, so a replayed entry reuses the key it was queued with.
func IdempotencyModifier(client *Client, req *http.Request) error {
	if !domain.IsMutating(req.Method) || req.Header.Get(IdempotencyKeyHeader) != "" {
		return nil
	}
	key, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating idempotency key : %w", err)
	}
	req.Header.Set(IdempotencyKeyHeader, key.String())
	return nil
}

// AuthRequestModifier attaches the current bearer token. A stale
// Authorization header is removed when no token is available.
func AuthRequestModifier(client *Client, req *http.Request) error {
	token, ok := client.credentials.Token(req.Context())
	if !ok {
		req.Header.Del("Authorization")
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// CompressedResponseModifier decompresses the response bodies and replaces the `res.Body`
// with the decompressed data. It will remove the "Content-Encoding" header and update the "Content-Length" to the new length.
// Currently the modifier handles gzip and br compressed bodies. Responses that
// carry no body (HEAD, 204, 304 or an empty read) are left as they are.
func CompressedResponseModifier(client *Client, res *http.Response) error {
	if !hasBody(res) {
		return nil
	}
	encoding := res.Header.Get("Content-Encoding")
	if encoding != "gzip" && encoding != "br" {
		return nil
	}

	buffered := bufio.NewReader(res.Body)
	if _, err := buffered.Peek(1); errors.Is(err, io.EOF) {
		return nil
	}
	res.Body = struct {
		io.Reader
		io.Closer
	}{buffered, res.Body}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			return fmt.Errorf("creating gzip reader : %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(res.Body)
	}
	defer res.Body.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading %s content : %w", res.Header.Get("Content-Encoding"), err)
	}

	res.Body = io.NopCloser(bytes.NewReader(decompressed))
	res.ContentLength = int64(len(decompressed))
	res.Header.Set("Content-Length", strconv.Itoa(len(decompressed)))
	res.Header.Del("Content-Encoding")
	return nil
}

// hasBody reports whether res may carry a payload.
func hasBody(res *http.Response) bool {
	if res.Body == nil || res.ContentLength == 0 {
		return false
	}
	if res.Request != nil && res.Request.Method == http.MethodHead {
		return false
	}
	switch res.StatusCode {
	case http.StatusNoContent, http.StatusNotModified:
		return false
	}
	return true
}

// UnauthorizedResponseModifier clears the stored credential on any 401,
// including 401s received while replaying the queue.
func UnauthorizedResponseModifier(client *Client, res *http.Response) error {
	if res.StatusCode != http.StatusUnauthorized {
		return nil
	}
	ctx := res.Request.Context()
	if err := client.credentials.Clear(ctx); err != nil {
		client.logger.Warn("clearing credential after 401 failed", "error", err)
		return nil
	}
	client.logger.Info("credential cleared after 401", "method", res.Request.Method, "path", res.Request.URL.Path)
	return nil
}

// defaultModifiers installs the built-in pipeline.
func (client *Client) defaultModifiers() {
	client.AddRequestModifier(SetupRequestModifier)
	client.AddRequestModifier(UserAgentModifier)
	client.AddRequestModifier(AcceptEncodingModifier)
	client.AddRequestModifier(IdempotencyModifier)
	client.AddRequestModifier(AuthRequestModifier)

	// Runs first so a body that fails to decode cannot keep a rejected token.
	client.AddResponseModifier(UnauthorizedResponseModifier)
	client.AddResponseModifier(CompressedResponseModifier)
}
