package jobcue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MODJayden/jobcue/domain"
	"github.com/MODJayden/jobcue/rawhttp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeInvalid    = "invalid"
	outcomeQueueError = "queue_error"
	outcomeIncomplete = "incomplete_response"

	maxDumpedBody = 4 << 10
)

// Execute sends spec through the request pipeline.
//
// When the monitor reports the network unreachable, mutating requests in the
// queue scope are persisted and a StatusQueued result is returned without
// any network I/O; other requests fail with ErrNoConnectivity. A mutating
// request whose send fails in transport is queued the same way. A 401
// clears the credential and returns ErrAuthExpired, any other non-2xx
// status returns a *StatusError.
func (client *Client) Execute(ctx context.Context, spec RequestSpec) (*Result, error) {
	ctx, span := client.tracer.Start(ctx, "jobcue.Execute", trace.WithAttributes(
		attribute.String("http.request.method", spec.Method),
		attribute.String("url.path", spec.Path),
	))
	defer span.End()

	method := strings.ToUpper(spec.Method)
	if method == "" {
		method = http.MethodGet
	}

	result, outcome, err := client.execute(ctx, method, spec)
	client.metrics.requests.WithLabelValues(method, outcome).Inc()
	span.SetAttributes(attribute.String("jobcue.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return result, err
}

func (client *Client) execute(ctx context.Context, method string, spec RequestSpec) (*Result, string, error) {
	req, path, err := client.newRequest(ctx, method, spec.Path, spec.Header, spec.Body)
	if err != nil {
		return nil, outcomeInvalid, err
	}
	if err := client.modifiers.ModifyRequest(req); err != nil {
		return nil, outcomeInvalid, fmt.Errorf("running request modifiers : %w", err)
	}

	deferrable := domain.IsMutating(method) && client.scope.Matches(path)

	if !client.monitor.Current().Reachable {
		if !deferrable {
			return nil, outcomeOffline, ErrNoConnectivity
		}
		return client.queueRequest(ctx, req, path, spec.Body)
	}

	res, err := client.send(req)
	if err != nil {
		if deferrable && isTransport(err) && ctx.Err() == nil {
			client.logger.Warn("request failed in transport, deferring it",
				"method", method, "path", path, "error", err)
			return client.queueRequest(ctx, req, path, spec.Body)
		}
		if isTransport(err) {
			return nil, outcomeTransport, err
		}
		return nil, outcomeIncomplete, err
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return &Result{Status: StatusSucceeded, Response: res}, outcomeSucceeded, nil
	case res.StatusCode == http.StatusUnauthorized:
		return nil, outcomeAuthExpired, fmt.Errorf("%w : %s %s", ErrAuthExpired, method, path)
	default:
		return nil, outcomeStatusError, &StatusError{StatusCode: res.StatusCode, Body: res.Body}
	}
}

func (client *Client) queueRequest(ctx context.Context, req *http.Request, path string, body []byte) (*Result, string, error) {
	entry, err := client.enqueue(ctx, req, path, body)
	if err != nil {
		return nil, outcomeQueueError, err
	}
	return &Result{Status: StatusQueued, Queued: entry}, outcomeQueued, nil
}

// enqueue persists req. The Authorization and X-Request-ID headers are not
// stored; both are set again on replay.
func (client *Client) enqueue(ctx context.Context, req *http.Request, path string, body []byte) (*domain.QueuedRequest, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating queued request id : %w", err)
	}

	header := req.Header.Clone()
	header.Del("Authorization")
	header.Del(RequestIDHeader)

	entry := domain.QueuedRequest{
		ID:             id,
		Method:         req.Method,
		Path:           path,
		Header:         header,
		Body:           bytes.Clone(body),
		IdempotencyKey: header.Get(IdempotencyKeyHeader),
		EnqueuedAt:     client.clock.Now().UTC(),
	}
	if req.URL.RawQuery != "" {
		entry.Path = path + "?" + req.URL.RawQuery
	}

	client.queueMu.Lock()
	err = client.queue.Enqueue(ctx, entry)
	client.queueMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("enqueueing %s %s : %w", entry.Method, entry.Path, err)
	}

	client.metrics.enqueued.Inc()
	client.metrics.depth.Inc()
	client.logger.Info("request queued", "id", entry.ID, "method", entry.Method, "path", entry.Path)
	return &entry, nil
}

// newRequest resolves path against the base URL. It returns the request and
// the path without its query.
func (client *Client) newRequest(ctx context.Context, method, path string, header http.Header, body []byte) (*http.Request, string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w : parsing path %q : %w", ErrInvalidRequest, path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, "", fmt.Errorf("%w : path %q must be relative to the base url", ErrInvalidRequest, path)
	}

	target := client.baseURL.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, "", fmt.Errorf("%w : %w", ErrInvalidRequest, err)
	}
	if header != nil {
		req.Header = header.Clone()
	}
	return req, ref.Path, nil
}

// send performs req and the response modifiers and reads the whole body.
// Errors obtaining a response wrap ErrTransport. Once a status line has been
// received, failures wrap ErrIncompleteResponse instead and the returned
// Response carries the status and header without a body.
func (client *Client) send(req *http.Request) (*Response, error) {
	res, err := client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w : %w", ErrTransport, err)
	}
	if res.Request == nil {
		res.Request = req
	}

	if err := client.modifiers.ModifyResponse(res); err != nil {
		res.Body.Close()
		if res.StatusCode == http.StatusUnauthorized {
			client.logger.Debug("discarding unreadable 401 body", "error", err)
			return &Response{StatusCode: res.StatusCode, Header: res.Header}, nil
		}
		return &Response{StatusCode: res.StatusCode, Header: res.Header},
			fmt.Errorf("%w : running response modifiers : %w", ErrIncompleteResponse, err)
	}

	if res.StatusCode >= 400 {
		client.debugDump(res)
	}

	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return &Response{StatusCode: res.StatusCode, Header: res.Header},
			fmt.Errorf("%w : reading response body : %w", ErrIncompleteResponse, err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: body}, nil
}

// debugDump logs the failed response with a prettified body.
func (client *Client) debugDump(res *http.Response) {
	if !client.logger.Enabled(res.Request.Context(), slog.LevelDebug) {
		return
	}
	raw, pretty, err := rawhttp.DumpResponse(res)
	if err != nil {
		client.logger.Debug("dumping response", "error", err)
		return
	}
	if pretty == "" {
		pretty = string(raw)
	}
	client.logger.Debug("request failed",
		"method", res.Request.Method,
		"url", res.Request.URL.String(),
		"response", string(rawhttp.Truncate([]byte(pretty), maxDumpedBody)))
}

func isTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
