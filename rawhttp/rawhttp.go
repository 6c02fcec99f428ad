// Package rawhttp renders HTTP messages and payloads for logs and the CLI.
package rawhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// Prettify indents JSON, XML or HTML bodies. It returns an empty slice when
// the body is none of those.
func Prettify(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return []byte{}, nil
	}

	trimmed := bytes.TrimSpace(body)

	var jsonData any
	if err := json.Unmarshal(trimmed, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON : %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmed); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML : %w", err)
		}
		return output.Bytes(), nil
	}

	contentType := mimetype.Detect(trimmed).String()
	if strings.Contains(contentType, "text/html") ||
		(bytes.HasPrefix(trimmed, []byte("<")) && !bytes.HasPrefix(trimmed, []byte("<?xml"))) {
		output := gohtml.FormatBytes(trimmed)
		if !bytes.Equal(output, trimmed) && len(output) > 0 {
			return output, nil
		}
	}

	return []byte{}, nil
}

// Display returns the prettified body, or the body itself when it cannot be
// prettified. Binary payloads are summarised by their detected MIME type.
func Display(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if pretty, err := Prettify(body); err == nil && len(pretty) > 0 {
		return string(pretty)
	}
	mtype := mimetype.Detect(body)
	if !strings.HasPrefix(mtype.String(), "text/") && !mtype.Is("application/json") {
		return fmt.Sprintf("<%d bytes of %s>", len(body), mtype.String())
	}
	return string(body)
}

// Truncate shortens b to at most n bytes, marking the cut.
func Truncate(b []byte, n int) []byte {
	if n <= 0 || len(b) <= n {
		return b
	}
	out := make([]byte, 0, n+16)
	out = append(out, b[:n]...)
	return append(out, []byte("\n...[truncated]")...)
}

// dump reads body, restores it on the message through reset and returns the
// raw and prettified renderings of head followed by the body.
func dump(kind string, head []byte, body io.ReadCloser, reset func(io.ReadCloser)) ([]byte, string, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		body.Close()
		if err != nil {
			return []byte{}, "", fmt.Errorf("reading %s body : %w", kind, err)
		}
		reset(io.NopCloser(bytes.NewReader(bodyBytes)))
	}

	raw := make([]byte, 0, len(head)+len(bodyBytes))
	raw = append(raw, head...)
	raw = append(raw, bodyBytes...)

	prettified, err := Prettify(bodyBytes)
	if err != nil || len(prettified) == 0 {
		return raw, "", nil
	}

	pretty := make([]byte, 0, len(head)+len(prettified))
	pretty = append(pretty, head...)
	pretty = append(pretty, prettified...)
	return raw, string(pretty), nil
}

// DumpResponse dumps res and resets its body so it can still be consumed.
// prettyDump is empty when the body cannot be prettified.
func DumpResponse(res *http.Response) (rawDump []byte, prettyDump string, err error) {
	head, err := httputil.DumpResponse(res, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping response : %w", err)
	}
	return dump("response", head, res.Body, func(b io.ReadCloser) { res.Body = b })
}

// DumpRequest dumps req and resets its body so it can still be sent.
// prettyDump is empty when the body cannot be prettified.
func DumpRequest(req *http.Request) (rawDump []byte, prettyDump string, err error) {
	head, err := httputil.DumpRequest(req, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping request : %w", err)
	}
	return dump("request", head, req.Body, func(b io.ReadCloser) { req.Body = b })
}
