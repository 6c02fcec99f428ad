package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/MODJayden/jobcue"
	"github.com/MODJayden/jobcue/rawhttp"
	"github.com/spf13/cobra"
)

type doOptions struct {
	data     string
	dataFile string
	headers  []string
}

// doResult is the JSON shape of a do command result.
type doResult struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code,omitempty"`
	Header     http.Header `json:"header,omitempty"`
	Body       string      `json:"body,omitempty"`
	QueuedID   string      `json:"queued_id,omitempty"`
}

// NewDoCommand creates the do command.
func NewDoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &doOptions{}

	cmd := &cobra.Command{
		Use:   "do <method> <path>",
		Short: "Send a request to the API",
		Long: `Send a request to the API through the client pipeline.

The path is resolved against base_url. When the API is unreachable a
mutating request is queued and its queue ID is printed instead.`,
		Example: `  jobcue do GET /jobs
  jobcue do POST /jobs -d '{"title":"Fix sink"}' -H 'Content-Type: application/json'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDo(rootOpts, opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "request body")
	cmd.Flags().StringVar(&opts.dataFile, "data-file", "", "read the request body from a file, - for stdin")
	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "request header as 'Name: value', repeatable")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")

	return cmd
}

func runDo(rootOpts *RootOptions, opts *doOptions, method, path string, cmd *cobra.Command) error {
	header, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	body, err := opts.body(cmd.InOrStdin())
	if err != nil {
		return err
	}

	client, err := rootOpts.newClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()
	client.Monitor().Check(ctx)

	result, err := client.Execute(ctx, jobcue.RequestSpec{
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
	})
	formatter := rootOpts.formatter(cmd)

	var statusErr *jobcue.StatusError
	switch {
	case errors.As(err, &statusErr):
		formatter.Print(doResult{Status: "error", StatusCode: statusErr.StatusCode, Body: string(statusErr.Body)}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, rawhttp.Display(statusErr.Body))
			return err
		})
		return NewExitError(ExitFailure, fmt.Sprintf("request failed with status %d", statusErr.StatusCode))
	case errors.Is(err, jobcue.ErrInvalidRequest):
		return WrapExitError(ExitCommandError, "invalid request", err)
	case err != nil:
		return WrapExitError(ExitFailure, "request failed", err)
	}

	if result.Status == jobcue.StatusQueued {
		id := result.Queued.ID.String()
		return formatter.Print(doResult{Status: result.Status.String(), QueuedID: id}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "queued %s %s as %s\n", result.Queued.Method, result.Queued.Path, id)
			return err
		})
	}

	res := result.Response
	return formatter.Print(doResult{
		Status:     result.Status.String(),
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       string(res.Body),
	}, func(w io.Writer) error {
		if rootOpts.Verbose {
			fmt.Fprintf(w, "%d %s\n", res.StatusCode, http.StatusText(res.StatusCode))
		}
		if len(res.Body) == 0 {
			return nil
		}
		_, err := fmt.Fprintln(w, rawhttp.Display(res.Body))
		return err
	})
}

func (opts *doOptions) body(stdin io.Reader) ([]byte, error) {
	switch opts.dataFile {
	case "":
		if opts.data == "" {
			return nil, nil
		}
		return []byte(opts.data), nil
	case "-":
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "reading body from stdin", err)
		}
		return body, nil
	default:
		body, err := os.ReadFile(opts.dataFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "reading body file", err)
		}
		return body, nil
	}
}

// parseHeaders parses 'Name: value' pairs.
func parseHeaders(values []string) (http.Header, error) {
	if len(values) == 0 {
		return nil, nil
	}
	header := http.Header{}
	for _, value := range values {
		name, v, ok := strings.Cut(value, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid header %q: expected 'Name: value'", value))
		}
		header.Add(name, strings.TrimSpace(v))
	}
	return header, nil
}
