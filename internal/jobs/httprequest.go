// Package jobs holds example job classes an embedding application can
// register with the Registry (C3). They are not core components — the
// core never assumes any particular handler exists — but this one gives
// the teacher's original HTTP-dispatch transport a home, adapted from a
// whole component into a single job class among many an integrator might
// define.
package jobs

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ridgeback/jobqueue/internal/registry"
)

// HTTPRequestClass is the job-class name an integrator registers this
// handler under.
const HTTPRequestClass = "HTTPRequest"

// HTTPRequestArgs is the typed argument shape for HTTPRequestClass.
type HTTPRequestArgs struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           string            `json:"body,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

// HTTPRequestHandler performs an outbound HTTP call on behalf of a job.
// A non-2xx response or a transport error is returned as an error, which
// the worker loop (C6) captures as the job's Error field and retries per
// the job's MaxAttempts.
type HTTPRequestHandler struct {
	client *http.Client
	logger *slog.Logger
}

func NewHTTPRequestHandler(logger *slog.Logger) *HTTPRequestHandler {
	return &HTTPRequestHandler{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger: logger.With("job_class", HTTPRequestClass),
	}
}

// Handle satisfies registry.Handler.
func (h *HTTPRequestHandler) Handle(ctx context.Context, raw json.RawMessage, jobCtx registry.JobContext) error {
	var args HTTPRequestArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	if args.Method == "" {
		args.Method = http.MethodGet
	}
	timeout := 30 * time.Second
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = strings.NewReader(args.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, args.Method, args.URL, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	h.logger.InfoContext(ctx, "sending request", "job_id", jobCtx.JobID, "method", args.Method, "url", args.URL)

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.ErrorContext(ctx, "request failed", "job_id", jobCtx.JobID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	duration := time.Since(start)
	h.logger.InfoContext(ctx, "received response", "job_id", jobCtx.JobID, "status", resp.StatusCode, "duration", duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
