// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"transcript-client/internal/common/config"
	"transcript-client/internal/common/errors"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/common/metrics"
)

const (
	// DefaultFallbackMessage is used when a caller does not supply its own.
	DefaultFallbackMessage = "Request failed"

	tracerName = "transcript-client/remote"
)

// maxResponseBytes caps how much of a response body is read.
var maxResponseBytes int64 = 32 << 20

// Request describes one backend call. Target is a full URL from BuildTarget.
type Request struct {
	Method          string
	Target          string
	Body            interface{}
	Headers         map[string]string
	FallbackMessage string
}

// Outcome is the normalized result of a backend call: either a JSON payload
// or a Failure, never both.
type Outcome struct {
	Status  int
	Payload json.RawMessage
	Failure *errors.StandardError
}

func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Err returns the failure as an error, or nil on success.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Message is the human-readable failure text ("" on success).
func (o Outcome) Message() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Message
}

// Client executes requests against the configured backend base address.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
	tracer     trace.Tracer
}

// NewClient resolves the base address once; it is never re-read afterwards.
func NewClient(cfg config.BackendConfig, log logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if base == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NewInvalidConfigError(fmt.Sprintf("backend base url %q is not an absolute URL", cfg.BaseURL))
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL: base,
		// Timeout 0 keeps the transport default.
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     log.Named("remote"),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// BaseURL returns the resolved backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BuildTarget joins the base address and path, percent-encoding query values.
// Spaces are written as %20 so the locator survives any query parser.
func (c *Client) BuildTarget(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + strings.ReplaceAll(query.Encode(), "+", "%20")
	}
	return target
}

// Execute performs the call and normalizes every exit into an Outcome.
func (c *Client) Execute(ctx context.Context, req Request) (out Outcome) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.FallbackMessage == "" {
		req.FallbackMessage = DefaultFallbackMessage
	}

	requestID := uuid.NewString()
	path := pathLabel(req.Target)
	log := c.logger.With(map[string]interface{}{
		"method":    req.Method,
		"target":    req.Target,
		"requestId": requestID,
	})

	ctx, span := c.tracer.Start(ctx, "remote.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", path),
			attribute.String("request.id", requestID),
		),
	)

	start := time.Now()
	metrics.RemoteCallsInFlight.WithLabelValues(path).Inc()
	defer func() {
		if r := recover(); r != nil {
			out = c.fault(log, fmt.Errorf("panic during remote call: %v", r))
		}
		metrics.RemoteCallsInFlight.WithLabelValues(path).Dec()
		metrics.RemoteCallDuration.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
		metrics.RemoteCallsTotal.WithLabelValues(req.Method, path, outcomeLabel(out)).Inc()

		if out.Status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", out.Status))
		}
		if out.Failure != nil {
			span.SetStatus(codes.Error, string(out.Failure.Code))
		}
		span.End()
	}()

	httpReq, err := c.newRequest(ctx, req, requestID)
	if err != nil {
		return c.fault(log, err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.fault(log, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	oversized := int64(len(body)) > maxResponseBytes
	if oversized {
		body = body[:maxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.rejection(log, resp.StatusCode, body, req.FallbackMessage)
	}

	if readErr != nil {
		return c.fault(log, fmt.Errorf("read response body: %w", readErr))
	}
	if oversized {
		return c.fault(log, fmt.Errorf("response exceeds %d bytes", maxResponseBytes))
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return c.fault(log, fmt.Errorf("malformed response body: empty body with status %d", resp.StatusCode))
	}
	if !json.Valid(trimmed) {
		return c.fault(log, fmt.Errorf("malformed response body: invalid JSON with status %d", resp.StatusCode))
	}

	log.Debug("remote call succeeded", map[string]interface{}{
		"status":   resp.StatusCode,
		"bytes":    len(trimmed),
		"duration": time.Since(start).String(),
	})
	return Outcome{Status: resp.StatusCode, Payload: json.RawMessage(trimmed)}
}

func (c *Client) newRequest(ctx context.Context, req Request, requestID string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.Target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Request-ID", requestID)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// rejection maps a non-2xx response. The backend's "error" string is passed
// through verbatim; anything else gets the caller's fallback text.
func (c *Client) rejection(log logger.Logger, status int, body []byte, fallback string) Outcome {
	if msg, ok := extractErrorField(body); ok {
		log.Warn("backend rejected request", map[string]interface{}{
			"status": status,
			"error":  msg,
		})
		return Outcome{Status: status, Failure: errors.NewBackendRejectionError(status, msg)}
	}

	log.Warn("backend rejected request without error field", map[string]interface{}{
		"status": status,
	})
	return Outcome{Status: status, Failure: errors.NewUnlabelledRejectionError(status, fallback, string(body))}
}

// fault records a transport-level failure as a diagnostic and converts it.
func (c *Client) fault(log logger.Logger, err error) Outcome {
	log.WithError(err).Error("remote call failed", map[string]interface{}{
		"errorCategory": errors.GetErrorCategory(errors.ErrCodeTransportFault),
	})
	return Outcome{Failure: errors.NewTransportFaultError(err)}
}

func extractErrorField(body []byte) (string, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	raw, ok := envelope["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil || msg == "" {
		return "", false
	}
	return msg, true
}

func pathLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func outcomeLabel(out Outcome) string {
	if out.Failure == nil {
		return "success"
	}
	return strings.ToLower(string(out.Failure.Code))
}
