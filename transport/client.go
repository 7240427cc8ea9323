package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-integrations/transport"

// Client is the resilient client for one downstream service: a circuit in
// front of a retrying executor. The circuit sees one outcome per Execute.
type Client struct {
	service        string
	executor       *Executor
	circuit        *breaker.Circuit
	defaultHeaders map[string]string
	tracer         trace.Tracer
	observer       core.Observer
}

type ClientOption func(*Client)

func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		c.observer.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) ClientOption {
	return func(c *Client) {
		if recorder != nil {
			c.observer.Metrics = recorder
		}
	}
}

func WithTracer(tracer trace.Tracer) ClientOption {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func WithDefaultHeader(key string, value string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.defaultHeaders[http.CanonicalHeaderKey(strings.TrimSpace(key))] = value
		}
	}
}

// WithSleep replaces the backoff sleep, letting tests record delays instead
// of waiting.
func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.executor.Sleep = sleep
		}
	}
}

func WithBackoff(policy BackoffPolicy) ClientOption {
	return func(c *Client) {
		if policy != nil {
			c.executor.Backoff = policy
		}
	}
}

func NewClient(
	service string,
	adapter Adapter,
	circuit *breaker.Circuit,
	cfg core.TransportConfig,
	opts ...ClientOption,
) *Client {
	service = strings.TrimSpace(strings.ToLower(service))
	if circuit == nil {
		circuit = breaker.New(service, breaker.DefaultConfig())
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = core.DefaultConfig().Transport.UserAgent
	}
	executor := NewExecutor(service, adapter, cfg)
	if rest, ok := executor.Adapter.(*RESTAdapter); ok && cfg.MaxResponseBodyBytes > 0 {
		rest.MaxResponseBodyBytes = cfg.MaxResponseBodyBytes
	}
	c := &Client{
		service:  service,
		executor: executor,
		circuit:  circuit,
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
			"User-Agent":   userAgent,
		},
		tracer:   otel.Tracer(tracerName),
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.executor.Observer = c.observer
	return c
}

func (c *Client) Service() string {
	return c.service
}

func (c *Client) Circuit() *breaker.Circuit {
	return c.circuit
}

// Execute performs req through the circuit. While the circuit is open it
// returns a KindServiceUnavailable *RequestError without touching the
// network.
func (c *Client) Execute(ctx context.Context, req Request) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req = c.withDefaultHeaders(req)
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "integrations.request",
		trace.WithAttributes(
			attribute.String("integrations.service", c.service),
			attribute.String("http.request.method", method),
			attribute.String("url.full", req.URL),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	startedAt := time.Now()
	var res Response
	err := c.circuit.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		res, execErr = c.executor.Do(ctx, req)
		return execErr
	})

	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		err = &RequestError{
			Kind:       KindServiceUnavailable,
			StatusCode: http.StatusServiceUnavailable,
			Service:    c.service,
			Method:     method,
			URL:        req.URL,
			Cause:      openErr,
		}
	}

	span.SetAttributes(
		attribute.Int("integrations.attempts", res.Attempts),
		attribute.Int("http.response.status_code", res.StatusCode),
		attribute.String("integrations.circuit.state", string(c.circuit.State())),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	fields := map[string]any{
		"service":  c.service,
		"method":   method,
		"url":      req.URL,
		"attempts": res.Attempts,
		"status":   res.StatusCode,
	}
	c.observer.ObserveOperation(ctx, startedAt, "integrations.request", err, fields)
	return res, err
}

// HealthCheck reports whether the circuit is closed.
func (c *Client) HealthCheck() bool {
	return c.circuit.State() == breaker.StateClosed
}

func (c *Client) Snapshot() breaker.Snapshot {
	return c.circuit.Snapshot()
}

func (c *Client) Reset() {
	c.circuit.Reset()
}

func (c *Client) withDefaultHeaders(req Request) Request {
	out := cloneRequest(req)
	headers := make(map[string]string, len(c.defaultHeaders)+len(req.Headers))
	for key, value := range c.defaultHeaders {
		headers[key] = value
	}
	for key, value := range req.Headers {
		headers[http.CanonicalHeaderKey(strings.TrimSpace(key))] = value
	}
	out.Headers = headers
	return out
}

// DoJSON executes req and decodes a successful JSON response body into T.
func DoJSON[T any](ctx context.Context, client *Client, req Request) (T, error) {
	var out T
	res, err := client.Execute(ctx, req)
	if err != nil {
		return out, err
	}
	if len(res.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return out, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: decode json response",
			http.StatusBadGateway,
			map[string]any{"service": client.service, "status_code": res.StatusCode},
		)
	}
	return out, nil
}
