package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// Executor runs a logical request as up to MaxRetries+1 attempts, each under
// its own timeout, backing off between retryable failures. MaxRetries is the
// resolved count; NewExecutor maps an unset config to DefaultMaxRetries.
type Executor struct {
	Service    string
	Adapter    Adapter
	Timeout    time.Duration
	MaxRetries int
	Backoff    BackoffPolicy
	Sleep      SleepFunc

	Observer core.Observer
}

func NewExecutor(service string, adapter Adapter, cfg core.TransportConfig) *Executor {
	if adapter == nil {
		adapter = NewRESTAdapter(nil)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backoff := DefaultBackoff()
	if cfg.BackoffInitialMs > 0 {
		backoff.Initial = cfg.BackoffInitial()
	}
	if cfg.BackoffMaxMs > 0 {
		backoff.Max = cfg.BackoffMax()
	}
	return &Executor{
		Service:    strings.TrimSpace(strings.ToLower(service)),
		Adapter:    adapter,
		Timeout:    timeout,
		MaxRetries: cfg.Retries(DefaultMaxRetries),
		Backoff:    backoff,
		Sleep:      sleepContext,
		Observer:   core.NewObserver(nil, nil),
	}
}

func (e *Executor) Do(ctx context.Context, req Request) (Response, error) {
	if e == nil || e.Adapter == nil {
		return Response{}, fmt.Errorf("transport: executor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	maxRetries := e.MaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	backoff := e.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}

	startedAt := time.Now()
	for attempt := 0; ; attempt++ {
		res, reqErr := e.attempt(ctx, req)
		if reqErr == nil {
			res.Attempts = attempt + 1
			res.Duration = time.Since(startedAt)
			return res, nil
		}
		reqErr.Attempts = attempt + 1

		if !reqErr.Retryable() || attempt >= maxRetries || ctx.Err() != nil {
			return Response{StatusCode: reqErr.StatusCode, Body: reqErr.Body, Attempts: attempt + 1, Duration: time.Since(startedAt)}, reqErr
		}

		delay := backoff.Delay(attempt)
		e.Observer.Warn(ctx, "retrying request", map[string]any{
			"service":  e.Service,
			"method":   reqErr.Method,
			"url":      reqErr.URL,
			"attempt":  attempt + 1,
			"status":   reqErr.StatusCode,
			"kind":     string(reqErr.Kind),
			"delay_ms": delay.Milliseconds(),
		})
		e.Observer.Count(ctx, "integrations.request.retry", 1, map[string]string{
			"service": e.Service,
			"kind":    string(reqErr.Kind),
		})
		if err := sleep(ctx, delay); err != nil {
			reqErr.Kind = KindNetwork
			reqErr.Cause = err
			return Response{StatusCode: reqErr.StatusCode, Body: reqErr.Body, Attempts: attempt + 1, Duration: time.Since(startedAt)}, reqErr
		}
	}
}

func (e *Executor) attempt(ctx context.Context, req Request) (Response, *RequestError) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}
	base := RequestError{Service: e.Service, Method: method, URL: req.URL}

	res, err := e.Adapter.Do(attemptCtx, req)
	if err != nil {
		reqErr := base
		reqErr.Cause = err
		switch {
		case rejectedBeforeSend(err):
			reqErr.Kind = KindInvalidRequest
		case ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			reqErr.Kind = KindTimeout
			reqErr.StatusCode = 408
		default:
			reqErr.Kind = KindNetwork
		}
		return Response{}, &reqErr
	}
	if !res.OK() {
		reqErr := base
		reqErr.Kind = KindHTTP
		reqErr.StatusCode = res.StatusCode
		reqErr.Body = res.Body
		return res, &reqErr
	}
	return res, nil
}

// rejectedBeforeSend reports adapter errors raised for the request itself
// or the adapter's own setup rather than the network.
func rejectedBeforeSend(err error) bool {
	return goerrors.IsCategory(err, goerrors.CategoryBadInput) ||
		goerrors.IsCategory(err, goerrors.CategoryInternal)
}
