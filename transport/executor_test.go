package transport_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/devkit"
	"github.com/goliatone/go-integrations/transport"
)

func newTestExecutor(adapter transport.Adapter, sleeper *devkit.SleepRecorder) *transport.Executor {
	executor := transport.NewExecutor("slack", adapter, core.DefaultConfig().Transport)
	executor.Sleep = sleeper.Sleep
	return executor
}

func TestExponentialBackoff_DefaultSequence(t *testing.T) {
	policy := transport.DefaultBackoff()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, expected := range want {
		if got := policy.Delay(attempt); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, expected, got)
		}
	}
	if got := policy.Delay(62); got != 10*time.Second {
		t.Fatalf("expected large attempts to stay capped, got %s", got)
	}
}

func TestExecutor_RetriesRetryableStatusesWithBackoff(t *testing.T) {
	adapter := devkit.NewFakeAdapter(devkit.Status(http.StatusServiceUnavailable, `{"error":"busy"}`))
	sleeper := &devkit.SleepRecorder{}
	executor := newTestExecutor(adapter, sleeper)

	res, err := executor.Do(context.Background(), transport.Request{Method: http.MethodGet, URL: "https://slack.test/api"})
	if err == nil {
		t.Fatalf("expected exhausted retries to fail")
	}
	if adapter.Calls() != 4 {
		t.Fatalf("expected 4 attempts (1 + 3 retries), got %d", adapter.Calls())
	}
	delays := sleeper.Delays()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("expected delays %v, got %v", want, delays)
		}
	}

	reqErr, ok := transport.AsRequestError(err)
	if !ok {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if reqErr.Kind != transport.KindHTTP || reqErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected error classification: %#v", reqErr)
	}
	if reqErr.Service != "slack" || string(reqErr.Body) != `{"error":"busy"}` || reqErr.Attempts != 4 {
		t.Fatalf("expected service, body, and attempts on error: %#v", reqErr)
	}
	if res.Attempts != 4 {
		t.Fatalf("expected response attempts 4, got %d", res.Attempts)
	}
}

func TestExecutor_StatusClassification(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503, 504}
	for _, status := range retryable {
		if !transport.IsRetryableStatus(status) {
			t.Fatalf("expected %d to be retryable", status)
		}
	}
	for _, status := range []int{400, 401, 403, 404, 409, 422, 501} {
		if transport.IsRetryableStatus(status) {
			t.Fatalf("expected %d to be non-retryable", status)
		}
	}
}

func TestExecutor_NonRetryableStopsImmediately(t *testing.T) {
	adapter := devkit.NewFakeAdapter(devkit.Status(http.StatusNotFound, "missing"))
	sleeper := &devkit.SleepRecorder{}
	executor := newTestExecutor(adapter, sleeper)

	_, err := executor.Do(context.Background(), transport.Request{URL: "https://slack.test/missing"})
	if err == nil {
		t.Fatalf("expected 404 to fail")
	}
	if adapter.Calls() != 1 || len(sleeper.Delays()) != 0 {
		t.Fatalf("expected a single attempt without backoff, got calls=%d delays=%v", adapter.Calls(), sleeper.Delays())
	}
	if transport.IsRetryable(err) {
		t.Fatalf("expected 404 to be non-retryable")
	}
}

func TestExecutor_RecoversAfterTransientFailures(t *testing.T) {
	adapter := devkit.NewFakeAdapter(
		devkit.Failure(errors.New("connection reset by peer")),
		devkit.Status(http.StatusTooManyRequests, ""),
		devkit.Status(http.StatusOK, `{"ok":true}`),
	)
	sleeper := &devkit.SleepRecorder{}
	executor := newTestExecutor(adapter, sleeper)

	res, err := executor.Do(context.Background(), transport.Request{URL: "https://slack.test/api"})
	if err != nil {
		t.Fatalf("expected eventual success: %v", err)
	}
	if res.Attempts != 3 || string(res.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response: %#v", res)
	}
	if got := sleeper.Delays(); len(got) != 2 || got[0] != time.Second || got[1] != 2*time.Second {
		t.Fatalf("expected delays [1s 2s], got %v", got)
	}
}

func TestExecutor_PerAttemptTimeoutIsRetryableTimeout(t *testing.T) {
	adapter := devkit.NewFakeAdapter(devkit.TransportScript{Delay: time.Second})
	sleeper := &devkit.SleepRecorder{}
	executor := newTestExecutor(adapter, sleeper)

	_, err := executor.Do(context.Background(), transport.Request{
		URL:        "https://slack.test/slow",
		Timeout:    5 * time.Millisecond,
		MaxRetries: transport.Retries(1),
	})
	reqErr, ok := transport.AsRequestError(err)
	if !ok {
		t.Fatalf("expected request error, got %v", err)
	}
	if reqErr.Kind != transport.KindTimeout || reqErr.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("expected synthesized 408 timeout, got %#v", reqErr)
	}
	if adapter.Calls() != 2 {
		t.Fatalf("expected timeout to be retried once, got %d calls", adapter.Calls())
	}
	if svcErr := reqErr.ToServiceError(); svcErr.TextCode != core.ServiceErrorTimeout {
		t.Fatalf("expected timeout text code, got %q", svcErr.TextCode)
	}
}

func TestExecutor_CallerCancellationStopsRetrying(t *testing.T) {
	adapter := devkit.NewFakeAdapter(devkit.Status(http.StatusBadGateway, ""))
	ctx, cancel := context.WithCancel(context.Background())
	executor := transport.NewExecutor("google", adapter, core.DefaultConfig().Transport)
	executor.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := executor.Do(ctx, transport.Request{URL: "https://google.test/api"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
	if adapter.Calls() != 1 {
		t.Fatalf("expected no attempts after cancellation, got %d", adapter.Calls())
	}
}

func TestNewExecutor_UnsetRetriesFallBackToDefault(t *testing.T) {
	adapter := devkit.NewFakeAdapter(devkit.Status(http.StatusServiceUnavailable, ""))
	executor := transport.NewExecutor("hubspot", adapter, core.TransportConfig{})
	if executor.MaxRetries != transport.DefaultMaxRetries || executor.Timeout != transport.DefaultTimeout {
		t.Fatalf("expected default retries and timeout, got retries=%d timeout=%s", executor.MaxRetries, executor.Timeout)
	}
	sleeper := &devkit.SleepRecorder{}
	executor.Sleep = sleeper.Sleep

	res, err := executor.Do(context.Background(), transport.Request{URL: "https://hubspot.test/api"})
	if err == nil {
		t.Fatalf("expected exhausted retries to fail")
	}
	if res.Attempts != 4 || adapter.Calls() != 4 || len(sleeper.Delays()) != 3 {
		t.Fatalf("expected 4 attempts and 3 sleeps, got attempts=%d calls=%d delays=%v", res.Attempts, adapter.Calls(), sleeper.Delays())
	}
}

func TestNewExecutor_RetryConfiguration(t *testing.T) {
	cases := []struct {
		name       string
		maxRetries int
		want       int
	}{
		{name: "unset", maxRetries: 0, want: transport.DefaultMaxRetries},
		{name: "disabled", maxRetries: core.RetriesDisabled, want: 0},
		{name: "explicit", maxRetries: 5, want: 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := core.DefaultConfig().Transport
			cfg.MaxRetries = tc.maxRetries
			executor := transport.NewExecutor("slack", devkit.NewFakeAdapter(), cfg)
			if executor.MaxRetries != tc.want {
				t.Fatalf("expected %d retries, got %d", tc.want, executor.MaxRetries)
			}
		})
	}
}

func TestExecutor_AdapterRejectionsAreNotRetried(t *testing.T) {
	cases := []struct {
		name    string
		adapter transport.Adapter
		url     string
	}{
		{name: "missing url", adapter: transport.NewRESTAdapter(nil), url: ""},
		{name: "malformed url", adapter: transport.NewRESTAdapter(nil), url: "http://[::1"},
		{name: "adapter without client", adapter: &transport.RESTAdapter{}, url: "https://slack.test/api"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sleeper := &devkit.SleepRecorder{}
			executor := transport.NewExecutor("slack", tc.adapter, core.DefaultConfig().Transport)
			executor.Sleep = sleeper.Sleep

			res, err := executor.Do(context.Background(), transport.Request{URL: tc.url})
			reqErr, ok := transport.AsRequestError(err)
			if !ok {
				t.Fatalf("expected request error, got %v", err)
			}
			if reqErr.Kind != transport.KindInvalidRequest || reqErr.Retryable() {
				t.Fatalf("expected non-retryable invalid request, got %#v", reqErr)
			}
			if res.Attempts != 1 || len(sleeper.Delays()) != 0 {
				t.Fatalf("expected a single attempt without backoff, got attempts=%d delays=%v", res.Attempts, sleeper.Delays())
			}
			if svcErr := reqErr.ToServiceError(); svcErr.Code != http.StatusBadRequest || svcErr.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("expected bad input envelope, got %d %q", svcErr.Code, svcErr.TextCode)
			}
		})
	}
}
