package devkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/transport"
)

// TransportScript is one scripted attempt outcome. Delay holds the attempt
// until it elapses or the attempt context ends, which is how timeouts are
// simulated.
type TransportScript struct {
	Response transport.Response
	Err      error
	Delay    time.Duration
}

// FakeAdapter replays scripts in order, repeating the last one once the
// script runs out, and records every request it sees.
type FakeAdapter struct {
	mu       sync.Mutex
	scripts  []TransportScript
	requests []transport.Request
}

func NewFakeAdapter(scripts ...TransportScript) *FakeAdapter {
	return &FakeAdapter{scripts: append([]TransportScript(nil), scripts...)}
}

func Status(code int, body string) TransportScript {
	return TransportScript{Response: transport.Response{StatusCode: code, Body: []byte(body)}}
}

func Failure(err error) TransportScript {
	return TransportScript{Err: err}
}

func (a *FakeAdapter) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	if a == nil {
		return transport.Response{}, fmt.Errorf("devkit: fake adapter is nil")
	}
	a.mu.Lock()
	a.requests = append(a.requests, cloneRequest(req))
	index := len(a.requests) - 1
	script := TransportScript{Response: transport.Response{StatusCode: 200, Headers: map[string]string{}}}
	if index < len(a.scripts) {
		script = a.scripts[index]
	} else if len(a.scripts) > 0 {
		script = a.scripts[len(a.scripts)-1]
	}
	a.mu.Unlock()

	if script.Delay > 0 {
		timer := time.NewTimer(script.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return transport.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	return cloneResponse(script.Response), script.Err
}

func (a *FakeAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *FakeAdapter) Requests() []transport.Request {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]transport.Request, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneRequest(item))
	}
	return out
}

func cloneRequest(in transport.Request) transport.Request {
	out := in
	out.Headers = map[string]string{}
	out.Query = map[string]string{}
	out.Body = append([]byte(nil), in.Body...)
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Query {
		out.Query[key] = value
	}
	return out
}

func cloneResponse(in transport.Response) transport.Response {
	out := in
	out.Headers = map[string]string{}
	out.Body = append([]byte(nil), in.Body...)
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	return out
}

// SleepRecorder stands in for the executor backoff sleep and records each
// requested delay.
type SleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *SleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *SleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

var _ transport.Adapter = (*FakeAdapter)(nil)
