package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Request describes one logical outbound call. It is not mutated by the
// executor; retries reuse the same value.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte

	// Timeout bounds each attempt. Zero uses the executor default.
	Timeout time.Duration
	// MaxRetries overrides the executor default when set; see Retries.
	MaxRetries *int

	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Adapter performs a single attempt. Any HTTP status is a response, not an
// error; errors mean no response was obtained.
type Adapter interface {
	Do(ctx context.Context, req Request) (Response, error)
}

type AdapterFunc func(ctx context.Context, req Request) (Response, error)

func (f AdapterFunc) Do(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

func Retries(n int) *int {
	if n < 0 {
		n = 0
	}
	return &n
}

// JSONRequest builds a request with payload encoded as the JSON body.
func JSONRequest(method string, url string, payload any) (Request, error) {
	req := Request{
		Method:  strings.ToUpper(strings.TrimSpace(method)),
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Request{}, transportWrapError(err, goerrors.CategoryBadInput, "transport: encode json request body", http.StatusBadRequest, nil)
	}
	req.Body = body
	return req, nil
}

func cloneRequest(in Request) Request {
	out := in
	out.Headers = cloneStringMap(in.Headers)
	out.Query = cloneStringMap(in.Query)
	out.Body = append([]byte(nil), in.Body...)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
