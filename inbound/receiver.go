package inbound

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

const (
	RoutePattern = "/webhooks/{provider}/{webhookID}"

	defaultMaxBodyBytes int64 = 1 << 20
)

// Pusher is the non-blocking queue entry point, normally a webhooks.Pipeline.
type Pusher interface {
	Push(ctx context.Context, event webhooks.Event) (webhooks.Event, error)
}

// Provider describes how deliveries from one provider are authenticated and
// decoded.
type Provider struct {
	Verifier Verifier
	// Decoder defaults to DefaultDecoder.
	Decoder Decoder
	// Challenge answers setup handshakes after verification; a true result
	// is written back instead of queueing an event.
	Challenge func(Request) (string, bool)
	// SignatureHeader is copied onto the queued event for auditing.
	SignatureHeader string
}

func SlackProvider(signingSecret string) Provider {
	return Provider{
		Verifier:        SlackVerifier{SigningSecret: signingSecret},
		Decoder:         SlackDecoder{},
		Challenge:       SlackChallenge,
		SignatureHeader: SlackSignatureHeader,
	}
}

func GoogleProvider(channelToken string) Provider {
	return Provider{
		Verifier: TokenVerifier{Header: "X-Goog-Channel-Token", Token: channelToken},
		Decoder:  GoogleDecoder{},
	}
}

func AsanaProvider(secret string) Provider {
	return Provider{
		Verifier:        HMACVerifier{Header: "X-Hook-Signature", Secret: secret, Encoding: "hex"},
		Decoder:         DefaultDecoder(),
		SignatureHeader: "X-Hook-Signature",
	}
}

// Result is the outcome of one accepted delivery.
type Result struct {
	Event     webhooks.Event
	Duplicate bool
	Challenge string
}

// Receiver is the inbound HTTP boundary: it verifies, decodes and pushes, then
// acknowledges at once without waiting for processing.
type Receiver struct {
	pusher       Pusher
	ledger       DeliveryLedger
	ledgerTTL    time.Duration
	maxBodyBytes int64
	retryAfter   time.Duration
	now          func() time.Time
	observer     core.Observer

	mu        sync.RWMutex
	providers map[string]Provider

	router chi.Router
}

type ReceiverOption func(*Receiver) error

func WithProvider(name string, provider Provider) ReceiverOption {
	return func(r *Receiver) error {
		return r.Register(name, provider)
	}
}

func WithDeliveryLedger(ledger DeliveryLedger, ttl time.Duration) ReceiverOption {
	return func(r *Receiver) error {
		r.ledger = ledger
		if ttl > 0 {
			r.ledgerTTL = ttl
		}
		return nil
	}
}

func WithMaxBodyBytes(limit int64) ReceiverOption {
	return func(r *Receiver) error {
		if limit > 0 {
			r.maxBodyBytes = limit
		}
		return nil
	}
}

// WithRetryAfter sets the Retry-After hint sent with QUEUE_FULL responses.
func WithRetryAfter(d time.Duration) ReceiverOption {
	return func(r *Receiver) error {
		if d > 0 {
			r.retryAfter = d
		}
		return nil
	}
}

func WithClock(now func() time.Time) ReceiverOption {
	return func(r *Receiver) error {
		if now != nil {
			r.now = now
		}
		return nil
	}
}

func WithLogger(logger core.Logger) ReceiverOption {
	return func(r *Receiver) error {
		r.observer.Logger = logger
		return nil
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) ReceiverOption {
	return func(r *Receiver) error {
		if recorder != nil {
			r.observer.Metrics = recorder
		}
		return nil
	}
}

func NewReceiver(pusher Pusher, opts ...ReceiverOption) (*Receiver, error) {
	if pusher == nil {
		return nil, inboundError(
			"inbound: pusher is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.ServiceErrorBadInput,
			nil,
		)
	}
	r := &Receiver{
		pusher:       pusher,
		ledgerTTL:    defaultDeliveryTTL,
		maxBodyBytes: defaultMaxBodyBytes,
		retryAfter:   time.Second,
		now:          time.Now,
		observer:     core.NewObserver(nil, nil),
		providers:    map[string]Provider{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	router := chi.NewRouter()
	router.Post(RoutePattern, r.handleWebhook)
	r.router = router
	return r, nil
}

// Register adds a provider. A verifier is mandatory.
func (r *Receiver) Register(name string, provider Provider) error {
	name = normalizeProvider(name)
	if name == "" || provider.Verifier == nil {
		return inboundError(
			"inbound: provider name and verifier are required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.ServiceErrorBadInput,
			map[string]any{"provider": name},
		)
	}
	if provider.Decoder == nil {
		provider.Decoder = DefaultDecoder()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return inboundError(
			"inbound: provider already registered",
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ServiceErrorBadInput,
			map[string]any{"provider": name},
		)
	}
	r.providers[name] = provider
	return nil
}

func (r *Receiver) Routes() chi.Router {
	return r.router
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Receive runs one delivery through verification, decoding, dedupe and push.
func (r *Receiver) Receive(ctx context.Context, req Request) (Result, error) {
	req.Provider = normalizeProvider(req.Provider)
	req.WebhookID = strings.TrimSpace(req.WebhookID)
	if req.Headers == nil {
		req.Headers = http.Header{}
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = r.now().UTC()
	}
	fields := map[string]any{"provider": req.Provider, "webhook_id": req.WebhookID}

	r.mu.RLock()
	provider, ok := r.providers[req.Provider]
	r.mu.RUnlock()
	if !ok {
		return Result{}, unknownProviderError(req.Provider)
	}
	if req.WebhookID == "" {
		return Result{}, validationError(nil, "inbound: webhook id is required", fields)
	}

	if err := provider.Verifier.Verify(ctx, req); err != nil {
		r.observer.Warn(ctx, "inbound webhook rejected", mergeFields(fields, map[string]any{"error": err.Error()}))
		return Result{}, validationError(err, "inbound: request verification failed", fields)
	}
	if provider.Challenge != nil {
		if challenge, isChallenge := provider.Challenge(req); isChallenge {
			return Result{Challenge: challenge}, nil
		}
	}

	event, err := provider.Decoder.Decode(req)
	if err != nil {
		return Result{}, validationError(err, "inbound: decode webhook payload", fields)
	}
	event.Provider = req.Provider
	event.WebhookID = req.WebhookID
	event.Verified = true
	if provider.SignatureHeader != "" {
		event.Signature = strings.TrimSpace(req.Headers.Get(provider.SignatureHeader))
	}

	deliveryKey := ""
	if r.ledger != nil && event.ID != "" {
		deliveryKey = req.Provider + ":" + req.WebhookID + ":" + event.ID
		fresh, err := r.ledger.Claim(ctx, deliveryKey, r.ledgerTTL)
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryInternal,
				"inbound: delivery ledger claim failed",
				http.StatusInternalServerError,
				core.ServiceErrorInternal,
				fields,
			)
		}
		if !fresh {
			r.observer.Debug(ctx, "inbound webhook duplicate", mergeFields(fields, map[string]any{"event_id": event.ID}))
			return Result{Event: event, Duplicate: true}, nil
		}
	}

	queued, err := r.pusher.Push(ctx, event)
	if err != nil {
		if deliveryKey != "" {
			_ = r.ledger.Release(ctx, deliveryKey)
		}
		return Result{}, err
	}
	return Result{Event: queued}, nil
}

type acceptedResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (r *Receiver) handleWebhook(w http.ResponseWriter, httpReq *http.Request) {
	ctx := httpReq.Context()
	provider := normalizeProvider(chi.URLParam(httpReq, "provider"))
	tags := map[string]string{"provider": provider}

	body, err := io.ReadAll(http.MaxBytesReader(w, httpReq.Body, r.maxBodyBytes))
	if err != nil {
		rich := validationError(err, "inbound: read webhook body", map[string]any{"provider": provider})
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rich = rich.WithCode(http.StatusRequestEntityTooLarge)
		}
		r.respondError(ctx, w, rich, tags)
		return
	}

	result, err := r.Receive(ctx, Request{
		Provider:   provider,
		WebhookID:  chi.URLParam(httpReq, "webhookID"),
		Headers:    httpReq.Header.Clone(),
		Body:       body,
		ReceivedAt: r.now().UTC(),
	})
	if err != nil {
		r.respondError(ctx, w, toServiceError(err), tags)
		return
	}

	switch {
	case result.Challenge != "":
		tags["outcome"] = "challenge"
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, result.Challenge)
	case result.Duplicate:
		tags["outcome"] = "duplicate"
		writeJSON(w, http.StatusOK, acceptedResponse{Received: true, EventID: result.Event.ID, Duplicate: true})
	default:
		tags["outcome"] = "accepted"
		writeJSON(w, http.StatusOK, acceptedResponse{Received: true, EventID: result.Event.ID})
	}
	r.observer.Count(ctx, "inbound.webhook.total", 1, tags)
}

func (r *Receiver) respondError(ctx context.Context, w http.ResponseWriter, err *goerrors.Error, tags map[string]string) {
	tags["outcome"] = strings.ToLower(err.TextCode)
	if err.TextCode == core.ServiceErrorQueueFull {
		seconds := int(r.retryAfter.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeError(w, err)
	r.observer.Count(ctx, "inbound.webhook.total", 1, tags)
}

func normalizeProvider(provider string) string {
	return strings.TrimSpace(strings.ToLower(provider))
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}
