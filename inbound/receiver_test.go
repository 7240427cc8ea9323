package inbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type recordingPusher struct {
	mu     sync.Mutex
	events []webhooks.Event
	err    error
}

func (p *recordingPusher) Push(_ context.Context, event webhooks.Event) (webhooks.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return event, p.err
	}
	if event.ID == "" {
		event.ID = "generated-" + strconv.Itoa(len(p.events)+1)
	}
	p.events = append(p.events, event)
	return event, nil
}

func (p *recordingPusher) queued() []webhooks.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webhooks.Event(nil), p.events...)
}

type queuePusher struct {
	queue *webhooks.Queue
}

func (p queuePusher) Push(_ context.Context, event webhooks.Event) (webhooks.Event, error) {
	return p.queue.Push(event)
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func acceptAll() Verifier {
	return VerifierFunc(func(context.Context, Request) error { return nil })
}

func newTestReceiver(t *testing.T, pusher Pusher, opts ...ReceiverOption) *Receiver {
	t.Helper()
	opts = append([]ReceiverOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	receiver, err := NewReceiver(pusher, opts...)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	return receiver
}

func post(t *testing.T, handler http.Handler, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestReceiver_SlackDeliveryIsVerifiedAndQueued(t *testing.T) {
	pusher := &recordingPusher{}
	provider := SlackProvider("shh")
	provider.Verifier = SlackVerifier{SigningSecret: "shh", Now: func() time.Time { return fixedNow }}
	receiver := newTestReceiver(t, pusher, WithProvider("Slack", provider))

	body := `{"type":"event_callback","event_id":"Ev42","event":{"type":"message","user":"U1"}}`
	rec := post(t, receiver, "/webhooks/slack/wh-1", body, map[string]string{
		SlackTimestampHeader: strconv.FormatInt(fixedNow.Unix(), 10),
		SlackSignatureHeader: SlackSignature("shh", fixedNow.Unix(), []byte(body)),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["event_id"]; got != "Ev42" {
		t.Fatalf("expected event id in response, got %v", got)
	}

	queued := pusher.queued()
	if len(queued) != 1 {
		t.Fatalf("expected one queued event, got %d", len(queued))
	}
	event := queued[0]
	if event.Provider != "slack" || event.WebhookID != "wh-1" || event.EventType != "message" {
		t.Fatalf("unexpected event %+v", event)
	}
	if !event.Verified || !strings.HasPrefix(event.Signature, "v0=") {
		t.Fatalf("expected verified event with signature, got %+v", event)
	}
	if !event.ReceivedAt.Equal(fixedNow) || string(event.Payload) != body {
		t.Fatalf("expected raw payload and receive time, got %+v", event)
	}
}

func TestReceiver_BadSignatureIsRejectedBeforeQueue(t *testing.T) {
	pusher := &recordingPusher{}
	receiver := newTestReceiver(t, pusher, WithProvider("slack", Provider{
		Verifier: SlackVerifier{SigningSecret: "shh", Now: func() time.Time { return fixedNow }},
		Decoder:  SlackDecoder{},
	}))

	rec := post(t, receiver, "/webhooks/slack/wh-1", `{"event":{"type":"message"}}`, map[string]string{
		SlackTimestampHeader: strconv.FormatInt(fixedNow.Unix(), 10),
		SlackSignatureHeader: "v0=deadbeef",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)["error"].(map[string]any)
	if payload["text_code"] != core.ServiceErrorValidation {
		t.Fatalf("expected validation text code, got %v", payload)
	}
	if len(pusher.queued()) != 0 {
		t.Fatalf("expected nothing queued")
	}
}

func TestReceiver_SlackChallengeIsAnswered(t *testing.T) {
	pusher := &recordingPusher{}
	provider := SlackProvider("shh")
	provider.Verifier = acceptAll()
	receiver := newTestReceiver(t, pusher, WithProvider("slack", provider))

	rec := post(t, receiver, "/webhooks/slack/wh-1", `{"type":"url_verification","challenge":"abc123"}`, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "abc123" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}
	if len(pusher.queued()) != 0 {
		t.Fatalf("challenge must not be queued")
	}
}

func TestReceiver_GoogleNotificationFromHeaders(t *testing.T) {
	pusher := &recordingPusher{}
	receiver := newTestReceiver(t, pusher, WithProvider("google", GoogleProvider("tok")))

	rec := post(t, receiver, "/webhooks/google/chan-1", "", map[string]string{
		"X-Goog-Channel-Token":  "tok",
		"X-Goog-Resource-State": "change",
		"X-Goog-Resource-Id":    "res-1",
		"X-Goog-Message-Number": "7",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	queued := pusher.queued()
	if len(queued) != 1 {
		t.Fatalf("expected one queued event, got %d", len(queued))
	}
	event := queued[0]
	if event.ID != "chan-1:7" || event.EventType != "change" {
		t.Fatalf("unexpected google event %+v", event)
	}
	var notification map[string]any
	if err := json.Unmarshal(event.Payload, &notification); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if notification["channel_id"] != "chan-1" || notification["resource_id"] != "res-1" {
		t.Fatalf("unexpected notification payload %v", notification)
	}

	rec = post(t, receiver, "/webhooks/google/chan-1", "", map[string]string{
		"X-Goog-Channel-Token":  "wrong",
		"X-Goog-Resource-State": "change",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected token mismatch to be rejected, got %d", rec.Code)
	}
}

func TestReceiver_QueueFullAnswers429WithRetryAfter(t *testing.T) {
	queue := webhooks.NewQueue(core.QueueConfig{MaxSize: 1, OverflowPolicy: core.OverflowRejectNew})
	receiver := newTestReceiver(t, queuePusher{queue: queue},
		WithProvider("asana", Provider{Verifier: acceptAll()}),
		WithRetryAfter(3*time.Second),
	)

	first := post(t, receiver, "/webhooks/asana/wh-9", `{"type":"task.changed"}`, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first push to be accepted, got %d", first.Code)
	}
	second := post(t, receiver, "/webhooks/asana/wh-9", `{"type":"task.changed"}`, nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "3" {
		t.Fatalf("expected Retry-After 3, got %q", second.Header().Get("Retry-After"))
	}
	payload := decodeBody(t, second)["error"].(map[string]any)
	if payload["text_code"] != core.ServiceErrorQueueFull {
		t.Fatalf("expected QUEUE_FULL, got %v", payload)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected rejected event to stay out of the queue")
	}
}

func TestReceiver_DuplicateDeliveryIsAcknowledgedOnce(t *testing.T) {
	pusher := &recordingPusher{}
	ledger := NewMemoryDeliveryLedger()
	receiver := newTestReceiver(t, pusher,
		WithProvider("asana", Provider{Verifier: acceptAll()}),
		WithDeliveryLedger(ledger, time.Minute),
	)

	headers := map[string]string{"X-Delivery-Id": "d-1"}
	for range 2 {
		rec := post(t, receiver, "/webhooks/asana/wh-1", `{"type":"task.added"}`, headers)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}
	if got := len(pusher.queued()); got != 1 {
		t.Fatalf("expected duplicate delivery to be queued once, got %d", got)
	}
}

func TestReceiver_FailedPushReleasesDeliveryClaim(t *testing.T) {
	pusher := &recordingPusher{err: &webhooks.QueueFullError{MaxSize: 1}}
	ledger := NewMemoryDeliveryLedger()
	receiver := newTestReceiver(t, pusher,
		WithProvider("asana", Provider{Verifier: acceptAll()}),
		WithDeliveryLedger(ledger, time.Minute),
	)

	_, err := receiver.Receive(context.Background(), Request{
		Provider:  "asana",
		WebhookID: "wh-1",
		Headers:   http.Header{"X-Delivery-Id": []string{"d-1"}},
		Body:      []byte(`{"type":"task.added"}`),
	})
	if !webhooks.IsQueueFull(err) {
		t.Fatalf("expected queue full, got %v", err)
	}
	if ledger.Len() != 0 {
		t.Fatalf("expected claim to be released so the sender can redeliver")
	}
}

func TestReceiver_UnknownProviderAndMissingFields(t *testing.T) {
	receiver := newTestReceiver(t, &recordingPusher{}, WithProvider("asana", Provider{Verifier: acceptAll()}))

	rec := post(t, receiver, "/webhooks/linear/wh-1", `{}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unregistered provider, got %d", rec.Code)
	}

	_, err := receiver.Receive(context.Background(), Request{Provider: "asana", Body: []byte(`{}`)})
	var rich *goerrors.Error
	if !errors.As(err, &rich) || rich.TextCode != core.ServiceErrorValidation {
		t.Fatalf("expected validation error for missing webhook id, got %v", err)
	}

	rec = post(t, receiver, "/webhooks/asana/wh-1", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for undecodable body, got %d", rec.Code)
	}
}

func TestReceiver_BodyLimit(t *testing.T) {
	receiver := newTestReceiver(t, &recordingPusher{},
		WithProvider("asana", Provider{Verifier: acceptAll()}),
		WithMaxBodyBytes(8),
	)
	rec := post(t, receiver, "/webhooks/asana/wh-1", `{"type":"much too long"}`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestReceiver_RoutesOnlyAcceptPost(t *testing.T) {
	receiver := newTestReceiver(t, &recordingPusher{}, WithProvider("asana", Provider{Verifier: acceptAll()}))
	req := httptest.NewRequest(http.MethodGet, "/webhooks/asana/wh-1", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	receiver.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestNewReceiver_Validation(t *testing.T) {
	if _, err := NewReceiver(nil); err == nil {
		t.Fatalf("expected nil pusher to fail")
	}
	if _, err := NewReceiver(&recordingPusher{}, WithProvider("slack", Provider{})); err == nil {
		t.Fatalf("expected provider without verifier to fail")
	}
	receiver := newTestReceiver(t, &recordingPusher{}, WithProvider("slack", Provider{Verifier: acceptAll()}))
	if err := receiver.Register("SLACK", Provider{Verifier: acceptAll()}); err == nil {
		t.Fatalf("expected duplicate provider to fail")
	}
}
