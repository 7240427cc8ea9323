package inbound

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/providers/google/drive"
	"github.com/goliatone/go-integrations/webhooks"
)

// Request is one raw webhook delivery as received over HTTP.
type Request struct {
	Provider   string
	WebhookID  string
	Headers    http.Header
	Body       []byte
	ReceivedAt time.Time
}

// Decoder turns a verified request into the event that gets queued.
type Decoder interface {
	Decode(req Request) (webhooks.Event, error)
}

type DecoderFunc func(req Request) (webhooks.Event, error)

func (f DecoderFunc) Decode(req Request) (webhooks.Event, error) {
	return f(req)
}

// JSONDecoder accepts any JSON object body. The event type comes from
// TypeHeader when set, otherwise from the first of TypeFields present in the
// body.
type JSONDecoder struct {
	TypeHeader string
	TypeFields []string
	IDHeader   string
	IDFields   []string
}

func DefaultDecoder() JSONDecoder {
	return JSONDecoder{
		TypeHeader: "X-Event-Type",
		TypeFields: []string{"event_type", "type", "event"},
		IDHeader:   "X-Delivery-Id",
		IDFields:   []string{"event_id", "id"},
	}
}

func (d JSONDecoder) Decode(req Request) (webhooks.Event, error) {
	body, err := decodeObject(req.Body)
	if err != nil {
		return webhooks.Event{}, err
	}
	eventType := ""
	if d.TypeHeader != "" {
		eventType = strings.TrimSpace(req.Headers.Get(d.TypeHeader))
	}
	if eventType == "" {
		eventType = firstString(body, d.TypeFields...)
	}
	id := ""
	if d.IDHeader != "" {
		id = strings.TrimSpace(req.Headers.Get(d.IDHeader))
	}
	if id == "" {
		id = firstString(body, d.IDFields...)
	}
	return newEvent(req, id, eventType, req.Body), nil
}

type slackEnvelope struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type string `json:"type"`
	} `json:"event"`
}

// SlackDecoder reads Events API callbacks. The event type is the inner
// event's type.
type SlackDecoder struct{}

func (SlackDecoder) Decode(req Request) (webhooks.Event, error) {
	var envelope slackEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return webhooks.Event{}, fmt.Errorf("inbound: decode slack payload: %w", err)
	}
	eventType := strings.TrimSpace(envelope.Event.Type)
	if eventType == "" {
		eventType = strings.TrimSpace(envelope.Type)
	}
	if eventType == "" {
		return webhooks.Event{}, fmt.Errorf("inbound: slack event type is required")
	}
	return newEvent(req, envelope.EventID, eventType, req.Body), nil
}

// SlackChallenge answers the url_verification handshake Slack sends when an
// endpoint is configured.
func SlackChallenge(req Request) (string, bool) {
	var envelope slackEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return "", false
	}
	if envelope.Type != "url_verification" || envelope.Challenge == "" {
		return "", false
	}
	return envelope.Challenge, true
}

// GoogleDecoder reads Drive push notifications, which carry everything in
// X-Goog-* headers and no body.
type GoogleDecoder struct{}

func (GoogleDecoder) Decode(req Request) (webhooks.Event, error) {
	notification := drive.DecodeHeaders(req.Headers)
	if notification.ResourceState == "" {
		return webhooks.Event{}, fmt.Errorf("inbound: X-Goog-Resource-State header is required")
	}
	if notification.ChannelID == "" {
		notification.ChannelID = req.WebhookID
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return webhooks.Event{}, fmt.Errorf("inbound: encode google notification: %w", err)
	}
	id := ""
	if notification.MessageNumber != "" {
		id = notification.ChannelID + ":" + notification.MessageNumber
	}
	return newEvent(req, id, notification.ResourceState, payload), nil
}

func newEvent(req Request, id, eventType string, payload []byte) webhooks.Event {
	return webhooks.Event{
		ID:         strings.TrimSpace(id),
		WebhookID:  req.WebhookID,
		Provider:   req.Provider,
		EventType:  strings.TrimSpace(eventType),
		Payload:    json.RawMessage(payload),
		ReceivedAt: req.ReceivedAt,
	}
}

func decodeObject(body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, fmt.Errorf("inbound: request body is required")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("inbound: decode json payload: %w", err)
	}
	return decoded, nil
}

func firstString(values map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := values[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
