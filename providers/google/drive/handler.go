package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
	"github.com/goliatone/go-integrations/webhooks"
)

const (
	ProviderID     = "google"
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"

	ResourceStateSync = "sync"

	defaultMaxPages = 10
)

type Config struct {
	BaseURL     string `koanf:"base_url" mapstructure:"base_url"`
	AccessToken string `koanf:"access_token" mapstructure:"access_token"`
	MaxPages    int    `koanf:"max_pages" mapstructure:"max_pages"`
}

// Notification is the queued payload of a Drive push notification.
type Notification struct {
	ChannelID     string `json:"channel_id"`
	ResourceID    string `json:"resource_id"`
	ResourceState string `json:"resource_state"`
	MessageNumber string `json:"message_number,omitempty"`
}

type Change struct {
	Kind       string `json:"kind"`
	ChangeType string `json:"changeType"`
	FileID     string `json:"fileId"`
	Removed    bool   `json:"removed"`
	Time       string `json:"time"`
	File       *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		MimeType string `json:"mimeType"`
		Trashed  bool   `json:"trashed"`
	} `json:"file,omitempty"`
}

type changesPage struct {
	Changes           []Change `json:"changes"`
	NextPageToken     string   `json:"nextPageToken"`
	NewStartPageToken string   `json:"newStartPageToken"`
}

type startPageTokenResponse struct {
	StartPageToken string `json:"startPageToken"`
}

// PageTokenStore keeps the changes cursor per watch channel.
type PageTokenStore interface {
	Get(ctx context.Context, channelID string) (string, error)
	Set(ctx context.Context, channelID string, token string) error
}

type ChangeSink func(ctx context.Context, notification Notification, changes []Change) error

// Handler reacts to Drive change notifications by fetching the changes since
// the stored cursor through the resilient client.
type Handler struct {
	client   *transport.Client
	cfg      Config
	tokens   PageTokenStore
	onChange ChangeSink
	observer core.Observer
}

type Option func(*Handler)

func WithPageTokenStore(store PageTokenStore) Option {
	return func(h *Handler) {
		if store != nil {
			h.tokens = store
		}
	}
}

func WithChangeSink(sink ChangeSink) Option {
	return func(h *Handler) {
		h.onChange = sink
	}
}

func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		h.observer.Logger = logger
	}
}

func NewHandler(client *transport.Client, cfg Config, opts ...Option) *Handler {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	h := &Handler{
		client:   client,
		cfg:      cfg,
		tokens:   NewMemoryPageTokenStore(),
		observer: core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, event webhooks.Event) error {
	notification, err := ParseNotification(event)
	if err != nil {
		return err
	}
	h.observer.Info(ctx, "processing google event", map[string]any{
		"event_id":       event.ID,
		"channel_id":     notification.ChannelID,
		"resource_state": notification.ResourceState,
	})
	if notification.ResourceState == ResourceStateSync || h.client == nil {
		return nil
	}

	token, err := h.tokens.Get(ctx, notification.ChannelID)
	if err != nil {
		return fmt.Errorf("providers/google: load page token: %w", err)
	}
	if token == "" {
		start, err := transport.DoJSON[startPageTokenResponse](ctx, h.client, h.request("/changes/startPageToken", nil))
		if err != nil {
			return err
		}
		token = start.StartPageToken
	}

	var changes []Change
	for page := 0; page < h.cfg.MaxPages && token != ""; page++ {
		res, err := transport.DoJSON[changesPage](ctx, h.client, h.request("/changes", map[string]string{"pageToken": token}))
		if err != nil {
			return err
		}
		changes = append(changes, res.Changes...)
		if res.NewStartPageToken != "" {
			token = res.NewStartPageToken
			break
		}
		token = res.NextPageToken
	}

	if h.onChange != nil && len(changes) > 0 {
		if err := h.onChange(ctx, notification, changes); err != nil {
			return err
		}
	}
	if token != "" {
		if err := h.tokens.Set(ctx, notification.ChannelID, token); err != nil {
			return fmt.Errorf("providers/google: store page token: %w", err)
		}
	}
	return nil
}

func (h *Handler) request(path string, query map[string]string) transport.Request {
	req := transport.Request{
		Method: http.MethodGet,
		URL:    h.cfg.BaseURL + path,
		Query:  query,
	}
	if token := strings.TrimSpace(h.cfg.AccessToken); token != "" {
		req.Headers = map[string]string{"Authorization": "Bearer " + token}
	}
	return req
}

// ParseNotification decodes the queued notification. The queued event type is
// used as the resource state when the payload omits it.
func ParseNotification(event webhooks.Event) (Notification, error) {
	notification := Notification{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &notification); err != nil {
			return Notification{}, fmt.Errorf("providers/google: parse notification: %w", err)
		}
	}
	state := strings.TrimSpace(notification.ResourceState)
	if state == "" {
		state = event.EventType
	}
	notification.ResourceState = strings.ToLower(strings.TrimSpace(state))
	if notification.ChannelID == "" {
		notification.ChannelID = event.WebhookID
	}
	return notification, nil
}

// DecodeHeaders builds a notification from Drive push headers.
func DecodeHeaders(headers http.Header) Notification {
	return Notification{
		ChannelID:     strings.TrimSpace(headers.Get("X-Goog-Channel-Id")),
		ResourceID:    strings.TrimSpace(headers.Get("X-Goog-Resource-Id")),
		ResourceState: strings.ToLower(strings.TrimSpace(headers.Get("X-Goog-Resource-State"))),
		MessageNumber: strings.TrimSpace(headers.Get("X-Goog-Message-Number")),
	}
}

type MemoryPageTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryPageTokenStore() *MemoryPageTokenStore {
	return &MemoryPageTokenStore{tokens: map[string]string{}}
}

func (s *MemoryPageTokenStore) Get(_ context.Context, channelID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[channelID], nil
}

func (s *MemoryPageTokenStore) Set(_ context.Context, channelID string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[channelID] = token
	return nil
}

var (
	_ webhooks.Handler = (*Handler)(nil)
	_ PageTokenStore   = (*MemoryPageTokenStore)(nil)
)
