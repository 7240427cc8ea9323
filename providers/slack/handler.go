package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
	"github.com/goliatone/go-integrations/webhooks"
)

const (
	ProviderID     = "slack"
	DefaultBaseURL = "https://slack.com/api"
)

type Config struct {
	BaseURL  string `koanf:"base_url" mapstructure:"base_url"`
	BotToken string `koanf:"bot_token" mapstructure:"bot_token"`
}

// UserSink receives the profile resolved for events that carry a user.
type UserSink func(ctx context.Context, event NormalizedEvent, user User) error

type NormalizedEvent struct {
	EventID   string
	TeamID    string
	EventType string
	UserID    string
	ChannelID string
	Timestamp string
}

type User struct {
	ID       string `json:"id"`
	TeamID   string `json:"team_id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	Profile  struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

type usersInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  User   `json:"user"`
}

type rawEnvelope struct {
	Type    string `json:"type"`
	TeamID  string `json:"team_id"`
	EventID string `json:"event_id"`
	Event   struct {
		Type    string `json:"type"`
		User    any    `json:"user"`
		Channel string `json:"channel"`
		TS      string `json:"ts"`
		Item    struct {
			Channel string `json:"channel"`
		} `json:"item"`
	} `json:"event"`
}

// Handler processes Slack Events API callbacks. Events that name a user are
// enriched with a users.info lookup through the resilient client.
type Handler struct {
	client   *transport.Client
	cfg      Config
	onUser   UserSink
	observer core.Observer
}

type Option func(*Handler)

func WithUserSink(sink UserSink) Option {
	return func(h *Handler) {
		h.onUser = sink
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
	h := &Handler{client: client, cfg: cfg, observer: core.NewObserver(nil, nil)}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) Handle(ctx context.Context, event webhooks.Event) error {
	normalized, err := NormalizeEvent(event)
	if err != nil {
		return err
	}
	h.observer.Info(ctx, "processing slack event", map[string]any{
		"event_id":   event.ID,
		"event_type": normalized.EventType,
		"team_id":    normalized.TeamID,
	})

	switch normalized.EventType {
	case "message", "reaction_added", "user_change", "team_join":
	default:
		return nil
	}
	if normalized.UserID == "" || h.client == nil {
		return nil
	}

	user, err := h.lookupUser(ctx, normalized.UserID)
	if err != nil {
		return err
	}
	if h.onUser != nil {
		return h.onUser(ctx, normalized, user)
	}
	return nil
}

func (h *Handler) lookupUser(ctx context.Context, userID string) (User, error) {
	req := transport.Request{
		Method: http.MethodGet,
		URL:    h.cfg.BaseURL + "/users.info",
		Query:  map[string]string{"user": userID},
	}
	if token := strings.TrimSpace(h.cfg.BotToken); token != "" {
		req.Headers = map[string]string{"Authorization": "Bearer " + token}
	}
	res, err := transport.DoJSON[usersInfoResponse](ctx, h.client, req)
	if err != nil {
		return User{}, err
	}
	if !res.OK {
		return User{}, fmt.Errorf("providers/slack: users.info %s: %s", userID, firstNonEmpty(res.Error, "unknown_error"))
	}
	return res.User, nil
}

// NormalizeEvent reads the Events API envelope. The queued event type wins
// over the inner type when both are set.
func NormalizeEvent(event webhooks.Event) (NormalizedEvent, error) {
	envelope := rawEnvelope{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &envelope); err != nil {
			return NormalizedEvent{}, fmt.Errorf("providers/slack: parse event payload: %w", err)
		}
	}
	userID := ""
	switch user := envelope.Event.User.(type) {
	case string:
		userID = user
	case map[string]any:
		userID = readAnyString(user["id"])
	}
	return NormalizedEvent{
		EventID:   firstNonEmpty(envelope.EventID, event.ID),
		TeamID:    envelope.TeamID,
		EventType: strings.ToLower(firstNonEmpty(event.EventType, envelope.Event.Type, envelope.Type, "unknown")),
		UserID:    strings.TrimSpace(userID),
		ChannelID: firstNonEmpty(envelope.Event.Channel, envelope.Event.Item.Channel),
		Timestamp: envelope.Event.TS,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func readAnyString(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var _ webhooks.Handler = (*Handler)(nil)
