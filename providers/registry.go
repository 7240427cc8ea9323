package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/google/drive"
	"github.com/goliatone/go-integrations/providers/slack"
	"github.com/goliatone/go-integrations/transport"
	"github.com/goliatone/go-integrations/webhooks"
)

const (
	ProviderAsana = "asana"
	ProviderTeams = "teams"
)

type Config struct {
	Slack  slack.Config `koanf:"slack" mapstructure:"slack"`
	Google drive.Config `koanf:"google" mapstructure:"google"`
}

// ClientSource hands out the resilient client for a downstream service.
type ClientSource interface {
	Client(service string) *transport.Client
}

type registerOptions struct {
	logger      core.Logger
	slackOpts   []slack.Option
	driveOpts   []drive.Option
	logOnly     []string
	skipDefault map[string]bool
}

type RegisterOption func(*registerOptions)

func WithLogger(logger core.Logger) RegisterOption {
	return func(o *registerOptions) {
		o.logger = logger
	}
}

func WithSlackOptions(opts ...slack.Option) RegisterOption {
	return func(o *registerOptions) {
		o.slackOpts = append(o.slackOpts, opts...)
	}
}

func WithDriveOptions(opts ...drive.Option) RegisterOption {
	return func(o *registerOptions) {
		o.driveOpts = append(o.driveOpts, opts...)
	}
}

// WithLogOnlyProviders registers additional providers whose events are only
// logged.
func WithLogOnlyProviders(providers ...string) RegisterOption {
	return func(o *registerOptions) {
		o.logOnly = append(o.logOnly, providers...)
	}
}

// WithoutProvider skips one of the built-in registrations, letting callers
// register their own handler for it.
func WithoutProvider(provider string) RegisterOption {
	return func(o *registerOptions) {
		o.skipDefault[strings.TrimSpace(strings.ToLower(provider))] = true
	}
}

// RegisterDefaults populates table with the built-in handlers: slack and
// google call out through clients, asana and teams are log-only.
func RegisterDefaults(table *webhooks.HandlerTable, clients ClientSource, cfg Config, opts ...RegisterOption) error {
	if table == nil {
		return errors.New("providers: handler table is required")
	}
	options := registerOptions{skipDefault: map[string]bool{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	clientFor := func(service string) *transport.Client {
		if clients == nil {
			return nil
		}
		return clients.Client(service)
	}

	handlers := map[string]webhooks.Handler{}
	if !options.skipDefault[slack.ProviderID] {
		slackOpts := append([]slack.Option{slack.WithLogger(options.logger)}, options.slackOpts...)
		handlers[slack.ProviderID] = slack.NewHandler(clientFor(slack.ProviderID), cfg.Slack, slackOpts...)
	}
	if !options.skipDefault[drive.ProviderID] {
		driveOpts := append([]drive.Option{drive.WithLogger(options.logger)}, options.driveOpts...)
		handlers[drive.ProviderID] = drive.NewHandler(clientFor(drive.ProviderID), cfg.Google, driveOpts...)
	}
	for _, provider := range append([]string{ProviderAsana, ProviderTeams}, options.logOnly...) {
		provider = strings.TrimSpace(strings.ToLower(provider))
		if provider == "" || options.skipDefault[provider] {
			continue
		}
		handlers[provider] = NewLogHandler(provider, options.logger)
	}

	var errs []error
	for provider, handler := range handlers {
		if err := table.Register(provider, handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogHandler acknowledges events for providers without processing logic.
type LogHandler struct {
	provider string
	observer core.Observer
}

func NewLogHandler(provider string, logger core.Logger) *LogHandler {
	return &LogHandler{
		provider: strings.TrimSpace(strings.ToLower(provider)),
		observer: core.NewObserver(logger, nil),
	}
}

func (h *LogHandler) Handle(ctx context.Context, event webhooks.Event) error {
	h.observer.Info(ctx, "received "+h.provider+" event", map[string]any{
		"event_id":   event.ID,
		"webhook_id": event.WebhookID,
		"event_type": event.EventType,
	})
	return nil
}

var _ webhooks.Handler = (*LogHandler)(nil)
