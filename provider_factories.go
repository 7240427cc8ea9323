package integrations

import (
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/google/drive"
	"github.com/goliatone/go-integrations/providers/slack"
	"github.com/goliatone/go-integrations/webhooks"
)

// SlackHandler builds a Slack handler whose users.info lookups go through
// the runtime's breaker-guarded "slack" client.
func (r *Runtime) SlackHandler(cfg slack.Config, opts ...slack.Option) webhooks.Handler {
	opts = append([]slack.Option{slack.WithLogger(r.Logger("providers.slack"))}, opts...)
	return slack.NewHandler(r.Client(slack.ProviderID), cfg, opts...)
}

// GoogleDriveHandler builds a Drive change handler bound to the runtime's
// "google" client.
func (r *Runtime) GoogleDriveHandler(cfg drive.Config, opts ...drive.Option) webhooks.Handler {
	opts = append([]drive.Option{drive.WithLogger(r.Logger("providers.google"))}, opts...)
	return drive.NewHandler(r.Client(drive.ProviderID), cfg, opts...)
}

func (r *Runtime) LogHandler(provider string) webhooks.Handler {
	return providers.NewLogHandler(provider, r.Logger("providers"))
}
