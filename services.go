package integrations

import (
	"context"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

type Config = core.Config

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type MetricsRecorder = core.MetricsRecorder

type Event = webhooks.Event
type Handler = webhooks.Handler
type HandlerFunc = webhooks.HandlerFunc
type BatchLogSink = webhooks.BatchLogSink
type StatsSink = webhooks.StatsSink
type OverflowSink = webhooks.OverflowSink

const (
	OverflowDropOldest = core.OverflowDropOldest
	OverflowRejectNew  = core.OverflowRejectNew
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig resolves defaults < raw values < runtime overrides. A nil
// loader loads nothing.
func LoadConfig(ctx context.Context, loader core.RawConfigLoader, runtime Config) (Config, error) {
	return core.LoadConfig(ctx, core.NewCfgxConfigProvider(loader), core.GoOptionsResolver{}, runtime)
}
