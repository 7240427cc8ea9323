package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ResolveLogger returns a named logger from provider or logger, falling back
// to a no-op logger when neither is configured.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	resolvedProvider, resolved := glog.Resolve(name, provider, logger)
	resolved = glog.Ensure(resolved)
	if resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			resolved = glog.Ensure(named)
		}
	}
	return resolved
}
