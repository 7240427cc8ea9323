package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Loggers hands out named component loggers from one configured provider or
// logger. Precedence is provider > logger > nop.
type Loggers struct {
	name     string
	provider glog.LoggerProvider
	logger   glog.Logger
	named    bool
}

func NewLoggers(name string, provider glog.LoggerProvider, logger glog.Logger) *Loggers {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "go-integrations"
	}
	resolvedProvider, resolvedLogger := glog.Resolve(name, provider, logger)
	return &Loggers{
		name:     name,
		provider: resolvedProvider,
		logger:   glog.Ensure(resolvedLogger),
		named:    provider != nil,
	}
}

func (l *Loggers) Name() string {
	return l.name
}

// Root returns the logger resolved for the runtime name.
func (l *Loggers) Root() glog.Logger {
	return l.logger
}

// For returns the logger for component, named "<runtime>.<component>". A
// single configured logger cannot name components and is returned as is.
func (l *Loggers) For(component string) glog.Logger {
	component = strings.TrimSpace(component)
	if component == "" || !l.named || l.provider == nil {
		return l.logger
	}
	if named := l.provider.GetLogger(l.name + "." + component); named != nil {
		return named
	}
	return l.logger
}

// JobProvider bridges the resolved provider to go-job workers.
func (l *Loggers) JobProvider() job.LoggerProvider {
	if l.provider == nil {
		return nil
	}
	return job.GoLoggerProvider(l.provider)
}

func (l *Loggers) JobLogger() job.Logger {
	return job.GoLogger(l.logger)
}
