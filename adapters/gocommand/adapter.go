package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	integrationscommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so they can also run as background jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Operations are the runtime collaborators the operational commands and
// queries act on. A nil field skips the handlers that need it.
type Operations struct {
	Pipeline interface {
		integrationscommand.WebhookPusher
		integrationscommand.BatchRunner
		integrationscommand.StatsFlusher
		query.PipelineStatsReader
	}
	Circuits interface {
		integrationscommand.CircuitResetter
		query.CircuitSnapshotReader
	}
	SyncLogs query.SyncLogReader
}

// Subscriptions groups dispatcher subscriptions so they can be dropped
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterOperations registers and subscribes every operational command and
// query backed by ops. On failure nothing stays subscribed.
func RegisterOperations(adapter *RegistryAdapter, ops Operations, runnerOpts ...runner.Option) (Subscriptions, error) {
	var subs Subscriptions
	var errs []error
	track := func(sub commanddispatcher.Subscription, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		subs = append(subs, sub)
	}

	if ops.Pipeline != nil {
		track(RegisterAndSubscribe(adapter, integrationscommand.NewEnqueueWebhookCommand(ops.Pipeline), runnerOpts...))
		track(RegisterAndSubscribe(adapter, integrationscommand.NewDrainBatchCommand(ops.Pipeline), runnerOpts...))
		track(RegisterAndSubscribe(adapter, integrationscommand.NewFlushStatsCommand(ops.Pipeline), runnerOpts...))
		track(RegisterAndSubscribeQuery(adapter, query.NewQueueStatsQuery(ops.Pipeline), runnerOpts...))
	}
	if ops.Circuits != nil {
		track(RegisterAndSubscribe(adapter, integrationscommand.NewResetCircuitCommand(ops.Circuits), runnerOpts...))
		track(RegisterAndSubscribeQuery(adapter, query.NewCircuitSnapshotsQuery(ops.Circuits), runnerOpts...))
	}
	if ops.SyncLogs != nil {
		track(RegisterAndSubscribeQuery(adapter, query.NewListSyncLogsQuery(ops.SyncLogs), runnerOpts...))
	}

	if err := errors.Join(errs...); err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return subs, nil
}
