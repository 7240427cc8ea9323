package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/webhooks"
)

// WebhookPusher is satisfied by *webhooks.Pipeline.
type WebhookPusher interface {
	Push(ctx context.Context, event webhooks.Event) (webhooks.Event, error)
}

type BatchRunner interface {
	RunBatch(ctx context.Context) (webhooks.BatchResult, bool)
}

type StatsFlusher interface {
	FlushStats(ctx context.Context) (int, error)
}

// CircuitResetter is satisfied by *breaker.Registry.
type CircuitResetter interface {
	Reset(name string) error
	ResetAll()
}

// DrainBatchResult reports whether a batch ran. Ran is false when the queue
// was empty or another batch was already in flight.
type DrainBatchResult struct {
	Ran    bool
	Result webhooks.BatchResult
}

type FlushStatsResult struct {
	Flushed int
}

type EnqueueWebhookCommand struct {
	pusher WebhookPusher
}

func NewEnqueueWebhookCommand(pusher WebhookPusher) *EnqueueWebhookCommand {
	return &EnqueueWebhookCommand{pusher: pusher}
}

func (c *EnqueueWebhookCommand) Execute(ctx context.Context, msg EnqueueWebhookMessage) error {
	if c == nil || c.pusher == nil {
		return commandDependencyError("command: webhook pipeline is required")
	}
	queued, err := c.pusher.Push(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, queued)
	return nil
}

type DrainBatchCommand struct {
	runner BatchRunner
}

func NewDrainBatchCommand(runner BatchRunner) *DrainBatchCommand {
	return &DrainBatchCommand{runner: runner}
}

func (c *DrainBatchCommand) Execute(ctx context.Context, _ DrainBatchMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: batch runner is required")
	}
	result, ran := c.runner.RunBatch(ctx)
	storeResult(ctx, DrainBatchResult{Ran: ran, Result: result})
	return nil
}

type FlushStatsCommand struct {
	flusher StatsFlusher
}

func NewFlushStatsCommand(flusher StatsFlusher) *FlushStatsCommand {
	return &FlushStatsCommand{flusher: flusher}
}

func (c *FlushStatsCommand) Execute(ctx context.Context, _ FlushStatsMessage) error {
	if c == nil || c.flusher == nil {
		return commandDependencyError("command: stats flusher is required")
	}
	flushed, err := c.flusher.FlushStats(ctx)
	storeResult(ctx, FlushStatsResult{Flushed: flushed})
	return err
}

type ResetCircuitCommand struct {
	circuits CircuitResetter
}

func NewResetCircuitCommand(circuits CircuitResetter) *ResetCircuitCommand {
	return &ResetCircuitCommand{circuits: circuits}
}

func (c *ResetCircuitCommand) Execute(_ context.Context, msg ResetCircuitMessage) error {
	if c == nil || c.circuits == nil {
		return commandDependencyError("command: circuit registry is required")
	}
	if msg.All {
		c.circuits.ResetAll()
		return nil
	}
	return c.circuits.Reset(msg.Service)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
