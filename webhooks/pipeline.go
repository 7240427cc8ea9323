package webhooks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type PipelineConfig struct {
	BatchSize     int
	TickInterval  time.Duration
	FlushInterval time.Duration
}

func PipelineConfigFrom(cfg core.Config) PipelineConfig {
	return PipelineConfig{
		BatchSize:     cfg.Queue.BatchSize,
		TickInterval:  cfg.Queue.TickInterval(),
		FlushInterval: cfg.Stats.FlushInterval(),
	}
}

func (c PipelineConfig) normalized() PipelineConfig {
	defaults := PipelineConfigFrom(core.DefaultConfig())
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaults.FlushInterval
	}
	return c
}

// PipelineStats is a point-in-time view of the pipeline.
type PipelineStats struct {
	QueueSize       int
	Processing      bool
	BatchSize       int
	TickInterval    time.Duration
	FlushInterval   time.Duration
	BufferedStats   int
	Evicted         int64
	Rejected        int64
	Dropped         int64
	PendingOverflow int
	Running         bool
}

// Pipeline owns the batch and stats-flush loops. At most one batch is in
// flight at a time; a tick that finds a batch running does nothing.
type Pipeline struct {
	cfg       PipelineConfig
	queue     *Queue
	processor *Processor
	stats     *StatsAggregator
	overflow  OverflowSink

	batchTicks core.TickSource
	flushTicks core.TickSource
	observer   core.Observer

	processing atomic.Bool
	inflight   sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	loops   sync.WaitGroup
	baseCtx context.Context
}

type PipelineOption func(*Pipeline)

// WithBatchTicks sets the tick source that drives batch draining.
func WithBatchTicks(source core.TickSource) PipelineOption {
	return func(p *Pipeline) {
		if source != nil {
			p.batchTicks = source
		}
	}
}

// WithFlushTicks sets the tick source that drives stats flushing.
func WithFlushTicks(source core.TickSource) PipelineOption {
	return func(p *Pipeline) {
		if source != nil {
			p.flushTicks = source
		}
	}
}

func WithOverflowSink(sink OverflowSink) PipelineOption {
	return func(p *Pipeline) {
		p.overflow = sink
	}
}

func WithPipelineLogger(logger core.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.observer.Logger = logger
	}
}

func WithPipelineMetricsRecorder(recorder core.MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		if recorder != nil {
			p.observer.Metrics = recorder
		}
	}
}

func NewPipeline(
	queue *Queue,
	processor *Processor,
	stats *StatsAggregator,
	cfg PipelineConfig,
	opts ...PipelineOption,
) (*Pipeline, error) {
	if queue == nil || processor == nil || stats == nil {
		return nil, fmt.Errorf("webhooks: pipeline requires queue, processor, and stats aggregator")
	}
	p := &Pipeline{
		cfg:        cfg.normalized(),
		queue:      queue,
		processor:  processor,
		stats:      stats,
		batchTicks: core.RealTickSource{},
		flushTicks: core.RealTickSource{},
		observer:   core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Pipeline) Queue() *Queue {
	return p.queue
}

func (p *Pipeline) Processor() *Processor {
	return p.processor
}

func (p *Pipeline) Aggregator() *StatsAggregator {
	return p.stats
}

// Push enqueues a verified event and returns immediately.
func (p *Pipeline) Push(ctx context.Context, event Event) (Event, error) {
	queued, err := p.queue.Push(event)
	fields := map[string]any{
		"event_id":   queued.ID,
		"webhook_id": queued.WebhookID,
		"provider":   queued.Provider,
		"event_type": queued.EventType,
		"queue_size": p.queue.Len(),
	}
	if err != nil {
		p.observer.Warn(ctx, "webhook rejected: queue full", fields)
		p.observer.Count(ctx, "webhooks.queue.overflow", 1, map[string]string{"policy": core.OverflowRejectNew})
		return queued, err
	}
	p.observer.Debug(ctx, "webhook queued", fields)
	return queued, nil
}

// Start launches the batch and stats-flush loops. Work started by a tick
// runs with ctx values but is not cancelled when ctx is.
func (p *Pipeline) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.baseCtx = context.WithoutCancel(ctx)

	batchTicker := p.batchTicks.NewTicker(p.cfg.TickInterval)
	flushTicker := p.flushTicks.NewTicker(p.cfg.FlushInterval)
	p.loops.Add(2)
	go p.loop(batchTicker, p.stopCh, p.dispatchBatch)
	go p.loop(flushTicker, p.stopCh, func() {
		_, _ = p.FlushStats(p.baseCtx)
	})

	p.observer.Info(ctx, "webhook pipeline started", map[string]any{
		"batch_size":        p.cfg.BatchSize,
		"tick_interval_ms":  p.cfg.TickInterval.Milliseconds(),
		"flush_interval_ms": p.cfg.FlushInterval.Milliseconds(),
	})
	return nil
}

// Stop halts both loops, waits for an in-flight batch, spills pending
// overflow, and performs a final stats flush. When ctx ends first, Stop
// returns ctx.Err() without the final flush.
func (p *Pipeline) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.loops.Wait()
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		p.observer.Warn(ctx, "webhook pipeline stop timed out waiting for batch", map[string]any{
			"queue_size": p.queue.Len(),
		})
		return ctx.Err()
	}

	p.spillOverflow(ctx)
	if _, err := p.FlushStats(ctx); err != nil {
		p.observer.Warn(ctx, "final webhook stats flush incomplete", map[string]any{"error": err.Error()})
	}
	p.observer.Info(ctx, "webhook pipeline stopped", map[string]any{
		"queue_size": p.queue.Len(),
	})
	return nil
}

func (p *Pipeline) loop(ticker core.Ticker, stop <-chan struct{}, onTick func()) {
	defer p.loops.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			onTick()
		}
	}
}

// dispatchBatch is the tick handler: it claims the in-flight flag and runs
// the batch on its own goroutine so later ticks observe the flag.
func (p *Pipeline) dispatchBatch() {
	ctx := p.baseCtx
	p.spillOverflow(ctx)
	if p.queue.Len() == 0 {
		return
	}
	if !p.processing.CompareAndSwap(false, true) {
		p.observer.Debug(ctx, "webhook batch still in flight, skipping tick", nil)
		return
	}
	events := p.queue.Drain(p.cfg.BatchSize)
	if len(events) == 0 {
		p.processing.Store(false)
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer p.processing.Store(false)
		p.processor.ProcessBatch(ctx, events)
	}()
}

// RunBatch drains and processes one batch on the calling goroutine. It
// reports false without draining when the queue is empty or another batch
// is in flight.
func (p *Pipeline) RunBatch(ctx context.Context) (BatchResult, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.spillOverflow(ctx)
	if p.queue.Len() == 0 {
		return BatchResult{}, false
	}
	if !p.processing.CompareAndSwap(false, true) {
		return BatchResult{}, false
	}
	defer p.processing.Store(false)
	events := p.queue.Drain(p.cfg.BatchSize)
	if len(events) == 0 {
		return BatchResult{}, false
	}
	return p.processor.ProcessBatch(ctx, events), true
}

// FlushStats flushes the stats buffer. Failures are logged and left in the
// buffer for the next flush.
func (p *Pipeline) FlushStats(ctx context.Context) (int, error) {
	if p.stats.Len() == 0 {
		return 0, nil
	}
	return p.stats.Flush(ctx)
}

func (p *Pipeline) spillOverflow(ctx context.Context) {
	evicted := p.queue.TakeOverflow()
	if len(evicted) == 0 {
		return
	}
	fields := map[string]any{"count": len(evicted), "policy": core.OverflowDropOldest}
	p.observer.Count(ctx, "webhooks.queue.overflow", int64(len(evicted)), map[string]string{"policy": core.OverflowDropOldest})
	if p.overflow == nil {
		p.queue.CountDropped(len(evicted))
		p.observer.Warn(ctx, "webhook queue overflow: oldest events dropped", fields)
		return
	}
	if err := p.overflow.Spill(ctx, evicted); err != nil {
		p.queue.CountDropped(len(evicted))
		fields["error"] = err.Error()
		p.observer.Error(ctx, "webhook queue overflow spill failed", fields)
		return
	}
	p.observer.Warn(ctx, "webhook queue overflow spilled", fields)
}

func (p *Pipeline) Stats() PipelineStats {
	queueStats := p.queue.Stats()
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return PipelineStats{
		QueueSize:       queueStats.Length,
		Processing:      p.processing.Load(),
		BatchSize:       p.cfg.BatchSize,
		TickInterval:    p.cfg.TickInterval,
		FlushInterval:   p.cfg.FlushInterval,
		BufferedStats:   p.stats.Len(),
		Evicted:         queueStats.Evicted,
		Rejected:        queueStats.Rejected,
		Dropped:         queueStats.Dropped,
		PendingOverflow: queueStats.PendingOverflow,
		Running:         running,
	}
}
