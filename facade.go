package integrations

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-integrations/adapters/gojob"
	"github.com/goliatone/go-integrations/adapters/gologger"
	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/transport"
	"github.com/goliatone/go-integrations/webhooks"
	"github.com/goliatone/go-job/queue"
)

// Runtime wires the resilient outbound clients and the webhook pipeline from
// one Config. Everything it owns is per process.
type Runtime struct {
	cfg      core.Config
	loggers  *gologger.Loggers
	observer core.Observer

	breakers *breaker.Registry
	clients  *transport.ClientRegistry
	handlers *webhooks.HandlerTable
	pipeline *webhooks.Pipeline

	mu      sync.Mutex
	started bool
}

type Option func(*runtimeOptions)

type runtimeOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	tracer         trace.Tracer

	adapter      transport.Adapter
	sleep        transport.SleepFunc
	stateChanges []func(breaker.Transition)

	batchLogs   webhooks.BatchLogSink
	statsSink   webhooks.StatsSink
	overflow    webhooks.OverflowSink
	enqueuer    queue.Enqueuer
	batchTicks  core.TickSource
	flushTicks  core.TickSource
	providerCfg providers.Config
	providerOps []providers.RegisterOption
	noDefaults  bool
	handlers    map[string]webhooks.Handler
	hooks       *ExtensionHooks
}

func WithLogger(logger core.Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *runtimeOptions) {
		o.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *runtimeOptions) {
		o.metrics = recorder
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *runtimeOptions) {
		o.tracer = tracer
	}
}

// WithAdapter replaces the REST adapter every outbound client shares.
func WithAdapter(adapter transport.Adapter) Option {
	return func(o *runtimeOptions) {
		o.adapter = adapter
	}
}

// WithSleep replaces the retry backoff sleeper, for tests.
func WithSleep(sleep transport.SleepFunc) Option {
	return func(o *runtimeOptions) {
		o.sleep = sleep
	}
}

// WithStateChangeHook observes every circuit transition.
func WithStateChangeHook(fn func(breaker.Transition)) Option {
	return func(o *runtimeOptions) {
		if fn != nil {
			o.stateChanges = append(o.stateChanges, fn)
		}
	}
}

// WithBatchLogSink sets where processed batches are persisted. The default
// keeps them in memory.
func WithBatchLogSink(sink webhooks.BatchLogSink) Option {
	return func(o *runtimeOptions) {
		o.batchLogs = sink
	}
}

// WithStatsSink sets where webhook counters are flushed. The default keeps
// them in memory.
func WithStatsSink(sink webhooks.StatsSink) Option {
	return func(o *runtimeOptions) {
		o.statsSink = sink
	}
}

func WithOverflowSink(sink webhooks.OverflowSink) Option {
	return func(o *runtimeOptions) {
		o.overflow = sink
	}
}

// WithOverflowEnqueuer spills evicted events to a go-job queue. It is
// ignored when WithOverflowSink is also set.
func WithOverflowEnqueuer(enqueuer queue.Enqueuer) Option {
	return func(o *runtimeOptions) {
		o.enqueuer = enqueuer
	}
}

func WithBatchTicks(source core.TickSource) Option {
	return func(o *runtimeOptions) {
		o.batchTicks = source
	}
}

func WithFlushTicks(source core.TickSource) Option {
	return func(o *runtimeOptions) {
		o.flushTicks = source
	}
}

// WithProviders configures the built-in provider handlers.
func WithProviders(cfg providers.Config, opts ...providers.RegisterOption) Option {
	return func(o *runtimeOptions) {
		o.providerCfg = cfg
		o.providerOps = append(o.providerOps, opts...)
	}
}

// WithoutDefaultHandlers leaves the handler table empty apart from
// WithHandler registrations and extension packs.
func WithoutDefaultHandlers() Option {
	return func(o *runtimeOptions) {
		o.noDefaults = true
	}
}

// WithHandler registers a handler for provider. Built-in handlers for the
// same provider are skipped.
func WithHandler(provider string, handler webhooks.Handler) Option {
	return func(o *runtimeOptions) {
		provider = strings.TrimSpace(strings.ToLower(provider))
		if o.handlers == nil {
			o.handlers = map[string]webhooks.Handler{}
		}
		o.handlers[provider] = handler
	}
}

func WithExtensionHooks(hooks *ExtensionHooks) Option {
	return func(o *runtimeOptions) {
		o.hooks = hooks
	}
}

// New validates cfg and builds every component. Nothing runs until Start.
func New(cfg core.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.metrics == nil {
		options.metrics = core.NopMetricsRecorder{}
	}

	loggers := gologger.NewLoggers(cfg.ServiceName, options.loggerProvider, options.logger)
	r := &Runtime{
		cfg:      cfg,
		loggers:  loggers,
		observer: core.NewObserver(loggers.Root(), options.metrics),
		handlers: webhooks.NewHandlerTable(),
	}

	breakerOpts := []breaker.Option{
		breaker.WithLogger(loggers.For("breaker")),
		breaker.WithMetricsRecorder(options.metrics),
	}
	if len(options.stateChanges) > 0 {
		hooks := append([]func(breaker.Transition)(nil), options.stateChanges...)
		breakerOpts = append(breakerOpts, breaker.WithStateChangeHook(func(t breaker.Transition) {
			for _, hook := range hooks {
				hook(t)
			}
		}))
	}
	r.breakers = breaker.NewRegistry(cfg.Circuit, breakerOpts...)

	clientOpts := []transport.ClientOption{
		transport.WithLogger(loggers.For("transport")),
		transport.WithMetricsRecorder(options.metrics),
	}
	if options.tracer != nil {
		clientOpts = append(clientOpts, transport.WithTracer(options.tracer))
	}
	if options.sleep != nil {
		clientOpts = append(clientOpts, transport.WithSleep(options.sleep))
	}
	r.clients = transport.NewClientRegistry(r.breakers, options.adapter, cfg.Transport, clientOpts...)

	if err := r.registerHandlers(options); err != nil {
		return nil, err
	}

	pipeline, err := r.buildPipeline(options)
	if err != nil {
		return nil, err
	}
	r.pipeline = pipeline
	return r, nil
}

func (r *Runtime) registerHandlers(options runtimeOptions) error {
	if !options.noDefaults {
		registerOpts := []providers.RegisterOption{providers.WithLogger(r.loggers.For("providers"))}
		for provider := range options.handlers {
			registerOpts = append(registerOpts, providers.WithoutProvider(provider))
		}
		registerOpts = append(registerOpts, options.providerOps...)
		if err := providers.RegisterDefaults(r.handlers, r.clients, options.providerCfg, registerOpts...); err != nil {
			return err
		}
	}
	for provider, handler := range options.handlers {
		if err := r.handlers.Register(provider, handler); err != nil {
			return err
		}
	}
	return options.hooks.ApplyHandlerPacks(r.handlers)
}

func (r *Runtime) buildPipeline(options runtimeOptions) (*webhooks.Pipeline, error) {
	batchLogs := options.batchLogs
	if batchLogs == nil {
		batchLogs = webhooks.NewMemoryBatchLogSink()
	}
	statsSink := options.statsSink
	if statsSink == nil {
		statsSink = webhooks.NewMemoryStatsSink()
	}
	overflow := options.overflow
	if overflow == nil && options.enqueuer != nil {
		overflow = gojob.NewOverflowSpiller(
			options.enqueuer,
			gojob.WithSpillerLogger(r.loggers.For("overflow")),
			gojob.WithSpillerMetricsRecorder(options.metrics),
		)
	}

	webhookLogger := r.loggers.For("webhooks")
	stats := webhooks.NewStatsAggregator(
		statsSink,
		webhooks.WithStatsLogger(webhookLogger),
		webhooks.WithStatsMetricsRecorder(options.metrics),
	)
	processorOpts := []webhooks.ProcessorOption{
		webhooks.WithProcessorLogger(webhookLogger),
		webhooks.WithProcessorMetricsRecorder(options.metrics),
	}
	if options.tracer != nil {
		processorOpts = append(processorOpts, webhooks.WithProcessorTracer(options.tracer))
	}
	pipelineOpts := []webhooks.PipelineOption{
		webhooks.WithPipelineLogger(webhookLogger),
		webhooks.WithPipelineMetricsRecorder(options.metrics),
		webhooks.WithBatchTicks(options.batchTicks),
		webhooks.WithFlushTicks(options.flushTicks),
	}
	if overflow != nil {
		pipelineOpts = append(pipelineOpts, webhooks.WithOverflowSink(overflow))
	}
	return webhooks.NewPipeline(
		webhooks.NewQueue(r.cfg.Queue),
		webhooks.NewProcessor(r.handlers, batchLogs, stats, processorOpts...),
		stats,
		webhooks.PipelineConfigFrom(r.cfg),
		pipelineOpts...,
	)
}

// Start launches the batch and stats-flush loops.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("integrations: runtime already started")
	}
	if err := r.pipeline.Start(ctx); err != nil {
		return err
	}
	r.started = true
	r.observer.Info(ctx, "integrations runtime started", map[string]any{
		"service":   r.cfg.ServiceName,
		"providers": r.handlers.Providers(),
	})
	return nil
}

// Stop stops the loops, waits for the in-flight batch, and flushes stats,
// bounded by ctx.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	err := r.pipeline.Stop(ctx)
	r.observer.Info(ctx, "integrations runtime stopped", map[string]any{"service": r.cfg.ServiceName})
	return err
}

// Push queues a verified event without blocking.
func (r *Runtime) Push(ctx context.Context, event webhooks.Event) (webhooks.Event, error) {
	return r.pipeline.Push(ctx, event)
}

// Client returns the breaker-guarded client for service, creating it on
// first use.
func (r *Runtime) Client(service string) *transport.Client {
	return r.clients.Client(service)
}

func (r *Runtime) Clients() *transport.ClientRegistry {
	return r.clients
}

func (r *Runtime) Pipeline() *webhooks.Pipeline {
	return r.pipeline
}

func (r *Runtime) Breakers() *breaker.Registry {
	return r.breakers
}

func (r *Runtime) Handlers() *webhooks.HandlerTable {
	return r.handlers
}

func (r *Runtime) Config() core.Config {
	return r.cfg
}

// Logger returns the runtime logger for component.
func (r *Runtime) Logger(component string) core.Logger {
	return r.loggers.For(component)
}
