package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type Transition struct {
	Service string
	From    State
	To      State
	At      time.Time
}

type Snapshot struct {
	Service       string
	State         State
	FailureCount  int
	SuccessCount  int
	LastFailureAt time.Time
	NextAttemptAt time.Time
	ProbeInFlight bool
	Config        Config
}

// Circuit guards one downstream service. Only Acquire (and Allow), the
// outcome recorders, and Reset mutate it.
type Circuit struct {
	mu sync.Mutex

	name          string
	cfg           Config
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	probing       bool
	generation    uint64

	now           func() time.Time
	isFailure     func(error) bool
	onStateChange func(Transition)
	observer      core.Observer
}

type Option func(*Circuit)

func WithClock(now func() time.Time) Option {
	return func(c *Circuit) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStateChangeHook registers fn to run after every state transition,
// outside the circuit lock.
func WithStateChangeHook(fn func(Transition)) Option {
	return func(c *Circuit) {
		c.onStateChange = fn
	}
}

// WithFailureClassifier decides which errors returned to Execute count
// against the circuit. The default counts every error except caller
// cancellation and errors whose CircuitNeutral method returns true.
func WithFailureClassifier(fn func(error) bool) Option {
	return func(c *Circuit) {
		if fn != nil {
			c.isFailure = fn
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Circuit) {
		c.observer.Logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Circuit) {
		c.observer.Metrics = recorder
	}
}

func New(name string, cfg Config, opts ...Option) *Circuit {
	c := &Circuit{
		name:      normalizeName(name),
		cfg:       cfg.normalized(),
		state:     StateClosed,
		now:       time.Now,
		isFailure: defaultIsFailure,
		observer:  core.NewObserver(nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// neutralOutcome is implemented by errors that say nothing about the health
// of the downstream, such as a request rejected before it was sent.
type neutralOutcome interface {
	CircuitNeutral() bool
}

func defaultIsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var neutral neutralOutcome
	if errors.As(err, &neutral) && neutral.CircuitNeutral() {
		return false
	}
	return true
}

// probeRetryAfter is the hint given to callers turned away while a probe is
// in flight: one second, or the open timeout when that is shorter.
func probeRetryAfter(cfg Config) time.Duration {
	if cfg.OpenTimeout > 0 && cfg.OpenTimeout < time.Second {
		return cfg.OpenTimeout
	}
	return time.Second
}

func (c *Circuit) Name() string {
	return c.name
}

func (c *Circuit) Config() Config {
	return c.cfg
}

func (c *Circuit) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Permit is a single admission handed out by Acquire. Outcomes reported
// through it count only while the circuit is still in the generation that
// admitted the call; a call that outlives a state change is ignored.
type Permit struct {
	circuit    *Circuit
	generation uint64
	probe      bool
}

// Probe reports whether the permit holds the half-open probe slot.
func (p Permit) Probe() bool {
	return p.probe
}

func (p Permit) Success() {
	if p.circuit != nil {
		p.circuit.recordSuccess(p.generation, true)
	}
}

func (p Permit) Failure() {
	if p.circuit != nil {
		p.circuit.recordFailure(p.generation, true)
	}
}

// Release returns the permit without an outcome, freeing the probe slot if
// it holds one.
func (p Permit) Release() {
	if p.circuit == nil || !p.probe {
		return
	}
	c := p.circuit
	c.mu.Lock()
	if c.generation == p.generation && c.state == StateHalfOpen {
		c.probing = false
	}
	c.mu.Unlock()
}

// Acquire admits a call or returns an *OpenError. An open circuit whose
// timeout has elapsed moves to half-open and admits exactly one probe at a
// time.
func (c *Circuit) Acquire() (Permit, error) {
	c.mu.Lock()
	var transitions []Transition
	now := c.now()

	switch c.state {
	case StateOpen:
		elapsed := now.Sub(c.lastFailureAt)
		if elapsed < c.cfg.OpenTimeout {
			retryAfter := c.cfg.OpenTimeout - elapsed
			c.mu.Unlock()
			return Permit{}, &OpenError{Service: c.name, State: StateOpen, RetryAfter: retryAfter}
		}
		transitions = append(transitions, c.transitionLocked(StateHalfOpen, now))
		c.successCount = 0
		c.probing = true
	case StateHalfOpen:
		if c.probing {
			retryAfter := probeRetryAfter(c.cfg)
			c.mu.Unlock()
			return Permit{}, &OpenError{Service: c.name, State: StateHalfOpen, RetryAfter: retryAfter}
		}
		c.probing = true
	}
	permit := Permit{circuit: c, generation: c.generation, probe: c.state == StateHalfOpen}
	c.mu.Unlock()

	c.emit(transitions)
	return permit, nil
}

// Allow is Acquire for callers that report outcomes with RecordSuccess and
// RecordFailure.
func (c *Circuit) Allow() error {
	_, err := c.Acquire()
	return err
}

// RecordSuccess applies a success to the current generation.
func (c *Circuit) RecordSuccess() {
	c.recordSuccess(0, false)
}

// RecordFailure applies a failure to the current generation.
func (c *Circuit) RecordFailure() {
	c.recordFailure(0, false)
}

func (c *Circuit) recordSuccess(generation uint64, scoped bool) {
	c.mu.Lock()
	if scoped && generation != c.generation {
		c.mu.Unlock()
		return
	}
	var transitions []Transition

	switch c.state {
	case StateClosed:
		c.failureCount = 0
	case StateHalfOpen:
		c.probing = false
		c.successCount++
		if c.successCount >= c.cfg.SuccessThreshold {
			transitions = append(transitions, c.transitionLocked(StateClosed, c.now()))
			c.failureCount = 0
			c.successCount = 0
		}
	}
	c.mu.Unlock()

	c.emit(transitions)
}

func (c *Circuit) recordFailure(generation uint64, scoped bool) {
	c.mu.Lock()
	if scoped && generation != c.generation {
		c.mu.Unlock()
		return
	}
	var transitions []Transition
	now := c.now()
	c.lastFailureAt = now

	switch c.state {
	case StateClosed:
		c.failureCount++
		if c.failureCount >= c.cfg.FailureThreshold {
			transitions = append(transitions, c.transitionLocked(StateOpen, now))
		}
	case StateHalfOpen:
		c.probing = false
		c.successCount = 0
		c.failureCount++
		transitions = append(transitions, c.transitionLocked(StateOpen, now))
	}
	c.mu.Unlock()

	c.emit(transitions)
}

// Execute runs fn when the circuit admits it and folds the single outcome
// into the state machine. A panic in fn counts as a failure and is re-raised.
func (c *Circuit) Execute(ctx context.Context, fn func(context.Context) error) (err error) {
	if fn == nil {
		return fmt.Errorf("breaker: execute function is required")
	}
	permit, err := c.Acquire()
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		permit.Failure()
	}()

	err = fn(ctx)
	completed = true
	switch {
	case err == nil:
		permit.Success()
	case c.isFailure(err):
		permit.Failure()
	default:
		permit.Release()
	}
	return err
}

// Reset forces the circuit closed with zeroed counters.
func (c *Circuit) Reset() {
	c.mu.Lock()
	var transitions []Transition
	if c.state != StateClosed {
		transitions = append(transitions, c.transitionLocked(StateClosed, c.now()))
	} else {
		c.generation++
	}
	c.failureCount = 0
	c.successCount = 0
	c.lastFailureAt = time.Time{}
	c.probing = false
	c.mu.Unlock()

	c.emit(transitions)
}

func (c *Circuit) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := Snapshot{
		Service:       c.name,
		State:         c.state,
		FailureCount:  c.failureCount,
		SuccessCount:  c.successCount,
		LastFailureAt: c.lastFailureAt,
		ProbeInFlight: c.probing,
		Config:        c.cfg,
	}
	if c.state == StateOpen {
		snapshot.NextAttemptAt = c.lastFailureAt.Add(c.cfg.OpenTimeout)
	}
	return snapshot
}

func (c *Circuit) transitionLocked(to State, at time.Time) Transition {
	from := c.state
	c.state = to
	c.generation++
	return Transition{Service: c.name, From: from, To: to, At: at}
}

func (c *Circuit) emit(transitions []Transition) {
	for _, transition := range transitions {
		fields := map[string]any{
			"service": transition.Service,
			"from":    string(transition.From),
			"to":      string(transition.To),
		}
		tags := map[string]string{"service": transition.Service, "to": string(transition.To)}
		c.observer.Count(context.Background(), "integrations.circuit.transition", 1, tags)
		if transition.To == StateOpen {
			c.observer.Warn(context.Background(), "circuit opened", fields)
		} else {
			c.observer.Info(context.Background(), "circuit state changed", fields)
		}
		if c.onStateChange != nil {
			c.onStateChange(transition)
		}
	}
}
