package breaker

import (
	"sort"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// Registry owns one Circuit per downstream service, created on first use with
// the settings resolved from a core.CircuitConfig.
type Registry struct {
	mu       sync.RWMutex
	cfg      core.CircuitConfig
	opts     []Option
	circuits map[string]*Circuit
}

func NewRegistry(cfg core.CircuitConfig, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		opts:     append([]Option(nil), opts...),
		circuits: map[string]*Circuit{},
	}
}

func (r *Registry) Get(name string) *Circuit {
	name = normalizeName(name)
	r.mu.RLock()
	circuit, ok := r.circuits[name]
	r.mu.RUnlock()
	if ok {
		return circuit
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if circuit, ok := r.circuits[name]; ok {
		return circuit
	}
	circuit = New(name, ConfigFromSettings(r.cfg.For(name)), r.opts...)
	r.circuits[name] = circuit
	return circuit
}

func (r *Registry) Lookup(name string) (*Circuit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	circuit, ok := r.circuits[normalizeName(name)]
	return circuit, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.circuits))
	for name := range r.circuits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Snapshots() []Snapshot {
	names := r.Names()
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if circuit, ok := r.Lookup(name); ok {
			out = append(out, circuit.Snapshot())
		}
	}
	return out
}

func (r *Registry) Reset(name string) error {
	circuit, ok := r.Lookup(name)
	if !ok {
		return circuitNotFoundError(normalizeName(name))
	}
	circuit.Reset()
	return nil
}

func (r *Registry) ResetAll() {
	r.mu.RLock()
	circuits := make([]*Circuit, 0, len(r.circuits))
	for _, circuit := range r.circuits {
		circuits = append(circuits, circuit)
	}
	r.mu.RUnlock()
	for _, circuit := range circuits {
		circuit.Reset()
	}
}
