package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
)

// ClientRegistry hands out one Client per downstream service, sharing the
// adapter and drawing circuits from a breaker.Registry.
type ClientRegistry struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	breakers *breaker.Registry
	adapter  Adapter
	cfg      core.TransportConfig
	opts     []ClientOption
}

func NewClientRegistry(
	breakers *breaker.Registry,
	adapter Adapter,
	cfg core.TransportConfig,
	opts ...ClientOption,
) *ClientRegistry {
	if breakers == nil {
		breakers = breaker.NewRegistry(core.DefaultConfig().Circuit)
	}
	if adapter == nil {
		adapter = NewRESTAdapter(nil)
	}
	return &ClientRegistry{
		clients:  map[string]*Client{},
		breakers: breakers,
		adapter:  adapter,
		cfg:      cfg,
		opts:     append([]ClientOption(nil), opts...),
	}
}

// Register adds a preconfigured client. Names are unique.
func (r *ClientRegistry) Register(client *Client) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if client == nil {
		return fmt.Errorf("transport: client is nil")
	}
	name := normalizeService(client.Service())
	if name == "" {
		return fmt.Errorf("transport: client service name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("transport: client %q already registered", name)
	}
	r.clients[name] = client
	return nil
}

// Client returns the client for service, creating it on first use.
func (r *ClientRegistry) Client(service string) *Client {
	name := normalizeService(service)
	r.mu.RLock()
	client, ok := r.clients[name]
	r.mu.RUnlock()
	if ok {
		return client
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[name]; ok {
		return client
	}
	client = NewClient(name, r.adapter, r.breakers.Get(name), r.cfg, r.opts...)
	r.clients[name] = client
	return client
}

func (r *ClientRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ClientRegistry) Breakers() *breaker.Registry {
	return r.breakers
}

func normalizeService(service string) string {
	return strings.TrimSpace(strings.ToLower(service))
}
