package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/webhooks"
)

// HandlerPack groups webhook handlers shipped by one extension, keyed by
// provider.
type HandlerPack struct {
	Name     string
	Handlers map[string]webhooks.Handler
}

// BundleFactory builds an extension bundle (typically a set of commands or
// queries) against a configured runtime.
type BundleFactory func(runtime *Runtime) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks map[string]HandlerPack
	bundles      map[string]BundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks: map[string]HandlerPack{},
		bundles:      map[string]BundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("integrations: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{Name: name, Handlers: make(map[string]webhooks.Handler, len(pack.Handlers))}
	for provider, handler := range pack.Handlers {
		provider = strings.TrimSpace(strings.ToLower(provider))
		if provider == "" {
			return fmt.Errorf("integrations: handler pack %q has an empty provider", name)
		}
		if handler == nil {
			return fmt.Errorf("integrations: handler pack %q has a nil handler for %q", name, provider)
		}
		normalized.Handlers[provider] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("integrations: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterBundle(name string, factory BundleFactory) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every pack into table in pack-name order. A
// provider that already has a handler fails the whole apply.
func (h *ExtensionHooks) ApplyHandlerPacks(table *webhooks.HandlerTable) error {
	if h == nil {
		return nil
	}
	if table == nil {
		return fmt.Errorf("integrations: handler table is required")
	}
	for _, pack := range h.HandlerPacks() {
		providers := make([]string, 0, len(pack.Handlers))
		for provider := range pack.Handlers {
			providers = append(providers, provider)
		}
		sort.Strings(providers)
		for _, provider := range providers {
			if err := table.Register(provider, pack.Handlers[provider]); err != nil {
				return fmt.Errorf("integrations: handler pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildBundles(runtime *Runtime) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if runtime == nil {
		return nil, fmt.Errorf("integrations: runtime is required")
	}

	h.mu.RLock()
	factories := make(map[string]BundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range sortedKeys(factories) {
		bundle, err := factories[name](runtime)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HandlerPack, 0, len(h.handlerPacks))
	for _, name := range sortedKeys(h.handlerPacks) {
		pack := h.handlerPacks[name]
		handlers := make(map[string]webhooks.Handler, len(pack.Handlers))
		for provider, handler := range pack.Handlers {
			handlers[provider] = handler
		}
		out = append(out, HandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
