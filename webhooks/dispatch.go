package webhooks

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Handler processes one event for a provider. Errors and panics are turned
// into failed results by the Processor.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// HandlerTable maps provider tags to handlers. Adding a provider is a
// Register call; dispatch is a lookup.
type HandlerTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: map[string]Handler{}}
}

func (t *HandlerTable) Register(provider string, handler Handler) error {
	provider = normalizeProvider(provider)
	if provider == "" || handler == nil {
		return handlerRequiredError(provider)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[provider]; exists {
		return handlerExistsError(provider)
	}
	t.handlers[provider] = handler
	return nil
}

func (t *HandlerTable) Lookup(provider string) (Handler, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	handler, ok := t.handlers[normalizeProvider(provider)]
	return handler, ok
}

func (t *HandlerTable) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.handlers))
	for provider := range t.handlers {
		out = append(out, provider)
	}
	sort.Strings(out)
	return out
}

func normalizeProvider(provider string) string {
	return strings.TrimSpace(strings.ToLower(provider))
}
