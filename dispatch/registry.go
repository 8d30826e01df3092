package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-intake/core"
)

// Registry routes events to handlers by (provider, event kind) and holds
// the per-provider signature verifiers. Providers without a registered
// verifier skip verification.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]core.SignatureVerifier
	handlers  map[string]core.EventHandler
}

func NewRegistry() *Registry {
	return &Registry{
		verifiers: map[string]core.SignatureVerifier{},
		handlers:  map[string]core.EventHandler{},
	}
}

func (r *Registry) RegisterVerifier(provider string, verifier core.SignatureVerifier) error {
	if r == nil {
		return fmt.Errorf("dispatch: registry is nil")
	}
	provider = normalizeToken(provider)
	if provider == "" {
		return fmt.Errorf("dispatch: provider is required")
	}
	if verifier == nil {
		return fmt.Errorf("dispatch: verifier is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[provider] = verifier
	return nil
}

func (r *Registry) Register(provider string, eventKind string, handler core.EventHandler) error {
	if r == nil {
		return fmt.Errorf("dispatch: registry is nil")
	}
	provider = normalizeToken(provider)
	eventKind = normalizeToken(eventKind)
	if provider == "" {
		return fmt.Errorf("dispatch: provider is required")
	}
	if eventKind == "" {
		return fmt.Errorf("dispatch: event kind is required")
	}
	if handler == nil {
		return fmt.Errorf("dispatch: handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey(provider, eventKind)] = handler
	return nil
}

func (r *Registry) Resolve(provider string, eventKind string) (core.EventHandler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[handlerKey(normalizeToken(provider), normalizeToken(eventKind))]
	return handler, ok
}

func (r *Registry) verifier(provider string) (core.SignatureVerifier, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	verifier, ok := r.verifiers[normalizeToken(provider)]
	return verifier, ok
}

func handlerKey(provider string, eventKind string) string {
	return provider + "|" + eventKind
}

func normalizeToken(value string) string {
	return strings.TrimSpace(strings.ToLower(value))
}

var _ core.HandlerRouter = (*Registry)(nil)
