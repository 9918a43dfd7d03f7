package ai

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// NewDefaultRegistry registers the local keyword responder under "keyword".
func NewDefaultRegistry(seed int64) *Registry {
	r := NewRegistry()
	kp := NewKeywordProvider(rand.New(rand.NewSource(seed)))
	r.Register("keyword", func(ctx context.Context) (Provider, error) {
		_ = ctx
		return kp, nil
	})
	return r
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
