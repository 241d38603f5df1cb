// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for constructing them by name.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"quantlab/internal/domain"
)

// ErrUnknownStrategy is returned by Registry.New for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init performs any one-time setup required before the strategy begins
	// producing signals. Calling it again is a no-op.
	Init(ctx context.Context) error

	// Ready reports whether Init has completed.
	Ready() bool

	// GenerateSignals returns exactly one signal per point of series. It
	// must not depend on any point later than the one it is deciding for.
	GenerateSignals(ctx context.Context, series domain.Series) ([]domain.Signal, error)

	// OnOrderFilled is called after each successful execution.
	OnOrderFilled(ctx context.Context, fill domain.Fill)

	// OnMarketData receives streamed points. The batch engine does not call
	// it.
	OnMarketData(ctx context.Context, point domain.MarketPoint)
}

// Factory builds a fresh strategy from parameters. Missing parameters take
// the strategy's defaults.
type Factory func(params Params) (Strategy, error)

// Registry holds a named collection of strategy factories. Each backtest
// gets its own instance, so concurrent runs never share strategy state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with params.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return s, nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
