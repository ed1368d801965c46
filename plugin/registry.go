package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onTierUpdated          []OnTierUpdated
	onSubscribed           []OnSubscribed
	onUnsubscribed         []OnUnsubscribed
	onDistributed          []OnDistributed
	onDistributionDeferred []OnDistributionDeferred
	onPauseChanged         []OnPauseChanged
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTierUpdated); ok {
		r.onTierUpdated = append(r.onTierUpdated, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnUnsubscribed); ok {
		r.onUnsubscribed = append(r.onUnsubscribed, v)
	}
	if v, ok := p.(OnDistributed); ok {
		r.onDistributed = append(r.onDistributed, v)
	}
	if v, ok := p.(OnDistributionDeferred); ok {
		r.onDistributionDeferred = append(r.onDistributionDeferred, v)
	}
	if v, ok := p.(OnPauseChanged); ok {
		r.onPauseChanged = append(r.onPauseChanged, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns a list of hooks implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnTierUpdated)(nil)).Elem(), "OnTierUpdated")
	checkInterface(reflect.TypeOf((*OnSubscribed)(nil)).Elem(), "OnSubscribed")
	checkInterface(reflect.TypeOf((*OnUnsubscribed)(nil)).Elem(), "OnUnsubscribed")
	checkInterface(reflect.TypeOf((*OnDistributed)(nil)).Elem(), "OnDistributed")
	checkInterface(reflect.TypeOf((*OnDistributionDeferred)(nil)).Elem(), "OnDistributionDeferred")
	checkInterface(reflect.TypeOf((*OnPauseChanged)(nil)).Elem(), "OnPauseChanged")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, l)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTierUpdated emits a tier updated event.
func (r *Registry) EmitTierUpdated(ctx context.Context, t *tier.Tier) {
	r.mu.RLock()
	plugins := r.onTierUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTierUpdated(ctx, t)
		}); err != nil {
			r.logger.Warn("plugin OnTierUpdated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscribed emits a subscribed event.
func (r *Registry) EmitSubscribed(ctx context.Context, sub, replaced *subscription.Subscription) {
	r.mu.RLock()
	plugins := r.onSubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscribed(ctx, sub, replaced)
		}); err != nil {
			r.logger.Warn("plugin OnSubscribed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUnsubscribed emits an unsubscribed event.
func (r *Registry) EmitUnsubscribed(ctx context.Context, sub *subscription.Subscription, settlement subscription.Settlement) {
	r.mu.RLock()
	plugins := r.onUnsubscribed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUnsubscribed(ctx, sub, settlement)
		}); err != nil {
			r.logger.Warn("plugin OnUnsubscribed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDistributed emits a payout event.
func (r *Registry) EmitDistributed(ctx context.Context, payout *distribution.Payout) {
	r.mu.RLock()
	plugins := r.onDistributed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDistributed(ctx, payout)
		}); err != nil {
			r.logger.Warn("plugin OnDistributed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDistributionDeferred emits a deferred distribution event.
func (r *Registry) EmitDistributionDeferred(ctx context.Context, nextDue time.Time) {
	r.mu.RLock()
	plugins := r.onDistributionDeferred
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDistributionDeferred(ctx, nextDue)
		}); err != nil {
			r.logger.Warn("plugin OnDistributionDeferred failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPauseChanged emits a pause state change.
func (r *Registry) EmitPauseChanged(ctx context.Context, paused bool) {
	r.mu.RLock()
	plugins := r.onPauseChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPauseChanged(ctx, paused)
		}); err != nil {
			r.logger.Warn("plugin OnPauseChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
