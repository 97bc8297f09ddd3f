// Package engine keeps gamescope's window properties and their bus objects
// in sync.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

// Options tunes the event loop.
type Options struct {
	// DiscoveryInterval is the period of the rediscovery scan.
	DiscoveryInterval time.Duration
	// HangTimeout is how long the loop tolerates neither a notification
	// nor a successful scan before declaring the connection lost.
	HangTimeout time.Duration
}

// Engine owns the registry, cache and workers, and serves bus requests.
type Engine struct {
	backend window.Backend
	opts    Options

	registry  *Registry
	publisher *Publisher
	watcher   *Watcher
	gateway   *Gateway
	discovery *Discovery

	now          func() time.Time
	lastActivity atomic.Int64
}

// New wires an engine around a windowing backend and a bus.
func New(backend window.Backend, bus Bus, opts Options) *Engine {
	registry := NewRegistry()
	publisher := NewPublisher(bus)
	watcher := NewWatcher(backend, registry, publisher)

	return &Engine{
		backend:   backend,
		opts:      opts,
		registry:  registry,
		publisher: publisher,
		watcher:   watcher,
		gateway:   NewGateway(backend, registry),
		discovery: NewDiscovery(backend, registry, watcher, publisher, bus),
		now:       time.Now,
	}
}

// Run consumes notifications and runs discovery until ctx is cancelled or
// the windowing connection is lost.
func (e *Engine) Run(ctx context.Context) error {
	log := logger.WithComponent("engine")

	e.touch()
	e.scan(ctx)

	ticker := time.NewTicker(e.opts.DiscoveryInterval)
	defer ticker.Stop()
	watchdog := time.NewTicker(e.watchdogPeriod())
	defer watchdog.Stop()

	notifications := e.backend.Notifications()
	for {
		select {
		case <-ctx.Done():
			return nil

		case n, ok := <-notifications:
			if !ok {
				log.Error().Msg("Notification stream closed")
				return fmt.Errorf("%w: notification stream closed", ErrFatalConnectionLoss)
			}
			e.touch()
			if n.Structural {
				e.scan(ctx)
				ticker.Reset(e.opts.DiscoveryInterval)
				continue
			}
			e.watcher.Handle(ctx, n)

		case <-ticker.C:
			e.scan(ctx)

		case <-watchdog.C:
			idle := e.now().Sub(time.Unix(0, e.lastActivity.Load()))
			if idle > e.opts.HangTimeout {
				log.Error().Dur("idle", idle).Msg("Windowing system unresponsive")
				return fmt.Errorf("%w: no activity for %s", ErrFatalConnectionLoss, idle.Round(time.Second))
			}
		}
	}
}

// Close drops every window subscription.
func (e *Engine) Close() {
	for _, obj := range e.registry.List() {
		if h, err := e.registry.Resolve(obj); err == nil {
			e.watcher.Unsubscribe(h)
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	log := logger.WithComponent("discovery")

	result, err := e.discovery.Scan(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Discovery scan failed, retrying next cycle")
		return
	}
	e.touch()

	if result.Empty() {
		return
	}
	log.Info().
		Strs("added", names(result.Added)).
		Strs("removed", names(result.Removed)).
		Strs("repointed", names(result.Repointed)).
		Msg("Window topology changed")
}

func (e *Engine) touch() {
	e.lastActivity.Store(e.now().UnixNano())
}

func (e *Engine) watchdogPeriod() time.Duration {
	period := e.opts.HangTimeout / 4
	if period <= 0 || period > e.opts.DiscoveryInterval {
		period = e.opts.DiscoveryInterval
	}
	return period
}

// Objects returns the attached objects.
func (e *Engine) Objects() []gamescope.Object {
	return e.registry.List()
}

// Read returns the cached value of a property. Detached objects fail.
func (e *Engine) Read(obj gamescope.Object, name string) (property.Value, error) {
	if _, err := e.registry.Resolve(obj); err != nil {
		return property.Value{}, err
	}
	if _, ok := gamescope.Lookup(obj.Kind, name); !ok {
		return property.Value{}, fmt.Errorf("%w: property %s on %s", ErrNotFound, name, obj)
	}
	v, ok := e.publisher.Get(obj, name)
	if !ok {
		return property.Value{}, fmt.Errorf("%w: %s.%s", ErrNoValue, obj, name)
	}
	return v, nil
}

// Updated returns when a property was last observed on its window.
func (e *Engine) Updated(obj gamescope.Object, name string) (time.Time, bool) {
	if _, err := e.registry.Resolve(obj); err != nil {
		return time.Time{}, false
	}
	return e.publisher.Updated(obj, name)
}

// OnRead serves a bus property read from the cache.
func (e *Engine) OnRead(obj gamescope.Object, name string) (any, error) {
	v, err := e.Read(obj, name)
	if err != nil {
		return nil, err
	}
	d, _ := gamescope.Lookup(obj.Kind, name)
	return property.ToBus(d, v), nil
}

// OnReadAll returns every cached property of obj.
func (e *Engine) OnReadAll(obj gamescope.Object) (map[string]any, error) {
	if _, err := e.registry.Resolve(obj); err != nil {
		return nil, err
	}
	values := make(map[string]any)
	for _, d := range obj.Descriptors() {
		if v, ok := e.publisher.Get(obj, d.Name); ok {
			values[d.Name] = property.ToBus(d, v)
		}
	}
	return values, nil
}

// OnWrite serves a bus property write.
func (e *Engine) OnWrite(ctx context.Context, obj gamescope.Object, name string, value any) error {
	return e.gateway.Write(ctx, obj, name, value)
}

// Subscribe returns a channel of property changes.
func (e *Engine) Subscribe() chan ChangeEvent {
	return e.publisher.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch chan ChangeEvent) {
	e.publisher.Unsubscribe(ch)
}

func names(objs []gamescope.Object) []string {
	out := make([]string, len(objs))
	for i, obj := range objs {
		out[i] = obj.Name()
	}
	return out
}
