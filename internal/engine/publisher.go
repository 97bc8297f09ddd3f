package engine

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

// Bus is the outbound side of the bus transport.
type Bus interface {
	// ExposeObject publishes obj with the given properties.
	ExposeObject(obj gamescope.Object, descriptors []property.Descriptor) error
	// RetractObject removes obj, notifying observers first.
	RetractObject(obj gamescope.Object) error
	// NotifyChange emits a property-changed notification.
	NotifyChange(obj gamescope.Object, name string, value any) error
}

// ChangeEvent is delivered to Publisher listeners.
type ChangeEvent struct {
	Object   string    `json:"object"`
	Property string    `json:"property"`
	Value    any       `json:"value"`
	Time     time.Time `json:"time"`
}

type cachedValue struct {
	value   property.Value
	updated time.Time
}

// Publisher caches the last observed value of every property and emits a
// change notification whenever a new value differs from the cached one.
type Publisher struct {
	bus Bus
	now func() time.Time

	mu    sync.RWMutex
	cache map[gamescope.Object]map[string]cachedValue

	listenersMu sync.RWMutex
	listeners   []chan ChangeEvent
}

// NewPublisher creates a publisher emitting on bus.
func NewPublisher(bus Bus) *Publisher {
	return &Publisher{
		bus:   bus,
		now:   time.Now,
		cache: make(map[gamescope.Object]map[string]cachedValue),
	}
}

// Update records v for property d of obj. It reports whether a change
// notification was emitted.
func (p *Publisher) Update(obj gamescope.Object, d property.Descriptor, v property.Value) bool {
	now := p.now()

	p.mu.Lock()
	props, ok := p.cache[obj]
	if !ok {
		props = make(map[string]cachedValue)
		p.cache[obj] = props
	}
	old, seen := props[d.Name]
	props[d.Name] = cachedValue{value: v, updated: now}
	p.mu.Unlock()

	if seen && old.value.Equal(v) {
		return false
	}

	busValue := property.ToBus(d, v)
	if err := p.bus.NotifyChange(obj, d.Name, busValue); err != nil {
		logger.WithComponent("publisher").Warn().
			Err(err).
			Str("object", obj.Name()).
			Str("property", d.Name).
			Msg("Failed to emit property change")
	}
	p.notifyListeners(ChangeEvent{
		Object:   obj.Name(),
		Property: d.Name,
		Value:    busValue,
		Time:     now,
	})
	return true
}

// Get returns the cached value of a property.
func (p *Publisher) Get(obj gamescope.Object, name string) (property.Value, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cache[obj][name]
	return c.value, ok
}

// Updated returns when a property was last written to the cache.
func (p *Publisher) Updated(obj gamescope.Object, name string) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cache[obj][name]
	return c.updated, ok
}

// Forget removes one cached property, e.g. after it was deleted from the
// window and has no default.
func (p *Publisher) Forget(obj gamescope.Object, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache[obj], name)
}

// Drop removes every cached value of obj.
func (p *Publisher) Drop(obj gamescope.Object) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, obj)
}

// Subscribe adds a listener for property changes
func (p *Publisher) Subscribe() chan ChangeEvent {
	ch := make(chan ChangeEvent, 32)
	p.listenersMu.Lock()
	p.listeners = append(p.listeners, ch)
	p.listenersMu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (p *Publisher) Unsubscribe(ch chan ChangeEvent) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()

	for i, listener := range p.listeners {
		if listener == ch {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (p *Publisher) notifyListeners(ev ChangeEvent) {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()

	for _, listener := range p.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}
