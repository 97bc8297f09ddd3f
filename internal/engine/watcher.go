package engine

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

// Watcher turns window property notifications into decoded values for the
// Publisher.
type Watcher struct {
	backend   window.Backend
	registry  *Registry
	publisher *Publisher
}

// NewWatcher creates a watcher.
func NewWatcher(backend window.Backend, registry *Registry, publisher *Publisher) *Watcher {
	return &Watcher{
		backend:   backend,
		registry:  registry,
		publisher: publisher,
	}
}

// Subscribe watches exactly the atoms of obj's descriptors on h, then
// reads each of them once so the cache starts populated.
func (w *Watcher) Subscribe(ctx context.Context, obj gamescope.Object, h window.Handle) error {
	if err := w.backend.Subscribe(ctx, h, gamescope.Atoms(obj.Kind)); err != nil {
		return err
	}
	w.registry.SetSubscribed(obj, true)

	logger.WithComponent("watcher").Debug().
		Str("object", obj.Name()).
		Uint32("winID", uint32(h)).
		Msg("Subscribed to property changes")

	for _, d := range obj.Descriptors() {
		w.refresh(ctx, obj, h, d, false)
	}
	return nil
}

// Unsubscribe stops notifications for h.
func (w *Watcher) Unsubscribe(h window.Handle) {
	if err := w.backend.Unsubscribe(h); err != nil {
		// Expected when the window is already gone.
		logger.WithComponent("watcher").Debug().
			Err(err).
			Uint32("winID", uint32(h)).
			Msg("Unsubscribe failed")
	}
}

// Handle processes one property notification. Notifications for unknown
// windows or atoms outside the object's descriptor set are ignored.
func (w *Watcher) Handle(ctx context.Context, n window.Notification) {
	obj, ok := w.registry.Lookup(n.Window)
	if !ok {
		return
	}
	d, ok := gamescope.LookupAtom(obj.Kind, n.Atom)
	if !ok {
		return
	}
	w.refresh(ctx, obj, n.Window, d, n.Deleted)
}

// refresh reads, decodes and publishes one property. Failures only affect
// this property.
func (w *Watcher) refresh(ctx context.Context, obj gamescope.Object, h window.Handle, d property.Descriptor, deleted bool) {
	log := logger.WithComponent("watcher")

	var raw property.Raw
	if !deleted {
		var err error
		raw, err = w.backend.GetProperty(ctx, h, d.Atom)
		if err != nil {
			log.Warn().
				Err(err).
				Str("object", obj.Name()).
				Str("property", d.Name).
				Msg("Failed to read property")
			return
		}
	}

	v, err := property.Decode(raw, d)
	if errors.Is(err, property.ErrAbsent) {
		w.publisher.Forget(obj, d.Name)
		log.Debug().
			Str("object", obj.Name()).
			Str("property", d.Name).
			Msg("Property not set")
		return
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("object", obj.Name()).
			Str("atom", d.Atom).
			Msg("Dropping undecodable property update")
		return
	}

	if w.publisher.Update(obj, d, v) {
		log.Debug().
			Str("object", obj.Name()).
			Str("property", d.Name).
			Stringer("value", v).
			Msg("Property changed")
	}
}
