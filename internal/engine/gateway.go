package engine

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

// Gateway applies bus-originated writes to the windowing system. It never
// touches the Publisher cache: the resulting property notification is
// what updates bus observers.
type Gateway struct {
	backend  window.Backend
	registry *Registry
}

// NewGateway creates a write gateway.
func NewGateway(backend window.Backend, registry *Registry) *Gateway {
	return &Gateway{
		backend:  backend,
		registry: registry,
	}
}

// Write coerces in to the property's type and writes it.
func (g *Gateway) Write(ctx context.Context, obj gamescope.Object, name string, in any) error {
	d, h, err := g.target(obj, name)
	if err != nil {
		return err
	}
	v, err := property.FromBus(d, in)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return g.apply(ctx, obj, h, d, v)
}

func (g *Gateway) target(obj gamescope.Object, name string) (property.Descriptor, window.Handle, error) {
	h, err := g.registry.Resolve(obj)
	if err != nil {
		return property.Descriptor{}, 0, err
	}
	d, ok := gamescope.Lookup(obj.Kind, name)
	if !ok {
		return property.Descriptor{}, 0, fmt.Errorf("%w: property %s on %s", ErrNotFound, name, obj)
	}
	if !d.Writable {
		return property.Descriptor{}, 0, fmt.Errorf("%w: %s.%s", ErrNotWritable, obj, name)
	}
	return d, h, nil
}

func (g *Gateway) apply(ctx context.Context, obj gamescope.Object, h window.Handle, d property.Descriptor, v property.Value) error {
	raw, err := property.Encode(v, d)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	if err := g.backend.SetProperty(ctx, h, d.Atom, raw); err != nil {
		logger.WithComponent("gateway").Warn().
			Err(err).
			Str("object", obj.Name()).
			Str("property", d.Name).
			Msg("Property write rejected")
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	logger.WithComponent("gateway").Debug().
		Str("object", obj.Name()).
		Str("property", d.Name).
		Stringer("value", v).
		Msg("Property written")
	return nil
}
