package engine

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

// ScanResult lists the registry mutations made by one discovery cycle.
type ScanResult struct {
	Added     []gamescope.Object
	Removed   []gamescope.Object
	Repointed []gamescope.Object
}

// Empty reports whether the scan changed nothing.
func (r ScanResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Repointed) == 0
}

// Discovery keeps the registry consistent with the live window tree.
type Discovery struct {
	backend   window.Backend
	registry  *Registry
	watcher   *Watcher
	publisher *Publisher
	bus       Bus
}

// NewDiscovery creates the discovery loop body.
func NewDiscovery(backend window.Backend, registry *Registry, watcher *Watcher, publisher *Publisher, bus Bus) *Discovery {
	return &Discovery{
		backend:   backend,
		registry:  registry,
		watcher:   watcher,
		publisher: publisher,
		bus:       bus,
	}
}

// Scan runs one discovery cycle. A query failure returns
// ErrTransientQuery and leaves every registration untouched. Objects whose
// subscription or bus exposure failed earlier are retried.
func (d *Discovery) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	desired, err := d.topology(ctx)
	if err != nil {
		return result, err
	}

	moved := make(map[gamescope.Object]bool)
	var movedObjs []gamescope.Object
	for _, obj := range d.registry.List() {
		want, ok := desired[obj]
		if !ok {
			d.detach(obj)
			result.Removed = append(result.Removed, obj)
			continue
		}
		if cur, err := d.registry.Resolve(obj); err == nil && cur != want {
			moved[obj] = true
			movedObjs = append(movedObjs, obj)
		}
	}

	// A window can only move to an object once the object holding it has
	// let go, as when two instances swap windows. Release those holders;
	// every other move replaces the handle in place.
	for _, obj := range movedObjs {
		if owner, ok := d.registry.Lookup(desired[obj]); ok && owner != obj {
			d.release(owner)
		}
	}

	objs := make([]gamescope.Object, 0, len(desired))
	for obj := range desired {
		objs = append(objs, obj)
	}
	sortObjects(objs)

	for _, obj := range objs {
		h := desired[obj]
		prev, changed, err := d.registry.Register(obj, h)
		if err != nil {
			logger.WithComponent("discovery").Warn().
				Err(err).
				Str("object", obj.Name()).
				Msg("Failed to register window")
			continue
		}

		switch {
		case changed:
			d.publisher.Drop(obj)
			if prev != 0 {
				d.watcher.Unsubscribe(prev)
			}
			d.subscribe(ctx, obj, h)
		case !d.registry.Subscribed(obj):
			d.subscribe(ctx, obj, h)
		}

		if !d.registry.Exposed(obj) {
			d.expose(obj)
		}

		switch {
		case moved[obj]:
			result.Repointed = append(result.Repointed, obj)
		case changed:
			result.Added = append(result.Added, obj)
		}
	}

	return result, nil
}

// topology queries the windowing system for the desired object mapping.
func (d *Discovery) topology(ctx context.Context) (map[gamescope.Object]window.Handle, error) {
	desired := make(map[gamescope.Object]window.Handle)

	managers, err := d.backend.ListWindows(ctx, window.RoleManager)
	if err != nil {
		return nil, fmt.Errorf("%w: list manager: %w", ErrTransientQuery, err)
	}
	if len(managers) > 0 {
		desired[gamescope.Manager] = managers[0].Handle
	}

	instances, err := d.backend.ListWindows(ctx, window.RoleXWayland)
	if err != nil {
		return nil, fmt.Errorf("%w: list xwayland: %w", ErrTransientQuery, err)
	}
	for _, w := range instances {
		obj := gamescope.XWayland(w.Index)
		if prev, dup := desired[obj]; dup {
			logger.WithComponent("discovery").Warn().
				Str("object", obj.Name()).
				Uint32("kept", uint32(prev)).
				Uint32("ignored", uint32(w.Handle)).
				Msg("Duplicate XWayland server id")
			continue
		}
		desired[obj] = w.Handle
	}
	return desired, nil
}

func (d *Discovery) subscribe(ctx context.Context, obj gamescope.Object, h window.Handle) {
	if err := d.watcher.Subscribe(ctx, obj, h); err != nil {
		logger.WithComponent("discovery").Warn().
			Err(err).
			Str("object", obj.Name()).
			Msg("Failed to subscribe, retrying next cycle")
	}
}

func (d *Discovery) expose(obj gamescope.Object) {
	if err := d.bus.ExposeObject(obj, obj.Descriptors()); err != nil {
		logger.WithComponent("discovery").Warn().
			Err(err).
			Str("object", obj.Name()).
			Msg("Failed to expose object, retrying next cycle")
		return
	}
	d.registry.SetExposed(obj, true)
}

// detach retracts obj from the bus before reads and writes start failing,
// then releases its window.
func (d *Discovery) detach(obj gamescope.Object) {
	if err := d.bus.RetractObject(obj); err != nil {
		logger.WithComponent("discovery").Warn().
			Err(err).
			Str("object", obj.Name()).
			Msg("Failed to retract object")
	}
	d.registry.SetExposed(obj, false)
	d.release(obj)
}

// release frees obj's window and cached values. The bus object stays.
func (d *Discovery) release(obj gamescope.Object) {
	h, ok := d.registry.Unregister(obj)
	d.publisher.Drop(obj)
	if ok {
		d.watcher.Unsubscribe(h)
	}
}
