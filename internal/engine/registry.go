package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

type entry struct {
	handle     window.Handle
	attached   bool
	subscribed bool
	exposed    bool
}

// Registry maps logical objects to the windows currently backing them.
// An object keeps its identity after detaching so it can be reattached.
type Registry struct {
	mu       sync.RWMutex
	entries  map[gamescope.Object]*entry
	byHandle map[window.Handle]gamescope.Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[gamescope.Object]*entry),
		byHandle: make(map[window.Handle]gamescope.Object),
	}
}

// Register attaches obj to h. If obj is already attached to another
// window the handle is replaced in one step and the previous one returned;
// callers must move the subscription. prev is zero when obj was not
// attached. changed is false when obj was already attached to h.
func (r *Registry) Register(obj gamescope.Object, h window.Handle) (prev window.Handle, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byHandle[h]; ok && owner != obj {
		return 0, false, fmt.Errorf("%w: window %d belongs to %s", ErrHandleInUse, h, owner)
	}

	e, ok := r.entries[obj]
	if !ok {
		e = &entry{}
		r.entries[obj] = e
	}
	if e.attached && e.handle == h {
		return h, false, nil
	}
	if e.attached {
		prev = e.handle
		delete(r.byHandle, e.handle)
	}

	e.handle = h
	e.attached = true
	e.subscribed = false
	r.byHandle[h] = obj
	return prev, true, nil
}

// Resolve returns the window backing obj.
func (r *Registry) Resolve(obj gamescope.Object) (window.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[obj]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, obj)
	}
	if !e.attached {
		return 0, fmt.Errorf("%w: %s", ErrDetached, obj)
	}
	return e.handle, nil
}

// Unregister detaches obj and returns the handle it held.
func (r *Registry) Unregister(obj gamescope.Object) (window.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[obj]
	if !ok || !e.attached {
		return 0, false
	}
	delete(r.byHandle, e.handle)
	e.attached = false
	e.subscribed = false
	return e.handle, true
}

// Lookup returns the attached object backed by h.
func (r *Registry) Lookup(h window.Handle) (gamescope.Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.byHandle[h]
	return obj, ok
}

// List returns the attached objects, manager first, then by index.
func (r *Registry) List() []gamescope.Object {
	r.mu.RLock()
	objs := make([]gamescope.Object, 0, len(r.entries))
	for obj, e := range r.entries {
		if e.attached {
			objs = append(objs, obj)
		}
	}
	r.mu.RUnlock()

	sortObjects(objs)
	return objs
}

// SetExposed records whether obj is currently published on the bus. The
// flag survives Unregister so a released object is not exposed twice.
func (r *Registry) SetExposed(obj gamescope.Object, exposed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[obj]; ok {
		e.exposed = exposed
	}
}

// Exposed reports whether obj is published on the bus.
func (r *Registry) Exposed(obj gamescope.Object) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[obj]
	return ok && e.exposed
}

// SetSubscribed records whether notifications are flowing for obj.
func (r *Registry) SetSubscribed(obj gamescope.Object, subscribed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[obj]; ok && e.attached {
		e.subscribed = subscribed
	}
}

// Subscribed reports whether obj is attached with an active subscription.
func (r *Registry) Subscribed(obj gamescope.Object) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[obj]
	return ok && e.attached && e.subscribed
}

func sortObjects(objs []gamescope.Object) {
	slices.SortFunc(objs, func(a, b gamescope.Object) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		return a.Index - b.Index
	})
}
