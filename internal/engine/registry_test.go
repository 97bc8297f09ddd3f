package engine

import (
	"errors"
	"slices"
	"testing"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
)

func TestRegistryRegisterResolve(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Resolve(gamescope.Manager); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, changed, err := r.Register(gamescope.Manager, 1)
	if err != nil || !changed {
		t.Fatalf("register: changed=%v err=%v", changed, err)
	}
	h, err := r.Resolve(gamescope.Manager)
	if err != nil || h != 1 {
		t.Fatalf("resolve: got %d, %v", h, err)
	}

	_, changed, err = r.Register(gamescope.Manager, 1)
	if err != nil || changed {
		t.Errorf("re-register same handle: changed=%v err=%v", changed, err)
	}
}

func TestRegistryReplaceHandle(t *testing.T) {
	r := NewRegistry()
	obj := gamescope.XWayland(0)

	if _, _, err := r.Register(obj, 10); err != nil {
		t.Fatal(err)
	}
	r.SetSubscribed(obj, true)

	prev, changed, err := r.Register(obj, 11)
	if err != nil || !changed || prev != 10 {
		t.Fatalf("replace: prev=%d changed=%v err=%v", prev, changed, err)
	}
	if _, ok := r.Lookup(10); ok {
		t.Error("old handle still mapped")
	}
	if got, ok := r.Lookup(11); !ok || got != obj {
		t.Errorf("new handle maps to %v", got)
	}
	if r.Subscribed(obj) {
		t.Error("replacement must require a new subscription")
	}
}

func TestRegistryHandleConflict(t *testing.T) {
	r := NewRegistry()
	if _, _, err := r.Register(gamescope.XWayland(0), 10); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Register(gamescope.XWayland(1), 10); !errors.Is(err, ErrHandleInUse) {
		t.Fatalf("expected ErrHandleInUse, got %v", err)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	obj := gamescope.XWayland(2)
	if _, _, err := r.Register(obj, 20); err != nil {
		t.Fatal(err)
	}
	r.SetExposed(obj, true)

	h, ok := r.Unregister(obj)
	if !ok || h != 20 {
		t.Fatalf("unregister: got %d, %v", h, ok)
	}
	if _, err := r.Resolve(obj); !errors.Is(err, ErrDetached) {
		t.Errorf("expected ErrDetached, got %v", err)
	}
	if !r.Exposed(obj) {
		t.Error("unregister must leave bus exposure to the caller")
	}
	if _, ok := r.Unregister(obj); ok {
		t.Error("second unregister should be a no-op")
	}

	// The freed handle can be reused by another object.
	if _, _, err := r.Register(gamescope.XWayland(3), 20); err != nil {
		t.Errorf("reuse freed handle: %v", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(gamescope.XWayland(1), 3)
	r.Register(gamescope.Manager, 1)
	r.Register(gamescope.XWayland(0), 2)
	r.Register(gamescope.XWayland(4), 5)
	r.Unregister(gamescope.XWayland(4))

	want := []gamescope.Object{gamescope.Manager, gamescope.XWayland(0), gamescope.XWayland(1)}
	if got := r.List(); !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
