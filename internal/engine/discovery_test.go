package engine

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

func TestDiscoveryInitialScan(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)

	result := h.scan()
	want := []gamescope.Object{gamescope.Manager, gamescope.XWayland(0)}
	if !slices.Equal(result.Added, want) {
		t.Fatalf("added %v, want %v", result.Added, want)
	}
	if !h.bus.isExposed("Manager") || !h.bus.isExposed("XWayland0") {
		t.Error("objects not exposed")
	}
	if !h.backend.subscribed(rootWindow) || !h.backend.subscribed(10) {
		t.Error("windows not subscribed")
	}
	if v, _ := h.publisher.Get(gamescope.XWayland(0), "ServerID"); !v.Equal(property.Int(0)) {
		t.Errorf("ServerID not primed: %v", v)
	}
}

func TestDiscoveryIdempotent(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.addInstance(11, 1)
	h.scan()

	logBefore, changesBefore := h.bus.counts()
	result := h.scan()
	if !result.Empty() {
		t.Errorf("second scan mutated the registry: %+v", result)
	}
	logAfter, changesAfter := h.bus.counts()
	if logAfter != logBefore || changesAfter != changesBefore {
		t.Errorf("second scan emitted bus traffic: %d objects, %d changes", logAfter-logBefore, changesAfter-changesBefore)
	}
}

func TestDiscoveryNewInstance(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.setValue(10, gamescope.KindXWayland, "AppID", property.Int(7))
	h.scan()

	h.backend.addInstance(11, 1)
	result := h.scan()

	if !slices.Equal(result.Added, []gamescope.Object{gamescope.XWayland(1)}) {
		t.Fatalf("added %v, want [XWayland1]", result.Added)
	}
	if len(result.Removed) != 0 || len(result.Repointed) != 0 {
		t.Errorf("unexpected mutations %+v", result)
	}
	if !h.backend.subscribed(11) || !h.bus.isExposed("XWayland1") {
		t.Error("XWayland1 not subscribed and exposed")
	}
	if hd, err := h.registry.Resolve(gamescope.XWayland(0)); err != nil || hd != 10 {
		t.Errorf("XWayland0 disturbed: %d, %v", hd, err)
	}
	if v, _ := h.publisher.Get(gamescope.XWayland(0), "AppID"); !v.Equal(property.Int(7)) {
		t.Errorf("XWayland0 cache disturbed: %v", v)
	}
}

func TestDiscoveryRemovalDetaches(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.setValue(10, gamescope.KindXWayland, "AppID", property.Int(7))
	h.scan()

	h.backend.removeInstance(10)
	result := h.scan()
	if !slices.Equal(result.Removed, []gamescope.Object{gamescope.XWayland(0)}) {
		t.Fatalf("removed %v", result.Removed)
	}
	if h.bus.isExposed("XWayland0") {
		t.Error("object still exposed")
	}
	if h.backend.subscribed(10) {
		t.Error("subscription not torn down")
	}
	if _, ok := h.publisher.Get(gamescope.XWayland(0), "AppID"); ok {
		t.Error("cache kept values of a detached object")
	}
}

func TestDiscoveryReattachDoesNotServeStaleValues(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.setValue(10, gamescope.KindXWayland, "AppID", property.Int(7))
	h.scan()
	h.backend.removeInstance(10)
	h.scan()

	// The instance comes back as a new window without AppID set.
	h.backend.addInstance(12, 0)
	result := h.scan()
	if !slices.Equal(result.Added, []gamescope.Object{gamescope.XWayland(0)}) {
		t.Fatalf("added %v", result.Added)
	}
	if v, _ := h.publisher.Get(gamescope.XWayland(0), "AppID"); !v.Equal(property.Int(0)) {
		t.Errorf("got %v, want fresh default 0", v)
	}
}

func TestDiscoveryRepoint(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.scan()

	// XWayland0 is recreated under a new window between two scans.
	h.backend.removeInstance(10)
	h.backend.addInstance(13, 0)
	result := h.scan()

	if !slices.Equal(result.Repointed, []gamescope.Object{gamescope.XWayland(0)}) {
		t.Fatalf("repointed %v", result.Repointed)
	}
	if len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Errorf("repoint must not retract or re-expose: %+v", result)
	}
	if hd, _ := h.registry.Resolve(gamescope.XWayland(0)); hd != 13 {
		t.Errorf("resolved %d, want 13", hd)
	}
	if h.backend.subscribed(10) || !h.backend.subscribed(13) {
		t.Error("subscription not moved")
	}
}

func TestDiscoveryRepointKeepsObjectResolvable(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.scan()

	var during window.Handle
	var duringErr error
	h.backend.onUnsubscribe = func(old window.Handle) {
		if old == 10 {
			during, duringErr = h.registry.Resolve(gamescope.XWayland(0))
		}
	}

	h.backend.removeInstance(10)
	h.backend.addInstance(13, 0)
	h.scan()

	if duringErr != nil || during != 13 {
		t.Errorf("resolve while releasing the old window: %d, %v", during, duringErr)
	}
}

func TestDiscoveryRetriesFailedExpose(t *testing.T) {
	h := newHarness()
	h.bus.exposeFailures = 1

	result := h.scan()
	if !slices.Contains(result.Added, gamescope.Manager) {
		t.Fatalf("added %v", result.Added)
	}
	if h.bus.isExposed("Manager") {
		t.Fatal("expose should have failed")
	}

	result = h.scan()
	if !h.bus.isExposed("Manager") {
		t.Fatal("expose not retried on the next scan")
	}
	if !result.Empty() {
		t.Errorf("retry must not report a new registration: %+v", result)
	}

	logBefore, _ := h.bus.counts()
	h.scan()
	if logAfter, _ := h.bus.counts(); logAfter != logBefore {
		t.Error("exposed object exposed again")
	}
}

func TestDiscoverySwappedHandles(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.addInstance(11, 1)
	h.scan()

	h.backend.mu.Lock()
	h.backend.instances = []window.Window{{Handle: 11, Index: 0}, {Handle: 10, Index: 1}}
	h.backend.mu.Unlock()

	result := h.scan()
	if len(result.Repointed) != 2 {
		t.Fatalf("repointed %v, want both instances", result.Repointed)
	}
	if hd, _ := h.registry.Resolve(gamescope.XWayland(0)); hd != 11 {
		t.Errorf("XWayland0 resolved to %d", hd)
	}
}

func TestDiscoveryTransientFailureKeepsRegistrations(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.scan()

	h.backend.listErr = window.ErrTimeout
	_, err := h.discovery.Scan(context.Background())
	if !errors.Is(err, ErrTransientQuery) {
		t.Fatalf("expected ErrTransientQuery, got %v", err)
	}
	if _, err := h.registry.Resolve(gamescope.XWayland(0)); err != nil {
		t.Errorf("registration torn down on transient failure: %v", err)
	}
	if !h.bus.isExposed("XWayland0") {
		t.Error("object retracted on transient failure")
	}
}

func TestDiscoveryDuplicateServerID(t *testing.T) {
	h := newHarness()
	h.backend.addInstance(10, 0)
	h.backend.addInstance(11, 0)

	h.scan()
	if hd, _ := h.registry.Resolve(gamescope.XWayland(0)); hd != 10 {
		t.Errorf("resolved %d, want first window 10", hd)
	}
	if _, ok := h.registry.Lookup(11); ok {
		t.Error("duplicate window registered")
	}
}
