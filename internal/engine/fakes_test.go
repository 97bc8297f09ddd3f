package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

const rootWindow window.Handle = 1

type setCall struct {
	window window.Handle
	atom   string
	raw    property.Raw
}

// fakeBackend is an in-memory window tree. Property writes to subscribed
// windows queue notifications the way an X server would.
type fakeBackend struct {
	mu        sync.Mutex
	instances []window.Window
	props     map[window.Handle]map[string]property.Raw
	subs      map[window.Handle][]string
	sets      []setCall
	listErr   error
	setErr    error
	events    chan window.Notification

	// onUnsubscribe runs before a subscription is dropped.
	onUnsubscribe func(h window.Handle)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		props:  make(map[window.Handle]map[string]property.Raw),
		subs:   make(map[window.Handle][]string),
		events: make(chan window.Notification, 128),
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) Notifications() <-chan window.Notification { return f.events }

func (f *fakeBackend) ListWindows(ctx context.Context, role window.Role) ([]window.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if role == window.RoleManager {
		return []window.Window{{Handle: rootWindow}}, nil
	}
	return append([]window.Window{}, f.instances...), nil
}

func (f *fakeBackend) GetProperty(ctx context.Context, h window.Handle, atom string) (property.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.props[h][atom], nil
}

func (f *fakeBackend) SetProperty(ctx context.Context, h window.Handle, atom string, raw property.Raw) error {
	f.mu.Lock()
	f.sets = append(f.sets, setCall{window: h, atom: atom, raw: raw})
	err := f.setErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.setRaw(h, atom, raw)
	return nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, h window.Handle, atoms []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[h] = atoms
	return nil
}

func (f *fakeBackend) Unsubscribe(h window.Handle) error {
	if f.onUnsubscribe != nil {
		f.onUnsubscribe(h)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, h)
	return nil
}

// setRaw stores a property and queues a notification if h is subscribed
// to atom.
func (f *fakeBackend) setRaw(h window.Handle, atom string, raw property.Raw) {
	f.mu.Lock()
	if f.props[h] == nil {
		f.props[h] = make(map[string]property.Raw)
	}
	f.props[h][atom] = raw
	notify := false
	for _, a := range f.subs[h] {
		if a == atom {
			notify = true
		}
	}
	f.mu.Unlock()

	if notify {
		f.events <- window.Notification{Window: h, Atom: atom}
	}
}

func (f *fakeBackend) setValue(h window.Handle, kind gamescope.ObjectKind, name string, v property.Value) {
	d, ok := gamescope.Lookup(kind, name)
	if !ok {
		panic("unknown property " + name)
	}
	raw, err := property.Encode(v, d)
	if err != nil {
		panic(err)
	}
	f.setRaw(h, d.Atom, raw)
}

// addInstance creates an XWayland window carrying its server id.
func (f *fakeBackend) addInstance(h window.Handle, index int) {
	f.mu.Lock()
	f.instances = append(f.instances, window.Window{Handle: h, Index: index})
	f.mu.Unlock()
	f.setValue(h, gamescope.KindXWayland, "ServerID", property.Int(int64(index)))
}

func (f *fakeBackend) removeInstance(h window.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.instances[:0]
	for _, w := range f.instances {
		if w.Handle != h {
			kept = append(kept, w)
		}
	}
	f.instances = kept
	delete(f.props, h)
}

func (f *fakeBackend) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall{}, f.sets...)
}

func (f *fakeBackend) subscribed(h window.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[h]
	return ok
}

// drain hands every queued notification to w.
func (f *fakeBackend) drain(w *Watcher) {
	for {
		select {
		case n := <-f.events:
			w.Handle(context.Background(), n)
		default:
			return
		}
	}
}

type busChange struct {
	object   string
	property string
	value    any
}

type fakeBus struct {
	mu      sync.Mutex
	exposed map[string]bool
	log     []string
	changes []busChange

	// exposeFailures makes that many ExposeObject calls fail.
	exposeFailures int
}

func newFakeBus() *fakeBus {
	return &fakeBus{exposed: make(map[string]bool)}
}

func (b *fakeBus) ExposeObject(obj gamescope.Object, descriptors []property.Descriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exposeFailures > 0 {
		b.exposeFailures--
		return errors.New("name not owned")
	}
	b.exposed[obj.Name()] = true
	b.log = append(b.log, "expose "+obj.Name())
	return nil
}

func (b *fakeBus) RetractObject(obj gamescope.Object) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.exposed, obj.Name())
	b.log = append(b.log, "retract "+obj.Name())
	return nil
}

func (b *fakeBus) NotifyChange(obj gamescope.Object, name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, busChange{object: obj.Name(), property: name, value: value})
	return nil
}

func (b *fakeBus) changesFor(object, property string) []busChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busChange
	for _, c := range b.changes {
		if c.object == object && c.property == property {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBus) counts() (log, changes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.log), len(b.changes)
}

func (b *fakeBus) isExposed(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exposed[name]
}

// harness wires the engine parts the way New does.
type harness struct {
	backend   *fakeBackend
	bus       *fakeBus
	registry  *Registry
	publisher *Publisher
	watcher   *Watcher
	gateway   *Gateway
	discovery *Discovery
}

func newHarness() *harness {
	h := &harness{backend: newFakeBackend(), bus: newFakeBus()}
	h.registry = NewRegistry()
	h.publisher = NewPublisher(h.bus)
	h.watcher = NewWatcher(h.backend, h.registry, h.publisher)
	h.gateway = NewGateway(h.backend, h.registry)
	h.discovery = NewDiscovery(h.backend, h.registry, h.watcher, h.publisher, h.bus)
	return h
}

func (h *harness) scan() ScanResult {
	result, err := h.discovery.Scan(context.Background())
	if err != nil {
		panic(fmt.Sprintf("scan: %v", err))
	}
	return result
}
