// Package bus exposes gamescope objects on D-Bus.
package bus

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

const (
	propertiesInterface     = "org.freedesktop.DBus.Properties"
	introspectableInterface = "org.freedesktop.DBus.Introspectable"
	objectManagerInterface  = "org.freedesktop.DBus.ObjectManager"
)

// Handler serves requests arriving on the bus.
type Handler interface {
	Objects() []gamescope.Object
	OnRead(obj gamescope.Object, name string) (any, error)
	OnReadAll(obj gamescope.Object) (map[string]any, error)
	OnWrite(ctx context.Context, obj gamescope.Object, name string, value any) error
}

// Config selects the bus and the name to own.
type Config struct {
	// Type is "session" or "system".
	Type string
	// Name is the well-known name requested on Start.
	Name string
	// CallTimeout bounds writes issued on behalf of bus callers.
	CallTimeout time.Duration
}

// DBusBackend publishes engine objects on a D-Bus connection.
type DBusBackend struct {
	conn    *dbus.Conn
	cfg     Config
	handler Handler

	mu       sync.RWMutex
	exported map[gamescope.Object][]property.Descriptor
}

// NewDBusBackend connects to the configured bus.
func NewDBusBackend(cfg Config) (*DBusBackend, error) {
	conn, err := connect(cfg.Type)
	if err != nil {
		return nil, err
	}

	logger.WithComponent("dbus").Info().
		Str("bus", cfg.Type).
		Msg("Connected to message bus")

	return newDBusBackend(conn, cfg), nil
}

func newDBusBackend(conn *dbus.Conn, cfg Config) *DBusBackend {
	if cfg.Name == "" {
		cfg.Name = gamescope.BusName
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	return &DBusBackend{
		conn:     conn,
		cfg:      cfg,
		exported: make(map[gamescope.Object][]property.Descriptor),
	}
}

func connect(busType string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch busType {
	case "", "session":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus type %q", busType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", busType, err)
	}
	return conn, nil
}

// Attach sets the handler serving reads and writes. It must be called
// before Start.
func (b *DBusBackend) Attach(h Handler) {
	b.handler = h
}

// Start exports the object manager and requests the well-known name.
func (b *DBusBackend) Start() error {
	if b.handler == nil {
		return fmt.Errorf("no handler attached")
	}

	root := dbus.ObjectPath(gamescope.RootPath)
	if err := b.conn.Export(&objectManager{b: b}, root, objectManagerInterface); err != nil {
		return fmt.Errorf("failed to export object manager: %w", err)
	}
	if err := b.conn.Export(&rootIntrospectable{b: b}, root, introspectableInterface); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := b.conn.RequestName(b.cfg.Name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name %s: %w", b.cfg.Name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", b.cfg.Name)
	}

	logger.WithComponent("dbus").Info().
		Str("name", b.cfg.Name).
		Str("path", gamescope.RootPath).
		Msg("Bus name acquired")
	return nil
}

// ExposeObject exports obj and announces it with InterfacesAdded.
func (b *DBusBackend) ExposeObject(obj gamescope.Object, descriptors []property.Descriptor) error {
	path := dbus.ObjectPath(obj.Path())

	if err := b.conn.Export(&properties{b: b, obj: obj}, path, propertiesInterface); err != nil {
		return fmt.Errorf("failed to export %s: %w", obj, err)
	}
	node := introspectNode(obj, descriptors)
	if err := b.conn.Export(introspect.NewIntrospectable(node), path, introspectableInterface); err != nil {
		return fmt.Errorf("failed to export introspection for %s: %w", obj, err)
	}

	b.mu.Lock()
	b.exported[obj] = descriptors
	b.mu.Unlock()

	values, err := b.handler.OnReadAll(obj)
	if err != nil {
		values = map[string]any{}
	}
	ifaces := map[string]map[string]dbus.Variant{
		obj.Kind.Interface(): variants(values),
	}
	if err := b.conn.Emit(dbus.ObjectPath(gamescope.RootPath), objectManagerInterface+".InterfacesAdded", path, ifaces); err != nil {
		logger.WithComponent("dbus").Warn().Err(err).Str("object", obj.Name()).Msg("Failed to emit InterfacesAdded")
	}

	logger.WithComponent("dbus").Info().
		Str("object", obj.Name()).
		Str("path", obj.Path()).
		Msg("Object exposed")
	return nil
}

// RetractObject announces InterfacesRemoved, then unexports obj.
func (b *DBusBackend) RetractObject(obj gamescope.Object) error {
	b.mu.Lock()
	_, ok := b.exported[obj]
	delete(b.exported, obj)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	path := dbus.ObjectPath(obj.Path())
	removed := []string{obj.Kind.Interface()}
	if err := b.conn.Emit(dbus.ObjectPath(gamescope.RootPath), objectManagerInterface+".InterfacesRemoved", path, removed); err != nil {
		logger.WithComponent("dbus").Warn().Err(err).Str("object", obj.Name()).Msg("Failed to emit InterfacesRemoved")
	}

	var firstErr error
	for _, iface := range []string{propertiesInterface, introspectableInterface} {
		if err := b.conn.Export(nil, path, iface); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to unexport %s: %w", obj, err)
		}
	}

	logger.WithComponent("dbus").Info().
		Str("object", obj.Name()).
		Msg("Object retracted")
	return firstErr
}

// NotifyChange emits PropertiesChanged. Objects not yet exposed are
// skipped; InterfacesAdded carries their initial values.
func (b *DBusBackend) NotifyChange(obj gamescope.Object, name string, value any) error {
	if !b.isExported(obj) {
		return nil
	}

	changed := map[string]dbus.Variant{name: dbus.MakeVariant(value)}
	err := b.conn.Emit(dbus.ObjectPath(obj.Path()), propertiesInterface+".PropertiesChanged",
		obj.Kind.Interface(), changed, []string{})
	if err != nil {
		return fmt.Errorf("failed to emit change of %s.%s: %w", obj, name, err)
	}
	return nil
}

// Close releases the name and the connection.
func (b *DBusBackend) Close() error {
	if _, err := b.conn.ReleaseName(b.cfg.Name); err != nil {
		logger.WithComponent("dbus").Debug().Err(err).Msg("Failed to release bus name")
	}
	return b.conn.Close()
}

func (b *DBusBackend) isExported(obj gamescope.Object) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.exported[obj]
	return ok
}

func (b *DBusBackend) exportedObjects() []gamescope.Object {
	b.mu.RLock()
	defer b.mu.RUnlock()
	objs := make([]gamescope.Object, 0, len(b.exported))
	for obj := range b.exported {
		objs = append(objs, obj)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Path() < objs[j].Path() })
	return objs
}

// properties implements org.freedesktop.DBus.Properties for one object.
type properties struct {
	b   *DBusBackend
	obj gamescope.Object
}

func (p *properties) checkInterface(iface string) *dbus.Error {
	if iface != "" && iface != p.obj.Kind.Interface() {
		return dbus.NewError(ErrorUnknownInterface, []interface{}{fmt.Sprintf("unknown interface %s", iface)})
	}
	return nil
}

func (p *properties) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	if err := p.checkInterface(iface); err != nil {
		return dbus.Variant{}, err
	}
	v, err := p.b.handler.OnRead(p.obj, name)
	if err != nil {
		return dbus.Variant{}, toDBusError(err, ErrorUnknownProperty)
	}
	return dbus.MakeVariant(v), nil
}

func (p *properties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	if err := p.checkInterface(iface); err != nil {
		return nil, err
	}
	values, err := p.b.handler.OnReadAll(p.obj)
	if err != nil {
		return nil, toDBusError(err, ErrorUnknownObject)
	}
	return variants(values), nil
}

func (p *properties) Set(iface, name string, value dbus.Variant) *dbus.Error {
	if err := p.checkInterface(iface); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.b.cfg.CallTimeout)
	defer cancel()

	if err := p.b.handler.OnWrite(ctx, p.obj, name, value.Value()); err != nil {
		logger.WithComponent("dbus").Debug().
			Err(err).
			Str("object", p.obj.Name()).
			Str("property", name).
			Msg("Set rejected")
		return toDBusError(err, ErrorUnknownProperty)
	}
	return nil
}

// objectManager implements org.freedesktop.DBus.ObjectManager at the root.
type objectManager struct {
	b *DBusBackend
}

func (m *objectManager) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	out := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	for _, obj := range m.b.handler.Objects() {
		if !m.b.isExported(obj) {
			continue
		}
		values, err := m.b.handler.OnReadAll(obj)
		if err != nil {
			// Detached between listing and reading.
			continue
		}
		out[dbus.ObjectPath(obj.Path())] = map[string]map[string]dbus.Variant{
			obj.Kind.Interface(): variants(values),
		}
	}
	return out, nil
}

type rootIntrospectable struct {
	b *DBusBackend
}

// Introspect lists the root interfaces and the exposed objects as
// children, which change as instances come and go.
func (r *rootIntrospectable) Introspect() (string, *dbus.Error) {
	data, err := xml.MarshalIndent(rootNode(r.b.exportedObjects()), "", "  ")
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return introspect.IntrospectDeclarationString + string(data), nil
}

func variants(values map[string]any) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(values))
	for k, v := range values {
		out[k] = dbus.MakeVariant(v)
	}
	return out
}

// introspectNode describes the interfaces exported at obj's path.
func introspectNode(obj gamescope.Object, descriptors []property.Descriptor) *introspect.Node {
	props := make([]introspect.Property, 0, len(descriptors))
	for _, d := range descriptors {
		props = append(props, introspect.Property{
			Name:   d.Name,
			Type:   property.Signature(d),
			Access: d.Access(),
		})
	}
	return &introspect.Node{
		Name: obj.Path(),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: obj.Kind.Interface(), Properties: props},
		},
	}
}

var objectManagerData = introspect.Interface{
	Name: objectManagerInterface,
	Methods: []introspect.Method{{
		Name: "GetManagedObjects",
		Args: []introspect.Arg{{Name: "objects", Type: "a{oa{sa{sv}}}", Direction: "out"}},
	}},
	Signals: []introspect.Signal{
		{
			Name: "InterfacesAdded",
			Args: []introspect.Arg{
				{Name: "object", Type: "o"},
				{Name: "interfaces", Type: "a{sa{sv}}"},
			},
		},
		{
			Name: "InterfacesRemoved",
			Args: []introspect.Arg{
				{Name: "object", Type: "o"},
				{Name: "interfaces", Type: "as"},
			},
		},
	},
}

func rootNode(objs []gamescope.Object) *introspect.Node {
	n := &introspect.Node{
		Name:       gamescope.RootPath,
		Interfaces: []introspect.Interface{introspect.IntrospectData, objectManagerData},
	}
	for _, obj := range objs {
		n.Children = append(n.Children, introspect.Node{Name: obj.Name()})
	}
	return n
}
