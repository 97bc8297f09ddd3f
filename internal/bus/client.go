package bus

import (
	"fmt"
	"path"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
)

// Client talks to a running daemon.
type Client struct {
	conn *dbus.Conn
	name string
}

// NewClient connects to the bus the daemon is on.
func NewClient(busType, name string) (*Client, error) {
	conn, err := connect(busType)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = gamescope.BusName
	}
	return &Client{conn: conn, name: name}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) object(obj gamescope.Object) dbus.BusObject {
	return c.conn.Object(c.name, dbus.ObjectPath(obj.Path()))
}

// Get reads one property.
func (c *Client) Get(obj gamescope.Object, name string) (any, error) {
	v, err := c.object(obj).GetProperty(obj.Kind.Interface() + "." + name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s.%s: %w", obj, name, err)
	}
	return v.Value(), nil
}

// GetAll reads every property of obj.
func (c *Client) GetAll(obj gamescope.Object) (map[string]any, error) {
	var values map[string]dbus.Variant
	err := c.object(obj).Call(propertiesInterface+".GetAll", 0, obj.Kind.Interface()).Store(&values)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties of %s: %w", obj, err)
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v.Value()
	}
	return out, nil
}

// Set writes one property. value must already have the property's bus
// type.
func (c *Client) Set(obj gamescope.Object, name string, value any) error {
	if err := c.object(obj).SetProperty(obj.Kind.Interface()+"."+name, dbus.MakeVariant(value)); err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", obj, name, err)
	}
	return nil
}

// ManagedObjects lists the objects the daemon currently exposes.
func (c *Client) ManagedObjects() ([]gamescope.Object, error) {
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := c.conn.Object(c.name, dbus.ObjectPath(gamescope.RootPath))
	if err := root.Call(objectManagerInterface+".GetManagedObjects", 0).Store(&managed); err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objs := make([]gamescope.Object, 0, len(managed))
	for p := range managed {
		obj, err := gamescope.ParseObject(path.Base(string(p)))
		if err != nil {
			continue
		}
		objs = append(objs, obj)
	}
	sort.Slice(objs, func(i, j int) bool {
		if objs[i].Kind != objs[j].Kind {
			return objs[i].Kind < objs[j].Kind
		}
		return objs[i].Index < objs[j].Index
	})
	return objs, nil
}
