package property

import "fmt"

// X11 property type atoms used by the descriptors.
const (
	TypeCardinal   = "CARDINAL"
	TypeInteger    = "INTEGER"
	TypeWindow     = "WINDOW"
	TypeString     = "STRING"
	TypeUTF8String = "UTF8_STRING"
)

// Descriptor is the static schema of one synchronized property.
type Descriptor struct {
	// Name is the bus-facing property name.
	Name string
	// Atom is the X11 property atom the value is stored under.
	Atom string
	Kind Kind
	// Type is the X11 type atom written with the property.
	Type string
	// Format is the element width in bits: 8, 16 or 32.
	Format   uint8
	Signed   bool
	Writable bool
	// Default is reported when the property is not set on the window.
	Default *Value
}

// WithDefault returns a copy of d carrying v as its default.
func (d Descriptor) WithDefault(v Value) Descriptor {
	d.Default = &v
	return d
}

// Access returns the introspection access string for d.
func (d Descriptor) Access() string {
	if d.Writable {
		return "readwrite"
	}
	return "read"
}

// Validate checks that d is internally consistent.
func (d Descriptor) Validate() error {
	if d.Name == "" || d.Atom == "" {
		return fmt.Errorf("descriptor %q/%q: name and atom are required", d.Name, d.Atom)
	}
	switch d.Format {
	case 8, 16, 32:
	default:
		return fmt.Errorf("descriptor %s: unsupported format %d", d.Name, d.Format)
	}
	switch d.Kind {
	case KindString, KindStringArray:
		if d.Format != 8 {
			return fmt.Errorf("descriptor %s: text properties must use format 8", d.Name)
		}
		if d.Type != TypeString && d.Type != TypeUTF8String {
			return fmt.Errorf("descriptor %s: text type %s is not STRING or UTF8_STRING", d.Name, d.Type)
		}
	case KindInt, KindBool, KindIntArray:
		if d.Type == "" {
			return fmt.Errorf("descriptor %s: missing type atom", d.Name)
		}
	default:
		return fmt.Errorf("descriptor %s: invalid kind", d.Name)
	}
	if d.Default != nil && d.Default.Kind() != d.Kind {
		return fmt.Errorf("descriptor %s: default is %s, want %s", d.Name, d.Default.Kind(), d.Kind)
	}
	return nil
}

// Raw is a property as stored on a window.
type Raw struct {
	// Type is the type atom name, empty when the property is not set.
	Type   string
	Format uint8
	Data   []byte
}

// Absent reports whether the property is not set on the window.
func (r Raw) Absent() bool {
	return r.Type == ""
}
