// Package gamescope defines the objects and properties gamescope exposes
// on its XWayland windows, and how they are named on the bus.
package gamescope

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

const (
	// BusName is the default well-known bus name.
	BusName = "org.shadowblip.Gamescope"
	// RootPath is the object manager path; objects live beneath it.
	RootPath = "/org/shadowblip/Gamescope"

	ManagerInterface  = "org.shadowblip.Gamescope.Manager"
	XWaylandInterface = "org.shadowblip.Gamescope.XWayland"

	// ServerIDAtom holds the instance index of an XWayland window.
	ServerIDAtom = "GAMESCOPE_XWAYLAND_SERVER_ID"
)

// ObjectKind distinguishes the manager object from XWayland instances.
type ObjectKind int

const (
	KindManager ObjectKind = iota
	KindXWayland
)

func (k ObjectKind) String() string {
	if k == KindManager {
		return "manager"
	}
	return "xwayland"
}

// Interface returns the bus interface implemented by objects of kind k.
func (k ObjectKind) Interface() string {
	if k == KindManager {
		return ManagerInterface
	}
	return XWaylandInterface
}

// Object is a stable bus-facing identity.
type Object struct {
	Kind  ObjectKind
	Index int
}

// Manager is the single compositor manager object.
var Manager = Object{Kind: KindManager}

// XWayland returns the object for XWayland instance n.
func XWayland(n int) Object {
	return Object{Kind: KindXWayland, Index: n}
}

// Name returns "Manager" or "XWayland<N>".
func (o Object) Name() string {
	if o.Kind == KindManager {
		return "Manager"
	}
	return "XWayland" + strconv.Itoa(o.Index)
}

func (o Object) String() string { return o.Name() }

// Path returns the bus object path of o.
func (o Object) Path() string {
	return RootPath + "/" + o.Name()
}

// Descriptors returns the properties synchronized for o.
func (o Object) Descriptors() []property.Descriptor {
	return Descriptors(o.Kind)
}

// ParseObject parses an object name. Matching is case-insensitive so the
// CLI accepts "manager" and "xwayland0".
func ParseObject(name string) (Object, error) {
	lower := strings.ToLower(name)
	if lower == "manager" {
		return Manager, nil
	}
	if rest, ok := strings.CutPrefix(lower, "xwayland"); ok && rest != "" {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 {
			return XWayland(n), nil
		}
	}
	return Object{}, fmt.Errorf("unknown object %q", name)
}

// Descriptors returns the descriptor set for kind k. The returned slice
// must not be modified.
func Descriptors(k ObjectKind) []property.Descriptor {
	if k == KindManager {
		return managerDescriptors
	}
	return xwaylandDescriptors
}

// Lookup finds a descriptor of kind k by bus property name.
func Lookup(k ObjectKind, name string) (property.Descriptor, bool) {
	for _, d := range Descriptors(k) {
		if d.Name == name {
			return d, true
		}
	}
	return property.Descriptor{}, false
}

// LookupAtom finds a descriptor of kind k by atom name.
func LookupAtom(k ObjectKind, atom string) (property.Descriptor, bool) {
	for _, d := range Descriptors(k) {
		if d.Atom == atom {
			return d, true
		}
	}
	return property.Descriptor{}, false
}

// Atoms returns the atom names watched for kind k.
func Atoms(k ObjectKind) []string {
	descs := Descriptors(k)
	atoms := make([]string, len(descs))
	for i, d := range descs {
		atoms[i] = d.Atom
	}
	return atoms
}

func cardinal(name, atom string, writable bool) property.Descriptor {
	return property.Descriptor{
		Name:     name,
		Atom:     atom,
		Kind:     property.KindInt,
		Type:     property.TypeCardinal,
		Format:   32,
		Writable: writable,
	}.WithDefault(property.Int(0))
}

func flag(name, atom string, writable bool) property.Descriptor {
	return property.Descriptor{
		Name:     name,
		Atom:     atom,
		Kind:     property.KindBool,
		Type:     property.TypeCardinal,
		Format:   32,
		Writable: writable,
	}.WithDefault(property.Bool(false))
}

func cardinals(name, atom string, writable bool) property.Descriptor {
	return property.Descriptor{
		Name:     name,
		Atom:     atom,
		Kind:     property.KindIntArray,
		Type:     property.TypeCardinal,
		Format:   32,
		Writable: writable,
	}.WithDefault(property.Ints())
}

func text(name, atom, typ string) property.Descriptor {
	return property.Descriptor{
		Name:   name,
		Atom:   atom,
		Kind:   property.KindString,
		Type:   typ,
		Format: 8,
	}.WithDefault(property.String(""))
}

var managerDescriptors = []property.Descriptor{
	cardinal("FocusedWindow", "GAMESCOPE_FOCUSED_WINDOW", false),
	cardinal("FocusedApp", "GAMESCOPE_FOCUSED_APP", false),
	cardinal("FocusedAppGfx", "GAMESCOPE_FOCUSED_APP_GFX", false),
	cardinals("FocusableApps", "GAMESCOPE_FOCUSABLE_APPS", false),
	cardinals("FocusableWindows", "GAMESCOPE_FOCUSABLE_WINDOWS", false),
	{
		Name:    "FocusableWindowNames",
		Atom:    "GAMESCOPE_FOCUSABLE_WINDOW_NAMES",
		Kind:    property.KindStringArray,
		Type:    property.TypeUTF8String,
		Format:  8,
		Default: ptr(property.Strings()),
	},
	flag("OverlayFocused", "GAMESCOPE_OVERLAY_FOCUSED", false),
	flag("ExternalOverlayFocused", "GAMESCOPE_EXTERNAL_OVERLAY_FOCUSED", false),
	cardinal("InputFocusMode", "GAMESCOPE_INPUT_FOCUS_MODE", true),
	cardinal("FPSLimit", "GAMESCOPE_FPS_LIMIT", true),
	cardinal("BlurMode", "GAMESCOPE_BLUR_MODE", true),
	cardinal("BlurRadius", "GAMESCOPE_BLUR_RADIUS", true),
	flag("AllowTearing", "GAMESCOPE_ALLOW_TEARING", true),
	flag("CompositeForce", "GAMESCOPE_COMPOSITE_FORCE", true),
	cardinal("ScalingFilter", "GAMESCOPE_SCALING_FILTER", true),
	{
		// server id, width, height, superres
		Name:     "Resolution",
		Atom:     "GAMESCOPE_XWAYLAND_MODE_CONTROL",
		Kind:     property.KindIntArray,
		Type:     property.TypeCardinal,
		Format:   32,
		Writable: true,
	},
	cardinals("BaselayerAppIDs", "GAMESCOPECTRL_BASELAYER_APPID", true),
	{
		Name:     "BaselayerWindow",
		Atom:     "GAMESCOPECTRL_BASELAYER_WINDOW",
		Kind:     property.KindInt,
		Type:     property.TypeWindow,
		Format:   32,
		Writable: true,
		Default:  ptr(property.Int(0)),
	},
}

var xwaylandDescriptors = []property.Descriptor{
	{
		Name:   "ServerID",
		Atom:   ServerIDAtom,
		Kind:   property.KindInt,
		Type:   property.TypeCardinal,
		Format: 32,
	},
	text("Name", "WM_NAME", property.TypeString),
	text("Display", "GAMESCOPE_XWAYLAND_DISPLAY", property.TypeUTF8String),
	flag("OverlayEnabled", "STEAM_OVERLAY", false),
	flag("ExternalOverlay", "GAMESCOPE_EXTERNAL_OVERLAY", true),
	cardinal("AppID", "STEAM_GAME", true),
	flag("BigPicture", "STEAM_BIGPICTURE", false),
	cardinal("InputCounter", "GAMESCOPE_INPUT_COUNTER", false),
	flag("CursorVisible", "GAMESCOPE_CURSOR_VISIBLE_FEEDBACK", false),
	{
		Name:     "CursorOffset",
		Atom:     "GAMESCOPE_CURSOR_OFFSET",
		Kind:     property.KindIntArray,
		Type:     property.TypeInteger,
		Format:   32,
		Signed:   true,
		Writable: true,
		Default:  ptr(property.Ints()),
	},
}

func ptr[T any](v T) *T { return &v }
