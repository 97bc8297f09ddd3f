package window

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

var (
	// ErrTimeout is returned when a protocol call exceeds its bounded wait.
	ErrTimeout = errors.New("windowing system call timed out")
	// ErrClosed is returned after the backend connection is closed.
	ErrClosed = errors.New("windowing system connection closed")
)

// Handle is a protocol-level window identifier.
type Handle uint32

// Role selects which windows ListWindows returns.
type Role int

const (
	// RoleManager is the compositor's manager window (the root window).
	RoleManager Role = iota
	// RoleXWayland matches windows carrying an XWayland server id.
	RoleXWayland
)

func (r Role) String() string {
	if r == RoleManager {
		return "manager"
	}
	return "xwayland"
}

// Window is a window matching a role.
type Window struct {
	Handle Handle
	// Index is the instance index for RoleXWayland windows.
	Index int
}

// Notification is a change reported by the windowing system. Notifications
// are delivered on a single channel in the order the server emitted them.
type Notification struct {
	Window Handle
	// Atom is the changed property, empty for structural notifications.
	Atom string
	// Deleted is set when the property was removed.
	Deleted bool
	// Structural marks a window being created, destroyed, mapped or
	// reparented under the root.
	Structural bool
}

// Backend defines the interface to the windowing system.
type Backend interface {
	// ListWindows returns the windows matching role, ordered by index.
	ListWindows(ctx context.Context, role Role) ([]Window, error)

	// GetProperty reads a property. An unset property is returned with an
	// empty Type rather than an error.
	GetProperty(ctx context.Context, h Handle, atom string) (property.Raw, error)

	// SetProperty replaces a property value.
	SetProperty(ctx context.Context, h Handle, atom string, raw property.Raw) error

	// Subscribe starts delivering change notifications for the given atoms
	// on h. Calling it again replaces the atom set.
	Subscribe(ctx context.Context, h Handle, atoms []string) error

	// Unsubscribe stops notifications for h.
	Unsubscribe(h Handle) error

	// Notifications returns the notification stream. It is closed when the
	// connection is lost.
	Notifications() <-chan Notification

	// Close closes the connection to the display server
	Close() error

	// Name returns the backend name (e.g., "x11")
	Name() string
}
