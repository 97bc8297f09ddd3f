package window

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
	"github.com/bryanchriswhite/gamescope-dbus/internal/gamescope"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/property"
)

const rootMask = xproto.EventMaskSubstructureNotify

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	xu          *xgbutil.XUtil
	root        xproto.Window
	callTimeout time.Duration

	mu   sync.RWMutex
	subs map[xproto.Window]map[xproto.Atom]string

	events    chan Notification
	done      chan struct{}
	closeOnce sync.Once
}

// NewX11Backend connects to the given display ("" uses $DISPLAY) and starts
// the event pump. Every protocol call is bounded by callTimeout.
func NewX11Backend(display string, callTimeout time.Duration) (*X11Backend, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	b := &X11Backend{
		xu:          xu,
		root:        xu.RootWin(),
		callTimeout: callTimeout,
		subs:        make(map[xproto.Window]map[xproto.Atom]string),
		events:      make(chan Notification, 256),
		done:        make(chan struct{}),
	}

	// Structural changes under the root drive rediscovery.
	if err := xwindow.New(xu, b.root).Listen(rootMask); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("failed to select root events: %w", err)
	}

	go b.pump()
	return b, nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

// Notifications returns the ordered notification stream.
func (b *X11Backend) Notifications() <-chan Notification {
	return b.events
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.xu.Conn().Close()
	})
	return nil
}

// ListWindows returns the root window for RoleManager, and the root's
// children that carry GAMESCOPE_XWAYLAND_SERVER_ID for RoleXWayland.
func (b *X11Backend) ListWindows(ctx context.Context, role Role) ([]Window, error) {
	if role == RoleManager {
		return []Window{{Handle: Handle(b.root)}}, nil
	}

	var windows []Window
	err := b.bounded(ctx, "list windows", func() error {
		var err error
		windows, err = b.listXWayland()
		return err
	})
	return windows, err
}

func (b *X11Backend) listXWayland() ([]Window, error) {
	log := logger.WithComponent("x11-backend")

	tree, err := xproto.QueryTree(b.xu.Conn(), b.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}

	serverID, err := xprop.Atm(b.xu, gamescope.ServerIDAtom)
	if err != nil {
		return nil, fmt.Errorf("failed to intern %s: %w", gamescope.ServerIDAtom, err)
	}

	windows := make([]Window, 0)
	for _, child := range tree.Children {
		reply, err := xproto.GetProperty(
			b.xu.Conn(),
			false,
			child,
			serverID,
			xproto.AtomCardinal,
			0,
			1,
		).Reply()
		if err != nil {
			// The child may have been destroyed since QueryTree.
			log.Debug().Uint32("winID", uint32(child)).Err(err).Msg("listXWayland: skipping window")
			continue
		}
		if reply.Format != 32 || len(reply.Value) < 4 {
			continue
		}
		windows = append(windows, Window{
			Handle: Handle(child),
			Index:  int(xgb.Get32(reply.Value)),
		})
	}

	slices.SortFunc(windows, func(x, y Window) int { return x.Index - y.Index })

	log.Debug().
		Int("children", len(tree.Children)).
		Int("xwayland", len(windows)).
		Msg("listXWayland: summary")
	return windows, nil
}

// GetProperty reads a property of any type.
func (b *X11Backend) GetProperty(ctx context.Context, h Handle, atom string) (property.Raw, error) {
	var raw property.Raw
	err := b.bounded(ctx, "get "+atom, func() error {
		atomID, err := xprop.Atm(b.xu, atom)
		if err != nil {
			return err
		}
		reply, err := xproto.GetProperty(
			b.xu.Conn(),
			false,
			xproto.Window(h),
			atomID,
			xproto.GetPropertyTypeAny,
			0,
			(1<<32)-1,
		).Reply()
		if err != nil {
			return err
		}
		if reply.Type == xproto.AtomNone {
			return nil
		}
		typ, err := xprop.AtomName(b.xu, reply.Type)
		if err != nil {
			return err
		}
		raw = property.Raw{Type: typ, Format: reply.Format, Data: reply.Value}
		return nil
	})
	if err != nil {
		return property.Raw{}, fmt.Errorf("failed to get %s on window %d: %w", atom, h, err)
	}
	return raw, nil
}

// SetProperty replaces a property using a checked request.
func (b *X11Backend) SetProperty(ctx context.Context, h Handle, atom string, raw property.Raw) error {
	err := b.bounded(ctx, "set "+atom, func() error {
		return xprop.ChangeProp(b.xu, xproto.Window(h), raw.Format, atom, raw.Type, raw.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to set %s on window %d: %w", atom, h, err)
	}
	return nil
}

// Subscribe selects PropertyChange events on h and records which atoms are
// forwarded.
func (b *X11Backend) Subscribe(ctx context.Context, h Handle, atoms []string) error {
	win := xproto.Window(h)
	return b.bounded(ctx, "subscribe", func() error {
		set := make(map[xproto.Atom]string, len(atoms))
		for _, name := range atoms {
			id, err := xprop.Atm(b.xu, name)
			if err != nil {
				return fmt.Errorf("failed to intern %s: %w", name, err)
			}
			set[id] = name
		}

		b.mu.Lock()
		b.subs[win] = set
		b.mu.Unlock()

		mask := xproto.EventMaskPropertyChange
		if win == b.root {
			mask |= rootMask
		}
		if err := xwindow.New(b.xu, win).Listen(mask); err != nil {
			b.mu.Lock()
			delete(b.subs, win)
			b.mu.Unlock()
			return fmt.Errorf("failed to set event mask: %w", err)
		}
		return nil
	})
}

// Unsubscribe stops forwarding notifications for h and clears its event
// mask. The root keeps its structural mask.
func (b *X11Backend) Unsubscribe(h Handle) error {
	win := xproto.Window(h)

	b.mu.Lock()
	delete(b.subs, win)
	b.mu.Unlock()

	mask := xproto.EventMaskNoEvent
	if win == b.root {
		mask = rootMask
	}
	return b.bounded(context.Background(), "unsubscribe", func() error {
		return xwindow.New(b.xu, win).Listen(mask)
	})
}

// pump reads X events in order and forwards the relevant ones.
func (b *X11Backend) pump() {
	log := logger.WithComponent("x11-backend")
	defer close(b.events)

	for {
		ev, xerr := b.xu.Conn().WaitForEvent()
		if ev == nil && xerr == nil {
			log.Info().Msg("X11 connection closed")
			return
		}
		if xerr != nil {
			// Asynchronous protocol errors, typically BadWindow for a
			// window that disappeared.
			log.Debug().Str("error", xerr.Error()).Msg("X11 error event")
			continue
		}

		n, ok := b.translate(ev)
		if !ok {
			continue
		}
		select {
		case b.events <- n:
		case <-b.done:
			return
		}
	}
}

func (b *X11Backend) translate(ev xgb.Event) (Notification, bool) {
	switch e := ev.(type) {
	case xproto.PropertyNotifyEvent:
		b.mu.RLock()
		name, ok := b.subs[e.Window][e.Atom]
		b.mu.RUnlock()
		if !ok {
			return Notification{}, false
		}
		return Notification{
			Window:  Handle(e.Window),
			Atom:    name,
			Deleted: e.State == xproto.PropertyDelete,
		}, true
	case xproto.CreateNotifyEvent:
		return structural(e.Window), e.Parent == b.root
	case xproto.DestroyNotifyEvent:
		return structural(e.Window), true
	case xproto.MapNotifyEvent:
		return structural(e.Window), e.Event == b.root
	case xproto.UnmapNotifyEvent:
		return structural(e.Window), e.Event == b.root
	case xproto.ReparentNotifyEvent:
		return structural(e.Window), true
	}
	return Notification{}, false
}

func structural(win xproto.Window) Notification {
	return Notification{Window: Handle(win), Structural: true}
}

// bounded runs fn with the configured call timeout. xgb replies block
// without a deadline, so a hung server leaves fn's goroutine parked until
// the connection is closed.
func (b *X11Backend) bounded(ctx context.Context, op string, fn func() error) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn() }()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return ctx.Err()
	}
}
