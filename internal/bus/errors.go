package bus

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/gamescope-dbus/internal/engine"
)

// D-Bus error names returned to callers.
const (
	ErrorUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
	ErrorUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	ErrorUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	ErrorPropertyReadOnly = "org.freedesktop.DBus.Error.PropertyReadOnly"
	ErrorInvalidArgs      = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrorFailed           = "org.freedesktop.DBus.Error.Failed"
	ErrorDetached         = "org.shadowblip.Gamescope.Error.Detached"
	ErrorWriteFailed      = "org.shadowblip.Gamescope.Error.WriteFailed"
)

// toDBusError maps an engine error onto a bus error. notFound selects the
// name used for ErrNotFound, which depends on what was looked up.
func toDBusError(err error, notFound string) *dbus.Error {
	if err == nil {
		return nil
	}

	name := ErrorFailed
	switch {
	case errors.Is(err, engine.ErrNotFound):
		name = notFound
	case errors.Is(err, engine.ErrDetached):
		name = ErrorDetached
	case errors.Is(err, engine.ErrNotWritable):
		name = ErrorPropertyReadOnly
	case errors.Is(err, engine.ErrInvalidArgument):
		name = ErrorInvalidArgs
	case errors.Is(err, engine.ErrWriteFailed):
		name = ErrorWriteFailed
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}
