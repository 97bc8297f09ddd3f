package engine

import "errors"

var (
	// ErrNotFound is returned for unknown objects or properties.
	ErrNotFound = errors.New("not found")
	// ErrDetached is returned for objects whose window has disappeared.
	ErrDetached = errors.New("object detached")
	// ErrNotWritable is returned when writing a read-only property.
	ErrNotWritable = errors.New("property is read-only")
	// ErrInvalidArgument is returned when a written value does not fit the
	// property.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrWriteFailed is returned when the windowing system rejects a write.
	ErrWriteFailed = errors.New("write failed")
	// ErrNoValue is returned for an attached object whose property has not
	// been observed yet.
	ErrNoValue = errors.New("no value")
	// ErrTransientQuery marks a discovery scan that could not query the
	// windowing system. It is retried on the next cycle.
	ErrTransientQuery = errors.New("transient query failure")
	// ErrFatalConnectionLoss is returned by Run when the windowing system
	// connection is unusable.
	ErrFatalConnectionLoss = errors.New("fatal connection loss")
	// ErrHandleInUse is returned when registering a window already mapped
	// to another object.
	ErrHandleInUse = errors.New("window handle already registered")
)
