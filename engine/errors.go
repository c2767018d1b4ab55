package engine

import "errors"

// ErrBusy is returned by Submit/SetMTU when an object is already in
// flight (spec.md §7: "Busy").
var ErrBusy = errors.New("engine: busy (an object is already in flight)")

// ErrInvalidArgument is returned synchronously for nonsense arguments
// (nil callback/transport, MTU below the protocol minimum).
var ErrInvalidArgument = errors.New("engine: invalid argument")

// TransportError wraps a failure from the underlying transport. The
// engine always responds by emitting LINKERR, dropping the object, and
// returning to Idle.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "engine: transport error: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError wraps a protocol decode failure: a truncated header, a
// malformed CONNECT pre-header, or a mid-transaction command mismatch.
// The engine emits PARSEERR, replies BAD_REQUEST when acting as server,
// and returns to Idle.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "engine: parse error: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }
