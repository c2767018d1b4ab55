// Package transport defines the v-table every OBEX transport binding
// implements, generalized from the original source's function-pointer
// obex_ctrans struct, plus a handful of concrete bindings: TCP, an
// arbitrary byte-stream wrapper, a serial-line binding, a rate-limiting
// decorator, and an etcd-backed interface directory.
package transport

import (
	"context"
	"time"
)

// Interface describes one discoverable communication endpoint a transport
// can connect over or listen on (spec.md §4.9): a Bluetooth device, an
// IrDA peer, a USB function, or a named TCP endpoint.
type Interface struct {
	Name    string
	Address string
}

// Transport is the binding an engine drives to move bytes: connect/listen/
// accept to establish a stream, Read/Write to move packets across it,
// HandleInput to block until input is ready (or the timeout elapses), and
// the optional discovery pair for transports that support enumerating
// peers ahead of Connect.
type Transport interface {
	Init(ctx context.Context) error
	Cleanup() error

	Connect(ctx context.Context, iface Interface) error
	Listen(ctx context.Context, iface Interface) error
	Accept(ctx context.Context) (Transport, error)
	Disconnect() error

	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// HandleInput blocks until input is available, the timeout elapses, or
	// the transport is closed. timeout <= 0 means block indefinitely.
	HandleInput(timeout time.Duration) error

	FindInterfaces(ctx context.Context) ([]Interface, error)
	SelectInterface(iface Interface) error
}
