package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"
)

// ByteChannel adapts an arbitrary io.ReadWriteCloser — a pipe, a paired
// in-memory buffer, anything — into a Transport, per spec.md §1's
// requirement to run over any reliable, ordered byte stream regardless of
// the underlying medium.
type ByteChannel struct {
	rwc io.ReadWriteCloser
	br  *bufio.Reader
}

// NewByteChannel wraps an already-connected stream. Connect is a no-op
// (there is nothing left to establish) and Listen/Accept return errors;
// FindInterfaces and SelectInterface are no-ops, since the caller supplied
// the one and only endpoint directly.
func NewByteChannel(rwc io.ReadWriteCloser) *ByteChannel {
	return &ByteChannel{rwc: rwc, br: bufio.NewReader(rwc)}
}

func (b *ByteChannel) Init(ctx context.Context) error { return nil }
func (b *ByteChannel) Cleanup() error                 { return nil }

func (b *ByteChannel) Connect(ctx context.Context, iface Interface) error { return nil }

func (b *ByteChannel) Listen(ctx context.Context, iface Interface) error {
	return errors.New("transport: ByteChannel has no Listen; supply an already-connected stream instead")
}

func (b *ByteChannel) Accept(ctx context.Context) (Transport, error) {
	return nil, errors.New("transport: ByteChannel has no Accept")
}

func (b *ByteChannel) Disconnect() error { return b.rwc.Close() }

func (b *ByteChannel) Read(p []byte) (int, error)  { return b.br.Read(p) }
func (b *ByteChannel) Write(p []byte) (int, error) { return b.rwc.Write(p) }

// HandleInput sets a read deadline (when the wrapped stream supports one)
// and blocks until at least one byte is peekable without consuming it.
func (b *ByteChannel) HandleInput(timeout time.Duration) error {
	if sd, ok := b.rwc.(interface{ SetReadDeadline(time.Time) error }); ok && timeout > 0 {
		if err := sd.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := b.br.Peek(1)
	return err
}

func (b *ByteChannel) FindInterfaces(ctx context.Context) ([]Interface, error) { return nil, nil }
func (b *ByteChannel) SelectInterface(iface Interface) error                  { return nil }
