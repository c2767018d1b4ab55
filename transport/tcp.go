package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"
)

// TCP is the default Transport: OBEX-over-TCP, with no interface discovery
// of its own (FindInterfaces returns an error). Grounded on
// the teacher's net.Conn-based client transport and on
// elektrosoftlab-modbus's SetDeadline-driven HandleInput polling style.
type TCP struct {
	conn     net.Conn
	listener net.Listener
	br       *bufio.Reader
}

// NewTCP returns an unconnected TCP transport; call Connect or Listen+Accept.
func NewTCP() *TCP { return &TCP{} }

func (t *TCP) Init(ctx context.Context) error { return nil }
func (t *TCP) Cleanup() error                 { return t.Disconnect() }

func (t *TCP) Connect(ctx context.Context, iface Interface) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", iface.Address)
	if err != nil {
		return fmt.Errorf("transport: tcp connect %s: %w", iface.Address, err)
	}
	t.conn = conn
	t.br = bufio.NewReader(conn)
	return nil
}

func (t *TCP) Listen(ctx context.Context, iface Interface) error {
	lc := net.ListenConfig{}
	l, err := lc.Listen(ctx, "tcp", iface.Address)
	if err != nil {
		return fmt.Errorf("transport: tcp listen %s: %w", iface.Address, err)
	}
	t.listener = l
	return nil
}

func (t *TCP) Accept(ctx context.Context) (Transport, error) {
	if t.listener == nil {
		return nil, fmt.Errorf("transport: tcp Accept called before Listen")
	}
	conn, err := t.listener.Accept()
	if err != nil {
		return nil, err
	}
	return &TCP{conn: conn, br: bufio.NewReader(conn)}, nil
}

func (t *TCP) Disconnect() error {
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	if t.listener != nil {
		if lerr := t.listener.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

func (t *TCP) Read(p []byte) (int, error) {
	if t.br == nil {
		return 0, fmt.Errorf("transport: tcp Read before Connect/Accept")
	}
	return t.br.Read(p)
}

func (t *TCP) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, fmt.Errorf("transport: tcp Write before Connect/Accept")
	}
	return t.conn.Write(p)
}

func (t *TCP) HandleInput(timeout time.Duration) error {
	if t.conn == nil {
		return fmt.Errorf("transport: tcp HandleInput before Connect/Accept")
	}
	if timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	_, err := t.br.Peek(1)
	return err
}

func (t *TCP) FindInterfaces(ctx context.Context) ([]Interface, error) {
	return nil, fmt.Errorf("transport: TCP has no built-in interface discovery; pair it with EtcdInterfaceDirectory")
}

func (t *TCP) SelectInterface(iface Interface) error { return nil }
