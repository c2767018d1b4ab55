package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Serial is a Transport over a physical or virtual serial device, the
// pack's nearest analogue to IrDA/RFCOMM-over-serial-device bindings.
// Grounded on elektrosoftlab-modbus's use of github.com/goburrow/serial.
type Serial struct {
	cfg  serial.Config
	port io.ReadWriteCloser
	br   *bufio.Reader
}

// NewSerial configures, without yet opening, a serial transport at the
// given device path and baud rate (8 data bits, 1 stop bit, no parity —
// the usual IrDA/RFCOMM-over-serial framing).
func NewSerial(address string, baudRate int) *Serial {
	return &Serial{cfg: serial.Config{
		Address:  address,
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  0,
	}}
}

func (s *Serial) Init(ctx context.Context) error { return nil }
func (s *Serial) Cleanup() error                 { return s.Disconnect() }

func (s *Serial) Connect(ctx context.Context, iface Interface) error {
	if iface.Address != "" {
		s.cfg.Address = iface.Address
	}
	port, err := serial.Open(&s.cfg)
	if err != nil {
		return fmt.Errorf("transport: serial open %s: %w", s.cfg.Address, err)
	}
	s.port = port
	s.br = bufio.NewReader(port)
	return nil
}

func (s *Serial) Listen(ctx context.Context, iface Interface) error {
	return fmt.Errorf("transport: Serial has no Listen; OBEX-over-serial is point to point")
}

func (s *Serial) Accept(ctx context.Context) (Transport, error) {
	return nil, fmt.Errorf("transport: Serial has no Accept; OBEX-over-serial is point to point")
}

func (s *Serial) Disconnect() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

func (s *Serial) Read(p []byte) (int, error) {
	if s.br == nil {
		return 0, fmt.Errorf("transport: serial Read before Connect")
	}
	return s.br.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, fmt.Errorf("transport: serial Write before Connect")
	}
	return s.port.Write(p)
}

// HandleInput blocks on a 1-byte peek. Its timeout argument is not used;
// how long a read waits is governed only by serial.Config.Timeout, which
// NewSerial sets to 0 and nothing in this type changes.
func (s *Serial) HandleInput(timeout time.Duration) error {
	if s.br == nil {
		return fmt.Errorf("transport: serial HandleInput before Connect")
	}
	_, err := s.br.Peek(1)
	return err
}

func (s *Serial) FindInterfaces(ctx context.Context) ([]Interface, error) {
	return nil, fmt.Errorf("transport: Serial has no interface discovery; pair it with EtcdInterfaceDirectory")
}

func (s *Serial) SelectInterface(iface Interface) error {
	s.cfg.Address = iface.Address
	return nil
}
