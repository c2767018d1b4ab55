// Package engine implements the OBEX client and server state machines and
// the Engine type that drives them: owning the RX/TX buffers, negotiated
// MTU, SRM wait state, the in-flight Object, the host event callback, and
// the transport handle, all advanced by repeated calls to Work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/go-obex/obex/buffer"
	"github.com/go-obex/obex/object"
	"github.com/go-obex/obex/transport"
	"github.com/go-obex/obex/wire"
)

// Mode selects whether an Engine plays the OBEX client or server role.
type Mode int

const (
	ModeClient Mode = iota
	ModeServer
)

// State is the engine's coarse transaction phase (spec.md §3, §4.7, §4.8).
type State int

const (
	StateIdle State = iota
	StateRequest
	StateResponse
	StateAbort
)

// SubState refines State with where exactly Work left off.
type SubState int

const (
	SubRx SubState = iota
	SubTxPrepare
	SubTx
)

// ResponseMode selects Normal (every request packet gets an intermediate
// CONTINUE) or Single (SRM: intermediate CONTINUE packets suppressed).
type ResponseMode int

const (
	ResponseNormal ResponseMode = iota
	ResponseSingle
)

// Engine drives one OBEX client or server transaction state machine.
// Single-threaded and cooperative: Work must be called from one goroutine
// at a time, and it blocks only inside the transport's HandleInput
// (spec.md §5).
type Engine struct {
	mode Mode
	opts Options

	rx *buffer.Buffer
	tx *buffer.Buffer

	mtuRX    int
	mtuTXMax int
	mtuTX    int

	respMode ResponseMode
	wait     WaitFlags

	state State
	sub   SubState

	obj *object.Object

	cb Callback

	tr         transport.Transport
	interfaces []transport.Interface

	timeout time.Duration

	log    *zap.Logger
	dumpTX bool
	dumpRX bool
}

// New creates an Engine in the given mode, bound to tr, delivering events
// to cb. The environment variables OBEX_DEBUG (verbosity; any value > 0
// raises the logger to debug level) and OBEX_DUMP (bit 0: dump TX, bit 1:
// dump RX) are consulted here, mirroring the original source's
// obex_library_init.
func New(mode Mode, opts Options, cb Callback, tr transport.Transport) (*Engine, error) {
	if err := opts.validateSelf(); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, fmt.Errorf("%w: nil callback", ErrInvalidArgument)
	}
	if tr == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidArgument)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if lvl := os.Getenv("OBEX_DEBUG"); lvl != "" {
		if n, err := strconv.Atoi(lvl); err == nil && n > 0 {
			if built, err := zap.NewDevelopmentConfig().Build(); err == nil {
				logger = built
			}
		}
	}
	dumpTX, dumpRX := false, false
	if d := os.Getenv("OBEX_DUMP"); d != "" {
		if n, err := strconv.Atoi(d); err == nil {
			dumpTX = n&0x01 != 0
			dumpRX = n&0x02 != 0
		}
	}

	e := &Engine{
		mode:     mode,
		opts:     opts,
		rx:       buffer.New(),
		tx:       buffer.New(),
		mtuRX:    opts.MTURX,
		mtuTXMax: opts.MTUTXMax,
		mtuTX:    MinimumMTU,
		state:    StateIdle,
		sub:      SubRx,
		cb:       cb,
		tr:       tr,
		timeout:  -1,
		log:      logger,
		dumpTX:   dumpTX,
		dumpRX:   dumpRX,
	}
	if err := tr.Init(context.Background()); err != nil {
		return nil, fmt.Errorf("engine: transport init: %w", err)
	}
	return e, nil
}

// Cleanup drops the in-flight object (if any), disconnects the transport,
// and releases transport resources.
func (e *Engine) Cleanup() error {
	e.obj = nil
	if err := e.tr.Disconnect(); err != nil {
		e.log.Warn("transport disconnect on cleanup", zap.Error(err))
	}
	return e.tr.Cleanup()
}

// SetMTU changes the configured MTU-RX and MTU-TX-max. Both must be at
// least MinimumMTU (spec.md §6, the symmetric floor noted in
// SPEC_FULL.md §9). Refused with ErrBusy while an object is in flight.
func (e *Engine) SetMTU(rx, txMax int) error {
	if e.obj != nil {
		return ErrBusy
	}
	if rx < MinimumMTU || txMax < MinimumMTU {
		return fmt.Errorf("%w: MTU must be >= %d", ErrInvalidArgument, MinimumMTU)
	}
	e.mtuRX = rx
	e.mtuTXMax = txMax
	return nil
}

// Connect establishes the underlying transport to iface. Client hosts call
// this once before the first Submit.
func (e *Engine) Connect(ctx context.Context, iface transport.Interface) error {
	return e.tr.Connect(ctx, iface)
}

// Listen and Accept expose the transport's server-side pair. KeepServer
// (spec.md §6) tells the host whether it should call Listen again after a
// successful Accept or reuse the same engine for a single connection.
func (e *Engine) Listen(ctx context.Context, iface transport.Interface) error {
	return e.tr.Listen(ctx, iface)
}

// Accept blocks for the next incoming connection and returns a new Engine
// bound to it, sharing this Engine's Options and callback. The listening
// Engine's transport is left open whether or not Options.KeepServer is
// set; Accept does not read KeepServer.
func (e *Engine) Accept(ctx context.Context) (*Engine, error) {
	conn, err := e.tr.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: accept: %w", err)
	}
	return New(ModeServer, e.opts, e.cb, conn)
}

// DiscoverInterfaces populates and returns the set of peers the transport
// can enumerate ahead of Connect (spec.md §4.9's optional discovery pair).
// FilterHint/FilterIAS (Options) are not applied here and are not passed
// to the transport; the list is whatever FindInterfaces returns.
func (e *Engine) DiscoverInterfaces(ctx context.Context) ([]transport.Interface, error) {
	ifaces, err := e.tr.FindInterfaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: find interfaces: %w", err)
	}
	e.interfaces = ifaces
	return ifaces, nil
}

// SelectInterface pins the transport to one previously discovered peer.
func (e *Engine) SelectInterface(iface transport.Interface) error {
	return e.tr.SelectInterface(iface)
}

// SetTimeout sets the read-side timeout HandleInput waits for input.
// A non-positive duration means block indefinitely.
func (e *Engine) SetTimeout(d time.Duration) { e.timeout = d }

func (e *Engine) timeoutOrBlock() time.Duration {
	if e.timeout <= 0 {
		return 0
	}
	return e.timeout
}

// State returns the engine's current coarse state.
func (e *Engine) State() State { return e.state }

// Object returns the object currently in flight, or nil.
func (e *Engine) Object() *object.Object { return e.obj }

// Submit hands obj to a client-mode engine to begin a new transaction.
// Refused with ErrBusy if a transaction is already in flight.
func (e *Engine) Submit(obj *object.Object) error {
	if e.mode != ModeClient {
		return fmt.Errorf("%w: Submit is client-only", ErrInvalidArgument)
	}
	if e.obj != nil {
		return ErrBusy
	}
	if obj.Command() == object.CmdConnect {
		obj.SetTXPreHeader(wire.ConnectHeader{Version: wire.ProtocolVersion, MTU: e.mtuRX}.Encode())
		obj.SetHeaderOffset(wire.ConnectHeaderSize)
	}
	obj.SetMTU(e.mtuTX)
	e.obj = obj
	e.state = StateRequest
	e.sub = SubTxPrepare
	return nil
}

// Cancel aborts the in-flight transaction. nice=false is synchronous:
// ABORT then LINKERR fire immediately, the transport is disconnected, and
// the engine returns to Idle (spec.md §5). nice=true sets the abort flag;
// the next outgoing packet carries a protocol ABORT command and the
// transaction terminates normally once the peer replies.
func (e *Engine) Cancel(nice bool) error {
	if e.obj == nil {
		return fmt.Errorf("engine: no object in flight")
	}
	if !nice {
		e.deliverEvent(EventAbort, e.obj.Command(), 0)
		e.dropObject()
		_ = e.tr.Disconnect()
		e.deliverEvent(EventLinkErr, 0, 0)
		e.state = StateIdle
		e.sub = SubRx
		return nil
	}
	e.obj.RequestAbort()
	if e.mode == ModeClient {
		e.state = StateAbort
		e.sub = SubTxPrepare
	}
	return nil
}

func (e *Engine) dropObject() {
	e.obj = nil
	e.rx.Reset()
	e.tx.Reset()
}

func (e *Engine) deliverEvent(ev Event, cmd object.Opcode, resp object.Response) {
	e.log.Debug("event", zap.String("event", ev.String()), zap.Uint8("cmd", uint8(cmd)))
	e.cb(e.obj, e.mode, ev, cmd, resp)
}

// Work advances the state machine by one cooperative step. It may block
// only inside the transport's HandleInput. While the in-flight Object is
// suspended, Work returns at once without sending or reading.
func (e *Engine) Work() error {
	if e.obj != nil && e.obj.Suspended() {
		return nil
	}
	var err error
	switch e.mode {
	case ModeClient:
		err = e.workClient()
	default:
		err = e.workServer()
	}
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		e.deliverEvent(EventLinkErr, e.cmdOrZero(), 0)
		e.dropObject()
		_ = e.tr.Disconnect()
		e.state = StateIdle
		e.sub = SubRx
		return nil
	}

	var pe *ParseError
	if errors.As(err, &pe) {
		cmd := e.cmdOrZero()
		if e.mode == ModeServer && e.obj != nil {
			e.replyAndFinish(object.RspBadRequest)
		}
		e.deliverEvent(EventParseErr, cmd, 0)
		e.dropObject()
		e.state = StateIdle
		e.sub = SubRx
		return nil
	}

	return err
}

func (e *Engine) cmdOrZero() object.Opcode {
	if e.obj == nil {
		return 0
	}
	return e.obj.Command()
}

// replyAndFinish makes a best-effort attempt to send a bare final response
// packet (no headers) and is used for error paths where the in-flight
// object's state can no longer be trusted.
func (e *Engine) replyAndFinish(resp object.Response) {
	frame := wire.Frame{Opcode: byte(resp), Final: true}
	_, _ = e.tr.Write(frame.Encode())
}

func (e *Engine) fillRX() error {
	if err := e.tr.HandleInput(e.timeoutOrBlock()); err != nil {
		return &TransportError{Err: err}
	}
	scratch := make([]byte, e.mtuRX)
	n, err := e.tr.Read(scratch)
	if err != nil {
		return &TransportError{Err: err}
	}
	if n > 0 {
		e.rx.Append(scratch[:n])
		if e.dumpRX {
			e.log.Debug("rx", zap.Binary("data", scratch[:n]))
		}
	}
	return nil
}

// receiveFrame blocks (via fillRX) until a complete frame is buffered,
// then decodes and consumes it.
func (e *Engine) receiveFrame() (wire.Frame, error) {
	for {
		f, n, err := wire.DecodeFrame(e.rx.Bytes())
		if err == nil {
			e.rx.Drop(n)
			return f, nil
		}
		if e.rx.Len() < wire.CommonHeaderSize {
			if ferr := e.fillRX(); ferr != nil {
				return wire.Frame{}, ferr
			}
			continue
		}
		declared := int(e.rx.Bytes()[1])<<8 | int(e.rx.Bytes()[2])
		if declared > e.rx.Len() && declared <= e.mtuRX {
			if ferr := e.fillRX(); ferr != nil {
				return wire.Frame{}, ferr
			}
			continue
		}
		return wire.Frame{}, &ParseError{Err: err}
	}
}

// tryDequeueFrame decodes one already-buffered frame without blocking, for
// absorbing out-of-band inbound packets that arrived while the engine was
// mid-send (spec.md §4.8: "any inbound non-final packet is treated as
// out-of-band progress" during server Response).
func (e *Engine) tryDequeueFrame() (wire.Frame, bool) {
	f, n, err := wire.DecodeFrame(e.rx.Bytes())
	if err != nil {
		return wire.Frame{}, false
	}
	e.rx.Drop(n)
	return f, true
}

func (e *Engine) flushTX() error {
	for e.tx.Len() > 0 {
		if e.dumpTX {
			e.log.Debug("tx", zap.Binary("data", e.tx.Bytes()))
		}
		n, err := e.tr.Write(e.tx.Bytes())
		if err != nil {
			return &TransportError{Err: err}
		}
		if n == 0 {
			return nil
		}
		e.tx.Drop(n)
	}
	return nil
}

// ResponseString renders a human-readable name for a response code,
// ported from the original source's obex_response_to_string (supplemented
// feature, SPEC_FULL.md §9), useful in logging.
func ResponseString(r object.Response) string { return r.String() }
