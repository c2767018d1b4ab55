// Package object implements the OBEX transaction unit: one opcode, a
// queued list of outgoing headers, a received list of inbound headers,
// optional pre-header bytes (CONNECT/SETPATH), pending response codes, and
// the state bits (aborting, suspended, checked, first-packet-sent) the
// client and server state machines consult while driving a transaction.
package object

import (
	"fmt"

	"github.com/go-obex/obex/buffer"
	"github.com/go-obex/obex/header"
)

// Opcode is the 6-bit OBEX command carried in the opcode byte (with the
// Final bit masked off).
type Opcode uint8

const (
	CmdConnect    Opcode = 0x00
	CmdDisconnect Opcode = 0x01
	CmdPut        Opcode = 0x02
	CmdGet        Opcode = 0x03
	CmdSetPath    Opcode = 0x05
	CmdSession    Opcode = 0x07
	CmdAbort      Opcode = 0x7F
)

// Response is a 7-bit OBEX response code (Final bit masked off).
type Response uint8

const (
	RspContinue           Response = 0x10
	RspSwitchProtocols    Response = 0x11
	RspSuccess            Response = 0x20
	RspCreated            Response = 0x21
	RspAccepted           Response = 0x22
	RspNoContent          Response = 0x24
	RspBadRequest         Response = 0x40
	RspUnauthorized       Response = 0x41
	RspPaymentRequired    Response = 0x42
	RspForbidden          Response = 0x43
	RspNotFound           Response = 0x44
	RspMethodNotAllowed   Response = 0x45
	RspConflict           Response = 0x49
	RspInternalError      Response = 0x50
	RspNotImplemented     Response = 0x51
	RspDatabaseFull       Response = 0x60
	RspDatabaseLocked     Response = 0x61
)

// IsInformational reports whether rsp is in the 1xx (Continue) category.
func (r Response) IsInformational() bool { return r&0x70 == 0x10 }

// IsSuccess reports whether rsp is in the 2xx (Success) category.
func (r Response) IsSuccess() bool { return r&0x70 == 0x20 }

// String renders a human-readable name for logging, mirroring the
// original source's obex_response_to_string table (SPEC_FULL.md §9).
func (r Response) String() string {
	switch r {
	case RspContinue:
		return "Continue"
	case RspSwitchProtocols:
		return "Switching protocols"
	case RspSuccess:
		return "OK, Success"
	case RspCreated:
		return "Created"
	case RspAccepted:
		return "Accepted"
	case RspNoContent:
		return "No Content"
	case RspBadRequest:
		return "Bad Request"
	case RspUnauthorized:
		return "Unauthorized"
	case RspPaymentRequired:
		return "Payment required"
	case RspForbidden:
		return "Forbidden"
	case RspNotFound:
		return "Not found"
	case RspMethodNotAllowed:
		return "Method not allowed"
	case RspConflict:
		return "Conflict"
	case RspInternalError:
		return "Internal server error"
	case RspNotImplemented:
		return "Not implemented!"
	case RspDatabaseFull:
		return "Database full"
	case RspDatabaseLocked:
		return "Database locked"
	default:
		return "Unknown response"
	}
}

// BodyMode selects how inbound Body/End-of-Body fragments are collected.
type BodyMode int

const (
	// BodyBuffered accumulates fragments into an owned buffer, delivered
	// to the RX header list as a single Body header on End-of-Body.
	BodyBuffered BodyMode = iota
	// BodyStreamed delivers each fragment to the host via a STREAM_AVAIL
	// event instead of buffering it.
	BodyStreamed
)

// DefaultMTU is the protocol-minimum MTU-TX an Object assumes until its
// owning engine tells it otherwise (spec.md §3: "initial 255").
const DefaultMTU = 255

// Object is a single OBEX transaction: the unit submitted by a client host
// or handed to a server host listener.
type Object struct {
	cmd          Opcode
	respNonFinal Response
	respFinal    Response

	txQueue     []*header.Header
	txPreHeader []byte

	rxList       []*header.Header
	rxPreHeader  []byte
	headerOffset int
	rxIt         *header.Iterator

	hintedBodyLength    int
	hintedBodyLengthSet bool
	bodyMode            BodyMode
	rxBody              *buffer.Buffer // buffered-mode RX collector

	abortRequested  bool
	suspended       bool
	checked         bool
	firstPacketSent bool

	pendingSRMWait    bool
	pendingSRMWaitSet bool

	mtuTX int
}

// New creates an Object for the given command. The host owns it until
// Submit; from Submit to the terminal event, the engine owns it.
func New(cmd Opcode) *Object {
	return &Object{cmd: cmd, mtuTX: DefaultMTU, bodyMode: BodyBuffered}
}

// Command returns the Object's opcode.
func (o *Object) Command() Opcode { return o.cmd }

// SetCommand changes the Object's opcode. Engines auto-attach the CONNECT
// pre-header at Submit time, not here (see engine.Submit) because that
// payload depends on the engine's negotiated MTU-RX.
func (o *Object) SetCommand(cmd Opcode) { o.cmd = cmd }

// SetResponse sets the response codes a server uses for non-final and
// final packets of this transaction.
func (o *Object) SetResponse(nonFinal, final Response) {
	o.respNonFinal = nonFinal
	o.respFinal = final
}

// ResponseNonFinal returns the configured non-final response code.
func (o *Object) ResponseNonFinal() Response { return o.respNonFinal }

// ResponseFinal returns the configured final response code.
func (o *Object) ResponseFinal() Response { return o.respFinal }

// SetMTU caches the engine's current negotiated MTU-TX so AvailableSpace
// and FlagFitOnePacket validation see an up to date budget. Called by the
// owning engine; hosts should not call this directly.
func (o *Object) SetMTU(mtu int) { o.mtuTX = mtu }

// SetTXPreHeader attaches fixed pre-header bytes (CONNECT's 4 bytes,
// SETPATH's 2) to be emitted once, before any queued header, on the first
// outgoing packet.
func (o *Object) SetTXPreHeader(data []byte) { o.txPreHeader = data }

// PopTXPreHeader returns and clears the pending TX pre-header, if any.
func (o *Object) PopTXPreHeader() []byte {
	if len(o.txPreHeader) == 0 {
		return nil
	}
	data := o.txPreHeader
	o.txPreHeader = nil
	return data
}

// SetHeaderOffset records the size of inbound pre-header bytes (4 for
// CONNECT, 2 for SETPATH) that precede the header list on the wire.
func (o *Object) SetHeaderOffset(n int) { o.headerOffset = n }

// HeaderOffset returns the configured inbound pre-header size.
func (o *Object) HeaderOffset() int { return o.headerOffset }

// SetRXPreHeader stores the raw pre-header bytes received on the first
// packet of the transaction.
func (o *Object) SetRXPreHeader(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	o.rxPreHeader = cp
}

// RXPreHeader returns the pre-header bytes received for this transaction.
func (o *Object) RXPreHeader() []byte { return o.rxPreHeader }

// queuedSize sums the remaining wire size of every header still queued
// for transmission.
func (o *Object) queuedSize() int {
	total := 0
	for _, h := range o.txQueue {
		total += h.Size()
	}
	return total
}

// AvailableSpace returns how many bytes are free in the next outgoing
// packet: MTU-TX minus the 3-byte common header, and minus the
// already-queued headers' sizes when flags requests FIT_ONE_PACKET
// accounting.
func (o *Object) AvailableSpace(flags header.Flags) int {
	objLen := 3
	if flags&header.FlagFitOnePacket != 0 {
		objLen += o.queuedSize()
	}
	return o.mtuTX - objLen
}

// AddHeader queues a pointer or owned header for transmission. FlagCopy
// selects an owned copy; FlagSuspend marks the Object suspended once this
// header finishes draining into packets; FlagFitOnePacket rejects the
// header if it would not fit in a single outbound packet alongside what is
// already queued. FlagStreamData/FlagStreamDataEnd feed value to the most
// recently started streaming header in the TX queue (the latter also marks
// it finished). Streaming headers are created with AddStreamHeader;
// FlagStreamStart is not acted on here.
func (o *Object) AddHeader(id header.ID, t header.Type, value []byte, flags header.Flags) error {
	if flags&(header.FlagStreamData|header.FlagStreamDataEnd) != 0 {
		for i := len(o.txQueue) - 1; i >= 0; i-- {
			if s := o.txQueue[i]; s.Kind() == header.KindStream {
				s.Feed(value, flags&header.FlagStreamDataEnd != 0)
				return nil
			}
		}
		return fmt.Errorf("object: no streaming header queued to feed")
	}
	h := header.New(id, t, value, flags)
	if flags&header.FlagFitOnePacket != 0 {
		if o.AvailableSpace(flags) < h.Size() {
			return fmt.Errorf("object: header %v would not fit in one packet", id)
		}
	}
	o.txQueue = append(o.txQueue, h)
	return nil
}

// AddStreamHeader starts a streaming Body header. onEmpty is invoked
// synchronously whenever the TX loop drains the currently buffered chunk
// and the stream is not yet finished; the engine wires this to a
// STREAM_EMPTY host event.
func (o *Object) AddStreamHeader(id header.ID, onEmpty func()) *header.Header {
	h := header.NewStream(id, onEmpty)
	o.txQueue = append(o.txQueue, h)
	return h
}

// TXQueueFront returns the header at the front of the TX queue, if any.
func (o *Object) TXQueueFront() (*header.Header, bool) {
	if len(o.txQueue) == 0 {
		return nil, false
	}
	return o.txQueue[0], true
}

// TXQueuePopFront removes the header at the front of the TX queue.
func (o *Object) TXQueuePopFront() {
	if len(o.txQueue) == 0 {
		return
	}
	o.txQueue = o.txQueue[1:]
}

// TXQueueEmpty reports whether there is nothing left queued for send.
func (o *Object) TXQueueEmpty() bool { return len(o.txQueue) == 0 }

// HasQueuedHeader reports whether a header with the given ID is still
// waiting (fully or partially) in the TX queue.
func (o *Object) HasQueuedHeader(id header.ID) bool {
	for _, h := range o.txQueue {
		if h.ID() == id {
			return true
		}
	}
	return false
}

// SetPendingSRMWait records a just-queued SRM Parameter header's intended
// wait value. The owning engine applies it to its own wait-bits only once
// the header actually drains into an outgoing packet (spec.md §4.6), not
// at the moment it was queued.
func (o *Object) SetPendingSRMWait(wait bool) {
	o.pendingSRMWait = wait
	o.pendingSRMWaitSet = true
}

// PendingSRMWait returns a pending SRM wait value queued via
// SetPendingSRMWait, if any has not yet been applied.
func (o *Object) PendingSRMWait() (wait bool, ok bool) {
	return o.pendingSRMWait, o.pendingSRMWaitSet
}

// ClearPendingSRMWait clears a pending SRM wait value once the owning
// engine has applied it.
func (o *Object) ClearPendingSRMWait() { o.pendingSRMWaitSet = false }

// AppendRXHeader moves a freshly parsed (already-owned) header onto the
// Object's RX list in arrival order.
func (o *Object) AppendRXHeader(h *header.Header) {
	o.rxList = append(o.rxList, h)
}

// NextRXHeader returns the next unread RX header and advances the cursor.
func (o *Object) NextRXHeader() (*header.Header, bool) {
	if o.rxIt == nil {
		o.rxIt = header.NewIterator(&o.rxList)
	}
	return o.rxIt.Next()
}

// ReparseRXHeaders rewinds the RX iterator to the start of the list
// without reordering it.
func (o *Object) ReparseRXHeaders() {
	if o.rxIt == nil {
		o.rxIt = header.NewIterator(&o.rxList)
		return
	}
	o.rxIt.Reparse()
}

// RXHeaders returns the full received header list in arrival order.
func (o *Object) RXHeaders() []*header.Header { return o.rxList }

// SetHintedBodyLength records a Length header's value seen before any
// Body header, used to pre-size the buffered-mode RX body accumulator.
func (o *Object) SetHintedBodyLength(n int) {
	o.hintedBodyLength = n
	o.hintedBodyLengthSet = true
}

// HintedBodyLength returns the recorded Length hint, if any.
func (o *Object) HintedBodyLength() (int, bool) {
	return o.hintedBodyLength, o.hintedBodyLengthSet
}

// SetBodyMode selects buffered or streamed inbound Body handling. Must be
// set before Submit (client) or during REQHINT (server) per spec.md §4.5.
func (o *Object) SetBodyMode(m BodyMode) { o.bodyMode = m }

// BodyMode returns the configured inbound Body handling strategy.
func (o *Object) BodyMode() BodyMode { return o.bodyMode }

// RXBody returns the buffered-mode RX body accumulator, creating it
// (pre-sized to the hinted length, if known) on first use.
func (o *Object) RXBody() *buffer.Buffer {
	if o.rxBody == nil {
		if n, ok := o.HintedBodyLength(); ok {
			o.rxBody = buffer.NewSize(n)
		} else {
			o.rxBody = buffer.New()
		}
	}
	return o.rxBody
}

// RequestAbort marks the Object so the next outgoing packet carries a
// protocol ABORT command (spec.md §4.7 cancel(nice=true)).
func (o *Object) RequestAbort() { o.abortRequested = true }

// AbortRequested reports whether a graceful abort has been requested.
func (o *Object) AbortRequested() bool { return o.abortRequested }

// Suspend prevents further packets for this Object from being sent or
// received until Resume is called.
func (o *Object) Suspend() { o.suspended = true }

// Resume clears a previously set Suspend.
func (o *Object) Resume() { o.suspended = false }

// Suspended reports whether the Object is currently suspended.
func (o *Object) Suspended() bool { return o.suspended }

// MarkChecked records that REQCHECK has been delivered for this
// transaction (server side, first non-final packet only).
func (o *Object) MarkChecked() { o.checked = true }

// Checked reports whether REQCHECK has already fired.
func (o *Object) Checked() bool { return o.checked }

// MarkFirstPacketSent records that the first outgoing packet of a client
// request has been transmitted.
func (o *Object) MarkFirstPacketSent() { o.firstPacketSent = true }

// FirstPacketSent reports whether the first request packet was sent.
func (o *Object) FirstPacketSent() bool { return o.firstPacketSent }
