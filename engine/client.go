package engine

import (
	"github.com/go-obex/obex/object"
	"github.com/go-obex/obex/wire"
)

// workClient dispatches one cooperative step of the client state machine
// (spec.md §4.7). StateIdle has nothing to do until Submit is called.
func (e *Engine) workClient() error {
	switch e.state {
	case StateRequest, StateAbort:
		return e.stepClientRequest()
	case StateResponse:
		return e.stepClientResponse()
	default:
		return nil
	}
}

// canBurstNext reports whether the client may send its next request packet
// without first reading a response: only true under SRM, and only while
// the remote side hasn't asked it to wait (spec.md §4.6, §8 invariant 5).
func (e *Engine) canBurstNext() bool {
	return e.respMode == ResponseSingle && !e.wait.Remote
}

// stepClientRequest prepares and sends exactly one request packet, then
// decides whether to loop back for another (SRM burst), hand off to a
// graceful abort, or move on to read the response.
func (e *Engine) stepClientRequest() error {
	if e.obj.Suspended() {
		return nil
	}

	opcode := byte(e.obj.Command())
	var body []byte
	var final bool

	if e.obj.AbortRequested() {
		opcode = byte(object.CmdAbort)
		final = true
	} else {
		body = wire.PrepareTX(e.obj, e.mtuTX)
		final = e.obj.TXQueueEmpty()
	}

	if !e.obj.FirstPacketSent() {
		e.obj.MarkFirstPacketSent()
	}

	frame := wire.Frame{Opcode: opcode, Final: final, Body: body}
	e.tx.Append(frame.Encode())
	if err := e.flushTX(); err != nil {
		return err
	}
	e.applyDrainedSRMWait()

	if final {
		e.state = StateResponse
		e.sub = SubRx
		return nil
	}
	if e.canBurstNext() {
		e.sub = SubTxPrepare
		return nil
	}
	e.state = StateResponse
	e.sub = SubRx
	return nil
}

// stepClientResponse blocks (via HandleInput inside receiveFrame) until a
// full response packet has arrived, routes its headers onto the object,
// and interprets the response code per spec.md §4.7.
func (e *Engine) stepClientResponse() error {
	f, err := e.receiveFrame()
	if err != nil {
		return err
	}
	fromIndex := len(e.obj.RXHeaders())
	if perr := wire.DeliverHeaders(e.obj, f.Body, e.streamSink()); perr != nil {
		return &ParseError{Err: perr}
	}
	e.obj.SetHeaderOffset(0)
	e.scanSRM(e.obj, fromIndex)

	resp := object.Response(f.Opcode)
	if resp.IsInformational() {
		e.deliverEvent(EventProgress, e.obj.Command(), resp)
		if !e.obj.AbortRequested() && !e.obj.Suspended() && (e.respMode == ResponseNormal || !e.wait.Remote) {
			e.state = StateRequest
			e.sub = SubTxPrepare
		}
		return nil
	}
	return e.finishClientTransaction(resp)
}

// finishClientTransaction terminates the transaction on a non-informational
// response: delivers ABORT or REQDONE, applies CONNECT/DISCONNECT
// side-effects, drops the object, and returns the engine to Idle.
func (e *Engine) finishClientTransaction(resp object.Response) error {
	cmd := e.obj.Command()
	switch cmd {
	case object.CmdConnect:
		if resp.IsSuccess() {
			if pre := e.obj.RXPreHeader(); len(pre) >= wire.ConnectHeaderSize {
				ch, err := wire.DecodeConnectHeader(pre)
				if err == nil {
					e.mtuTX = ch.MTU
					if e.mtuTX > e.mtuTXMax {
						e.mtuTX = e.mtuTXMax
					}
					if e.mtuTX < MinimumMTU {
						e.mtuTX = MinimumMTU
					}
				}
			}
		}
	case object.CmdDisconnect:
		e.mtuTX = MinimumMTU
		e.respMode = ResponseNormal
		e.wait = WaitFlags{}
	}

	if e.obj.AbortRequested() {
		e.deliverEvent(EventAbort, cmd, resp)
	} else {
		e.deliverEvent(EventReqDone, cmd, resp)
	}
	e.dropObject()
	e.state = StateIdle
	e.sub = SubRx
	return nil
}
